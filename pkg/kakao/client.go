// Package kakao provides address geocoding via the Kakao Local API.
package kakao

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://dapi.kakao.com"

// Client geocodes Korean addresses and place-like text.
type Client interface {
	// GeocodeAddress geocodes a single free-text address. A non-match is
	// not an error; check Matched on the result.
	GeocodeAddress(ctx context.Context, query string) (*Address, error)
}

// Address holds the geocoding output for one query.
type Address struct {
	FormattedAddress string
	Lat              float64
	Lon              float64
	Province         string // region_1depth_name
	District         string // region_2depth_name
	Dong             string // 행정동 when available, else 법정동
	HCode            string // 10-digit administrative code from Kakao
	Matched          bool
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(base string) Option {
	return func(c *client) {
		c.baseURL = base
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	key        string
	limiter    *rate.Limiter
}

// NewClient creates a new Kakao Local Client with the given options.
func NewClient(key string, opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		key:        key,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// addressResponse is the JSON response from /v2/local/search/address.
type addressResponse struct {
	Documents []struct {
		AddressName string `json:"address_name"`
		X           string `json:"x"` // longitude
		Y           string `json:"y"` // latitude
		Address     *struct {
			Region1  string `json:"region_1depth_name"`
			Region2  string `json:"region_2depth_name"`
			Region3  string `json:"region_3depth_name"`
			Region3H string `json:"region_3depth_h_name"`
			HCode    string `json:"h_code"`
		} `json:"address"`
		RoadAddress *struct {
			AddressName string `json:"address_name"`
			Region1     string `json:"region_1depth_name"`
			Region2     string `json:"region_2depth_name"`
		} `json:"road_address"`
	} `json:"documents"`
	Meta struct {
		TotalCount int `json:"total_count"`
	} `json:"meta"`
}

func (c *client) GeocodeAddress(ctx context.Context, query string) (*Address, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "kakao: rate limit")
	}

	params := url.Values{"query": {query}}
	reqURL := c.baseURL + "/v2/local/search/address.json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "kakao: build request")
	}
	req.Header.Set("Authorization", "KakaoAK "+c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "kakao: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("kakao: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "kakao: read body")
	}

	var addrResp addressResponse
	if err := json.Unmarshal(body, &addrResp); err != nil {
		return nil, eris.Wrap(err, "kakao: parse response")
	}

	if len(addrResp.Documents) == 0 {
		return &Address{Matched: false}, nil
	}

	doc := addrResp.Documents[0]
	lon, err := strconv.ParseFloat(doc.X, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "kakao: parse x %q", doc.X)
	}
	lat, err := strconv.ParseFloat(doc.Y, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "kakao: parse y %q", doc.Y)
	}

	addr := &Address{
		FormattedAddress: doc.AddressName,
		Lat:              lat,
		Lon:              lon,
		Matched:          true,
	}
	if doc.Address != nil {
		addr.Province = doc.Address.Region1
		addr.District = doc.Address.Region2
		addr.Dong = doc.Address.Region3H
		if addr.Dong == "" {
			addr.Dong = doc.Address.Region3
		}
		addr.HCode = doc.Address.HCode
	} else if doc.RoadAddress != nil {
		addr.Province = doc.RoadAddress.Region1
		addr.District = doc.RoadAddress.Region2
	}
	return addr, nil
}
