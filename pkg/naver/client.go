// Package naver provides place search via the Naver Local search API.
package naver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://openapi.naver.com"

// Client searches for named places.
type Client interface {
	// SearchLocal returns candidate places for a free-text query, best
	// match first. An empty result is not an error.
	SearchLocal(ctx context.Context, query string) ([]Place, error)
}

// Place is one local search hit. MapX and MapY are WGS84 degrees
// scaled by 1e7, as the API returns them.
type Place struct {
	Title       string
	Category    string
	Address     string
	RoadAddress string
	MapX        int64
	MapY        int64
}

// Coordinate converts the scaled integer coordinates to degrees.
func (p Place) Coordinate() (lat, lon float64) {
	return float64(p.MapY) / 1e7, float64(p.MapX) / 1e7
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

// WithDisplay sets how many candidates to request (max 5 for local search).
func WithDisplay(n int) Option {
	return func(c *client) {
		c.display = n
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

type client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	display      int
	limiter      *rate.Limiter
}

// NewClient creates a new Naver Local Client with the given options.
func NewClient(clientID, clientSecret string, opts ...Option) Client {
	c := &client{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		baseURL:      defaultBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		display:      5,
		limiter:      rate.NewLimiter(8, 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// localResponse is the JSON response from /v1/search/local.
type localResponse struct {
	Total int `json:"total"`
	Items []struct {
		Title       string `json:"title"`
		Category    string `json:"category"`
		Address     string `json:"address"`
		RoadAddress string `json:"roadAddress"`
		MapX        string `json:"mapx"`
		MapY        string `json:"mapy"`
	} `json:"items"`
}

func (c *client) SearchLocal(ctx context.Context, query string) ([]Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "naver: rate limit")
	}

	params := url.Values{
		"query":   {query},
		"display": {strconv.Itoa(c.display)},
		"sort":    {"random"},
	}
	reqURL := c.baseURL + "/v1/search/local.json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "naver: build request")
	}
	req.Header.Set("X-Naver-Client-Id", c.clientID)
	req.Header.Set("X-Naver-Client-Secret", c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "naver: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("naver: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "naver: read body")
	}

	var localResp localResponse
	if err := json.Unmarshal(body, &localResp); err != nil {
		return nil, eris.Wrap(err, "naver: parse response")
	}

	places := make([]Place, 0, len(localResp.Items))
	for _, item := range localResp.Items {
		mapX, err := strconv.ParseInt(item.MapX, 10, 64)
		if err != nil {
			continue
		}
		mapY, err := strconv.ParseInt(item.MapY, 10, 64)
		if err != nil {
			continue
		}
		places = append(places, Place{
			Title:       stripTags(item.Title),
			Category:    item.Category,
			Address:     item.Address,
			RoadAddress: item.RoadAddress,
			MapX:        mapX,
			MapY:        mapY,
		})
	}
	return places, nil
}

// stripTags removes the <b> highlight markup Naver embeds in titles.
func stripTags(s string) string {
	replacer := strings.NewReplacer("<b>", "", "</b>", "", "&amp;", "&", "&lt;", "<", "&gt;", ">")
	return replacer.Replace(s)
}
