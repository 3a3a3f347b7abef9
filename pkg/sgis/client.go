// Package sgis provides administrative unit lookups via the Statistics
// Korea SGIS OpenAPI. Access tokens are short-lived and refreshed
// transparently.
package sgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://sgisapi.kostat.go.kr/OpenAPI3"

// SGIS error codes.
const (
	errCodeExpiredToken = -401
	errCodeNoResult     = -100
)

// errNoResult marks an SGIS "no result" response.
var errNoResult = eris.New("sgis: no result")

// Client looks up administrative dong units.
type Client interface {
	// UnitAt returns the administrative dong containing the coordinate,
	// or (nil, nil) when the point falls outside every known boundary.
	UnitAt(ctx context.Context, lat, lon float64) (*Unit, error)

	// Neighbors returns the dongs adjacent to the given unit code.
	Neighbors(ctx context.Context, code string) ([]Unit, error)
}

// Unit is one administrative dong.
type Unit struct {
	Code     string // 7-digit Statistics Korea code
	Name     string
	District string
	Province string
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
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	limiter        *rate.Limiter

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new SGIS Client with the given options.
func NewClient(consumerKey, consumerSecret string, opts ...Option) Client {
	c := &client{
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		baseURL:        defaultBaseURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		limiter:        rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common SGIS response wrapper.
type envelope struct {
	ErrCd  int             `json:"errCd"`
	ErrMsg string          `json:"errMsg"`
	Result json.RawMessage `json:"result"`
}

type authResult struct {
	AccessToken   string `json:"accessToken"`
	AccessTimeout string `json:"accessTimeout"` // epoch millis
}

// token returns a valid access token, authenticating when needed.
func (c *client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	params := url.Values{
		"consumer_key":    {c.consumerKey},
		"consumer_secret": {c.consumerSecret},
	}
	var res authResult
	if err := c.doGet(ctx, "/auth/authentication.json", params, &res); err != nil {
		return "", eris.Wrap(err, "sgis: authenticate")
	}
	if res.AccessToken == "" {
		return "", eris.New("sgis: empty access token")
	}

	expiry := time.Now().Add(2 * time.Hour)
	if ms, err := strconv.ParseInt(res.AccessTimeout, 10, 64); err == nil {
		expiry = time.UnixMilli(ms)
	}
	c.accessToken = res.AccessToken
	// Renew a minute early to avoid racing the server-side expiry.
	c.tokenExpiry = expiry.Add(-time.Minute)
	return c.accessToken, nil
}

// invalidateToken drops the cached token after a -401 response.
func (c *client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// get performs an authenticated GET, refreshing the token once when the
// server reports it expired.
func (c *client) get(ctx context.Context, path string, params url.Values, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		tok, err := c.token(ctx)
		if err != nil {
			return err
		}
		params.Set("accessToken", tok)

		err = c.doGet(ctx, path, params, out)
		if err == nil {
			return nil
		}
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Code == errCodeExpiredToken && attempt == 0 {
			c.invalidateToken()
			continue
		}
		return err
	}
	return eris.New("sgis: token refresh loop exhausted")
}

// apiError is a non-zero errCd from the SGIS envelope.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("sgis: api error %d: %s", e.Code, e.Message)
}

// doGet performs one GET without token handling.
func (c *client) doGet(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "sgis: rate limit")
	}

	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "sgis: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "sgis: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("sgis: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "sgis: read body")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrap(err, "sgis: parse envelope")
	}
	if env.ErrCd == errCodeNoResult {
		return errNoResult
	}
	if env.ErrCd != 0 {
		return &apiError{Code: env.ErrCd, Message: env.ErrMsg}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return eris.Wrap(err, "sgis: parse result")
		}
	}
	return nil
}

type rgeocodeEntry struct {
	AdmCd  string `json:"adm_dr_cd"`
	AdmNm  string `json:"adm_dr_nm"`
	SggNm  string `json:"sgg_nm"`
	SidoNm string `json:"sido_nm"`
}

func (c *client) UnitAt(ctx context.Context, lat, lon float64) (*Unit, error) {
	params := url.Values{
		"x_coor":    {strconv.FormatFloat(lon, 'f', 7, 64)},
		"y_coor":    {strconv.FormatFloat(lat, 'f', 7, 64)},
		"addr_type": {"20"},
	}
	var entries []rgeocodeEntry
	if err := c.get(ctx, "/addr/rgeocodewgs84.json", params, &entries); err != nil {
		if eris.Is(err, errNoResult) {
			// Point outside every boundary.
			return nil, nil
		}
		return nil, eris.Wrap(err, "sgis: reverse geocode")
	}
	if len(entries) == 0 {
		return nil, nil
	}

	e := entries[0]
	if e.AdmCd == "" {
		return nil, nil
	}
	return &Unit{
		Code:     e.AdmCd,
		Name:     e.AdmNm,
		District: e.SggNm,
		Province: e.SidoNm,
	}, nil
}

type adjacencyEntry struct {
	AdmCd  string `json:"adm_cd"`
	AdmNm  string `json:"adm_nm"`
	SggNm  string `json:"sgg_nm"`
	SidoNm string `json:"sido_nm"`
}

func (c *client) Neighbors(ctx context.Context, code string) ([]Unit, error) {
	params := url.Values{
		"adm_cd":     {code},
		"low_search": {"0"},
	}
	var entries []adjacencyEntry
	if err := c.get(ctx, "/boundary/neighbor.json", params, &entries); err != nil {
		if eris.Is(err, errNoResult) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sgis: neighbors of %s", code)
	}

	units := make([]Unit, 0, len(entries))
	for _, e := range entries {
		if e.AdmCd == "" || e.AdmCd == code {
			continue
		}
		units = append(units, Unit{
			Code:     e.AdmCd,
			Name:     e.AdmNm,
			District: e.SggNm,
			Province: e.SidoNm,
		})
	}
	return units, nil
}
