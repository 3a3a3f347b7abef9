package provider

import (
	"bytes"
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

	"github.com/beanraft/district-cli/internal/config"
	"github.com/beanraft/district-cli/internal/resilience"
)

const defaultRatePerSec = 5.0

// Portal is the shared HTTP plumbing for the two public-data surfaces:
// the national portal (apis.data.go.kr, serviceKey query parameter) and
// the Seoul open API (key embedded in the URL path). Providers hold their
// own rate limiters; the portal only speaks the two envelope dialects.
type Portal struct {
	httpClient   *http.Client
	baseURL      string
	seoulBaseURL string
	serviceKey   string
	seoulKey     string
	ratePerSec   float64
}

// PortalOption configures a Portal.
type PortalOption func(*Portal)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) PortalOption {
	return func(p *Portal) {
		p.httpClient = c
	}
}

// NewPortal creates the shared portal from provider configuration.
func NewPortal(cfg config.ProvidersConfig, opts ...PortalOption) *Portal {
	p := &Portal{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		seoulBaseURL: strings.TrimRight(cfg.SeoulBaseURL, "/"),
		serviceKey:   cfg.ServiceKey,
		seoulKey:     cfg.SeoulKey,
		ratePerSec:   cfg.RatePerSec,
	}
	if p.ratePerSec <= 0 {
		p.ratePerSec = defaultRatePerSec
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limiter returns a fresh per-provider rate limiter at the configured rate.
func (p *Portal) Limiter() *rate.Limiter {
	burst := int(p.ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(p.ratePerSec), burst)
}

// dataEnvelope is the standard data.go.kr response wrapper.
type dataEnvelope struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body DataBody `json:"body"`
	} `json:"response"`
}

// DataBody is the body of a data.go.kr response. Items stays raw so each
// provider decodes its own row shape.
type DataBody struct {
	Items      json.RawMessage `json:"items"`
	NumOfRows  int             `json:"numOfRows"`
	PageNo     int             `json:"pageNo"`
	TotalCount int             `json:"totalCount"`
}

// resultCode "03" is the portal's NODATA_ERROR; it means an empty result,
// not a failure.
const dataNoDataCode = "03"

// GetData calls a data.go.kr endpoint and returns the decoded body.
// serviceKey and resultType=json are appended to params. A NODATA result
// comes back as an empty body with no error.
func (p *Portal) GetData(ctx context.Context, path string, params url.Values) (*DataBody, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("serviceKey", p.serviceKey)
	q.Set("resultType", "json")

	body, err := p.get(ctx, p.baseURL+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var env dataEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "provider: decode portal envelope")
	}
	header := env.Response.Header
	switch header.ResultCode {
	case "00":
		return &env.Response.Body, nil
	case dataNoDataCode:
		return &DataBody{}, nil
	default:
		return nil, eris.Errorf("provider: portal error %s: %s", header.ResultCode, header.ResultMsg)
	}
}

// SeoulBody is the inner object of a Seoul open API response, keyed by
// service name in the raw JSON.
type SeoulBody struct {
	TotalCount int             `json:"list_total_count"`
	Result     seoulResult     `json:"RESULT"`
	Rows       json.RawMessage `json:"row"`
}

type seoulResult struct {
	Code    string `json:"CODE"`
	Message string `json:"MESSAGE"`
}

const (
	seoulOKCode     = "INFO-000"
	seoulNoDataCode = "INFO-200"
)

// GetSeoul calls a Seoul open API service. The key, format, service name,
// row range, and any positional filters are all path segments. A no-data
// result comes back as an empty body with no error.
func (p *Portal) GetSeoul(ctx context.Context, service string, start, end int, segments ...string) (*SeoulBody, error) {
	parts := []string{p.seoulBaseURL, url.PathEscape(p.seoulKey), "json", service,
		strconv.Itoa(start), strconv.Itoa(end)}
	for _, seg := range segments {
		parts = append(parts, url.PathEscape(seg))
	}

	body, err := p.get(ctx, strings.Join(parts, "/"))
	if err != nil {
		return nil, err
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, eris.Wrap(err, "provider: decode seoul response")
	}

	// Errors and empty results arrive as a bare top-level RESULT object
	// instead of the service-keyed body.
	if raw, ok := outer[service]; ok {
		var sb SeoulBody
		if err := json.Unmarshal(raw, &sb); err != nil {
			return nil, eris.Wrap(err, "provider: decode seoul body")
		}
		switch sb.Result.Code {
		case seoulOKCode, "":
			return &sb, nil
		case seoulNoDataCode:
			return &SeoulBody{}, nil
		default:
			return nil, eris.Errorf("provider: seoul error %s: %s", sb.Result.Code, sb.Result.Message)
		}
	}
	if raw, ok := outer["RESULT"]; ok {
		var res seoulResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, eris.Wrap(err, "provider: decode seoul result")
		}
		if res.Code == seoulNoDataCode {
			return &SeoulBody{}, nil
		}
		return nil, eris.Errorf("provider: seoul error %s: %s", res.Code, res.Message)
	}
	return nil, eris.Errorf("provider: seoul response missing %s body", service)
}

// get performs one GET and returns the body. Transient HTTP statuses are
// wrapped so the retry layer can tell them from permanent failures;
// transport errors are left alone because resilience.IsTransient already
// recognizes them.
func (p *Portal) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "provider: build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "provider: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "provider: read body")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("provider: status %d from %s", resp.StatusCode, req.URL.Host)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}

// decodeItems unwraps the portal's {"items":{"item":[...]}} nesting into
// out, tolerating the portal's empty-result spellings ("" or null) and
// single-row responses that arrive as a bare object instead of an array.
func decodeItems(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if emptyJSON(trimmed) {
		return nil
	}

	var wrapper struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return eris.Wrap(err, "provider: decode items")
	}
	item := bytes.TrimSpace(wrapper.Item)
	if emptyJSON(item) {
		return nil
	}
	if item[0] == '{' {
		item = append(append([]byte{'['}, item...), ']')
	}
	if err := json.Unmarshal(item, out); err != nil {
		return eris.Wrap(err, "provider: decode item rows")
	}
	return nil
}

func emptyJSON(b []byte) bool {
	return len(b) == 0 || bytes.Equal(b, []byte(`""`)) || bytes.Equal(b, []byte("null"))
}

// decodeSeoulRows decodes the row array of a Seoul response into out.
func decodeSeoulRows(raw json.RawMessage, out any) error {
	if emptyJSON(bytes.TrimSpace(raw)) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrap(err, "provider: decode seoul rows")
	}
	return nil
}

// parseNumber parses a portal numeric field, which may carry thousands
// separators or padding ("  1,200").
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// previousQuarter returns the quarter code (YYYYQ) one quarter before t,
// matching the publication lag of the Seoul analysis datasets.
func previousQuarter(t time.Time) string {
	year := t.Year()
	q := (int(t.Month())-1)/3 + 1
	q--
	if q == 0 {
		q = 4
		year--
	}
	return strconv.Itoa(year) + strconv.Itoa(q)
}

// previousMonth returns the month code (YYYYMM) one month before t,
// matching the registration lag of the trade-price dataset. Anchored to
// the first of the month so end-of-month dates cannot skip a month.
func previousMonth(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, -1, 0).Format("200601")
}
