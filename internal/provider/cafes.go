package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/beanraft/district-cli/internal/model"
)

const (
	cafesName     = "sbiz-stores"
	cafesPath     = "/B553077/api/open/sdsc2/storeListInDong"
	cafesAttempts = 3
	cafesTimeout  = 10 * time.Second

	// cafeCategory is the small-business registry class code for 카페
	// (coffee shops). Fixed per the provider contract, never varied.
	cafeCategory = "I21201"
)

// Cafes supplies the cafe storefront count for a dong from the
// small-business commercial registry.
type Cafes struct {
	portal  *Portal
	limiter *rate.Limiter
}

// NewCafes creates the cafe-count provider.
func NewCafes(p *Portal) *Cafes {
	return &Cafes{portal: p, limiter: p.Limiter()}
}

func (c *Cafes) Name() string                  { return cafesName }
func (c *Cafes) Indicator() model.IndicatorKey { return model.IndicatorCafes }
func (c *Cafes) Keying() Keying                { return KeyedByUnitCode }
func (c *Cafes) Retries() int                  { return cafesAttempts }
func (c *Cafes) Timeout() time.Duration        { return cafesTimeout }

// ExpandEligible is true: a zero storefront count in a small dong says
// more about sample size than about the market, so neighbor expansion
// re-queries adjacent units.
func (c *Cafes) ExpandEligible() bool { return true }

// Fetch counts registered cafe storefronts in the unit. Only the total
// matters; the row page is kept small.
func (c *Cafes) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: cafes rate limit")
	}

	params := url.Values{
		"divId":      {"adongCd"},
		"key":        {req.UnitCode},
		"indsSclsCd": {cafeCategory},
		"numOfRows":  {"10"},
		"pageNo":     {"1"},
	}
	body, err := c.portal.GetData(ctx, cafesPath, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: cafes fetch")
	}

	payload := &CafesPayload{TotalCount: body.TotalCount}
	if err := decodeItems(body.Items, &payload.Rows); err != nil {
		return nil, eris.Wrap(err, "provider: cafes rows")
	}
	return payload, nil
}

// CafesPayload is the native commercial-registry shape. TotalCount is
// authoritative; Rows only carry the first page.
type CafesPayload struct {
	TotalCount int
	Rows       []StoreRow
}

// StoreRow is one registered storefront.
type StoreRow struct {
	StoreID   string  `json:"bizesId"`
	StoreName string  `json:"bizesNm"`
	ClassCode string  `json:"indsSclsCd"`
	ClassName string  `json:"indsSclsNm"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
}

// Normalize reports the storefront count. Zero is a real measurement
// here (the registry answered and found nothing), which is exactly what
// triggers neighbor expansion upstream.
func (p *CafesPayload) Normalize() (model.Indicator, bool) {
	return model.Indicator{
		Key:         model.IndicatorCafes,
		Value:       float64(p.TotalCount),
		Unit:        model.UnitFor(model.IndicatorCafes),
		Provenance:  model.ProvenanceMeasured,
		Source:      cafesName,
		SampleUnits: 1,
	}, true
}
