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
	rentName     = "reb-rent"
	rentPath     = "/B552555/rebCommRentService/getSmallShopRent"
	rentAttempts = 2
	rentTimeout  = 8 * time.Second
)

// Rent supplies small-shop commercial rent for a dong from the Korea
// Real Estate Board rent survey.
type Rent struct {
	portal  *Portal
	limiter *rate.Limiter
}

// NewRent creates the commercial-rent provider.
func NewRent(p *Portal) *Rent {
	return &Rent{portal: p, limiter: p.Limiter()}
}

func (r *Rent) Name() string                  { return rentName }
func (r *Rent) Indicator() model.IndicatorKey { return model.IndicatorRent }
func (r *Rent) Keying() Keying                { return KeyedByUnitCode }
func (r *Rent) Retries() int                  { return rentAttempts }
func (r *Rent) Timeout() time.Duration        { return rentTimeout }
func (r *Rent) ExpandEligible() bool          { return false }

// Fetch retrieves the latest survey row for the unit.
func (r *Rent) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: rent rate limit")
	}

	params := url.Values{
		"admdCd":    {req.UnitCode},
		"numOfRows": {"1"},
		"pageNo":    {"1"},
	}
	body, err := r.portal.GetData(ctx, rentPath, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: rent fetch")
	}

	payload := &RentPayload{}
	if err := decodeItems(body.Items, &payload.Rows); err != nil {
		return nil, eris.Wrap(err, "provider: rent rows")
	}
	return payload, nil
}

// RentPayload is the native rent-survey shape.
type RentPayload struct {
	Rows []RentRow
}

// RentRow is one survey row. Fee is quoted in 천원/㎡ per month.
type RentRow struct {
	AdmCode  string `json:"admdCd"`
	AdmName  string `json:"admdNm"`
	Usage    string `json:"bldngUsg"`
	Fee      string `json:"rentFee"`
	SurveyYm string `json:"crtrYm"`
}

// Normalize converts the surveyed fee from 천원/㎡ to 원/㎡ per month.
func (p *RentPayload) Normalize() (model.Indicator, bool) {
	if len(p.Rows) == 0 {
		return model.Indicator{}, false
	}
	fee, ok := parseNumber(p.Rows[0].Fee)
	if !ok {
		return model.Indicator{}, false
	}
	return model.Indicator{
		Key:         model.IndicatorRent,
		Value:       fee * 1000,
		Unit:        model.UnitFor(model.IndicatorRent),
		Provenance:  model.ProvenanceMeasured,
		Source:      rentName,
		SampleUnits: 1,
	}, true
}
