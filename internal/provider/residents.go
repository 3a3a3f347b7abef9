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
	residentsName     = "mois-population"
	residentsPath     = "/1741000/admmPpltnService/selectAdmmPpltn"
	residentsAttempts = 2
	residentsTimeout  = 8 * time.Second
)

// Residents supplies the registered-resident count for a dong from the
// Ministry of the Interior and Safety registry statistics.
type Residents struct {
	portal  *Portal
	limiter *rate.Limiter
}

// NewResidents creates the resident-population provider.
func NewResidents(p *Portal) *Residents {
	return &Residents{portal: p, limiter: p.Limiter()}
}

func (r *Residents) Name() string                  { return residentsName }
func (r *Residents) Indicator() model.IndicatorKey { return model.IndicatorResidents }
func (r *Residents) Keying() Keying                { return KeyedByUnitCode }
func (r *Residents) Retries() int                  { return residentsAttempts }
func (r *Residents) Timeout() time.Duration        { return residentsTimeout }
func (r *Residents) ExpandEligible() bool          { return false }

// Fetch retrieves the most recent monthly registry snapshot for the unit.
func (r *Residents) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: residents rate limit")
	}

	params := url.Values{
		"admmCd":    {req.UnitCode},
		"numOfRows": {"1"},
		"pageNo":    {"1"},
	}
	body, err := r.portal.GetData(ctx, residentsPath, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: residents fetch")
	}

	payload := &ResidentsPayload{}
	if err := decodeItems(body.Items, &payload.Rows); err != nil {
		return nil, eris.Wrap(err, "provider: residents rows")
	}
	return payload, nil
}

// ResidentsPayload is the native registry-statistics shape.
type ResidentsPayload struct {
	Rows []ResidentRow
}

// ResidentRow is one monthly registry row.
type ResidentRow struct {
	AdmCode string `json:"admmCd"`
	AdmName string `json:"admmNm"`
	StatsYm string `json:"statsYm"`
	Total   string `json:"totNmprCnt"`
	Male    string `json:"maleNmprCnt"`
	Female  string `json:"femaleNmprCnt"`
}

// Normalize extracts the total head count. The registry snapshot is a
// point-in-time stock, so no rate conversion applies.
func (p *ResidentsPayload) Normalize() (model.Indicator, bool) {
	if len(p.Rows) == 0 {
		return model.Indicator{}, false
	}
	total, ok := parseNumber(p.Rows[0].Total)
	if !ok {
		return model.Indicator{}, false
	}
	return model.Indicator{
		Key:         model.IndicatorResidents,
		Value:       total,
		Unit:        model.UnitFor(model.IndicatorResidents),
		Provenance:  model.ProvenanceMeasured,
		Source:      residentsName,
		SampleUnits: 1,
	}, true
}
