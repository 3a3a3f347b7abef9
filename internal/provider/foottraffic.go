package provider

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/beanraft/district-cli/internal/model"
)

const (
	footTrafficName     = "seoul-footfall"
	footTrafficService  = "VwsmAdstrdFlpopQq"
	footTrafficAttempts = 3
	footTrafficTimeout  = 10 * time.Second
)

// FootTraffic supplies pedestrian volume for a dong from the Seoul
// commercial-district analysis dataset. Coverage is Seoul only; units
// outside Seoul come back empty and stay absent.
type FootTraffic struct {
	portal  *Portal
	limiter *rate.Limiter
	now     func() time.Time
}

// NewFootTraffic creates the pedestrian-volume provider.
func NewFootTraffic(p *Portal) *FootTraffic {
	return &FootTraffic{portal: p, limiter: p.Limiter(), now: time.Now}
}

func (f *FootTraffic) Name() string                  { return footTrafficName }
func (f *FootTraffic) Indicator() model.IndicatorKey { return model.IndicatorFootTraffic }
func (f *FootTraffic) Keying() Keying                { return KeyedByUnitCode }
func (f *FootTraffic) Retries() int                  { return footTrafficAttempts }
func (f *FootTraffic) Timeout() time.Duration        { return footTrafficTimeout }
func (f *FootTraffic) ExpandEligible() bool          { return false }

// Fetch retrieves the most recent published quarter for the unit. The
// dataset publishes one quarter behind.
func (f *FootTraffic) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: footfall rate limit")
	}

	quarter := previousQuarter(f.now())
	body, err := f.portal.GetSeoul(ctx, footTrafficService, 1, 1, quarter, req.UnitCode)
	if err != nil {
		return nil, eris.Wrap(err, "provider: footfall fetch")
	}

	payload := &FootTrafficPayload{}
	if len(body.Rows) > 0 {
		if err := decodeSeoulRows(body.Rows, &payload.Rows); err != nil {
			return nil, eris.Wrap(err, "provider: footfall rows")
		}
	}
	return payload, nil
}

// FootTrafficPayload is the native Seoul footfall shape.
type FootTrafficPayload struct {
	Rows []FootTrafficRow
}

// FootTrafficRow is one quarterly footfall row.
type FootTrafficRow struct {
	Quarter  string `json:"STDR_YYQU_CD"`
	UnitCode string `json:"ADSTRD_CD"`
	UnitName string `json:"ADSTRD_CD_NM"`
	Total    string `json:"TOT_FLPOP_CO"`
}

// Normalize converts the quarterly total to a per-month volume.
func (p *FootTrafficPayload) Normalize() (model.Indicator, bool) {
	if len(p.Rows) == 0 {
		return model.Indicator{}, false
	}
	total, ok := parseNumber(p.Rows[0].Total)
	if !ok {
		return model.Indicator{}, false
	}
	return model.Indicator{
		Key:         model.IndicatorFootTraffic,
		Value:       math.Round(total / 3),
		Unit:        model.UnitFor(model.IndicatorFootTraffic),
		Provenance:  model.ProvenanceMeasured,
		Source:      footTrafficName,
		SampleUnits: 1,
	}, true
}
