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
	spendingName     = "seoul-card"
	spendingService  = "VwsmAdstrdSelngQq"
	spendingAttempts = 3
	spendingTimeout  = 10 * time.Second
)

// Spending supplies estimated card spending for a dong from the Seoul
// commercial-district analysis dataset. Seoul coverage only.
type Spending struct {
	portal  *Portal
	limiter *rate.Limiter
	now     func() time.Time
}

// NewSpending creates the card-spending provider.
func NewSpending(p *Portal) *Spending {
	return &Spending{portal: p, limiter: p.Limiter(), now: time.Now}
}

func (s *Spending) Name() string                  { return spendingName }
func (s *Spending) Indicator() model.IndicatorKey { return model.IndicatorSpending }
func (s *Spending) Keying() Keying                { return KeyedByUnitCode }
func (s *Spending) Retries() int                  { return spendingAttempts }
func (s *Spending) Timeout() time.Duration        { return spendingTimeout }
func (s *Spending) ExpandEligible() bool          { return false }

// Fetch retrieves the most recent published quarter for the unit.
func (s *Spending) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: spending rate limit")
	}

	quarter := previousQuarter(s.now())
	body, err := s.portal.GetSeoul(ctx, spendingService, 1, 1, quarter, req.UnitCode)
	if err != nil {
		return nil, eris.Wrap(err, "provider: spending fetch")
	}

	payload := &SpendingPayload{}
	if len(body.Rows) > 0 {
		if err := decodeSeoulRows(body.Rows, &payload.Rows); err != nil {
			return nil, eris.Wrap(err, "provider: spending rows")
		}
	}
	return payload, nil
}

// SpendingPayload is the native Seoul card-sales shape.
type SpendingPayload struct {
	Rows []SpendingRow
}

// SpendingRow is one quarterly sales row. Amount is the quarterly total
// in KRW despite the 당월 in the upstream field name.
type SpendingRow struct {
	Quarter  string `json:"STDR_YYQU_CD"`
	UnitCode string `json:"ADSTRD_CD"`
	UnitName string `json:"ADSTRD_CD_NM"`
	Amount   string `json:"THSMON_SELNG_AMT"`
}

// Normalize converts the quarterly total to a per-month amount.
func (p *SpendingPayload) Normalize() (model.Indicator, bool) {
	if len(p.Rows) == 0 {
		return model.Indicator{}, false
	}
	amount, ok := parseNumber(p.Rows[0].Amount)
	if !ok {
		return model.Indicator{}, false
	}
	return model.Indicator{
		Key:         model.IndicatorSpending,
		Value:       math.Round(amount / 3),
		Unit:        model.UnitFor(model.IndicatorSpending),
		Provenance:  model.ProvenanceMeasured,
		Source:      spendingName,
		SampleUnits: 1,
	}, true
}
