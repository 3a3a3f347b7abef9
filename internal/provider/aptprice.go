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
	aptPriceName     = "molit-apt"
	aptPricePath     = "/1613000/RTMSDataSvcAptTradeDev/getRTMSDataSvcAptTradeDev"
	aptPriceAttempts = 2
	aptPriceTimeout  = 12 * time.Second
)

// AptPrice supplies the mean apartment trade price per square meter from
// the MOLIT real-transaction registry. RTMS is keyed by district, so the
// first five digits of the unit code select the registry region; one
// month of trades is averaged.
type AptPrice struct {
	portal  *Portal
	limiter *rate.Limiter
	now     func() time.Time
}

// NewAptPrice creates the apartment-price provider.
func NewAptPrice(p *Portal) *AptPrice {
	return &AptPrice{portal: p, limiter: p.Limiter(), now: time.Now}
}

func (a *AptPrice) Name() string                  { return aptPriceName }
func (a *AptPrice) Indicator() model.IndicatorKey { return model.IndicatorAptPrice }
func (a *AptPrice) Keying() Keying                { return KeyedByUnitCode }
func (a *AptPrice) Retries() int                  { return aptPriceAttempts }
func (a *AptPrice) Timeout() time.Duration        { return aptPriceTimeout }

// ExpandEligible is true: commercial dongs often record no apartment
// trades in a month, and an adjacent residential dong prices the area
// better than nothing.
func (a *AptPrice) ExpandEligible() bool { return true }

// Fetch retrieves last month's apartment trades for the unit's district.
func (a *AptPrice) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: apt price rate limit")
	}
	if len(req.UnitCode) < 5 {
		return nil, eris.Errorf("provider: apt price unit code %q too short", req.UnitCode)
	}

	params := url.Values{
		"LAWD_CD":   {req.UnitCode[:5]},
		"DEAL_YMD":  {previousMonth(a.now())},
		"numOfRows": {"100"},
		"pageNo":    {"1"},
	}
	body, err := a.portal.GetData(ctx, aptPricePath, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: apt price fetch")
	}

	payload := &AptPricePayload{}
	if err := decodeItems(body.Items, &payload.Trades); err != nil {
		return nil, eris.Wrap(err, "provider: apt price rows")
	}
	return payload, nil
}

// AptPricePayload is the native trade-registry shape.
type AptPricePayload struct {
	Trades []AptTradeRow
}

// AptTradeRow is one registered trade. Amount arrives in 만원 with
// thousands separators and stray padding.
type AptTradeRow struct {
	AptName  string `json:"aptNm"`
	DongName string `json:"umdNm"`
	Amount   string `json:"dealAmount"`
	Area     string `json:"excluUseAr"`
	DealYear string `json:"dealYear"`
	Floor    string `json:"floor"`
}

// Normalize averages 원/㎡ over the month's valid trades.
func (p *AptPricePayload) Normalize() (model.Indicator, bool) {
	var sum float64
	var n int
	for _, t := range p.Trades {
		amount, ok := parseNumber(t.Amount)
		if !ok {
			continue
		}
		area, ok := parseNumber(t.Area)
		if !ok || area <= 0 {
			continue
		}
		sum += amount * 10000 / area
		n++
	}
	if n == 0 {
		return model.Indicator{}, false
	}
	return model.Indicator{
		Key:         model.IndicatorAptPrice,
		Value:       sum / float64(n),
		Unit:        model.UnitFor(model.IndicatorAptPrice),
		Provenance:  model.ProvenanceMeasured,
		Source:      aptPriceName,
		SampleUnits: 1,
	}, true
}
