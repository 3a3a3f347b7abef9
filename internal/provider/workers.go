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
	workersName     = "kostat-workers"
	workersPath     = "/1240000/wrkplcStatsService/getAdmdWrkrStats"
	workersAttempts = 2
	workersTimeout  = 8 * time.Second
)

// Workers supplies the workplace population for a dong from the
// Statistics Korea establishment census.
type Workers struct {
	portal  *Portal
	limiter *rate.Limiter
}

// NewWorkers creates the workplace-population provider.
func NewWorkers(p *Portal) *Workers {
	return &Workers{portal: p, limiter: p.Limiter()}
}

func (w *Workers) Name() string                  { return workersName }
func (w *Workers) Indicator() model.IndicatorKey { return model.IndicatorWorkers }
func (w *Workers) Keying() Keying                { return KeyedByUnitCode }
func (w *Workers) Retries() int                  { return workersAttempts }
func (w *Workers) Timeout() time.Duration        { return workersTimeout }
func (w *Workers) ExpandEligible() bool          { return false }

// Fetch retrieves the latest census year for the unit.
func (w *Workers) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: workers rate limit")
	}

	params := url.Values{
		"admdCd":    {req.UnitCode},
		"numOfRows": {"1"},
		"pageNo":    {"1"},
	}
	body, err := w.portal.GetData(ctx, workersPath, params)
	if err != nil {
		return nil, eris.Wrap(err, "provider: workers fetch")
	}

	payload := &WorkersPayload{}
	if err := decodeItems(body.Items, &payload.Rows); err != nil {
		return nil, eris.Wrap(err, "provider: workers rows")
	}
	return payload, nil
}

// WorkersPayload is the native establishment-census shape.
type WorkersPayload struct {
	Rows []WorkerRow
}

// WorkerRow is one census-year row. CorpCount rides along in the native
// shape but has no indicator of its own.
type WorkerRow struct {
	AdmCode   string `json:"admdCd"`
	AdmName   string `json:"admdNm"`
	Year      string `json:"crtrYr"`
	CorpCount string `json:"corpCnt"`
	Workers   string `json:"wrkrCnt"`
}

// Normalize extracts the worker head count.
func (p *WorkersPayload) Normalize() (model.Indicator, bool) {
	if len(p.Rows) == 0 {
		return model.Indicator{}, false
	}
	workers, ok := parseNumber(p.Rows[0].Workers)
	if !ok {
		return model.Indicator{}, false
	}
	return model.Indicator{
		Key:         model.IndicatorWorkers,
		Value:       workers,
		Unit:        model.UnitFor(model.IndicatorWorkers),
		Provenance:  model.ProvenanceMeasured,
		Source:      workersName,
		SampleUnits: 1,
	}, true
}
