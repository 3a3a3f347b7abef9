// Package aggregate fans out to the indicator providers for a resolved
// place and merges whatever succeeds into an AggregateRecord. One
// provider's failure never cancels or delays another; the record is
// structurally complete even when every provider fails.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beanraft/district-cli/internal/config"
	"github.com/beanraft/district-cli/internal/model"
	"github.com/beanraft/district-cli/internal/provider"
	"github.com/beanraft/district-cli/internal/resilience"
	"github.com/beanraft/district-cli/pkg/sgis"
)

// Task names reported to the progress notifier alongside provider names.
const (
	TaskUnitCode  = "unit-code"
	TaskExpansion = "neighbor-expansion"
)

// sourceNeighborMean marks indicators averaged over adjacent units.
const sourceNeighborMean = "neighbor-mean"

const (
	defaultWorkers       = 6
	defaultNeighborLimit = 4
)

// Notifier is called once per completed aggregation task, driving the
// caller's progress stream. It must not block.
type Notifier func(task string)

// UnitIndex is a local boundary fallback consulted when SGIS cannot
// place a coordinate or list neighbors.
type UnitIndex interface {
	Locate(lat, lon float64) (model.AdminUnit, bool)
	Adjacent(code string) []model.AdminUnit
}

// Aggregator runs the provider fan-out. Its circuit breakers and the
// providers' rate limiters are the only state shared across requests.
type Aggregator struct {
	providers     *provider.Registry
	sgis          sgis.Client
	units         UnitIndex
	breakers      *resilience.ServiceBreakers
	workers       int
	neighborLimit int
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithUnitIndex installs the boundary-index fallback.
func WithUnitIndex(idx UnitIndex) Option {
	return func(a *Aggregator) {
		a.units = idx
	}
}

// New creates an aggregator over the given provider set.
func New(reg *provider.Registry, sgisClient sgis.Client, cfg config.PipelineConfig, opts ...Option) *Aggregator {
	a := &Aggregator{
		providers:     reg,
		sgis:          sgisClient,
		breakers:      resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		workers:       cfg.Workers,
		neighborLimit: cfg.NeighborLimit,
	}
	if a.workers <= 0 {
		a.workers = defaultWorkers
	}
	if a.neighborLimit <= 0 {
		a.neighborLimit = defaultNeighborLimit
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TaskCount is the number of notifier callbacks one Aggregate run emits:
// the unit-code prerequisite, every provider, and the expansion step.
func (a *Aggregator) TaskCount() int {
	return a.providers.Len() + 2
}

// Aggregate resolves the unit code, runs every provider through the
// bounded pool, and applies neighbor expansion. The returned record is
// always non-nil and finalized; the error is non-nil only when ctx was
// cancelled, so the caller can decide whether the partial record is
// still usable (global deadline) or not (caller cancellation).
func (a *Aggregator) Aggregate(ctx context.Context, place model.ResolvedPlace, notify Notifier) (*model.AggregateRecord, error) {
	if notify == nil {
		notify = func(string) {}
	}
	log := zap.L().With(zap.String("place", place.Name))

	rec := model.NewAggregateRecord(place)

	// Hard prerequisite, run first and alone: coordinate → unit code.
	// Failure disables code-keyed providers but nothing else.
	unit, neighbors := a.resolveUnit(ctx, place)
	rec.Unit = unit
	rec.Neighbors = neighbors
	notify(TaskUnitCode)
	if unit.Code == "" {
		log.Warn("aggregate: no unit code, code-keyed providers disabled")
	}
	// Division-table resolutions carry no coordinate; querying a
	// point-keyed portal at 0,0 would sample the wrong hemisphere.
	noCoord := place.Lat == 0 && place.Lon == 0
	if noCoord {
		log.Warn("aggregate: no coordinate, coordinate-keyed providers disabled")
	}

	req := provider.Request{UnitCode: unit.Code, Lat: place.Lat, Lon: place.Lon}

	// Provider goroutines always return nil so one failure cannot cancel
	// the group.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, p := range a.providers.All() {
		if p.Keying() == provider.KeyedByUnitCode && unit.Code == "" {
			rec.Record(model.ProviderResult{
				Provider: p.Name(),
				Err:      "disabled: unit code unavailable",
			})
			notify(p.Name())
			continue
		}
		if p.Keying() == provider.KeyedByCoordinate && noCoord {
			rec.Record(model.ProviderResult{
				Provider: p.Name(),
				Err:      "disabled: coordinate unavailable",
			})
			notify(p.Name())
			continue
		}
		g.Go(func() error {
			a.runProvider(gCtx, rec, p, req)
			notify(p.Name())
			return nil
		})
	}
	_ = g.Wait()

	a.expand(ctx, rec)
	notify(TaskExpansion)

	rec.FillAbsent()
	log.Info("aggregate: settled",
		zap.Int("measured", rec.MeasuredCount()),
		zap.Int("neighbors", len(rec.Neighbors)),
	)

	if err := ctx.Err(); err != nil {
		return rec, eris.Wrap(err, "aggregate: interrupted")
	}
	return rec, nil
}

// resolveUnit finds the administrative unit for the place: SGIS reverse
// lookup when coordinates exist, then the boundary index, then whatever
// code resolution itself attached (gazetteer or division table).
func (a *Aggregator) resolveUnit(ctx context.Context, place model.ResolvedPlace) (model.AdminUnit, []model.AdminUnit) {
	if place.Lat != 0 || place.Lon != 0 {
		unit, err := resilience.DoVal(ctx, a.prereqRetry(), func(ctx context.Context) (*sgis.Unit, error) {
			return resilience.ExecuteVal(ctx, a.breakers.Get("sgis"), func(ctx context.Context) (*sgis.Unit, error) {
				callCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
				defer cancel()
				return a.sgis.UnitAt(callCtx, place.Lat, place.Lon)
			})
		})
		switch {
		case err != nil:
			zap.L().Warn("aggregate: sgis unit lookup failed", zap.Error(err))
		case unit == nil:
			zap.L().Warn("aggregate: coordinate outside sgis boundaries",
				zap.Float64("lat", place.Lat), zap.Float64("lon", place.Lon))
		default:
			u := model.AdminUnit{Code: unit.Code, Name: unit.Name}
			return u, a.neighborsFor(ctx, u.Code)
		}

		if a.units != nil {
			if u, ok := a.units.Locate(place.Lat, place.Lon); ok {
				return u, a.neighborsFor(ctx, u.Code)
			}
		}
	}

	if place.Unit.Code != "" {
		return place.Unit, a.neighborsFor(ctx, place.Unit.Code)
	}
	return model.AdminUnit{}, nil
}

// neighborsFor lists adjacent units, preferring SGIS and falling back to
// the boundary index.
func (a *Aggregator) neighborsFor(ctx context.Context, code string) []model.AdminUnit {
	units, err := resilience.ExecuteVal(ctx, a.breakers.Get("sgis"), func(ctx context.Context) ([]sgis.Unit, error) {
		callCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		defer cancel()
		return a.sgis.Neighbors(callCtx, code)
	})
	if err == nil && len(units) > 0 {
		out := make([]model.AdminUnit, 0, len(units))
		for _, u := range units {
			out = append(out, model.AdminUnit{Code: u.Code, Name: u.Name})
		}
		return out
	}
	if err != nil {
		zap.L().Warn("aggregate: sgis neighbors failed", zap.String("code", code), zap.Error(err))
	}

	if a.units != nil {
		return a.units.Adjacent(code)
	}
	return nil
}

// runProvider executes one provider call chain and merges the outcome.
func (a *Aggregator) runProvider(ctx context.Context, rec *model.AggregateRecord, p provider.Provider, req provider.Request) {
	start := time.Now()
	payload, err := a.callProvider(ctx, p, req)
	latency := time.Since(start)

	if err != nil {
		rec.Record(model.ProviderResult{
			Provider: p.Name(),
			UnitCode: req.UnitCode,
			Latency:  latency,
			Err:      err.Error(),
		})
		zap.L().Warn("aggregate: provider failed",
			zap.String("provider", p.Name()),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		return
	}

	rec.Record(model.ProviderResult{
		Provider: p.Name(),
		UnitCode: req.UnitCode,
		OK:       true,
		Payload:  payload,
		Latency:  latency,
	})

	in, ok := payload.Normalize()
	if !ok {
		return
	}
	rec.SetIndicator(in)
}

// callProvider wraps one fetch in the provider's retry budget, its
// circuit breaker, and a per-attempt timeout.
func (a *Aggregator) callProvider(ctx context.Context, p provider.Provider, req provider.Request) (provider.Payload, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts:    p.Retries(),
		InitialBackoff: 300 * time.Millisecond,
		MaxBackoff:     3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		OnRetry:        resilience.RetryLogger(p.Name(), "fetch"),
	}
	breaker := a.breakers.Get(p.Name())
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (provider.Payload, error) {
		return resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (provider.Payload, error) {
			callCtx, cancel := context.WithTimeout(ctx, p.Timeout())
			defer cancel()
			return p.Fetch(callCtx, req)
		})
	})
}

func (a *Aggregator) prereqRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 300 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		OnRetry:        resilience.RetryLogger("sgis", "unit lookup"),
	}
}

// expand re-queries expansion-eligible providers across adjacent units
// when their primary value settled at zero or absent, then replaces the
// primary with the neighbor mean. The mean stays measured because every
// contributor was an explicit provider value; SampleUnits records how
// many neighbors contributed.
func (a *Aggregator) expand(ctx context.Context, rec *model.AggregateRecord) {
	if len(rec.Neighbors) == 0 {
		return
	}

	var targets []provider.Provider
	for _, p := range a.providers.All() {
		if !p.ExpandEligible() {
			continue
		}
		in, ok := rec.Indicator(p.Indicator())
		if !ok || in.Value == 0 {
			targets = append(targets, p)
		}
	}
	if len(targets) == 0 {
		return
	}

	neighbors := rec.Neighbors
	if len(neighbors) > a.neighborLimit {
		neighbors = neighbors[:a.neighborLimit]
	}

	var mu sync.Mutex
	values := make(map[model.IndicatorKey][]float64)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, p := range targets {
		for _, nb := range neighbors {
			g.Go(func() error {
				start := time.Now()
				payload, err := a.callProvider(gCtx, p, provider.Request{UnitCode: nb.Code})
				latency := time.Since(start)
				if err != nil {
					rec.Record(model.ProviderResult{
						Provider: p.Name(),
						UnitCode: nb.Code,
						Latency:  latency,
						Err:      err.Error(),
					})
					zap.L().Warn("aggregate: neighbor query failed",
						zap.String("provider", p.Name()),
						zap.String("unit", nb.Code),
						zap.Error(err),
					)
					return nil
				}
				rec.Record(model.ProviderResult{
					Provider: p.Name(),
					UnitCode: nb.Code,
					OK:       true,
					Payload:  payload,
					Latency:  latency,
				})
				in, ok := payload.Normalize()
				if !ok {
					return nil
				}
				mu.Lock()
				values[p.Indicator()] = append(values[p.Indicator()], in.Value)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, p := range targets {
		vals := values[p.Indicator()]
		if len(vals) == 0 {
			continue
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		rec.ReplaceIndicator(model.Indicator{
			Key:         p.Indicator(),
			Value:       sum / float64(len(vals)),
			Unit:        model.UnitFor(p.Indicator()),
			Provenance:  model.ProvenanceMeasured,
			Source:      sourceNeighborMean,
			SampleUnits: len(vals),
		})
		zap.L().Info("aggregate: neighbor expansion applied",
			zap.String("indicator", string(p.Indicator())),
			zap.Int("sample_units", len(vals)),
		)
	}
}
