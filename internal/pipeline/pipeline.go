// Package pipeline orchestrates a report run end to end: place resolution,
// provider aggregation, narrative synthesis, repair, and the deterministic
// final merge. Completeness degrades along the way; the report shape and
// the error taxonomy do not. Only resolution failures and ambiguity reach
// the caller as errors, everything later degrades into the report itself.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/aggregate"
	"github.com/beanraft/district-cli/internal/config"
	"github.com/beanraft/district-cli/internal/finalize"
	"github.com/beanraft/district-cli/internal/model"
	"github.com/beanraft/district-cli/internal/repair"
	"github.com/beanraft/district-cli/internal/store"
	"github.com/beanraft/district-cli/internal/synth"
)

// Resolver maps a free-text query to an administrative dong.
type Resolver interface {
	Resolve(ctx context.Context, q model.PlaceQuery) (*model.ResolvedPlace, *model.Disambiguation, error)
}

// Aggregator collects every indicator for a resolved place.
type Aggregator interface {
	Aggregate(ctx context.Context, place model.ResolvedPlace, notify aggregate.Notifier) (*model.AggregateRecord, error)
	TaskCount() int
}

// Synthesizer generates the holistic narrative and section enrichments.
type Synthesizer interface {
	Synthesize(ctx context.Context, rec *model.AggregateRecord, notify synth.Notifier) (model.SynthesisResponse, []model.SynthesisResponse, error)
	CallCount() int
}

// Pipeline wires the run stages together and owns their shared progress
// stream and run bookkeeping.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	resolver Resolver
	agg      Aggregator
	synth    Synthesizer
	broker   *Broker
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, resolver Resolver, agg Aggregator, syn Synthesizer) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		resolver: resolver,
		agg:      agg,
		synth:    syn,
		broker:   NewBroker(),
	}
}

// Progress returns the broker carrying this pipeline's run events.
func (p *Pipeline) Progress() *Broker {
	return p.broker
}

type runOptions struct {
	runID    string
	observer func(model.ProgressEvent)
}

// RunOption adjusts one GenerateReport invocation.
type RunOption func(*runOptions)

// WithRunID reuses a run record the caller already created instead of
// creating a new one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// WithObserver delivers every progress event synchronously to fn, in
// addition to the broker. Meant for in-process consumers that cannot
// subscribe before the run starts.
func WithObserver(fn func(model.ProgressEvent)) RunOption {
	return func(o *runOptions) { o.observer = fn }
}

// GenerateReport runs the full pipeline for one query. Exactly one of
// report, disambiguation, and error is meaningful: ambiguity returns the
// candidate list for the caller to narrow, resolution failure returns an
// error, and everything past resolution degrades into the report. When the
// global deadline expires, or the caller cancels after aggregation has
// settled, the report that comes back is marked partial.
func (p *Pipeline) GenerateReport(ctx context.Context, query string, hint model.PrecisionHint, opts ...RunOption) (*model.Report, *model.Disambiguation, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	log := zap.L().With(zap.String("query", query))
	log.Info("pipeline: starting run", zap.String("hint", string(hint)))

	// Run bookkeeping outlives the request context: a cancelled run still
	// gets its terminal status and any partial report recorded.
	storeCtx := context.WithoutCancel(ctx)

	runID := ro.runID
	if runID == "" {
		run, err := p.store.CreateRun(storeCtx, query, hint)
		if err != nil {
			runID = uuid.New().String()
			log.Warn("pipeline: create run failed, continuing unrecorded", zap.Error(err))
		} else {
			runID = run.ID
		}
	}
	log = log.With(zap.String("run_id", runID))
	defer p.broker.CloseRun(runID)

	setStatus := func(status model.RunStatus) {
		if err := p.store.UpdateRunStatus(storeCtx, runID, status); err != nil {
			log.Warn("pipeline: status update failed", zap.String("status", string(status)), zap.Error(err))
		}
	}
	failRun := func(status model.RunStatus, cause error) {
		if err := p.store.FailRun(storeCtx, runID, status, cause.Error()); err != nil {
			log.Warn("pipeline: fail-run update failed", zap.Error(err))
		}
	}

	total := 1 + p.agg.TaskCount() + p.synth.CallCount() + 1
	var progressMu sync.Mutex
	completed := 0
	advance := func(stage model.Stage, task string) {
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		ev := model.ProgressEvent{
			RunID:     runID,
			Stage:     stage,
			Task:      task,
			Completed: completed,
			Total:     total,
			Percent:   float64(completed) * 100 / float64(total),
			At:        time.Now().UTC(),
		}
		// Delivery stays under the lock so concurrent provider completions
		// cannot reorder events; Publish never blocks.
		p.broker.Publish(ev)
		if ro.observer != nil {
			ro.observer(ev)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Pipeline.DeadlineSecs)*time.Second)
	defer cancel()

	// Stage 1: resolution. The only stage whose failure surfaces.
	setStatus(model.RunResolving)
	place, dis, err := p.resolver.Resolve(runCtx, model.PlaceQuery{Text: query, Hint: hint})
	if err != nil {
		failRun(model.RunFailed, err)
		return nil, nil, eris.Wrap(err, "pipeline: resolve")
	}
	if dis != nil {
		failRun(model.RunFailed, eris.Errorf("ambiguous place: %d candidates", len(dis.Candidates)))
		log.Info("pipeline: ambiguous place", zap.Int("candidates", len(dis.Candidates)))
		return nil, dis, nil
	}
	advance(model.StageResolve, "resolve")
	log.Info("pipeline: place resolved",
		zap.String("place", place.Name),
		zap.String("unit", place.Unit.Name),
	)

	// Stage 2: aggregation. Always settles to a finalized record; an error
	// here means the context ended first.
	setStatus(model.RunAggregating)
	rec, aggErr := p.agg.Aggregate(runCtx, *place, func(task string) {
		advance(model.StageAggregate, task)
	})
	if aggErr != nil {
		if ctx.Err() != nil {
			failRun(model.RunCancelled, aggErr)
			return nil, nil, aggErr
		}
		log.Warn("pipeline: deadline expired during aggregation, forcing finalization")
		rep := p.finish(storeCtx, runID, query, rec, model.RepairedFragment{}, nil, true, advance, setStatus)
		return rep, nil, nil
	}

	// Stage 3: synthesis. Interruption here no longer discards the run;
	// the settled aggregate carries a partial report either way.
	setStatus(model.RunSynthesizing)
	holistic, enrichments, synthErr := p.synth.Synthesize(runCtx, rec, func(task string) {
		advance(model.StageSynthesize, task)
	})
	partial := false
	if synthErr != nil {
		partial = true
		if ctx.Err() != nil {
			log.Warn("pipeline: cancelled during synthesis, finishing with settled data")
		} else {
			log.Warn("pipeline: deadline expired during synthesis, forcing finalization")
		}
	}

	holFrag := repairFragment(holistic.Text)
	if holistic.Text != "" && holFrag.Tier != model.TierClean {
		log.Info("pipeline: holistic response needed repair", zap.Int("tier", holFrag.Tier))
	}
	enrichFrags := make(map[model.ReportSection]model.RepairedFragment, len(enrichments))
	for _, resp := range enrichments {
		frag := repairFragment(resp.Text)
		if frag.Tier != model.TierClean {
			log.Info("pipeline: enrichment response needed repair",
				zap.String("section", string(resp.Section)),
				zap.Int("tier", frag.Tier),
			)
		}
		enrichFrags[resp.Section] = frag
	}

	rep := p.finish(storeCtx, runID, query, rec, holFrag, enrichFrags, partial, advance, setStatus)
	return rep, nil, nil
}

// finish runs the deterministic merge and records the outcome. It never
// fails: store errors are logged and the report is returned regardless.
func (p *Pipeline) finish(
	ctx context.Context,
	runID, query string,
	rec *model.AggregateRecord,
	holistic model.RepairedFragment,
	enrichments map[model.ReportSection]model.RepairedFragment,
	partial bool,
	advance func(model.Stage, string),
	setStatus func(model.RunStatus),
) *model.Report {
	setStatus(model.RunFinalizing)
	rep := finalize.Finalize(query, rec, holistic, enrichments, partial)
	advance(model.StageFinalize, "finalize")

	if err := p.store.SaveReport(ctx, runID, rep); err != nil {
		zap.L().Warn("pipeline: save report failed", zap.String("run_id", runID), zap.Error(err))
	}
	return rep
}

// repairFragment runs the repair ladder and the sanitizer on one response.
func repairFragment(text string) model.RepairedFragment {
	frag := repair.Repair(text)
	frag.Tree = repair.Sanitize(frag.Tree)
	return frag
}
