package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/aggregate"
	"github.com/beanraft/district-cli/internal/boundary"
	"github.com/beanraft/district-cli/internal/pipeline"
	"github.com/beanraft/district-cli/internal/place"
	"github.com/beanraft/district-cli/internal/provider"
	"github.com/beanraft/district-cli/internal/refdata"
	"github.com/beanraft/district-cli/internal/store"
	"github.com/beanraft/district-cli/internal/synth"
	anthropicpkg "github.com/beanraft/district-cli/pkg/anthropic"
	"github.com/beanraft/district-cli/pkg/kakao"
	"github.com/beanraft/district-cli/pkg/naver"
	"github.com/beanraft/district-cli/pkg/sgis"
)

// pipelineEnv bundles everything a report-generating command needs.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// initPipeline builds the full report pipeline from config: store, reference
// tables, external clients, provider registry, and the orchestrator.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	gaz, err := place.LoadGazetteer()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "load gazetteer")
	}
	divisions, err := loadDivisions()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "load division table")
	}
	zap.L().Info("reference tables loaded",
		zap.String("gazetteer_version", gaz.Version()),
		zap.String("divisions_version", divisions.Version()),
		zap.Int("divisions", divisions.Len()),
	)

	kakaoClient := kakao.NewClient(cfg.Kakao.Key,
		kakao.WithBaseURL(cfg.Kakao.BaseURL),
		kakao.WithRateLimit(cfg.Kakao.RatePerSec),
	)
	naverClient := naver.NewClient(cfg.Naver.ClientID, cfg.Naver.ClientSecret,
		naver.WithBaseURL(cfg.Naver.BaseURL),
		naver.WithDisplay(cfg.Naver.Display),
	)
	sgisClient := sgis.NewClient(cfg.SGIS.ConsumerKey, cfg.SGIS.ConsumerSecret,
		sgis.WithBaseURL(cfg.SGIS.BaseURL),
	)

	cacheTTL := time.Duration(cfg.Store.CacheTTLHours) * time.Hour
	resolver := place.NewResolver(gaz, divisions, kakaoClient, naverClient,
		place.WithCache(store.NewPlaceCache(st, cacheTTL)),
	)

	aggOpts := []aggregate.Option{}
	if cfg.Boundary.Shapefile != "" {
		features, err := boundary.LoadPath(cfg.Boundary.Shapefile)
		if err != nil {
			// The boundary index is a fallback; a missing shapefile only
			// narrows the unit-code sources.
			zap.L().Warn("boundary shapefile load failed, continuing without local fallback",
				zap.String("path", cfg.Boundary.Shapefile),
				zap.Error(err),
			)
		} else {
			idx := boundary.NewIndex(features)
			zap.L().Info("boundary index loaded", zap.Int("units", idx.Len()))
			aggOpts = append(aggOpts, aggregate.WithUnitIndex(idx))
		}
	}

	reg := provider.NewDefaultRegistry(cfg.Providers)
	agg := aggregate.New(reg, sgisClient, cfg.Pipeline, aggOpts...)

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	syn := synth.New(anthropicClient, cfg.Anthropic, cfg.Pipeline)

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, resolver, agg, syn),
	}, nil
}

// loadDivisions loads the admin-division table from the configured snapshot
// path, or the embedded snapshot when none is configured.
func loadDivisions() (*refdata.Table, error) {
	if cfg.Refdata.Snapshot != "" {
		return refdata.LoadFile(cfg.Refdata.Snapshot)
	}
	return refdata.Load()
}
