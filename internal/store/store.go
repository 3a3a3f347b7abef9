// Package store persists report runs and the place-resolution cache.
// Two backends exist: SQLite for single-user CLI use and Postgres for the
// shared serve deployment. The stored report is operational state of this
// tool; publishing reports to downstream consumers is the caller's job.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/beanraft/district-cli/internal/model"
)

// ErrRunNotFound reports that no run exists with the requested ID.
// Both backends return it (wrapped) from GetRun.
var ErrRunNotFound = errors.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Query  string          `json:"query,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the report pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, query string, hint model.PrecisionHint) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// FailRun records a terminal failure or cancellation with its message.
	FailRun(ctx context.Context, runID string, status model.RunStatus, msg string) error
	// SaveReport stores the final report and marks the run complete.
	SaveReport(ctx context.Context, runID string, report *model.Report) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Place-resolution cache
	GetCachedPlace(ctx context.Context, key string) (*model.ResolvedPlace, error)
	SetCachedPlace(ctx context.Context, key string, place *model.ResolvedPlace, ttl time.Duration) error
	DeleteExpiredPlaces(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
