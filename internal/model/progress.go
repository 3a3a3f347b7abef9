package model

import "time"

// Stage names a pipeline phase for progress reporting.
type Stage string

const (
	StageResolve    Stage = "resolve"
	StageAggregate  Stage = "aggregate"
	StageSynthesize Stage = "synthesize"
	StageFinalize   Stage = "finalize"
)

// ProgressEvent is one observable step of a report run. Percent is
// monotonically non-decreasing within a run.
type ProgressEvent struct {
	RunID     string    `json:"runId"`
	Stage     Stage     `json:"stage"`
	Task      string    `json:"task,omitempty"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Percent   float64   `json:"percent"`
	At        time.Time `json:"at"`
}
