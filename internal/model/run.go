package model

import "time"

// RunStatus tracks a report run through the pipeline.
type RunStatus string

const (
	RunQueued       RunStatus = "queued"
	RunResolving    RunStatus = "resolving"
	RunAggregating  RunStatus = "aggregating"
	RunSynthesizing RunStatus = "synthesizing"
	RunFinalizing   RunStatus = "finalizing"
	RunComplete     RunStatus = "complete"
	RunFailed       RunStatus = "failed"
	RunCancelled    RunStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunComplete || s == RunFailed || s == RunCancelled
}

// Run is one stored report run.
type Run struct {
	ID        string
	Query     string
	Hint      PrecisionHint
	Status    RunStatus
	Report    *Report
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
