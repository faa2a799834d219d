// Package pipeline runs the weekly analysis as an ordered DAG of stages.
// Stages are registered once with their dependencies; a run executes them
// sequentially, retries transient failures, and journals per-stage counts.
package pipeline

import (
	"context"
	"time"

	"github.com/aristath/lookout/internal/domain"
)

// Default per-stage timeouts: batch I/O stages pull thousands of candles,
// compute stages only touch SQLite.
const (
	IOTimeout      = 10 * time.Minute
	ComputeTimeout = 5 * time.Minute
)

// Retry policy for a failed stage attempt.
const (
	maxAttempts  = 3
	retryInitial = 1 * time.Second
	retryFactor  = 2
	retryCap     = 30 * time.Second
)

// Stage is one unit of the weekly DAG.
type Stage struct {
	// ID names the stage in journals and events (e.g. "s2_momentum").
	ID string

	// DependsOn lists stage IDs that must have completed in this run.
	DependsOn []string

	// Timeout bounds one attempt. Zero means ComputeTimeout.
	Timeout time.Duration

	// SkipOnRiskOff marks per-symbol scoring stages that have nothing to do
	// once the regime has zeroed the position multiplier. Assembly stages
	// still run so the week gets its empty allocation and zero-setup
	// recommendation.
	SkipOnRiskOff bool

	// Run executes the stage and returns how many rows it produced.
	Run func(ctx context.Context, rc *RunContext) (int, error)
}

// RunContext is the mutable state shared by stages within one run.
type RunContext struct {
	Week            domain.Week
	PortfolioValue  float64
	RiskPctPerTrade float64

	// RegimeOverride pins the regime state for the run, for what-if reruns.
	RegimeOverride *domain.RegimeState

	// Regime is set by the regime stage and read by everything after it.
	Regime *domain.RegimeAssessment

	// Counts accumulates per-stage row counts for the journal.
	Counts map[string]int
}

// RunStatus is the lifecycle of a journal entry.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one journal entry in pipeline_runs.
type Run struct {
	ID          string
	Week        domain.Week
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      RunStatus
	StageCounts map[string]int
	Error       string
}

// EventKind classifies progress events emitted during a run.
type EventKind string

const (
	EventStageStarted  EventKind = "stage_started"
	EventStageFinished EventKind = "stage_finished"
	EventStageSkipped  EventKind = "stage_skipped"
	EventStageFailed   EventKind = "stage_failed"
	EventRunFinished   EventKind = "run_finished"
)

// Event is a progress notification for subscribers (the websocket stream).
type Event struct {
	Kind    EventKind   `json:"kind"`
	RunID   string      `json:"run_id"`
	Week    domain.Week `json:"week"`
	StageID string      `json:"stage_id,omitempty"`
	Count   int         `json:"count,omitempty"`
	Error   string      `json:"error,omitempty"`
	At      time.Time   `json:"at"`
}

// Journal persists run history.
type Journal interface {
	Start(run *Run) error
	Finish(run *Run) error
}
