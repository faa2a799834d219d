package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
)

// Runner executes registered stages in order. Registration order is the
// execution order; DependsOn edges are validated at registration time so a
// stage can never be registered ahead of its dependencies.
type Runner struct {
	stages  []*Stage
	byID    map[string]*Stage
	journal Journal
	log     zerolog.Logger

	mu        sync.Mutex
	listeners []func(Event)
	running   bool
}

// NewRunner creates a pipeline runner. journal may be nil in tests.
func NewRunner(journal Journal, log zerolog.Logger) *Runner {
	return &Runner{
		byID:    make(map[string]*Stage),
		journal: journal,
		log:     log.With().Str("component", "pipeline").Logger(),
	}
}

// Register appends a stage. It panics on duplicate IDs or on a dependency
// that has not been registered yet; both are wiring bugs.
func (r *Runner) Register(s *Stage) {
	if _, dup := r.byID[s.ID]; dup {
		panic(fmt.Sprintf("pipeline: duplicate stage %q", s.ID))
	}
	for _, dep := range s.DependsOn {
		if _, ok := r.byID[dep]; !ok {
			panic(fmt.Sprintf("pipeline: stage %q depends on unregistered %q", s.ID, dep))
		}
	}
	r.stages = append(r.stages, s)
	r.byID[s.ID] = s
}

// Subscribe adds a progress listener. Listeners are invoked synchronously
// and must not block.
func (r *Runner) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// StageIDs returns the registered stage IDs in execution order.
func (r *Runner) StageIDs() []string {
	ids := make([]string, len(r.stages))
	for i, s := range r.stages {
		ids[i] = s.ID
	}
	return ids
}

// Run executes the full DAG for one week. Only one run may be in flight.
func (r *Runner) Run(ctx context.Context, rc *RunContext) (*Run, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("pipeline already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if rc.Counts == nil {
		rc.Counts = make(map[string]int)
	}
	run := &Run{
		ID:          uuid.NewString(),
		Week:        rc.Week,
		StartedAt:   time.Now().UTC(),
		Status:      RunRunning,
		StageCounts: rc.Counts,
	}
	if r.journal != nil {
		if err := r.journal.Start(run); err != nil {
			return nil, fmt.Errorf("failed to journal run start: %w", err)
		}
	}

	r.log.Info().Str("run_id", run.ID).Str("week", string(rc.Week)).Msg("Pipeline run started")

	completed := make(map[string]bool, len(r.stages))
	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return r.finish(run, RunCancelled, err.Error()), err
		}
		for _, dep := range stage.DependsOn {
			if !completed[dep] {
				err := fmt.Errorf("stage %s: dependency %s did not complete", stage.ID, dep)
				return r.finish(run, RunFailed, err.Error()), err
			}
		}

		if stage.SkipOnRiskOff && rc.Regime != nil && rc.Regime.State == domain.RegimeRiskOff {
			rc.Counts[stage.ID] = 0
			completed[stage.ID] = true
			r.emit(Event{Kind: EventStageSkipped, RunID: run.ID, Week: rc.Week,
				StageID: stage.ID, At: time.Now().UTC()})
			r.log.Info().Str("stage", stage.ID).Msg("Stage skipped: risk-off regime")
			continue
		}

		r.emit(Event{Kind: EventStageStarted, RunID: run.ID, Week: rc.Week,
			StageID: stage.ID, At: time.Now().UTC()})

		count, err := r.runStage(ctx, stage, rc)
		if err != nil {
			r.emit(Event{Kind: EventStageFailed, RunID: run.ID, Week: rc.Week,
				StageID: stage.ID, Error: err.Error(), At: time.Now().UTC()})
			if ctx.Err() != nil {
				return r.finish(run, RunCancelled, err.Error()), err
			}
			return r.finish(run, RunFailed, fmt.Sprintf("stage %s: %v", stage.ID, err)), err
		}

		rc.Counts[stage.ID] = count
		completed[stage.ID] = true
		r.emit(Event{Kind: EventStageFinished, RunID: run.ID, Week: rc.Week,
			StageID: stage.ID, Count: count, At: time.Now().UTC()})
		r.log.Info().Str("stage", stage.ID).Int("count", count).Msg("Stage completed")
	}

	return r.finish(run, RunCompleted, ""), nil
}

// runStage retries transient failures with exponential backoff. Context
// cancellation aborts immediately.
func (r *Runner) runStage(ctx context.Context, stage *Stage, rc *RunContext) (int, error) {
	timeout := stage.Timeout
	if timeout <= 0 {
		timeout = ComputeTimeout
	}

	var lastErr error
	backoff := retryInitial
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		count, err := stage.Run(attemptCtx, rc)
		cancel()
		if err == nil {
			return count, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		if attempt < maxAttempts {
			r.log.Warn().Str("stage", stage.ID).Int("attempt", attempt).
				Err(err).Dur("backoff", backoff).Msg("Stage attempt failed; retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			backoff *= retryFactor
			if backoff > retryCap {
				backoff = retryCap
			}
		}
	}
	return 0, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func (r *Runner) finish(run *Run, status RunStatus, errMsg string) *Run {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = status
	run.Error = errMsg

	if r.journal != nil {
		if err := r.journal.Finish(run); err != nil {
			r.log.Error().Err(err).Msg("Failed to journal run finish")
		}
	}
	r.emit(Event{Kind: EventRunFinished, RunID: run.ID, Week: run.Week,
		Error: errMsg, At: now})
	r.log.Info().Str("run_id", run.ID).Str("status", string(status)).Msg("Pipeline run finished")
	return run
}

func (r *Runner) emit(e Event) {
	r.mu.Lock()
	listeners := make([]func(Event), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}
