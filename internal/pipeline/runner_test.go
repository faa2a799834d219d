package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookout/internal/domain"
)

func stage(id string, deps []string, run func(ctx context.Context, rc *RunContext) (int, error)) *Stage {
	return &Stage{ID: id, DependsOn: deps, Run: run}
}

func countingStage(id string, deps []string, order *[]string, count int) *Stage {
	return stage(id, deps, func(_ context.Context, _ *RunContext) (int, error) {
		*order = append(*order, id)
		return count, nil
	})
}

func TestRunnerExecutesInRegistrationOrder(t *testing.T) {
	runner := NewRunner(nil, zerolog.Nop())
	var order []string
	runner.Register(countingStage("s1", nil, &order, 500))
	runner.Register(countingStage("s2", []string{"s1"}, &order, 120))
	runner.Register(countingStage("s3", []string{"s2"}, &order, 45))

	run, err := runner.Run(context.Background(), &RunContext{Week: domain.Week("2026-08-17")})

	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2", "s3"}, order)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, 120, run.StageCounts["s2"])
	assert.NotNil(t, run.FinishedAt)
}

func TestRunnerRegisterValidatesDependencies(t *testing.T) {
	runner := NewRunner(nil, zerolog.Nop())
	assert.Panics(t, func() {
		runner.Register(stage("s2", []string{"s1"}, nil))
	})

	runner.Register(stage("s1", nil, nil))
	assert.Panics(t, func() {
		runner.Register(stage("s1", nil, nil))
	}, "duplicate id")
}

func TestRunnerRetriesTransientFailure(t *testing.T) {
	runner := NewRunner(nil, zerolog.Nop())
	attempts := 0
	runner.Register(stage("flaky", nil, func(_ context.Context, _ *RunContext) (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("transient")
		}
		return 7, nil
	}))

	run, err := runner.Run(context.Background(), &RunContext{Week: domain.Week("2026-08-17")})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 7, run.StageCounts["flaky"])
}

func TestRunnerFailsAfterMaxAttempts(t *testing.T) {
	runner := NewRunner(nil, zerolog.Nop())
	attempts := 0
	runner.Register(stage("broken", nil, func(_ context.Context, _ *RunContext) (int, error) {
		attempts++
		return 0, errors.New("permanent")
	}))
	var order []string
	runner.Register(countingStage("after", []string{"broken"}, &order, 1))

	run, err := runner.Run(context.Background(), &RunContext{Week: domain.Week("2026-08-17")})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, RunFailed, run.Status)
	assert.Empty(t, order, "downstream stages do not run")
	assert.Contains(t, run.Error, "broken")
}

func TestRunnerSkipsScoringStagesOnRiskOff(t *testing.T) {
	runner := NewRunner(nil, zerolog.Nop())
	var order []string

	runner.Register(stage("regime", nil, func(_ context.Context, rc *RunContext) (int, error) {
		order = append(order, "regime")
		rc.Regime = &domain.RegimeAssessment{State: domain.RegimeRiskOff, Multiplier: 0}
		return 1, nil
	}))
	scoring := countingStage("s3_consistency", []string{"regime"}, &order, 40)
	scoring.SkipOnRiskOff = true
	runner.Register(scoring)
	runner.Register(countingStage("s6_portfolio", []string{"regime"}, &order, 0))

	run, err := runner.Run(context.Background(), &RunContext{Week: domain.Week("2026-08-17")})

	require.NoError(t, err)
	assert.Equal(t, []string{"regime", "s6_portfolio"}, order)
	assert.Equal(t, 0, run.StageCounts["s3_consistency"])
	assert.Equal(t, RunCompleted, run.Status)
}

func TestRunnerEmitsEvents(t *testing.T) {
	runner := NewRunner(nil, zerolog.Nop())
	var order []string
	runner.Register(countingStage("s1", nil, &order, 3))

	var kinds []EventKind
	runner.Subscribe(func(e Event) { kinds = append(kinds, e.Kind) })

	_, err := runner.Run(context.Background(), &RunContext{Week: domain.Week("2026-08-17")})

	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventStageStarted, EventStageFinished, EventRunFinished}, kinds)
}

func TestRunnerRejectsConcurrentRuns(t *testing.T) {
	runner := NewRunner(nil, zerolog.Nop())
	release := make(chan struct{})
	started := make(chan struct{})
	runner.Register(stage("slow", nil, func(_ context.Context, _ *RunContext) (int, error) {
		close(started)
		<-release
		return 1, nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), &RunContext{Week: domain.Week("2026-08-17")})
		done <- err
	}()

	<-started
	_, err := runner.Run(context.Background(), &RunContext{Week: domain.Week("2026-08-17")})
	assert.Error(t, err, "second run rejected while first is in flight")

	close(release)
	require.NoError(t, <-done)
}
