package execution

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/lookout/internal/domain"
)

func outcome(symbol string, entry, exit float64, shares int, r float64, closedAt time.Time) domain.TradeOutcome {
	return domain.TradeOutcome{
		ID: symbol + closedAt.Format("20060102"), Symbol: symbol,
		Week: domain.Week("2026-08-17"), EntryPrice: entry, ExitPrice: exit,
		Shares: shares, RealizedR: r, Win: exit > entry, ClosedAt: closedAt,
	}
}

func TestHealthScoreNoHistory(t *testing.T) {
	assert.Equal(t, 50.0, HealthScore(nil, 100, time.Now()))
}

func TestHealthScoreStrongSystem(t *testing.T) {
	now := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)
	var history []domain.TradeOutcome
	for i := 0; i < 10; i++ {
		history = append(history,
			outcome("W", 100, 110, 10, 2.0, now.AddDate(0, 0, -i*7)))
	}

	// Win rate 1.0, expectancy +2R (saturates), no drawdown, full execution.
	assert.Equal(t, 100.0, HealthScore(history, 100, now))
}

func TestHealthScoreLosingSystem(t *testing.T) {
	now := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)
	var history []domain.TradeOutcome
	for i := 0; i < 10; i++ {
		history = append(history,
			outcome("L", 100, 95, 10, -1.0, now.AddDate(0, 0, -i*7)))
	}

	// Win rate 0, expectancy -1R (floors), equity never peaked above zero so
	// the drawdown term stays whole: 0 + 0 + 20 + 10.
	health := HealthScore(history, 100, now)
	assert.Equal(t, 30.0, health)
	assert.Equal(t, "PAUSE", recommendedAction(health))
}

func TestRecommendedActionBands(t *testing.T) {
	assert.Equal(t, "CONTINUE", recommendedAction(70))
	assert.Equal(t, "REDUCE", recommendedAction(69.9))
	assert.Equal(t, "REDUCE", recommendedAction(50))
	assert.Equal(t, "PAUSE", recommendedAction(49.9))
	assert.Equal(t, "PAUSE", recommendedAction(30))
	assert.Equal(t, "STOP", recommendedAction(29.9))
}

func TestSummarize(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	now := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)

	// A nets +1000, B nets -40.
	weekOutcomes := []domain.TradeOutcome{
		outcome("A", 100, 110, 10, 2.0, now),
		outcome("B", 50, 48, 20, -1.0, now),
	}
	positions := []domain.Position{
		{Symbol: "C", Status: domain.PositionOpen, EntryPrice: 200, CurrentPrice: 210, Shares: 5},
		{Symbol: "D", Status: domain.PositionSkipped},
	}

	s := engine.Summarize(domain.Week("2026-08-17"), positions, weekOutcomes, nil, now)

	assert.InDelta(t, 960.0, s.RealizedPnL, 0.01)
	assert.InDelta(t, 50.0, s.UnrealizedPnL, 0.01)
	assert.InDelta(t, 1.0, s.WeeklyRSum, 0.01)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.Equal(t, 50.0, s.HealthScore, "no history yet")
	assert.Equal(t, "REDUCE", s.RecommendedAction)
}

func TestTrailStopLadder(t *testing.T) {
	// Entry 100, stop 95.
	assert.Equal(t, 95.0, TrailStop(100, 95, 102), "below the 3% arm")
	assert.Equal(t, 100.0, TrailStop(100, 95, 104), "breakeven at +3%")
	assert.Equal(t, 103.0, TrailStop(100, 95, 107), "+6% rung")
	assert.Equal(t, 106.0, TrailStop(100, 95, 111), "+10% rung")
	assert.Equal(t, 95.0, TrailStop(100, 95, 98), "never below the original stop")
}

func TestPositionAlerts(t *testing.T) {
	// Near stop: 96.5 is ~1.55% above 95.
	alerts := PositionAlerts("A", 96.5, 100, 95, 115, 120)
	assert.Len(t, alerts, 1)
	assert.Contains(t, alerts[0], "within 2% of stop")

	// At +1R (gain 5%): the breakeven notice plus the matching ladder rung.
	alerts = PositionAlerts("A", 105, 100, 95, 115, 120)
	assert.Len(t, alerts, 2)
	assert.Contains(t, alerts[0], "breakeven")
	assert.Contains(t, alerts[1], "100.00")

	// At +1.5R (gain 7.5%): the 0.5R lock plus the 6% ladder rung.
	alerts = PositionAlerts("A", 107.5, 100, 95, 115, 120)
	assert.Len(t, alerts, 2)
	assert.Contains(t, alerts[0], "102.50")
	assert.Contains(t, alerts[1], "103.00")

	// Calm position: nothing to say.
	assert.Empty(t, PositionAlerts("A", 101, 100, 95, 115, 120))
}
