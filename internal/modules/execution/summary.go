package execution

import (
	"time"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

const healthLookback = 12 * 7 * 24 * time.Hour

// Health score weights: 12-week win rate, normalized expectancy, drawdown,
// and how decisively the week's plan was executed.
const (
	healthWinRateWeight    = 0.4
	healthExpectancyWeight = 0.3
	healthDrawdownWeight   = 0.2
	healthExecutionWeight  = 0.1
)

// Summarize produces the Friday review: the week's P&L and hit rate plus the
// rolling system health verdict. history carries all closed trades, oldest
// first; weekOutcomes are the subset closed this week.
func (e *Engine) Summarize(week domain.Week, positions []domain.Position,
	weekOutcomes, history []domain.TradeOutcome, now time.Time) domain.WeeklySummary {

	s := domain.WeeklySummary{Week: week, CalculatedAt: now}

	wins := 0
	for _, o := range weekOutcomes {
		s.RealizedPnL += (o.ExitPrice - o.EntryPrice) * float64(o.Shares)
		s.WeeklyRSum += o.RealizedR
		if o.Win {
			wins++
		}
	}
	if len(weekOutcomes) > 0 {
		s.WinRate = float64(wins) / float64(len(weekOutcomes))
	}

	for _, p := range positions {
		if p.Status == domain.PositionOpen && p.CurrentPrice > 0 {
			s.UnrealizedPnL += (p.CurrentPrice - p.EntryPrice) * float64(p.Shares)
		}
	}

	s.RealizedPnL = formulas.Round2(s.RealizedPnL)
	s.UnrealizedPnL = formulas.Round2(s.UnrealizedPnL)
	s.WeeklyRSum = formulas.Round2(s.WeeklyRSum)

	s.HealthScore = HealthScore(history, executionScore(positions), now)
	s.RecommendedAction = recommendedAction(s.HealthScore)

	e.log.Info().
		Str("week", string(week)).
		Float64("realized_pnl", s.RealizedPnL).
		Float64("health", s.HealthScore).
		Str("action", s.RecommendedAction).
		Msg("Friday summary")
	return s
}

// HealthScore grades the system 0..100 from its closed-trade history.
// With no history it sits at the neutral 50.
func HealthScore(history []domain.TradeOutcome, executionScore float64, now time.Time) float64 {
	if len(history) == 0 {
		return 50
	}

	cutoff := now.Add(-healthLookback)
	var recent []domain.TradeOutcome
	for _, o := range history {
		if o.ClosedAt.After(cutoff) {
			recent = append(recent, o)
		}
	}

	winRate, expectancy := winRateAndExpectancy(recent)
	drawdown := drawdownPct(history)

	// Expectancy normalized over [-0.5R, +1.0R]; drawdown saturates at 20%
	// of the equity peak.
	expectancyN := formulas.Clamp((expectancy+0.5)/1.5, 0, 1)
	drawdownN := formulas.Clamp(drawdown/20.0, 0, 1)

	health := healthWinRateWeight*winRate*100 +
		healthExpectancyWeight*expectancyN*100 +
		healthDrawdownWeight*(100-drawdownN*100) +
		healthExecutionWeight*executionScore
	return formulas.Round2(formulas.Clamp(health, 0, 100))
}

func recommendedAction(health float64) string {
	switch {
	case health >= 70:
		return "CONTINUE"
	case health >= 50:
		return "REDUCE"
	case health >= 30:
		return "PAUSE"
	default:
		return "STOP"
	}
}

func winRateAndExpectancy(outcomes []domain.TradeOutcome) (winRate, expectancy float64) {
	if len(outcomes) == 0 {
		return 0, 0
	}
	var winSum, lossSum float64
	var winN, lossN int
	for _, o := range outcomes {
		if o.Win {
			winSum += o.RealizedR
			winN++
		} else {
			lossSum += -o.RealizedR
			lossN++
		}
	}
	winRate = float64(winN) / float64(len(outcomes))
	avgWin := 0.0
	if winN > 0 {
		avgWin = winSum / float64(winN)
	}
	avgLoss := 0.0
	if lossN > 0 {
		avgLoss = lossSum / float64(lossN)
	}
	expectancy = winRate*avgWin - (1-winRate)*avgLoss
	return winRate, expectancy
}

// drawdownPct is the percent decline of cumulative P&L from its peak, over
// the full outcome history in close order.
func drawdownPct(history []domain.TradeOutcome) float64 {
	var running, peak float64
	for _, o := range history {
		running += (o.ExitPrice - o.EntryPrice) * float64(o.Shares)
		if running > peak {
			peak = running
		}
	}
	if peak <= 0 {
		return 0
	}
	return (peak - running) / peak * 100
}

// executionScore is the share of planned positions that reached a decision
// (entered or skipped) rather than drifting through the week undecided.
func executionScore(positions []domain.Position) float64 {
	if len(positions) == 0 {
		return 100
	}
	decided := 0
	for _, p := range positions {
		if p.Status != domain.PositionPending {
			decided++
		}
	}
	return float64(decided) / float64(len(positions)) * 100
}
