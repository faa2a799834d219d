// Package risk converts trade setups into position sizes through the
// volatility / Kelly / regime multiplier chain.
package risk

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

const (
	// minSampleSize is the closed-trade count below which the Kelly inputs
	// fall back to the conservative prior.
	minSampleSize = 20

	// maxPositionPct caps any single position at 8% of capital.
	maxPositionPct = 0.08
)

// Config carries the capital parameters for sizing.
type Config struct {
	PortfolioValue  float64
	RiskPctPerTrade float64 // fraction of capital risked per trade, default 0.015
}

// Sizer computes position sizes for qualified setups.
type Sizer struct {
	cfg Config
	log zerolog.Logger
}

// NewSizer creates a position sizer.
func NewSizer(cfg Config, log zerolog.Logger) *Sizer {
	return &Sizer{cfg: cfg, log: log.With().Str("component", "risk").Logger()}
}

// Size computes the position size for one setup. stockATR and niftyATR drive
// the volatility adjustment; stats feeds the Kelly fraction; the regime
// multiplier scales everything down in weaker environments.
func (s *Sizer) Size(setup domain.TradeSetup, stockATR, niftyATR float64, stats domain.SystemStats, regime *domain.RegimeAssessment) domain.PositionSize {
	mid := setup.MidEntry()
	riskPerShare := mid - setup.Stop

	size := domain.PositionSize{
		Symbol:           setup.Symbol,
		Week:             setup.Week,
		StopMethod:       setup.StopMethod,
		RiskPerShare:     formulas.Round2(riskPerShare),
		RegimeMultiplier: regime.Multiplier,
		CalculatedAt:     time.Now().UTC(),
	}
	if riskPerShare <= 0 || mid <= 0 {
		return size
	}

	baseShares := int(math.Floor(s.cfg.PortfolioValue * s.cfg.RiskPctPerTrade / riskPerShare))

	volAdj := 1.0
	if stockATR > 0 && niftyATR > 0 {
		volAdj = formulas.Clamp(niftyATR/stockATR, 0.5, 1.5)
	}

	kelly := KellyFraction(stats)

	finalShares := int(math.Floor(float64(baseShares) * volAdj * kelly * regime.Multiplier))

	// Capital cap: no position exceeds 8% of the portfolio.
	if float64(finalShares)*mid > maxPositionPct*s.cfg.PortfolioValue {
		finalShares = int(math.Floor(maxPositionPct * s.cfg.PortfolioValue / mid))
	}

	size.BaseShares = baseShares
	size.VolAdjustment = formulas.Round3(volAdj)
	size.KellyFraction = formulas.Round3(kelly)
	size.FinalShares = finalShares
	size.PositionValue = formulas.Round2(float64(finalShares) * mid)
	size.RiskAmount = formulas.Round2(float64(finalShares) * riskPerShare)
	size.PositionPct = formulas.Round3(size.PositionValue / s.cfg.PortfolioValue)
	size.Qualifies = finalShares >= 1
	return size
}

// KellyFraction computes the clamped Kelly criterion from system statistics.
// With fewer than 20 closed trades the conservative prior applies.
func KellyFraction(stats domain.SystemStats) float64 {
	if stats.SampleSize < minSampleSize {
		stats = domain.DefaultSystemStats()
	}
	if stats.AvgWinR <= 0 {
		return 0
	}
	kelly := (stats.WinRate*stats.AvgWinR - (1-stats.WinRate)*stats.AvgLossR) / stats.AvgWinR
	return formulas.Clamp(kelly, 0, 1)
}

// StatsFromOutcomes aggregates closed trades into the rolling system
// statistics consumed by the Kelly fraction.
func StatsFromOutcomes(outcomes []domain.TradeOutcome) domain.SystemStats {
	if len(outcomes) == 0 {
		return domain.DefaultSystemStats()
	}

	wins, losses := 0, 0
	winR, lossR := 0.0, 0.0
	for _, o := range outcomes {
		if o.Win {
			wins++
			winR += o.RealizedR
		} else {
			losses++
			lossR += -o.RealizedR
		}
	}

	stats := domain.SystemStats{SampleSize: len(outcomes)}
	stats.WinRate = float64(wins) / float64(len(outcomes))
	if wins > 0 {
		stats.AvgWinR = winR / float64(wins)
	}
	if losses > 0 {
		stats.AvgLossR = lossR / float64(losses)
	}
	return stats
}
