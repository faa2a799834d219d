package risk

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/lookout/internal/domain"
)

func testSetup() domain.TradeSetup {
	return domain.TradeSetup{
		Symbol:     "X",
		Week:       domain.Week("2026-08-17"),
		SetupType:  domain.SetupPullback,
		EntryLow:   94,
		EntryHigh:  96,
		Stop:       93,
		StopMethod: domain.StopStructure,
		Target1:    99,
		Target2:    100,
		RR:         2.0,
	}
}

func riskOnRegime() *domain.RegimeAssessment {
	return &domain.RegimeAssessment{State: domain.RegimeRiskOn, Multiplier: 1.0}
}

func TestSizeBaseCase(t *testing.T) {
	sizer := NewSizer(Config{PortfolioValue: 1_000_000, RiskPctPerTrade: 0.015}, zerolog.Nop())

	// Equal ATRs: volAdj = 1. No history: Kelly prior
	// (0.50*1.2 - 0.50*1.1)/1.2 = 0.0417.
	size := sizer.Size(testSetup(), 2.0, 2.0, domain.DefaultSystemStats(), riskOnRegime())

	assert.InDelta(t, 2.0, size.RiskPerShare, 1e-9, "mid 95 - stop 93")
	assert.Equal(t, 7500, size.BaseShares, "floor(15000/2)")
	assert.InDelta(t, 1.0, size.VolAdjustment, 1e-9)
	assert.InDelta(t, 0.0417, size.KellyFraction, 0.001)
	assert.Equal(t, 312, size.FinalShares, "floor(7500*1*0.0417*1)")
	assert.True(t, size.Qualifies)
	assert.InDelta(t, float64(size.FinalShares)*95, size.PositionValue, 0.01)
	assert.InDelta(t, float64(size.FinalShares)*2, size.RiskAmount, 0.01)
}

// modestStats yields a Kelly fraction of 0.10, small enough that the 8%
// capital cap stays out of the way in the scaling tests.
var modestStats = domain.SystemStats{WinRate: 0.50, AvgWinR: 1.5, AvgLossR: 1.2, SampleSize: 40}

func TestSizeDoublingCapitalDoublesShares(t *testing.T) {
	stats := modestStats

	small := NewSizer(Config{PortfolioValue: 1_000_000, RiskPctPerTrade: 0.015}, zerolog.Nop()).
		Size(testSetup(), 2.0, 2.0, stats, riskOnRegime())
	large := NewSizer(Config{PortfolioValue: 2_000_000, RiskPctPerTrade: 0.015}, zerolog.Nop()).
		Size(testSetup(), 2.0, 2.0, stats, riskOnRegime())

	// Within floor rounding of each multiplication step.
	assert.InDelta(t, 2*small.FinalShares, large.FinalShares, 2)
}

func TestSizeCapitalCap(t *testing.T) {
	// Wide stop relative to price pushes the risk-budget sizing above 8% of
	// capital; the cap binds.
	setup := testSetup()
	setup.EntryLow = 9.5
	setup.EntryHigh = 10.5
	setup.Stop = 9.9 // mid 10, risk 0.1

	stats := domain.SystemStats{WinRate: 0.70, AvgWinR: 2.0, AvgLossR: 0.8, SampleSize: 50}
	sizer := NewSizer(Config{PortfolioValue: 1_000_000, RiskPctPerTrade: 0.015}, zerolog.Nop())
	size := sizer.Size(setup, 2.0, 2.0, stats, riskOnRegime())

	assert.LessOrEqual(t, size.PositionValue, 0.08*1_000_000+10)
	assert.Equal(t, 8000, size.FinalShares, "floor(80000/10)")
}

func TestSizeRegimeMultiplierScales(t *testing.T) {
	stats := modestStats
	sizer := NewSizer(Config{PortfolioValue: 1_000_000, RiskPctPerTrade: 0.015}, zerolog.Nop())

	full := sizer.Size(testSetup(), 2.0, 2.0, stats, riskOnRegime())
	choppy := sizer.Size(testSetup(), 2.0, 2.0, stats,
		&domain.RegimeAssessment{State: domain.RegimeChoppy, Multiplier: 0.5})
	riskOff := sizer.Size(testSetup(), 2.0, 2.0, stats,
		&domain.RegimeAssessment{State: domain.RegimeRiskOff, Multiplier: 0})

	assert.InDelta(t, full.FinalShares/2, choppy.FinalShares, 1)
	assert.Equal(t, 0, riskOff.FinalShares)
	assert.False(t, riskOff.Qualifies)
}

func TestSizeVolAdjustmentClamped(t *testing.T) {
	stats := domain.SystemStats{WinRate: 0.55, AvgWinR: 1.5, AvgLossR: 1.0, SampleSize: 40}
	sizer := NewSizer(Config{PortfolioValue: 1_000_000, RiskPctPerTrade: 0.015}, zerolog.Nop())

	calm := sizer.Size(testSetup(), 0.5, 2.0, stats, riskOnRegime())
	assert.InDelta(t, 1.5, calm.VolAdjustment, 1e-9, "clamped high")

	wild := sizer.Size(testSetup(), 10.0, 2.0, stats, riskOnRegime())
	assert.InDelta(t, 0.5, wild.VolAdjustment, 1e-9, "clamped low")
}

func TestKellyFraction(t *testing.T) {
	// Under 20 trades the prior applies regardless of the observed stats.
	hot := domain.SystemStats{WinRate: 1.0, AvgWinR: 3.0, AvgLossR: 0.1, SampleSize: 5}
	assert.InDelta(t, 0.0417, KellyFraction(hot), 0.001)

	// Losing system clamps to zero.
	cold := domain.SystemStats{WinRate: 0.2, AvgWinR: 1.0, AvgLossR: 1.5, SampleSize: 40}
	assert.Equal(t, 0.0, KellyFraction(cold))

	// Strong edge.
	edge := domain.SystemStats{WinRate: 0.6, AvgWinR: 2.0, AvgLossR: 1.0, SampleSize: 40}
	assert.InDelta(t, 0.4, KellyFraction(edge), 1e-9)
}

func TestStatsFromOutcomes(t *testing.T) {
	assert.Equal(t, domain.DefaultSystemStats(), StatsFromOutcomes(nil))

	outcomes := []domain.TradeOutcome{
		{RealizedR: 2.0, Win: true},
		{RealizedR: 1.0, Win: true},
		{RealizedR: -1.5, Win: false},
	}
	stats := StatsFromOutcomes(outcomes)
	assert.Equal(t, 3, stats.SampleSize)
	assert.InDelta(t, 2.0/3, stats.WinRate, 1e-9)
	assert.InDelta(t, 1.5, stats.AvgWinR, 1e-9)
	assert.InDelta(t, 1.5, stats.AvgLossR, 1e-9)
}
