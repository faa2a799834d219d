package portfolio

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookout/internal/domain"
)

func candidate(symbol, sector string, quality, value float64, returns []float64) Candidate {
	return Candidate{
		Setup: domain.TradeSetup{
			Symbol: symbol, Week: domain.Week("2026-08-17"),
			SetupType: domain.SetupPullback,
			EntryLow:  94, EntryHigh: 96, Stop: 93, Target1: 99, Target2: 100, RR: 2,
			QualityComposite: quality,
		},
		Size: domain.PositionSize{
			Symbol: symbol, FinalShares: int(value / 95),
			PositionValue: value, RiskAmount: value / 95 * 2,
			PositionPct: value / 1_000_000, Qualifies: true,
		},
		Sector:  sector,
		Returns: returns,
	}
}

// syntheticReturns builds a deterministic 60-day return series from a seed.
// Distinct seeds produce effectively uncorrelated streams; equal seeds
// produce identical ones.
func syntheticReturns(seed int) []float64 {
	state := uint64(seed)*2654435761 + 1
	out := make([]float64, 60)
	for i := range out {
		state = state*6364136223846793005 + 1442695040888963407
		out[i] = (float64(state>>40)/float64(1<<24) - 0.5) * 0.02
	}
	return out
}

func riskOn() *domain.RegimeAssessment {
	return &domain.RegimeAssessment{State: domain.RegimeRiskOn, Multiplier: 1.0}
}

func newConstructor() *Constructor {
	return NewConstructor(Config{PortfolioValue: 1_000_000, MaxPositions: 12}, zerolog.Nop())
}

func TestBuildCorrelationFilter(t *testing.T) {
	// A and B share an identical return stream (correlation 1.0); A ranks
	// higher and must win the slot.
	shared := syntheticReturns(1)
	cands := []Candidate{
		candidate("A", "IT", 90, 80_000, shared),
		candidate("B", "AUTO", 85, 80_000, shared),
		candidate("C", "PHARMA", 80, 80_000, syntheticReturns(9)),
	}

	alloc := newConstructor().Build(domain.Week("2026-08-17"), riskOn(),
		domain.ThresholdsFor(domain.RegimeRiskOn, 12), cands)

	require.Len(t, alloc.Positions, 2)
	assert.Equal(t, "A", alloc.Positions[0].Symbol)
	assert.Equal(t, "C", alloc.Positions[1].Symbol)
	assert.Equal(t, 1, alloc.CorrelationFiltered)
}

func TestBuildSectorCaps(t *testing.T) {
	// Four uncorrelated candidates in one sector: count cap keeps three.
	// Position values are small enough that the 25% value cap is not the
	// binding constraint.
	cands := []Candidate{
		candidate("A", "IT", 95, 60_000, syntheticReturns(1)),
		candidate("B", "IT", 90, 60_000, syntheticReturns(20)),
		candidate("C", "IT", 85, 60_000, syntheticReturns(40)),
		candidate("D", "IT", 80, 60_000, syntheticReturns(60)),
	}

	alloc := newConstructor().Build(domain.Week("2026-08-17"), riskOn(),
		domain.ThresholdsFor(domain.RegimeRiskOn, 12), cands)

	require.Len(t, alloc.Positions, 3)
	assert.Equal(t, 1, alloc.SectorFiltered)
	for i, p := range alloc.Positions {
		assert.Equal(t, i+1, p.Rank)
	}
	assert.Equal(t, []string{"A", "B", "C"},
		[]string{alloc.Positions[0].Symbol, alloc.Positions[1].Symbol, alloc.Positions[2].Symbol})
}

func TestBuildSectorValueCap(t *testing.T) {
	// Two positions at 15% each would push the sector past 25%.
	cands := []Candidate{
		candidate("A", "BANK", 95, 150_000, syntheticReturns(1)),
		candidate("B", "BANK", 90, 150_000, syntheticReturns(20)),
		candidate("C", "IT", 85, 150_000, syntheticReturns(40)),
	}

	alloc := newConstructor().Build(domain.Week("2026-08-17"), riskOn(),
		domain.ThresholdsFor(domain.RegimeRiskOn, 12), cands)

	require.Len(t, alloc.Positions, 2)
	assert.Equal(t, "A", alloc.Positions[0].Symbol)
	assert.Equal(t, "C", alloc.Positions[1].Symbol)
	assert.Equal(t, 1, alloc.SectorFiltered)
	assert.LessOrEqual(t, alloc.SectorAllocation["BANK"], 0.25)
}

func TestBuildCashReserve(t *testing.T) {
	// 70% investable in RISK_ON: three 250k positions exceed it; only two fit.
	cands := []Candidate{
		candidate("A", "IT", 95, 250_000, syntheticReturns(1)),
		candidate("B", "AUTO", 90, 250_000, syntheticReturns(20)),
		candidate("C", "PHARMA", 85, 250_000, syntheticReturns(40)),
	}

	alloc := newConstructor().Build(domain.Week("2026-08-17"), riskOn(),
		domain.ThresholdsFor(domain.RegimeRiskOn, 12), cands)

	require.Len(t, alloc.Positions, 2)
	assert.InDelta(t, 0.5, alloc.AllocatedPct, 0.001)
	assert.GreaterOrEqual(t, alloc.CashPct, 0.30)
}

func TestBuildRiskOffIsEmpty(t *testing.T) {
	cands := []Candidate{candidate("A", "IT", 95, 80_000, syntheticReturns(1))}

	alloc := newConstructor().Build(domain.Week("2026-08-17"),
		&domain.RegimeAssessment{State: domain.RegimeRiskOff, Multiplier: 0},
		domain.ThresholdsFor(domain.RegimeRiskOff, 12), cands)

	assert.Empty(t, alloc.Positions)
	assert.Equal(t, 1.0, alloc.CashPct)
	assert.NotEmpty(t, alloc.Reason)
}

func TestBuildEmptyCandidates(t *testing.T) {
	alloc := newConstructor().Build(domain.Week("2026-08-17"), riskOn(),
		domain.ThresholdsFor(domain.RegimeRiskOn, 12), nil)

	assert.Empty(t, alloc.Positions)
	assert.Equal(t, domain.AllocationDraft, alloc.Status)
	assert.NotEmpty(t, alloc.Reason)
}

func TestBuildRespectsMaxPositions(t *testing.T) {
	cands := make([]Candidate, 0, 15)
	sectors := []string{"IT", "AUTO", "PHARMA", "BANK", "FMCG", "METAL", "REALTY", "ENERGY"}
	for i := 0; i < 15; i++ {
		cands = append(cands, candidate(
			string(rune('A'+i)), sectors[i%len(sectors)],
			float64(95-i), 50_000, syntheticReturns(i*17+3)))
	}

	alloc := newConstructor().Build(domain.Week("2026-08-17"), riskOn(),
		domain.ThresholdsFor(domain.RegimeRiskOn, 12), cands)

	assert.LessOrEqual(t, len(alloc.Positions), 10, "RISK_ON threshold cap")
	for _, pct := range alloc.SectorAllocation {
		assert.LessOrEqual(t, pct, 0.25)
	}
}
