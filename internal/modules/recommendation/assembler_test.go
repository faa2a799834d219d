package recommendation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookout/internal/domain"
)

func TestConviction10(t *testing.T) {
	fund := 70.0
	score, label := Conviction10(80, 75, 85, &fund, 74)
	assert.InDelta(t, 7.655, score, 0.006)
	assert.Equal(t, "High", label)

	// Absent fundamental renormalizes over the remaining 0.80 weight.
	score, label = Conviction10(80, 75, 85, nil, 74)
	assert.InDelta(t, 7.819, score, 0.006)
	assert.Equal(t, "High", label)

	// Uniform 100s stay 10 regardless of which components are present.
	score, _ = Conviction10(100, 100, 100, nil, 100)
	assert.Equal(t, 10.0, score)
}

func TestConvictionLabels(t *testing.T) {
	eighty := 80.0
	score, label := Conviction10(80, 80, 80, &eighty, 80)
	assert.Equal(t, 8.0, score)
	assert.Equal(t, "Very High", label)

	forty := 40.0
	_, label = Conviction10(40, 40, 40, &forty, 40)
	assert.Equal(t, "Low", label)

	ten := 10.0
	_, label = Conviction10(10, 10, 10, &ten, 10)
	assert.Equal(t, "Very Low", label)

	fifty := 50.0
	_, label = Conviction10(50, 50, 50, &fifty, 50)
	assert.Equal(t, "Medium", label)
}

func testInputs() CardInputs {
	return CardInputs{
		Position: domain.PortfolioPosition{
			Rank: 1, Symbol: "RELIANCE", Sector: "ENERGY",
			Shares: 300, PositionValue: 28_500, RiskAmount: 600, PositionPct: 0.0285,
		},
		Stock:       domain.Stock{Symbol: "RELIANCE", Name: "Reliance Industries Ltd"},
		Momentum:    &domain.MomentumScore{Score: 80},
		Consistency: &domain.ConsistencyScore{FinalScore: 75},
		Liquidity:   &domain.LiquidityScore{Score: 85},
		Setup: domain.TradeSetup{
			Symbol: "RELIANCE", Week: domain.Week("2026-08-17"),
			SetupType: domain.SetupPullback,
			EntryLow:  94, EntryHigh: 96, Stop: 93,
			StopMethod: domain.StopStructure, StopDistancePct: 0.0211,
			Target1: 99, Target2: 100, RR: 2.0, Confidence: 74,
			CurrentPrice: 95, High52W: 100, Low52W: 70,
			SMA20: 95, SMA50: 90, SMA200: 80,
		},
	}
}

func TestAssembleBuildsCard(t *testing.T) {
	assembler := NewAssembler(1_000_000, zerolog.Nop())
	regime := &domain.RegimeAssessment{
		State: domain.RegimeRiskOn, Confidence: 0.8, Multiplier: 1.0,
	}

	rec := assembler.Assemble(domain.Week("2026-08-17"), regime, nil,
		[]CardInputs{testInputs()}, map[string]int{"s2_momentum": 120})

	require.Len(t, rec.Cards, 1)
	assert.Equal(t, 1, rec.TotalSetups)
	assert.Equal(t, domain.RecommendationDraft, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.InDelta(t, 28_500, rec.AllocatedCapital, 0.01)
	assert.InDelta(t, 0.0285, rec.AllocatedPct, 1e-9)

	card := rec.Cards[0]
	assert.Equal(t, "Reliance Industries Ltd", card.CompanyName)
	assert.InDelta(t, 2.0, card.RR1, 1e-9, "(99-95)/2")
	assert.InDelta(t, 2.5, card.RR2, 1e-9, "(100-95)/2")
	assert.InDelta(t, 5.0, card.From52WHighPct, 1e-9)
	assert.InDelta(t, 7.819, card.Conviction, 0.006, "no fundamental, renormalized")
	assert.Equal(t, "High", card.ConvictionLabel)

	assert.Contains(t, card.GapContingency, "93.00")
	assert.Contains(t, card.GapContingency, "97.92", "chase guard at entryHigh*1.02")
	assert.Len(t, card.ActionSteps, 7)
	assert.Len(t, card.Invalidation, 3)
	assert.Contains(t, card.TextCard, "RELIANCE")
	assert.Contains(t, card.TextCard, "7.8/10")
}

func TestAssembleWithFundamental(t *testing.T) {
	assembler := NewAssembler(1_000_000, zerolog.Nop())
	in := testInputs()
	in.Fundamental = &domain.FundamentalScore{FundamentalScore: 70}

	rec := assembler.Assemble(domain.Week("2026-08-17"),
		&domain.RegimeAssessment{State: domain.RegimeRiskOn, Multiplier: 1.0},
		nil, []CardInputs{in}, nil)

	require.Len(t, rec.Cards, 1)
	require.NotNil(t, rec.Cards[0].FundamentalScore)
	assert.InDelta(t, 7.655, rec.Cards[0].Conviction, 0.006)
}

func TestAssembleRiskOffEmpty(t *testing.T) {
	assembler := NewAssembler(1_000_000, zerolog.Nop())
	alloc := &domain.PortfolioAllocation{
		Week: domain.Week("2026-08-17"), CashPct: 1.0,
	}

	rec := assembler.Assemble(domain.Week("2026-08-17"),
		&domain.RegimeAssessment{State: domain.RegimeRiskOff, Multiplier: 0},
		alloc, nil, nil)

	assert.Zero(t, rec.TotalSetups)
	assert.Empty(t, rec.Cards)
	assert.Equal(t, domain.RegimeRiskOff, rec.RegimeState)
	assert.Zero(t, rec.AllocatedCapital)
}
