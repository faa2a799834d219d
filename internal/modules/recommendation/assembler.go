// Package recommendation joins the week's stage outputs into the final
// reviewable document: one card per selected position with conviction,
// action steps, and a Monday gap contingency plan.
package recommendation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

// Conviction weights over the five phase scores. When the fundamental score
// is unavailable the remaining weights are renormalized so present components
// keep their relative importance.
const (
	momentumWeight    = 0.25
	consistencyWeight = 0.20
	liquidityWeight   = 0.15
	fundamentalWeight = 0.20
	confidenceWeight  = 0.20
)

// CardInputs carries everything known about one selected symbol.
type CardInputs struct {
	Position    domain.PortfolioPosition
	Stock       domain.Stock
	Momentum    *domain.MomentumScore
	Consistency *domain.ConsistencyScore
	Liquidity   *domain.LiquidityScore
	Setup       domain.TradeSetup
	Size        domain.PositionSize
	Fundamental *domain.FundamentalScore
}

// Assembler builds the weekly recommendation document.
type Assembler struct {
	portfolioValue float64
	log            zerolog.Logger
}

// NewAssembler creates a recommendation assembler.
func NewAssembler(portfolioValue float64, log zerolog.Logger) *Assembler {
	return &Assembler{
		portfolioValue: portfolioValue,
		log:            log.With().Str("component", "recommendation").Logger(),
	}
}

// Assemble produces the draft recommendation for the week. In RISK_OFF the
// allocation is empty and the document carries zero setups.
func (a *Assembler) Assemble(week domain.Week, regime *domain.RegimeAssessment,
	alloc *domain.PortfolioAllocation, inputs []CardInputs, stageCounts map[string]int) domain.Recommendation {

	rec := domain.Recommendation{
		ID:                 uuid.NewString(),
		Week:               week,
		RegimeState:        regime.State,
		RegimeConfidence:   regime.Confidence,
		PositionMultiplier: regime.Multiplier,
		StageCounts:        stageCounts,
		Status:             domain.RecommendationDraft,
		CreatedAt:          time.Now().UTC(),
	}

	var allocated, risk float64
	for _, in := range inputs {
		card := a.buildCard(week, in)
		rec.Cards = append(rec.Cards, card)
		allocated += card.InvestmentAmount
		risk += card.RiskAmount
	}

	rec.TotalSetups = len(rec.Cards)
	rec.AllocatedCapital = formulas.Round2(allocated)
	if a.portfolioValue > 0 {
		rec.AllocatedPct = formulas.Round3(allocated / a.portfolioValue)
		rec.TotalRiskPct = formulas.Round3(risk / a.portfolioValue)
	}
	if alloc != nil {
		rec.AllocatedPct = alloc.AllocatedPct
		rec.TotalRiskPct = alloc.TotalRiskPct
	}

	a.log.Info().
		Str("week", string(week)).
		Int("setups", rec.TotalSetups).
		Str("regime", string(rec.RegimeState)).
		Msg("Weekly recommendation assembled")
	return rec
}

func (a *Assembler) buildCard(week domain.Week, in CardInputs) domain.RecommendationCard {
	setup := in.Setup

	card := domain.RecommendationCard{
		Symbol:      in.Position.Symbol,
		CompanyName: in.Stock.Name,
		Sector:      in.Position.Sector,
		SetupType:   setup.SetupType,

		SetupConfidence: setup.Confidence,

		CurrentPrice: setup.CurrentPrice,
		High52W:      setup.High52W,
		Low52W:       setup.Low52W,
		DMA20:        setup.SMA20,
		DMA50:        setup.SMA50,
		DMA200:       setup.SMA200,

		EntryLow:        setup.EntryLow,
		EntryHigh:       setup.EntryHigh,
		Stop:            setup.Stop,
		StopMethod:      setup.StopMethod,
		StopDistancePct: formulas.Round2(setup.StopDistancePct * 100),
		Target1:         setup.Target1,
		Target2:         setup.Target2,

		Shares:           in.Position.Shares,
		InvestmentAmount: formulas.Round2(in.Position.PositionValue),
		RiskAmount:       formulas.Round2(in.Position.RiskAmount),
		PositionPct:      formulas.Round2(in.Position.PositionPct * 100),
	}

	if card.CompanyName == "" {
		card.CompanyName = card.Symbol
	}
	if setup.High52W > 0 {
		card.From52WHighPct = formulas.Round2((setup.High52W - setup.CurrentPrice) / setup.High52W * 100)
	}

	mid := setup.MidEntry()
	if riskPerShare := mid - setup.Stop; riskPerShare > 0 {
		card.RR1 = formulas.Round2((setup.Target1 - mid) / riskPerShare)
		card.RR2 = formulas.Round2((setup.Target2 - mid) / riskPerShare)
	}

	if in.Momentum != nil {
		card.MomentumScore = in.Momentum.Score
	}
	if in.Consistency != nil {
		card.ConsistencyScore = in.Consistency.FinalScore
	}
	if in.Liquidity != nil {
		card.LiquidityScore = in.Liquidity.Score
	}
	if in.Fundamental != nil {
		f := in.Fundamental.FundamentalScore
		card.FundamentalScore = &f
	}

	card.Conviction, card.ConvictionLabel = Conviction10(
		card.MomentumScore, card.ConsistencyScore, card.LiquidityScore,
		card.FundamentalScore, card.SetupConfidence)

	card.GapContingency = gapContingency(setup)
	card.ActionSteps = actionSteps(card)
	card.Invalidation = invalidation(setup)
	card.TextCard = textCard(week, card)
	return card
}

// Conviction10 collapses the phase scores (each 0..100) to a 0..10 conviction
// with its label. A nil fundamental renormalizes the remaining weights.
func Conviction10(momentum, consistency, liquidity float64, fundamental *float64, setupConfidence float64) (float64, string) {
	weighted := momentum*momentumWeight +
		consistency*consistencyWeight +
		liquidity*liquidityWeight +
		setupConfidence*confidenceWeight
	totalWeight := momentumWeight + consistencyWeight + liquidityWeight + confidenceWeight

	if fundamental != nil {
		weighted += *fundamental * fundamentalWeight
		totalWeight += fundamentalWeight
	}

	conviction := weighted / totalWeight / 10
	conviction = formulas.Clamp(conviction, 0, 10)

	var label string
	switch {
	case conviction >= 8:
		label = "Very High"
	case conviction >= 6.5:
		label = "High"
	case conviction >= 5:
		label = "Medium"
	case conviction >= 3.5:
		label = "Low"
	default:
		label = "Very Low"
	}
	return formulas.Round2(conviction), label
}

func actionSteps(c domain.RecommendationCard) []string {
	steps := []string{
		fmt.Sprintf("Place limit buy order in the Rs.%.2f - Rs.%.2f zone", c.EntryLow, c.EntryHigh),
		fmt.Sprintf("Set stop-loss at Rs.%.2f (%.1f%% below entry, %s method)",
			c.Stop, c.StopDistancePct, c.StopMethod),
		fmt.Sprintf("Buy %d shares (Rs.%.0f, %.1f%% of portfolio)",
			c.Shares, c.InvestmentAmount, c.PositionPct),
		fmt.Sprintf("Target 1: Rs.%.2f (%.1fR), take 50%% profit", c.Target1, c.RR1),
		fmt.Sprintf("Target 2: Rs.%.2f (%.1fR), exit the remainder", c.Target2, c.RR2),
		fmt.Sprintf("At +1R move the stop to breakeven Rs.%.2f", (c.EntryLow+c.EntryHigh)/2),
		"At +2R trail the stop below the most recent swing low",
	}
	return steps
}

func gapContingency(s domain.TradeSetup) string {
	return fmt.Sprintf(
		"If Monday opens at or below Rs.%.2f (stop): SKIP | "+
			"in Rs.%.2f-%.2f: ENTER at open | "+
			"above Rs.%.2f (+2%%): SKIP, do not chase | "+
			"between stop and Rs.%.2f: ENTER at open (small gap against)",
		s.Stop, s.EntryLow, s.EntryHigh, s.EntryHigh*1.02, s.EntryLow)
}

func invalidation(s domain.TradeSetup) []string {
	return []string{
		fmt.Sprintf("Daily close below Rs.%.2f before entry", s.Stop),
		fmt.Sprintf("Gap open above Rs.%.2f (chase guard)", s.EntryHigh*1.02),
		"Recommendation not executed within the week",
	}
}

func textCard(week domain.Week, c domain.RecommendationCard) string {
	text := fmt.Sprintf(`TRADE RECOMMENDATION - Week of %s

%s (%s) - %s
Setup: %s | Conviction: %.1f/10 (%s)

Entry zone: Rs.%.2f - Rs.%.2f
Stop: Rs.%.2f (%.1f%%, %s)
Target 1: Rs.%.2f (%.1fR) | Target 2: Rs.%.2f (%.1fR)
Size: %d shares, Rs.%.0f (%.1f%% of portfolio), risk Rs.%.0f

Scores: momentum %.0f | consistency %.0f | liquidity %.0f | setup %.0f
`,
		week, c.Symbol, c.CompanyName, c.Sector,
		c.SetupType, c.Conviction, c.ConvictionLabel,
		c.EntryLow, c.EntryHigh,
		c.Stop, c.StopDistancePct, c.StopMethod,
		c.Target1, c.RR1, c.Target2, c.RR2,
		c.Shares, c.InvestmentAmount, c.PositionPct, c.RiskAmount,
		c.MomentumScore, c.ConsistencyScore, c.LiquidityScore, c.SetupConfidence)

	if c.FundamentalScore != nil {
		text += fmt.Sprintf("Fundamental: %.0f\n", *c.FundamentalScore)
	}
	text += "\nGap plan: " + c.GapContingency + "\n"
	return text
}
