// Package portfolio selects the week's positions under correlation, sector,
// and cash-reserve constraints using a greedy conviction-ordered pass.
package portfolio

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

const (
	maxCorrelation = 0.70
	maxSectorCount = 3
	maxSectorPct   = 0.25
)

// Candidate is one sized setup competing for a portfolio slot.
type Candidate struct {
	Setup   domain.TradeSetup
	Size    domain.PositionSize
	Sector  string
	Returns []float64 // trailing 60-day daily returns, for pairwise correlation
}

// Config carries the construction parameters.
type Config struct {
	PortfolioValue float64
	MaxPositions   int
}

// Constructor builds the weekly allocation.
type Constructor struct {
	cfg Config
	log zerolog.Logger
}

// NewConstructor creates a portfolio constructor.
func NewConstructor(cfg Config, log zerolog.Logger) *Constructor {
	return &Constructor{cfg: cfg, log: log.With().Str("component", "portfolio").Logger()}
}

// Build runs the greedy selection. Candidates that fail sizing are expected
// to be filtered out by the caller; the regime's thresholds supply the cash
// reserve and position cap for the week.
func (c *Constructor) Build(week domain.Week, regime *domain.RegimeAssessment, th domain.Thresholds, candidates []Candidate) domain.PortfolioAllocation {
	alloc := domain.PortfolioAllocation{
		Week:             week,
		RegimeState:      regime.State,
		SectorAllocation: map[string]float64{},
		CashPct:          1.0,
		Status:           domain.AllocationDraft,
		CalculatedAt:     time.Now().UTC(),
	}

	if regime.State == domain.RegimeRiskOff {
		alloc.Reason = "risk-off regime: no positions taken"
		return alloc
	}
	if len(candidates) == 0 {
		alloc.Reason = "no qualifying candidates"
		return alloc
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Setup.QualityComposite != candidates[j].Setup.QualityComposite {
			return candidates[i].Setup.QualityComposite > candidates[j].Setup.QualityComposite
		}
		return candidates[i].Setup.Symbol < candidates[j].Setup.Symbol
	})

	maxPositions := th.MaxPositions
	if c.cfg.MaxPositions < maxPositions {
		maxPositions = c.cfg.MaxPositions
	}
	investable := (1 - th.CashReservePct) * c.cfg.PortfolioValue

	var selected []Candidate
	sectorCount := map[string]int{}
	sectorValue := map[string]float64{}
	cumulative := 0.0
	totalRisk := 0.0

	for _, cand := range candidates {
		if len(selected) >= maxPositions {
			break
		}
		if tooCorrelated(cand, selected) {
			alloc.CorrelationFiltered++
			continue
		}
		if sectorCount[cand.Sector] >= maxSectorCount ||
			sectorValue[cand.Sector]+cand.Size.PositionValue > maxSectorPct*c.cfg.PortfolioValue {
			alloc.SectorFiltered++
			continue
		}
		if cumulative+cand.Size.PositionValue > investable {
			continue
		}

		selected = append(selected, cand)
		sectorCount[cand.Sector]++
		sectorValue[cand.Sector] += cand.Size.PositionValue
		cumulative += cand.Size.PositionValue
		totalRisk += cand.Size.RiskAmount
	}

	if len(selected) == 0 {
		alloc.Reason = "no candidate passed portfolio constraints"
		return alloc
	}

	alloc.Positions = make([]domain.PortfolioPosition, len(selected))
	for i, cand := range selected {
		alloc.Positions[i] = domain.PortfolioPosition{
			Rank:             i + 1,
			Symbol:           cand.Setup.Symbol,
			Sector:           cand.Sector,
			SetupType:        cand.Setup.SetupType,
			EntryLow:         cand.Setup.EntryLow,
			EntryHigh:        cand.Setup.EntryHigh,
			Stop:             cand.Setup.Stop,
			Target1:          cand.Setup.Target1,
			Target2:          cand.Setup.Target2,
			RR:               cand.Setup.RR,
			Shares:           cand.Size.FinalShares,
			PositionValue:    cand.Size.PositionValue,
			RiskAmount:       cand.Size.RiskAmount,
			PositionPct:      cand.Size.PositionPct,
			QualityComposite: cand.Setup.QualityComposite,
		}
	}
	for sector, value := range sectorValue {
		if value > 0 {
			alloc.SectorAllocation[sector] = formulas.Round3(value / c.cfg.PortfolioValue)
		}
	}
	alloc.AllocatedPct = formulas.Round3(cumulative / c.cfg.PortfolioValue)
	alloc.CashPct = formulas.Round3(1 - cumulative/c.cfg.PortfolioValue)
	alloc.TotalRiskPct = formulas.Round3(totalRisk / c.cfg.PortfolioValue)

	c.log.Info().
		Int("positions", len(selected)).
		Int("correlation_filtered", alloc.CorrelationFiltered).
		Int("sector_filtered", alloc.SectorFiltered).
		Float64("allocated_pct", alloc.AllocatedPct).
		Msg("Portfolio constructed")

	return alloc
}

// tooCorrelated reports whether the candidate's 60-day returns correlate
// beyond the cap with any already-selected position.
func tooCorrelated(cand Candidate, selected []Candidate) bool {
	if len(cand.Returns) == 0 {
		return false
	}
	for _, s := range selected {
		if len(s.Returns) == 0 || len(s.Returns) != len(cand.Returns) {
			continue
		}
		corr := formulas.Correlation(cand.Returns, s.Returns)
		if corr > maxCorrelation || corr < -maxCorrelation {
			return true
		}
	}
	return false
}
