// Package execution turns approved allocations into Monday entry decisions,
// tracks open positions through the week, and produces the Friday review.
package execution

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
)

// chaseBandPct is the tolerance above the entry zone before an open gap
// becomes an unchaseable breakout.
const chaseBandPct = 0.02

// Engine applies execution decisions to the week's allocation.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates an execution engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "execution").Logger()}
}

// DecideGap classifies a Monday open against the planned entry geometry.
// The branches are ordered: a gap through the stop always skips, then the
// chase guard, then the in-zone and small-gap-against entries.
func DecideGap(open, stop, entryLow, entryHigh float64) domain.GapDecision {
	switch {
	case open <= stop:
		return domain.GapSkipThroughStop
	case open > entryHigh*(1+chaseBandPct):
		return domain.GapSkipDoNotChase
	case open >= entryLow && open <= entryHigh:
		return domain.GapEnterAtOpen
	case open > stop && open < entryLow:
		return domain.GapEnterSmallAgainst
	default:
		return domain.GapWaitAndWatch
	}
}

// ApplyMondayOpens runs the gap decision for every allocated position and
// returns the resulting tracking records. Symbols without an open price stay
// pending so a later poll can decide them.
func (e *Engine) ApplyMondayOpens(alloc *domain.PortfolioAllocation, opens map[string]float64) []domain.Position {
	now := time.Now().UTC()
	positions := make([]domain.Position, 0, len(alloc.Positions))

	for _, p := range alloc.Positions {
		pos := domain.Position{
			Symbol:    p.Symbol,
			Week:      alloc.Week,
			Status:    domain.PositionPending,
			Stop:      p.Stop,
			Target1:   p.Target1,
			Target2:   p.Target2,
			Shares:    p.Shares,
			UpdatedAt: now,
		}

		open, ok := opens[p.Symbol]
		if !ok || open <= 0 {
			e.log.Warn().Str("symbol", p.Symbol).Msg("No Monday open; position left pending")
			positions = append(positions, pos)
			continue
		}

		pos.GapDecision = DecideGap(open, p.Stop, p.EntryLow, p.EntryHigh)
		pos.CurrentPrice = open

		switch pos.GapDecision {
		case domain.GapEnterAtOpen, domain.GapEnterSmallAgainst:
			pos.Status = domain.PositionOpen
			pos.EntryPrice = open
		case domain.GapSkipThroughStop, domain.GapSkipDoNotChase:
			pos.Status = domain.PositionSkipped
		default:
			// WAIT_AND_WATCH stays pending for the intraday re-check.
		}

		e.log.Info().
			Str("symbol", p.Symbol).
			Float64("open", open).
			Str("decision", string(pos.GapDecision)).
			Msg("Monday gap decision")
		positions = append(positions, pos)
	}
	return positions
}

// MarkToMarket refreshes current price and unrealized R for open positions.
// Positions without a quote are returned unchanged.
func (e *Engine) MarkToMarket(positions []domain.Position, prices map[string]float64) []domain.Position {
	now := time.Now().UTC()
	out := make([]domain.Position, len(positions))
	for i, pos := range positions {
		price, ok := prices[pos.Symbol]
		if ok && price > 0 && pos.Status == domain.PositionOpen {
			pos.CurrentPrice = price
			pos.UnrealizedR = rMultiple(pos.EntryPrice, pos.Stop, price)
			pos.UpdatedAt = now
		}
		out[i] = pos
	}
	return out
}

// ClosePosition converts an open position into a trade outcome at the given
// exit price.
func (e *Engine) ClosePosition(pos domain.Position, exitPrice float64) domain.TradeOutcome {
	outcome := domain.TradeOutcome{
		ID:         uuid.NewString(),
		Symbol:     pos.Symbol,
		Week:       pos.Week,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Shares:     pos.Shares,
		RealizedR:  rMultiple(pos.EntryPrice, pos.Stop, exitPrice),
		Win:        exitPrice > pos.EntryPrice,
		ClosedAt:   time.Now().UTC(),
	}

	e.log.Info().
		Str("symbol", pos.Symbol).
		Float64("realized_r", outcome.RealizedR).
		Bool("win", outcome.Win).
		Msg("Position closed")
	return outcome
}

// rMultiple expresses a price move in units of initial risk.
func rMultiple(entry, stop, price float64) float64 {
	risk := entry - stop
	if risk <= 0 {
		return 0
	}
	return (price - entry) / risk
}
