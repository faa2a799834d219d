// Package universe builds the tradable stock universe with quality tiering.
package universe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/internal/marketdata"
)

// Summary reports the outcome of a universe build.
type Summary struct {
	Fetched     int
	Tradable    int
	Deactivated int
	TierCounts  map[string]int
}

// Builder assembles the universe from the instruments dump, the MTF list,
// and the four Nifty constituent lists.
type Builder struct {
	provider marketdata.Provider
	repo     *StockRepository
	log      zerolog.Logger
}

// NewBuilder creates a universe builder.
func NewBuilder(provider marketdata.Provider, repo *StockRepository, log zerolog.Logger) *Builder {
	return &Builder{
		provider: provider,
		repo:     repo,
		log:      log.With().Str("component", "universe").Logger(),
	}
}

// Build fetches all inputs, scores every instrument, upserts the tradable
// set, and deactivates symbols that disappeared from the exchange dump.
func (b *Builder) Build(ctx context.Context) (*Summary, error) {
	instruments, err := b.provider.FetchInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("universe build: %w", err)
	}

	mtf, err := b.provider.FetchMTFSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("universe build: %w", err)
	}

	indices := make(map[string]map[string]bool, 4)
	for _, index := range []string{"NIFTY50", "NIFTY100", "NIFTY200", "NIFTY500"} {
		constituents, err := b.provider.FetchIndexConstituents(ctx, index)
		if err != nil {
			return nil, fmt.Errorf("universe build: %w", err)
		}
		indices[index] = constituents
	}

	stocks := make([]domain.Stock, 0, len(instruments))
	tierCounts := map[string]int{"A": 0, "B": 0, "C": 0, "D": 0}

	for _, inst := range instruments {
		stock := scoreInstrument(inst, mtf, indices)
		if stock == nil {
			continue // neither MTF nor in any index: outside the tradable universe
		}
		stocks = append(stocks, *stock)
		tierCounts[stock.Tier]++
	}

	if err := b.repo.UpsertBatch(stocks); err != nil {
		return nil, fmt.Errorf("universe build: %w", err)
	}

	deactivated, err := b.repo.DeactivateMissing(symbolSet(stocks))
	if err != nil {
		return nil, fmt.Errorf("universe build: %w", err)
	}

	summary := &Summary{
		Fetched:     len(instruments),
		Tradable:    len(stocks),
		Deactivated: deactivated,
		TierCounts:  tierCounts,
	}

	b.log.Info().
		Int("fetched", summary.Fetched).
		Int("tradable", summary.Tradable).
		Int("deactivated", summary.Deactivated).
		Interface("tiers", tierCounts).
		Msg("Universe built")

	return summary, nil
}

// scoreInstrument applies the quality matrix. MTF eligibility contributes the
// base (it proxies liquidity and exchange scrutiny); the narrowest index
// membership contributes the bonus. Returns nil for untradable instruments.
func scoreInstrument(inst marketdata.Instrument, mtf map[string]bool, indices map[string]map[string]bool) *domain.Stock {
	isMTF := mtf[inst.Symbol]
	in50 := indices["NIFTY50"][inst.Symbol]
	in100 := indices["NIFTY100"][inst.Symbol]
	in200 := indices["NIFTY200"][inst.Symbol]
	in500 := indices["NIFTY500"][inst.Symbol]

	if !isMTF && !in50 && !in100 && !in200 && !in500 {
		return nil
	}

	base := 0.0
	if isMTF {
		base = 40
	}

	var bonus float64
	switch {
	case in50:
		bonus = 50
	case in100:
		bonus = 35
	case in200:
		bonus = 25
	case in500:
		bonus = 20
	}

	score := base + bonus

	var tier string
	switch {
	case score >= 90:
		tier = "A"
	case score >= 75:
		tier = "B"
	case score >= 60:
		tier = "C"
	default:
		tier = "D"
	}

	return &domain.Stock{
		Symbol:       inst.Symbol,
		Name:         inst.Name,
		ISIN:         inst.ISIN,
		Sector:       "Unknown", // filled by the fundamentals refresh when available
		LotSize:      inst.LotSize,
		TickSize:     inst.TickSize,
		IsMTF:        isMTF,
		InNifty50:    in50,
		InNifty100:   in100,
		InNifty200:   in200,
		InNifty500:   in500,
		QualityScore: score,
		Tier:         tier,
		Active:       true,
	}
}

func symbolSet(stocks []domain.Stock) map[string]bool {
	set := make(map[string]bool, len(stocks))
	for _, s := range stocks {
		set[s.Symbol] = true
	}
	return set
}
