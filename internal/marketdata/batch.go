package marketdata

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/lookout/internal/domain"
)

// BatchFetcher fans a symbol batch out over the provider with bounded
// concurrency. A symbol whose fetch fails is omitted from the result
// (logged, not fatal); the provider's limiter paces individual calls.
type BatchFetcher struct {
	provider    Provider
	cache       *CandleCache
	concurrency int
}

// NewBatchFetcher creates a batch fetcher. A nil cache disables caching.
func NewBatchFetcher(provider Provider, cache *CandleCache, concurrency int) *BatchFetcher {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &BatchFetcher{provider: provider, cache: cache, concurrency: concurrency}
}

// FetchBatch returns symbol -> daily bars for every symbol that could be
// fetched (or served from cache) with at least minBars bars.
func (f *BatchFetcher) FetchBatch(ctx context.Context, symbols []string, days, minBars int) (map[string][]domain.DailyBar, error) {
	var mu sync.Mutex
	results := make(map[string][]domain.DailyBar, len(symbols))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := f.fetchOne(ctx, symbol, days)
			if err != nil {
				// Per-symbol failure is a skip, not a batch failure
				return nil
			}
			if len(bars) < minBars {
				return nil
			}
			mu.Lock()
			results[symbol] = bars
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (f *BatchFetcher) fetchOne(ctx context.Context, symbol string, days int) ([]domain.DailyBar, error) {
	if f.cache != nil {
		if bars, ok := f.cache.Get(symbol, days); ok {
			return bars, nil
		}
	}

	bars, err := f.provider.FetchDailyBars(ctx, symbol, days)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		_ = f.cache.Put(symbol, bars)
	}
	return bars, nil
}
