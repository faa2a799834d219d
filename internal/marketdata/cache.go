package marketdata

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

// CandleCache stores msgpack-encoded daily bar series in the cache database.
// Entries older than the TTL are treated as misses; a weekend run therefore
// refetches at most once per symbol.
type CandleCache struct {
	db  *database.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCandleCache creates a cache over the cache database.
func NewCandleCache(db *database.DB, ttl time.Duration, log zerolog.Logger) *CandleCache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &CandleCache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "candle_cache").Logger(),
	}
}

// Get returns the cached series for a symbol when it is fresh and holds at
// least `days` bars.
func (c *CandleCache) Get(symbol string, days int) ([]domain.DailyBar, bool) {
	var blob []byte
	var barCount int
	var fetchedAt string

	err := c.db.QueryRow(
		`SELECT bars, bar_count, fetched_at FROM candles WHERE symbol = ?`, symbol,
	).Scan(&blob, &barCount, &fetchedAt)
	if err != nil {
		return nil, false
	}

	if barCount < days {
		return nil, false
	}
	stamp, err := time.Parse("2006-01-02 15:04:05", fetchedAt)
	if err != nil || time.Since(stamp) > c.ttl {
		return nil, false
	}

	var bars []domain.DailyBar
	if err := msgpack.Unmarshal(blob, &bars); err != nil {
		c.log.Warn().Str("symbol", symbol).Err(err).Msg("Corrupt cache entry, ignoring")
		return nil, false
	}

	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, true
}

// Put stores a series for a symbol, replacing any previous entry.
func (c *CandleCache) Put(symbol string, bars []domain.DailyBar) error {
	blob, err := msgpack.Marshal(bars)
	if err != nil {
		return err
	}

	_, err = c.db.Exec(
		`INSERT INTO candles (symbol, bars, bar_count, fetched_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(symbol) DO UPDATE SET
		   bars = excluded.bars,
		   bar_count = excluded.bar_count,
		   fetched_at = excluded.fetched_at`,
		symbol, blob, len(bars),
	)
	return err
}
