package liquidity

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookout/internal/domain"
)

// flatBars builds n identical bars at the given price and volume.
func flatBars(n int, price, volume float64) []domain.DailyBar {
	bars := make([]domain.DailyBar, n)
	base := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.DailyBar{
			Date:   base.AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: volume,
		}
	}
	return bars
}

func TestScoreDeepLiquidityQualifies(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	// 100 * 5,000,000 = 50 Cr daily turnover, perfectly stable.
	bars := flatBars(90, 100, 5_000_000)

	score := scorer.Score("LIQUID", domain.Week("2026-08-17"), bars)
	require.NotNil(t, score)

	assert.InDelta(t, 50, score.Turnover20DCr, 0.01)
	assert.InDelta(t, 50, score.Turnover60DCr, 0.01)
	assert.InDelta(t, 50, score.Peak30DCr, 0.01)
	assert.InDelta(t, 1.0, score.VolumeStability, 1e-9)
	assert.Equal(t, 0, score.CircuitHits30D)
	assert.InDelta(t, 0, score.AvgGapPct, 1e-9)
	assert.InDelta(t, 100, score.Score, 0.01)
	assert.True(t, score.Qualifies)
}

func TestScoreThinTurnoverFails(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	// 50 * 100,000 = 0.5 Cr daily turnover: well under the 10 Cr floor.
	bars := flatBars(90, 50, 100_000)

	score := scorer.Score("THIN", domain.Week("2026-08-17"), bars)
	require.NotNil(t, score)

	assert.InDelta(t, 0.5, score.Turnover20DCr, 0.01)
	assert.False(t, score.Qualifies)
	assert.Less(t, score.Score, 75.0)
}

func TestScoreCircuitHitsDisqualify(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	bars := flatBars(90, 100, 5_000_000)
	// Two 6% moves inside the 30-day window.
	bars[80].Close = bars[79].Close * 1.06
	bars[85].Close = bars[84].Close * 0.94

	score := scorer.Score("CIRCUITY", domain.Week("2026-08-17"), bars)
	require.NotNil(t, score)

	assert.GreaterOrEqual(t, score.CircuitHits30D, 2)
	assert.False(t, score.Qualifies, "more than one circuit hit in 30 days")
}

func TestScoreWideGapsDisqualify(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	bars := flatBars(90, 100, 5_000_000)
	// Every open in the window gaps 3% above the prior close.
	for i := 61; i < len(bars); i++ {
		bars[i].Open = bars[i-1].Close * 1.03
	}

	score := scorer.Score("GAPPY", domain.Week("2026-08-17"), bars)
	require.NotNil(t, score)

	assert.Greater(t, score.AvgGapPct, 2.0)
	assert.False(t, score.Qualifies)
}

func TestScoreInsufficientHistorySkips(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())
	assert.Nil(t, scorer.Score("SHORT", domain.Week("2026-08-17"), flatBars(40, 100, 5_000_000)))
}

func TestScoreUnstableVolumeLowersScore(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	stable := flatBars(90, 100, 2_000_000)
	erratic := flatBars(90, 100, 2_000_000)
	for i := range erratic {
		if i%2 == 0 {
			erratic[i].Volume = 3_800_000
		} else {
			erratic[i].Volume = 200_000
		}
	}

	stableScore := scorer.Score("STABLE", domain.Week("2026-08-17"), stable)
	erraticScore := scorer.Score("ERRATIC", domain.Week("2026-08-17"), erratic)
	require.NotNil(t, stableScore)
	require.NotNil(t, erraticScore)

	assert.Greater(t, stableScore.VolumeStability, erraticScore.VolumeStability)
	assert.Greater(t, stableScore.Score, erraticScore.Score)
}
