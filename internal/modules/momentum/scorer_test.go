package momentum

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

// trendBars builds n daily bars drifting by the given fractional rate per day,
// with a small alternating wiggle so returns are not degenerate.
func trendBars(n int, start, drift, wiggle float64) []domain.DailyBar {
	bars := make([]domain.DailyBar, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		w := wiggle
		if i%2 == 0 {
			w = -wiggle
		}
		price *= 1 + drift + w
		bars[i] = domain.DailyBar{
			Date:   base.AddDate(0, 0, i),
			Open:   price * 0.998,
			High:   price * 1.005,
			Low:    price * 0.995,
			Close:  price,
			Volume: 500000,
		}
	}
	return bars
}

// indicatorsFor derives the subset of indicators the scorer consumes.
func indicatorsFor(bars []domain.DailyBar) *domain.IndicatorSet {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	sma20 := formulas.CalculateSMA(closes, 20)
	sma50 := formulas.CalculateSMA(closes, 50)
	sma200 := formulas.CalculateSMA(closes, 200)

	ind := &domain.IndicatorSet{}
	if v := formulas.LastValid(sma20); v != nil {
		ind.SMA20 = *v
	}
	if v := formulas.LastValid(sma50); v != nil {
		ind.SMA50 = *v
	}
	if v := formulas.LastValid(sma200); v != nil {
		ind.SMA200 = *v
	}
	if s := formulas.SeriesSlope(sma20, 20); s != nil {
		ind.Slope20 = *s
	}
	if s := formulas.SeriesSlope(sma50, 50); s != nil {
		ind.Slope50 = *s
	}
	if s := formulas.SeriesSlope(sma200, 200); s != nil {
		ind.Slope200 = *s
	}

	window := closes
	if len(window) > 252 {
		window = window[len(window)-252:]
	}
	ind.High52, ind.Low52 = window[0], window[0]
	for _, c := range window {
		if c > ind.High52 {
			ind.High52 = c
		}
		if c < ind.Low52 {
			ind.Low52 = c
		}
	}
	return ind
}

func TestScoreStrongUptrendQualifies(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	bars := trendBars(400, 100, 0.003, 0.002)
	nifty := trendBars(400, 20000, 0.0002, 0.0015)
	ind := indicatorsFor(bars)

	score := scorer.Score("STRONG", domain.Week("2026-08-17"), bars, ind, nifty)
	require.NotNil(t, score)

	assert.True(t, score.PassProximity, "near 52w high")
	assert.True(t, score.PassMAAlignment, "all averages stacked and rising")
	assert.True(t, score.PassRelativeStrength, "beats the benchmark on all horizons")
	assert.True(t, score.PassComposite)
	assert.True(t, score.PassVolatility)
	assert.Equal(t, 5, score.FiltersPassed)
	assert.True(t, score.Qualifies)
	assert.Greater(t, score.Score, 75.0)
	assert.GreaterOrEqual(t, score.Proximity52W, 0.90)
	assert.Equal(t, 5, score.MAAlignScore)
}

func TestScoreDowntrendFails(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	bars := trendBars(400, 500, -0.002, 0.002)
	nifty := trendBars(400, 20000, 0.0002, 0.0015)
	ind := indicatorsFor(bars)

	score := scorer.Score("WEAK", domain.Week("2026-08-17"), bars, ind, nifty)
	require.NotNil(t, score)

	assert.False(t, score.PassProximity, "near the 52w low, not the high")
	assert.False(t, score.PassMAAlignment)
	assert.False(t, score.PassRelativeStrength)
	assert.False(t, score.PassComposite)
	assert.False(t, score.Qualifies)
	assert.LessOrEqual(t, score.FiltersPassed, 1)
}

func TestScoreInsufficientHistorySkips(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	bars := trendBars(150, 100, 0.003, 0.002)
	nifty := trendBars(400, 20000, 0.0002, 0.0015)

	score := scorer.Score("SHORT", domain.Week("2026-08-17"), bars, indicatorsFor(bars), nifty)
	assert.Nil(t, score, "under 200 bars is a skip")
}

func TestScoreVolatilityFilter(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())

	// Same drift as the strong case but a wiggle far above the benchmark's.
	bars := trendBars(400, 100, 0.003, 0.012)
	nifty := trendBars(400, 20000, 0.0002, 0.0015)
	ind := indicatorsFor(bars)

	score := scorer.Score("WILD", domain.Week("2026-08-17"), bars, ind, nifty)
	require.NotNil(t, score)
	assert.False(t, score.PassVolatility)
	assert.Greater(t, score.VolRatio, 1.5)
}

func TestScoreProximityBoundary(t *testing.T) {
	scorer := NewScorer(zerolog.Nop())
	nifty := trendBars(400, 20000, 0.0002, 0.0015)
	ind := &domain.IndicatorSet{High52: 150, Low52: 50}

	// Flat volume keeps the surge at 1.0, so only the raw proximity counts.
	flatBars := func(close float64) []domain.DailyBar {
		bars := trendBars(400, close, 0, 0)
		for i := range bars {
			bars[i].Close = close
		}
		return bars
	}

	at := scorer.Score("AT", domain.Week("2026-08-17"), flatBars(140), ind, nifty)
	require.NotNil(t, at)
	assert.True(t, at.PassProximity, "exactly 0.90 passes")

	below := scorer.Score("BELOW", domain.Week("2026-08-17"), flatBars(139.9), ind, nifty)
	require.NotNil(t, below)
	assert.False(t, below.PassProximity, "0.899 fails without a volume surge")

	// 0.85 with a 5-day volume surge >= 1.5x takes the escape hatch.
	surged := trendBars(400, 135, 0, 0)
	for i := range surged {
		surged[i].Close = 135
		if i >= len(surged)-5 {
			surged[i].Volume = 1_300_000
		}
	}
	hatch := scorer.Score("HATCH", domain.Week("2026-08-17"), surged, ind, nifty)
	require.NotNil(t, hatch)
	assert.True(t, hatch.PassProximity, "volume surge rescues 0.80-0.90 proximity")
}

func TestMAAlignScoreCounting(t *testing.T) {
	ind := &domain.IndicatorSet{
		SMA20: 110, SMA50: 105, SMA200: 100,
		Slope20: 0.002, Slope50: 0.001, Slope200: 0.0005,
	}
	assert.Equal(t, 5, maAlignScore(115, ind))
	assert.Equal(t, 4, maAlignScore(108, ind), "below SMA20 only")

	flat := &domain.IndicatorSet{
		SMA20: 100, SMA50: 101, SMA200: 102,
		Slope20: -0.001, Slope50: 0, Slope200: 0,
	}
	assert.Equal(t, 0, maAlignScore(99, flat))
}
