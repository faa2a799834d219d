package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	sma := CalculateSMA(closes, 3)

	require.Len(t, sma, 5)
	assert.True(t, math.IsNaN(sma[0]), "window not yet full")
	assert.True(t, math.IsNaN(sma[1]))
	assert.InDelta(t, 2.0, sma[2], 1e-9)
	assert.InDelta(t, 4.0, sma[4], 1e-9)

	assert.Nil(t, CalculateSMA(closes, 6), "series shorter than period")
}

func TestCalculateRSIBounds(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}

	rsi := CalculateRSI(rising, 14)

	require.NotNil(t, rsi)
	assert.InDelta(t, 100.0, *rsi, 1e-6, "monotonic gains pin RSI at 100")

	assert.Nil(t, CalculateRSI(rising[:10], 14), "insufficient history")
}

func TestSeriesSlope(t *testing.T) {
	series := []float64{100, 101, 102, 103, 104, 105}

	slope := SeriesSlope(series, 5)

	require.NotNil(t, slope)
	assert.InDelta(t, 0.01, *slope, 1e-9) // 5% over 5 bars

	assert.Nil(t, SeriesSlope(series, 6), "window longer than series")
	assert.Nil(t, SeriesSlope([]float64{0, 0, 1}, 2), "zero base")
}

func TestLastValid(t *testing.T) {
	nan := math.NaN()

	v := LastValid([]float64{nan, 1.5, nan})
	require.NotNil(t, v)
	assert.Equal(t, 1.5, *v)

	assert.Nil(t, LastValid([]float64{nan, nan}))
	assert.Nil(t, LastValid(nil))
}
