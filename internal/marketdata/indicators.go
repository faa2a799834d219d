package marketdata

import (
	"fmt"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

// ComputeIndicators derives the full indicator set from a daily bar series.
// Indicators are always computed locally so every stage sees the same values
// regardless of provider quirks. Requires at least 220 bars so the 200-bar
// average has a slope window behind it.
func ComputeIndicators(bars []domain.DailyBar) (*domain.IndicatorSet, error) {
	if len(bars) < 220 {
		return nil, fmt.Errorf("insufficient history: %d bars", len(bars))
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
		highs[i] = bar.High
		lows[i] = bar.Low
		volumes[i] = bar.Volume
	}

	sma20 := formulas.CalculateSMA(closes, 20)
	sma50 := formulas.CalculateSMA(closes, 50)
	sma200 := formulas.CalculateSMA(closes, 200)
	atr14 := formulas.CalculateATR(highs, lows, closes, 14)
	macdHist := formulas.CalculateMACD(closes)

	rsi := formulas.CalculateRSI(closes, 14)
	if rsi == nil {
		return nil, fmt.Errorf("rsi unavailable")
	}

	set := &domain.IndicatorSet{
		RSI14:    *rsi,
		MACDHist: macdHist,
		Vol20:    formulas.Mean(volumes[len(volumes)-20:]),
	}

	if v := formulas.LastValid(sma20); v != nil {
		set.SMA20 = *v
	}
	if v := formulas.LastValid(sma50); v != nil {
		set.SMA50 = *v
	}
	if v := formulas.LastValid(sma200); v != nil {
		set.SMA200 = *v
	}
	if v := formulas.LastValid(atr14); v != nil {
		set.ATR14 = *v
	}

	// Per-day fractional slopes over window sizes matching each average
	if s := formulas.SeriesSlope(sma20, 20); s != nil {
		set.Slope20 = *s
	}
	if s := formulas.SeriesSlope(sma50, 50); s != nil {
		set.Slope50 = *s
	}
	if s := formulas.SeriesSlope(sma200, 200); s != nil {
		set.Slope200 = *s
	}

	// 52-week extremes over the trailing 252 trading days
	window := bars
	if len(window) > 252 {
		window = window[len(window)-252:]
	}
	set.High52 = window[0].High
	set.Low52 = window[0].Low
	for _, bar := range window {
		if bar.High > set.High52 {
			set.High52 = bar.High
		}
		if bar.Low < set.Low52 {
			set.Low52 = bar.Low
		}
	}

	return set, nil
}
