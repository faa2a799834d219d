package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI calculates the Relative Strength Index
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = Average Gain / Average Loss over N periods
//
// Returns the current RSI value (0-100) or nil if insufficient data.
func CalculateRSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)

	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

// CalculateSMA returns the full simple moving average series for the given period.
// Leading values where the window is not yet full are NaN, matching talib.
func CalculateSMA(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Sma(closes, period)
}

// CalculateATR returns Wilder's Average True Range series.
func CalculateATR(highs, lows, closes []float64, period int) []float64 {
	if len(closes) < period+1 {
		return nil
	}
	return talib.Atr(highs, lows, closes, period)
}

// CalculateMACD returns the MACD histogram series for the standard (12,26,9) setup.
func CalculateMACD(closes []float64) []float64 {
	if len(closes) < 35 {
		return nil
	}
	_, _, hist := talib.Macd(closes, 12, 26, 9)
	return hist
}

// SeriesSlope computes the per-day fractional slope of a series over an n-bar
// window: (s[t] - s[t-n]) / s[t-n] / n. The thresholds downstream are
// calibrated against this exact definition; do not swap in a regression slope.
func SeriesSlope(series []float64, n int) *float64 {
	if len(series) < n+1 {
		return nil
	}
	last := series[len(series)-1]
	prev := series[len(series)-1-n]
	if isNaN(last) || isNaN(prev) || prev == 0 {
		return nil
	}
	slope := (last - prev) / prev / float64(n)
	return &slope
}

// LastValid returns the final non-NaN value of a series, or nil.
func LastValid(series []float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !isNaN(series[i]) {
			v := series[i]
			return &v
		}
	}
	return nil
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
