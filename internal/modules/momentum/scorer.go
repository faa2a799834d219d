// Package momentum implements the five-filter momentum gate.
package momentum

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

// Horizon lengths in trading days.
const (
	horizon1M = 21
	horizon3M = 63
	horizon6M = 126
	minBars   = 200
)

// Relative-strength hurdles per horizon.
const (
	rsHurdle1M = 0.05
	rsHurdle3M = 0.10
	rsHurdle6M = 0.15
)

// Scorer evaluates momentum for one symbol against the benchmark.
type Scorer struct {
	log zerolog.Logger
}

// NewScorer creates a momentum scorer.
func NewScorer(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "momentum").Logger()}
}

// Score runs the five filters. Returns nil when history is insufficient
// (a skip, not an error).
func (s *Scorer) Score(symbol string, week domain.Week, bars []domain.DailyBar, ind *domain.IndicatorSet, nifty []domain.DailyBar) *domain.MomentumScore {
	if len(bars) < minBars || len(nifty) < horizon6M+1 {
		return nil
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}
	niftyCloses := make([]float64, len(nifty))
	for i, bar := range nifty {
		niftyCloses[i] = bar.Close
	}

	last := closes[len(closes)-1]

	// 2A: proximity to the 52-week high, with a volume-surge escape hatch
	proximity := 0.0
	if ind.High52 > ind.Low52 {
		proximity = (last - ind.Low52) / (ind.High52 - ind.Low52)
	}
	volSurge := volumeSurge(volumes)
	passProximity := proximity >= 0.90 || (proximity >= 0.80 && volSurge >= 1.5)

	// 2B: moving-average alignment, scored out of 5
	maScore := maAlignScore(last, ind)
	passMA := maScore >= 4

	// 2C: relative strength over three horizons, 2 of 3 required
	rs1m := horizonReturn(closes, horizon1M) - horizonReturn(niftyCloses, horizon1M)
	rs3m := horizonReturn(closes, horizon3M) - horizonReturn(niftyCloses, horizon3M)
	rs6m := horizonReturn(closes, horizon6M) - horizonReturn(niftyCloses, horizon6M)
	rsPassed := 0
	if rs1m >= rsHurdle1M {
		rsPassed++
	}
	if rs3m >= rsHurdle3M {
		rsPassed++
	}
	if rs6m >= rsHurdle6M {
		rsPassed++
	}
	passRS := rsPassed >= 2

	// 2D: composite of the normalized sub-metrics
	rsAvg := (rs1m + rs3m + rs6m) / 3
	rsNorm := formulas.Clamp(rsAvg/0.50*100+50, 0, 100)
	accel := horizonReturn(closes, horizon1M) - priorWindowReturn(closes, horizon1M)
	accelNorm := formulas.Clamp((accel+0.05)/0.10*100, 0, 100)
	proximityNorm := formulas.Clamp(proximity*100, 0, 100)

	composite := 0.25*(proximityNorm/100) + 0.25*(rsNorm/100) +
		0.25*(float64(maScore)/5) + 0.25*(accelNorm/100)
	passComposite := composite >= 0.75

	// 2E: volatility no more than 1.5x the benchmark
	volRatio := returnVolatility(closes, 30) / returnVolatility(niftyCloses, 30)
	passVol := volRatio <= 1.5

	filtersPassed := 0
	for _, pass := range []bool{passProximity, passMA, passRS, passComposite, passVol} {
		if pass {
			filtersPassed++
		}
	}

	return &domain.MomentumScore{
		Symbol:               symbol,
		Week:                 week,
		Score:                formulas.Round3(composite * 100),
		FiltersPassed:        filtersPassed,
		PassProximity:        passProximity,
		PassMAAlignment:      passMA,
		PassRelativeStrength: passRS,
		PassComposite:        passComposite,
		PassVolatility:       passVol,
		Proximity52W:         formulas.Round3(proximity),
		MAAlignScore:         maScore,
		RS1M:                 formulas.Round3(rs1m),
		RS3M:                 formulas.Round3(rs3m),
		RS6M:                 formulas.Round3(rs6m),
		VolRatio:             formulas.Round3(volRatio),
		Qualifies:            filtersPassed >= 4,
		CalculatedAt:         time.Now().UTC(),
	}
}

// maAlignScore counts the five alignment conditions. The slope hurdles are
// per-day fractional slopes calibrated against the window definitions in
// marketdata.ComputeIndicators.
func maAlignScore(close float64, ind *domain.IndicatorSet) int {
	score := 0
	if close > ind.SMA20 {
		score++
	}
	if close > ind.SMA50 {
		score++
	}
	if close > ind.SMA200 {
		score++
	}
	if ind.SMA20 > ind.SMA50 && ind.SMA50 > ind.SMA200 {
		score++
	}
	if ind.Slope20 >= 0.001 && ind.Slope50 >= 0.0005 && ind.Slope200 >= 0.0002 {
		score++
	}
	return score
}

// volumeSurge compares the last 5 days of volume to the 20-day average.
func volumeSurge(volumes []float64) float64 {
	if len(volumes) < 20 {
		return 0
	}
	avg20 := formulas.Mean(volumes[len(volumes)-20:])
	if avg20 == 0 {
		return 0
	}
	avg5 := formulas.Mean(volumes[len(volumes)-5:])
	return avg5 / avg20
}

// horizonReturn is the fractional return over the last n bars.
func horizonReturn(closes []float64, n int) float64 {
	if len(closes) < n+1 {
		return 0
	}
	start := closes[len(closes)-1-n]
	if start == 0 {
		return 0
	}
	return (closes[len(closes)-1] - start) / start
}

// priorWindowReturn is the fractional return over the n bars before the
// most recent n bars. Used to detect momentum acceleration.
func priorWindowReturn(closes []float64, n int) float64 {
	if len(closes) < 2*n+1 {
		return 0
	}
	end := closes[len(closes)-1-n]
	start := closes[len(closes)-1-2*n]
	if start == 0 {
		return 0
	}
	return (end - start) / start
}

// returnVolatility is the stddev of daily returns over the last n bars.
func returnVolatility(closes []float64, n int) float64 {
	if len(closes) < n+1 {
		return 1
	}
	returns := formulas.CalculateReturns(closes[len(closes)-1-n:])
	vol := formulas.StdDev(returns)
	if vol == 0 {
		return 1e-9
	}
	return vol
}
