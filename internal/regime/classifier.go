// Package regime classifies the market environment for the week and emits
// the position multiplier and adaptive thresholds that gate the pipeline.
package regime

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

// Sector index quote symbols for the leadership sub-score.
var (
	CyclicalIndices  = []string{"^NSEBANK", "^CNXMETAL", "^CNXREALTY", "^CNXAUTO"}
	DefensiveIndices = []string{"^CNXPHARMA", "^CNXFMCG", "^CNXIT"}
)

// BreadthSample summarizes how much of the universe trades above its
// long-term averages.
type BreadthSample struct {
	Above200 int
	Above50  int
	Total    int
}

// Input carries everything the classifier needs; all of it is fetched by
// activities before classification so the scoring itself is pure.
type Input struct {
	Week            domain.Week
	NiftyBars       []domain.DailyBar
	Breadth         BreadthSample
	CyclicalReturns []float64 // mean 20-day return per cyclical index
	DefensiveReturn []float64 // mean 20-day return per defensive index
	VIX             []float64 // daily India VIX closes; empty = use realized vol
}

// Classifier computes the weekly regime assessment.
type Classifier struct {
	log zerolog.Logger
}

// NewClassifier creates a regime classifier.
func NewClassifier(log zerolog.Logger) *Classifier {
	return &Classifier{log: log.With().Str("component", "regime").Logger()}
}

// Classify produces the regime assessment from the assembled input.
// The benchmark series is mandatory; everything downstream depends on it.
func (c *Classifier) Classify(input Input) (*domain.RegimeAssessment, error) {
	if len(input.NiftyBars) < 220 {
		return nil, fmt.Errorf("benchmark history too short: %d bars", len(input.NiftyBars))
	}

	trend := c.trendScore(input.NiftyBars)
	breadth := breadthScore(input.Breadth)
	volatility := volatilityScore(input.VIX, input.NiftyBars)
	leadership := leadershipScore(input.CyclicalReturns, input.DefensiveReturn)

	composite := (trend + breadth + volatility + leadership) / 4

	state, multiplier := classify(composite, trend)

	assessment := &domain.RegimeAssessment{
		Week:            input.Week,
		State:           state,
		Confidence:      formulas.Round3(composite / 100),
		TrendScore:      formulas.Round3(trend),
		BreadthScore:    formulas.Round3(breadth),
		VolatilityScore: formulas.Round3(volatility),
		LeadershipScore: formulas.Round3(leadership),
		Composite:       formulas.Round3(composite),
		Multiplier:      multiplier,
		CalculatedAt:    time.Now().UTC(),
	}

	c.log.Info().
		Str("state", string(state)).
		Float64("composite", assessment.Composite).
		Float64("multiplier", multiplier).
		Msg("Regime classified")

	return assessment, nil
}

// classify maps the composite to a state and position multiplier.
// A composite in 50-69 with a still-strong trend is treated as reduced-size
// RISK_ON rather than CHOPPY.
func classify(composite, trend float64) (domain.RegimeState, float64) {
	switch {
	case composite >= 70:
		return domain.RegimeRiskOn, 1.0
	case composite >= 50 && trend >= 60:
		return domain.RegimeRiskOn, 0.7
	case composite >= 40:
		return domain.RegimeChoppy, 0.5
	default:
		return domain.RegimeRiskOff, 0.0
	}
}

// trendScore grades the Nifty against its own moving averages and slopes.
func (c *Classifier) trendScore(bars []domain.DailyBar) float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	sma20 := formulas.CalculateSMA(closes, 20)
	sma50 := formulas.CalculateSMA(closes, 50)
	sma200 := formulas.CalculateSMA(closes, 200)

	last := closes[len(closes)-1]
	v20 := formulas.LastValid(sma20)
	v50 := formulas.LastValid(sma50)
	v200 := formulas.LastValid(sma200)
	if v20 == nil || v50 == nil || v200 == nil {
		return 0
	}

	score := 0.0
	if last > *v200 {
		score += 25
	}
	if last > *v50 {
		score += 20
	}
	if last > *v20 {
		score += 15
	}
	if *v20 > *v50 {
		score += 10
	}
	if s := formulas.SeriesSlope(sma50, 50); s != nil && *s >= 0 {
		score += 15
	}
	if s := formulas.SeriesSlope(sma200, 20); s != nil && *s >= 0 {
		score += 15
	}
	return score
}

// breadthScore grades participation: the 200-DMA fraction carries more
// weight than the 50-DMA fraction.
func breadthScore(sample BreadthSample) float64 {
	if sample.Total == 0 {
		return 50 // no sample reads as neutral
	}
	frac200 := float64(sample.Above200) / float64(sample.Total)
	frac50 := float64(sample.Above50) / float64(sample.Total)
	return 100 * (0.6*frac200 + 0.4*frac50)
}

// volatilityScore grades the VIX level band, its direction, and spikes.
// When VIX is unavailable, annualized realized 20-day vol of the benchmark
// substitutes (both are in annualized-percent terms).
func volatilityScore(vix []float64, niftyBars []domain.DailyBar) float64 {
	series := vix
	if len(series) < 10 {
		series = realizedVolSeries(niftyBars, 20)
	}
	if len(series) < 10 {
		return 50
	}

	current := series[len(series)-1]
	avg10 := formulas.Mean(series[len(series)-10:])

	var band float64
	switch {
	case current < 13:
		band = 40
	case current < 16:
		band = 35
	case current < 20:
		band = 25
	case current < 25:
		band = 10
	default:
		band = 0
	}

	var direction float64
	switch {
	case current < avg10*0.97:
		direction = 30 // falling
	case current <= avg10*1.03:
		direction = 15 // flat
	}

	spike := 30.0
	if current > avg10*1.3 {
		spike = 0
	}

	return band + direction + spike
}

// realizedVolSeries computes a rolling annualized volatility (in %) over the
// given window of daily returns.
func realizedVolSeries(bars []domain.DailyBar, window int) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	returns := formulas.CalculateReturns(closes)
	if len(returns) < window {
		return nil
	}

	series := make([]float64, 0, len(returns)-window+1)
	for i := window; i <= len(returns); i++ {
		vol := formulas.StdDev(returns[i-window:i]) * math.Sqrt(252) * 100
		series = append(series, vol)
	}
	return series
}

// leadershipScore grades cyclical-minus-defensive sector rotation.
func leadershipScore(cyclical, defensive []float64) float64 {
	if len(cyclical) == 0 || len(defensive) == 0 {
		return 50
	}
	spread := formulas.Mean(cyclical) - formulas.Mean(defensive)
	switch {
	case spread >= 0.03:
		return 100
	case spread >= 0.01:
		return 75
	case spread >= -0.01:
		return 50
	case spread >= -0.03:
		return 25
	default:
		return 0
	}
}
