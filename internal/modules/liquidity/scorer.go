// Package liquidity implements the turnover and tradability gate. Scores are
// absolute (normalized against fixed rupee-crore anchors), unlike the
// universe-relative consistency stage.
package liquidity

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

const (
	minBars = 60

	// Normalization anchors in rupee crores: the value that scores 100.
	anchor20D  = 10.0
	anchor60D  = 8.0
	anchorPeak = 50.0

	scoreFloor      = 75.0
	turnoverFloorCr = 10.0
	circuitMax      = 1
	gapMaxPct       = 2.0
	circuitLimit    = 0.05
)

// Scorer evaluates liquidity for one symbol from ~90 days of daily bars.
type Scorer struct {
	log zerolog.Logger
}

// NewScorer creates a liquidity scorer.
func NewScorer(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "liquidity").Logger()}
}

// Score computes the liquidity assessment. Returns nil when history is
// insufficient (a skip, not an error).
func (s *Scorer) Score(symbol string, week domain.Week, bars []domain.DailyBar) *domain.LiquidityScore {
	if len(bars) < minBars {
		return nil
	}

	turnoverCr := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		turnoverCr[i] = bar.Turnover() / 1e7
		volumes[i] = bar.Volume
	}

	t20 := formulas.Mean(lastN(turnoverCr, 20))
	t60 := formulas.Mean(lastN(turnoverCr, 60))
	peak30 := maxOf(lastN(turnoverCr, 30))

	volStability := formulas.Clamp(1-formulas.CoefficientOfVariation(lastN(volumes, 20)), 0, 1)

	circuits := circuitHits(bars, 30)
	avgGap := averageGapPct(bars, 30)

	score := 100 * (0.40*capped(t20/anchor20D) +
		0.30*capped(t60/anchor60D) +
		0.20*capped(peak30/anchorPeak) +
		0.10*volStability)

	qualifies := score >= scoreFloor &&
		t20 >= turnoverFloorCr &&
		circuits <= circuitMax &&
		avgGap <= gapMaxPct

	return &domain.LiquidityScore{
		Symbol:          symbol,
		Week:            week,
		Turnover20DCr:   formulas.Round2(t20),
		Turnover60DCr:   formulas.Round2(t60),
		Peak30DCr:       formulas.Round2(peak30),
		VolumeStability: formulas.Round3(volStability),
		CircuitHits30D:  circuits,
		AvgGapPct:       formulas.Round2(avgGap),
		Score:           formulas.Round2(score),
		Qualifies:       qualifies,
		CalculatedAt:    time.Now().UTC(),
	}
}

// circuitHits counts days in the lookback whose absolute close-to-close move
// reached the 5% circuit band.
func circuitHits(bars []domain.DailyBar, lookback int) int {
	start := len(bars) - lookback - 1
	if start < 0 {
		start = 0
	}
	hits := 0
	for i := start + 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		move := (bars[i].Close - prev) / prev
		if move < 0 {
			move = -move
		}
		if move >= circuitLimit {
			hits++
		}
	}
	return hits
}

// averageGapPct is the mean absolute open-vs-prior-close gap, in percent,
// over the lookback.
func averageGapPct(bars []domain.DailyBar, lookback int) float64 {
	start := len(bars) - lookback - 1
	if start < 0 {
		start = 0
	}
	gaps := make([]float64, 0, lookback)
	for i := start + 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		gap := (bars[i].Open - prev) / prev * 100
		if gap < 0 {
			gap = -gap
		}
		gaps = append(gaps, gap)
	}
	return formulas.Mean(gaps)
}

func capped(v float64) float64 {
	return formulas.Clamp(v, 0, 1)
}

func lastN(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
