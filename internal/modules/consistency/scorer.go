// Package consistency implements the nine-metric weekly-return consistency
// gate. Scoring is universe-relative: normalization bounds and percentile
// ranks come from the batch being scored, so the whole momentum-qualified
// set is scored in one call.
package consistency

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

const (
	lookbackWeeks = 52
	recentWeeks   = 26
	currentWeeks  = 13
	minReturns    = 40

	qualifyFilters   = 5
	consistencyFloor = 75.0
	regimeFloor      = 1.0
	significanceP    = 0.10
)

// metrics holds the raw per-symbol measurements before normalization.
type metrics struct {
	symbol        string
	posPct        float64 // fraction of positive weeks, 52w
	plus3Pct      float64
	plus5Pct      float64
	stdDev        float64
	avgReturn     float64
	sharpe        float64
	sortino       float64
	maxWinStreak  int
	winStreakProb float64 // positive-week % over 26w, in percent
	avg13w        float64
	positiveWeeks int
	totalWeeks    int
}

// Scorer evaluates weekly-return consistency across a batch of symbols.
type Scorer struct {
	log zerolog.Logger
}

// NewScorer creates a consistency scorer.
func NewScorer(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "consistency").Logger()}
}

// ScoreUniverse computes consistency scores for every symbol with enough
// weekly history. Symbols with under 40 weekly returns are skipped.
func (s *Scorer) ScoreUniverse(week domain.Week, weekly map[string][]domain.WeeklyBar, th domain.Thresholds) []domain.ConsistencyScore {
	batch := make([]metrics, 0, len(weekly))
	for symbol, bars := range weekly {
		if m := measure(symbol, bars); m != nil {
			batch = append(batch, *m)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	bounds := universeBounds(batch)
	percentiles := percentileRanks(batch, bounds)

	scores := make([]domain.ConsistencyScore, 0, len(batch))
	for _, m := range batch {
		scores = append(scores, s.score(week, m, th, bounds, percentiles[m.symbol]))
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].FinalScore > scores[j].FinalScore })

	qualified := 0
	for _, sc := range scores {
		if sc.Qualifies {
			qualified++
		}
	}
	s.log.Info().
		Int("analyzed", len(scores)).
		Int("qualified", qualified).
		Msg("Consistency scoring complete")

	return scores
}

// measure computes the raw metrics from weekly bars, most recent last.
// Returns nil when history is too short.
func measure(symbol string, bars []domain.WeeklyBar) *metrics {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	returns := formulas.CalculateReturns(closes)
	if len(returns) < minReturns {
		return nil
	}
	if len(returns) > lookbackWeeks {
		returns = returns[len(returns)-lookbackWeeks:]
	}

	positive, plus3, plus5 := 0, 0, 0
	streak, maxStreak := 0, 0
	for _, r := range returns {
		if r > 0 {
			positive++
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 0
		}
		if r >= 0.03 {
			plus3++
		}
		if r >= 0.05 {
			plus5++
		}
	}

	n := float64(len(returns))
	avg := formulas.Mean(returns)
	std := formulas.StdDev(returns)

	sharpe := 0.0
	if std > 0 {
		sharpe = avg / std
	}
	sortino := 0.0
	if dd := formulas.DownsideDev(returns); dd > 0 {
		sortino = avg / dd
	}

	recent := tail(returns, recentWeeks)
	recentPositive := 0
	for _, r := range recent {
		if r > 0 {
			recentPositive++
		}
	}

	return &metrics{
		symbol:        symbol,
		posPct:        float64(positive) / n,
		plus3Pct:      float64(plus3) / n,
		plus5Pct:      float64(plus5) / n,
		stdDev:        std,
		avgReturn:     avg,
		sharpe:        sharpe,
		sortino:       sortino,
		maxWinStreak:  maxStreak,
		winStreakProb: float64(recentPositive) / float64(len(recent)) * 100,
		avg13w:        formulas.Mean(tail(returns, currentWeeks)),
		positiveWeeks: positive,
		totalWeeks:    len(returns),
	}
}

// bounds are the min-max normalization ranges taken from the batch itself.
// The win-streak range is fixed; the rest track the observed universe.
type bounds struct {
	posMin, posMax       float64 // percent
	plus3Min, plus3Max   float64 // percent
	volMin, volMax       float64 // percent
	sharpeMin, sharpeMax float64
	winMin, winMax       float64
}

func universeBounds(batch []metrics) bounds {
	b := bounds{
		posMin: batch[0].posPct * 100, posMax: batch[0].posPct * 100,
		plus3Min: batch[0].plus3Pct * 100, plus3Max: batch[0].plus3Pct * 100,
		volMin: batch[0].stdDev * 100, volMax: batch[0].stdDev * 100,
		sharpeMin: batch[0].sharpe, sharpeMax: batch[0].sharpe,
		winMin: 40, winMax: 80,
	}
	for _, m := range batch[1:] {
		b.posMin = min(b.posMin, m.posPct*100)
		b.posMax = max(b.posMax, m.posPct*100)
		b.plus3Min = min(b.plus3Min, m.plus3Pct*100)
		b.plus3Max = max(b.plus3Max, m.plus3Pct*100)
		b.volMin = min(b.volMin, m.stdDev*100)
		b.volMax = max(b.volMax, m.stdDev*100)
		b.sharpeMin = min(b.sharpeMin, m.sharpe)
		b.sharpeMax = max(b.sharpeMax, m.sharpe)
	}
	return b
}

// normalize maps val onto 0-100 within [lo, hi]; a degenerate range reads
// as neutral. inverse flips the scale for lower-is-better metrics.
func normalize(val, lo, hi float64, inverse bool) float64 {
	if hi == lo {
		return 50
	}
	norm := (val - lo) / (hi - lo)
	if inverse {
		norm = 1 - norm
	}
	return formulas.Clamp(norm*100, 0, 100)
}

// consistencyScore is the 25/25/20/15/15 weighted composite.
func consistencyScore(m metrics, b bounds) float64 {
	return formulas.Round2(
		0.25*normalize(m.posPct*100, b.posMin, b.posMax, false) +
			0.25*normalize(m.plus3Pct*100, b.plus3Min, b.plus3Max, false) +
			0.20*normalize(m.stdDev*100, b.volMin, b.volMax, true) +
			0.15*normalize(m.sharpe, b.sharpeMin, b.sharpeMax, false) +
			0.15*normalize(m.winStreakProb, b.winMin, b.winMax, false))
}

// regimeScore compares 13-week to 52-week average returns, clipped to [0, 3].
// A non-positive long-term average reads as 2.0 when recent performance is
// positive, 1.0 otherwise.
func regimeScore(avg13w, avg52w float64) float64 {
	if avg52w <= 0 {
		if avg13w > 0 {
			return 2.0
		}
		return 1.0
	}
	return formulas.Clamp(avg13w/avg52w, 0, 3)
}

// finalScore is the 40/25/20/15 ranking composite.
func finalScore(cs, rs, sharpe, percentile float64) float64 {
	regimeNorm := (rs - 0.5) / 2.5 * 100
	sharpeNorm := (sharpe + 0.1) / 0.5 * 100
	return formulas.Round2(formulas.Clamp(
		0.40*cs+0.25*regimeNorm+0.20*percentile+0.15*sharpeNorm, 0, 100))
}

// percentileRanks assigns ((n-i)/n)*100 by descending consistency score.
func percentileRanks(batch []metrics, b bounds) map[string]float64 {
	type ranked struct {
		symbol string
		score  float64
	}
	list := make([]ranked, len(batch))
	for i, m := range batch {
		list[i] = ranked{m.symbol, consistencyScore(m, b)}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].symbol < list[j].symbol
	})

	n := float64(len(list))
	ranks := make(map[string]float64, len(list))
	for i, r := range list {
		ranks[r.symbol] = (n - float64(i)) / n * 100
	}
	return ranks
}

// binomialPValue is the one-sided probability of observing at least k
// positive weeks out of n under a fair coin.
func binomialPValue(k, n int) float64 {
	if n == 0 {
		return 1
	}
	dist := distuv.Binomial{N: float64(n), P: 0.5}
	if k == 0 {
		return 1
	}
	return 1 - dist.CDF(float64(k-1))
}

func (s *Scorer) score(week domain.Week, m metrics, th domain.Thresholds, b bounds, percentile float64) domain.ConsistencyScore {
	cs := consistencyScore(m, b)
	rs := regimeScore(m.avg13w, m.avgReturn)
	fs := finalScore(cs, rs, m.sharpe, percentile)

	checks := []bool{
		m.posPct >= th.PosPctMin,
		m.plus3Pct >= th.Plus3PctLow && m.plus3Pct <= th.Plus3PctHigh,
		m.stdDev <= th.StdDevMax,
		m.sharpe >= th.SharpeMin,
		cs >= consistencyFloor,
		rs >= regimeFloor,
	}
	passed := 0
	for _, ok := range checks {
		if ok {
			passed++
		}
	}

	pValue := binomialPValue(m.positiveWeeks, m.totalWeeks)
	significant := m.posPct > 0.5 && pValue < significanceP

	return domain.ConsistencyScore{
		Symbol:           m.symbol,
		Week:             week,
		PosPct:           formulas.Round3(m.posPct),
		Plus3Pct:         formulas.Round3(m.plus3Pct),
		Plus5Pct:         formulas.Round3(m.plus5Pct),
		StdDev:           formulas.Round3(m.stdDev),
		AvgWeeklyReturn:  formulas.Round3(m.avgReturn),
		Sharpe:           formulas.Round3(m.sharpe),
		Sortino:          formulas.Round3(m.sortino),
		MaxWinStreak:     m.maxWinStreak,
		ConsistencyScore: cs,
		RegimeScore:      formulas.Round3(rs),
		PercentileRank:   formulas.Round2(percentile),
		FinalScore:       fs,
		FiltersPassed:    passed,
		Significant:      significant,
		PValue:           formulas.Round3(pValue),
		Qualifies:        passed >= qualifyFilters && significant,
		CalculatedAt:     time.Now().UTC(),
	}
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
