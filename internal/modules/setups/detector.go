// Package setups recognizes tradable chart patterns on liquidity-qualified
// symbols and turns them into fully specified trade geometries. Patterns are
// attempted in a fixed priority order; a symbol emits at most one setup.
package setups

import (
	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

const minBars = 60

// candidate is a recognized pattern before geometry is applied.
type candidate struct {
	setupType  domain.SetupType
	support    float64
	confidence float64
}

// Detector recognizes the four setup patterns.
type Detector struct {
	log zerolog.Logger
}

// NewDetector creates a setup detector.
func NewDetector(log zerolog.Logger) *Detector {
	return &Detector{log: log.With().Str("component", "setups").Logger()}
}

// Detect attempts PULLBACK, VCP_BREAKOUT, RETEST, GAP_FILL in that order,
// skipping patterns the regime disallows. The first recognized pattern is
// taken to geometry; if geometry rejects it the symbol emits nothing.
func (d *Detector) Detect(symbol string, week domain.Week, bars []domain.DailyBar, ind *domain.IndicatorSet, th domain.Thresholds) *domain.TradeSetup {
	if len(bars) < minBars || ind == nil {
		return nil
	}

	attempts := []struct {
		setupType domain.SetupType
		detect    func([]domain.DailyBar, *domain.IndicatorSet) *candidate
	}{
		{domain.SetupPullback, detectPullback},
		{domain.SetupVCPBreakout, detectVCPBreakout},
		{domain.SetupRetest, detectRetest},
		{domain.SetupGapFill, detectGapFill},
	}

	for _, attempt := range attempts {
		if !th.SetupAllowed(attempt.setupType) {
			continue
		}
		if c := attempt.detect(bars, ind); c != nil {
			setup := buildSetup(symbol, week, *c, bars, ind, th)
			if setup == nil {
				d.log.Debug().
					Str("symbol", symbol).
					Str("setup", string(c.setupType)).
					Msg("Pattern recognized but geometry rejected")
			}
			return setup
		}
	}
	return nil
}

// detectPullback recognizes a trend pullback to the moving averages with
// volume contraction. Requires 3 of 5 conditions plus either the support
// test or a confirmed uptrend.
func detectPullback(bars []domain.DailyBar, ind *domain.IndicatorSet) *candidate {
	last := bars[len(bars)-1]
	close := last.Close

	near20 := close >= 0.95*ind.SMA20 && close <= 1.03*ind.SMA20
	near50 := close >= 0.95*ind.SMA50 && close <= 1.03*ind.SMA50
	nearSupport := near20 || near50

	volContraction := avgVolume(bars, 3) <= 0.70*avgVolume(bars, 20)

	rsiInZone := ind.RSI14 >= 35 && ind.RSI14 <= 55

	macdTurning := false
	if n := len(ind.MACDHist); n >= 2 {
		macdTurning = ind.MACDHist[n-1] > ind.MACDHist[n-2] && ind.MACDHist[n-1] > -0.5
	}

	inUptrend := close > ind.SMA50 && ind.SMA50 > ind.SMA200

	met := countTrue(nearSupport, volContraction, rsiInZone, macdTurning, inUptrend)
	if met < 3 || (!nearSupport && !inUptrend) {
		return nil
	}

	// Hammer candle on the latest bar strengthens the read.
	body := abs(last.Close - last.Open)
	totalRange := last.High - last.Low
	lowerShadow := min(last.Open, last.Close) - last.Low
	isHammer := totalRange > 0 && body <= 0.3*totalRange && lowerShadow >= 2*body

	support := ind.SMA20
	if near50 && !near20 {
		support = min(ind.SMA20, ind.SMA50)
	}

	bonus := 0.0
	if isHammer {
		bonus = 10
	}
	return &candidate{
		setupType:  domain.SetupPullback,
		support:    support,
		confidence: min(95, 60+float64(met)*7+bonus),
	}
}

// detectVCPBreakout recognizes a volatility contraction pattern near the top
// of a tight multi-week range.
func detectVCPBreakout(bars []domain.DailyBar, ind *domain.IndicatorSet) *candidate {
	close := bars[len(bars)-1].Close
	rangeHigh, rangeLow := rangeExtremes(bars, 20)
	if rangeLow <= 0 {
		return nil
	}

	rangePct := (rangeHigh - rangeLow) / rangeLow * 100
	tightRange := rangePct <= 12

	rangeMid := (rangeHigh + rangeLow) / 2
	inConsolidation := abs(close-rangeMid)/rangeMid <= 0.05

	decliningVol := false
	if atr21Ago := atrAt(bars, 21); atr21Ago > 0 {
		decliningVol = ind.ATR14 < atr21Ago*0.95
	}

	rangePosition := 0.5
	if rangeHigh > rangeLow {
		rangePosition = (close - rangeLow) / (rangeHigh - rangeLow)
	}
	nearBreakout := rangePosition >= 0.70

	tighteningRange := weeklyRangeTightening(bars)

	met := countTrue(tightRange, inConsolidation, decliningVol, nearBreakout, tighteningRange)
	if met < 3 {
		return nil
	}

	return &candidate{
		setupType:  domain.SetupVCPBreakout,
		support:    rangeHigh,
		confidence: min(95, 55+float64(met)*8),
	}
}

// detectRetest recognizes a high-volume breakout from the last 2-3 weeks now
// retesting the breakout level on drying volume.
func detectRetest(bars []domain.DailyBar, ind *domain.IndicatorSet) *candidate {
	if len(bars) < 30 {
		return nil
	}
	close := bars[len(bars)-1].Close

	// Search the [-20, -5) window for a >2% up day on >2x volume.
	var breakoutLevel, breakoutVolume, breakoutSpike float64
	found := false
	for i := len(bars) - 20; i < len(bars)-5; i++ {
		if i < 1 {
			continue
		}
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		ret := (bars[i].Close - prev) / prev
		vol20 := avgVolumeBefore(bars, i, 20)
		if vol20 == 0 {
			continue
		}
		spike := bars[i].Volume / vol20
		if ret > 0.02 && spike > 2.0 {
			breakoutLevel = bars[i].Close
			breakoutVolume = bars[i].Volume
			breakoutSpike = spike
			found = true
		}
	}
	if !found {
		return nil
	}

	breakoutVolHigh := breakoutSpike >= 2.5
	holdingAbove := close >= breakoutLevel*0.97
	volDryup := avgVolume(bars, 5) <= 0.60*breakoutVolume

	recentLow := lowOf(bars[len(bars)-5:])
	priorLow := lowOf(bars[len(bars)-20 : len(bars)-10])
	higherLow := recentLow > priorLow

	met := countTrue(breakoutVolHigh, holdingAbove, volDryup, higherLow)
	if met < 3 || !holdingAbove {
		return nil
	}

	return &candidate{
		setupType:  domain.SetupRetest,
		support:    breakoutLevel,
		confidence: min(95, 60+float64(met)*9),
	}
}

// detectGapFill recognizes a partially filled continuation gap in an uptrend.
func detectGapFill(bars []domain.DailyBar, ind *domain.IndicatorSet) *candidate {
	if len(bars) < 30 {
		return nil
	}
	close := bars[len(bars)-1].Close

	// Most recent 0.5-2% up-gap in the last 10 sessions.
	gapIdx := -1
	for i := len(bars) - 10; i < len(bars); i++ {
		if i < 1 {
			continue
		}
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		gapPct := (bars[i].Open - prev) / prev * 100
		if gapPct >= 0.5 && gapPct <= 2.0 {
			gapIdx = i
		}
	}
	if gapIdx < 1 {
		return nil
	}

	gapOpen := bars[gapIdx].Open
	gapPrevClose := bars[gapIdx-1].Close
	gapSize := gapOpen - gapPrevClose
	if gapSize <= 0 {
		return nil
	}

	lowestAfter := lowOf(bars[gapIdx:])
	gapFilledPct := (gapOpen - lowestAfter) / gapSize * 100

	gapAbove20DMA := gapOpen > smaAt(bars, gapIdx, 20)
	partialFill := gapFilledPct >= 50 && gapFilledPct <= 75
	volExpansion := false
	if vol20 := avgVolumeBefore(bars, gapIdx, 20); vol20 > 0 {
		volExpansion = bars[gapIdx].Volume >= 1.8*vol20
	}
	holdingGap := close >= gapPrevClose
	inUptrend := close > ind.SMA20 && ind.SMA20 > ind.SMA50

	met := countTrue(gapAbove20DMA, partialFill, volExpansion, holdingGap, inUptrend)
	if met < 3 || !holdingGap {
		return nil
	}

	return &candidate{
		setupType:  domain.SetupGapFill,
		support:    gapOpen,
		confidence: min(95, 55+float64(met)*8),
	}
}

// QualityComposite ranks setups across stages: equal parts momentum score,
// consistency final score, liquidity score, and pattern confidence.
func QualityComposite(momentum, consistency, liquidity, confidence float64) float64 {
	return formulas.Round2(0.25 * (momentum + consistency + liquidity + confidence))
}

// weeklyRangeTightening checks whether the most recent 5-day range is no
// wider than the range two weeks prior.
func weeklyRangeTightening(bars []domain.DailyBar) bool {
	ranges := make([]float64, 0, 4)
	for i := 0; i < 4; i++ {
		end := len(bars) - 5*i
		start := end - 5
		if start < 0 {
			break
		}
		hi, lo := rangeExtremesSlice(bars[start:end])
		if lo <= 0 {
			break
		}
		ranges = append(ranges, (hi-lo)/lo*100)
	}
	return len(ranges) >= 3 && ranges[0] <= ranges[2]
}

func rangeExtremes(bars []domain.DailyBar, n int) (high, low float64) {
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return rangeExtremesSlice(bars)
}

func rangeExtremesSlice(bars []domain.DailyBar) (high, low float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	high, low = bars[0].High, bars[0].Low
	for _, bar := range bars[1:] {
		if bar.High > high {
			high = bar.High
		}
		if bar.Low < low {
			low = bar.Low
		}
	}
	return high, low
}

func lowOf(bars []domain.DailyBar) float64 {
	if len(bars) == 0 {
		return 0
	}
	low := bars[0].Low
	for _, bar := range bars[1:] {
		if bar.Low < low {
			low = bar.Low
		}
	}
	return low
}

// avgVolume is the mean volume over the last n bars.
func avgVolume(bars []domain.DailyBar, n int) float64 {
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	sum := 0.0
	for _, bar := range bars {
		sum += bar.Volume
	}
	if len(bars) == 0 {
		return 0
	}
	return sum / float64(len(bars))
}

// avgVolumeBefore is the mean volume over the n bars ending just before i.
func avgVolumeBefore(bars []domain.DailyBar, i, n int) float64 {
	start := i - n
	if start < 0 {
		start = 0
	}
	if start >= i {
		return 0
	}
	return avgVolume(bars[start:i], n)
}

// smaAt is the simple moving average of closes over the n bars ending at i.
func smaAt(bars []domain.DailyBar, i, n int) float64 {
	start := i - n + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, bar := range bars[start : i+1] {
		sum += bar.Close
	}
	return sum / float64(i+1-start)
}

// atrAt recomputes ATR14 as of n bars ago.
func atrAt(bars []domain.DailyBar, agoBars int) float64 {
	end := len(bars) - agoBars
	if end < 15 {
		return 0
	}
	highs := make([]float64, end)
	lows := make([]float64, end)
	closes := make([]float64, end)
	for i := 0; i < end; i++ {
		highs[i] = bars[i].High
		lows[i] = bars[i].Low
		closes[i] = bars[i].Close
	}
	series := formulas.CalculateATR(highs, lows, closes, 14)
	if v := formulas.LastValid(series); v != nil {
		return *v
	}
	return 0
}

func countTrue(conditions ...bool) int {
	n := 0
	for _, ok := range conditions {
		if ok {
			n++
		}
	}
	return n
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
