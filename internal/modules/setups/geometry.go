package setups

import (
	"time"

	"github.com/aristath/lookout/internal/domain"
	"github.com/aristath/lookout/pkg/formulas"
)

const maxStopDistancePct = 0.08

// buildSetup applies the shared entry/stop/target geometry to a recognized
// pattern. Returns nil when the geometry violates the regime RR floor or the
// stop-distance cap.
func buildSetup(symbol string, week domain.Week, c candidate, bars []domain.DailyBar, ind *domain.IndicatorSet, th domain.Thresholds) *domain.TradeSetup {
	last := bars[len(bars)-1]
	atr := ind.ATR14
	if atr <= 0 {
		return nil
	}

	entryLow := c.support - 0.5*atr
	entryHigh := c.support + 0.5*atr
	midEntry := (entryLow + entryHigh) / 2

	swingLow := lowOf(bars[len(bars)-min(20, len(bars)):])
	stopStruct := swingLow * 0.99
	stopVol := entryLow - 2*atr
	stop := stopStruct
	method := domain.StopStructure
	if stopVol > stop {
		stop = stopVol
		method = domain.StopVolatility
	}

	// The ordering stop < entryLow < entryHigh < target1 must hold.
	if stop >= entryLow {
		return nil
	}
	risk := midEntry - stop

	target1 := midEntry + 2*risk
	target2 := min(midEntry+3*risk, ind.High52)
	if target2 < target1 {
		target2 = target1
	}
	rr := (target1 - midEntry) / risk

	// rr is 2R by construction; the tolerance keeps float noise from
	// tripping an exactly-at-the-floor geometry.
	stopDistancePct := risk / midEntry
	if rr < th.RRFloor-1e-9 || stopDistancePct > maxStopDistancePct {
		return nil
	}

	return &domain.TradeSetup{
		Symbol:          symbol,
		Week:            week,
		SetupType:       c.setupType,
		EntryLow:        formulas.Round2(entryLow),
		EntryHigh:       formulas.Round2(entryHigh),
		Stop:            formulas.Round2(stop),
		StopMethod:      method,
		StopDistancePct: formulas.Round3(stopDistancePct),
		Target1:         formulas.Round2(target1),
		Target2:         formulas.Round2(target2),
		RR:              formulas.Round2(rr),
		Confidence:      c.confidence,
		CurrentPrice:    last.Close,
		High52W:         ind.High52,
		Low52W:          ind.Low52,
		SMA20:           formulas.Round2(ind.SMA20),
		SMA50:           formulas.Round2(ind.SMA50),
		SMA200:          formulas.Round2(ind.SMA200),
		ATR14:           formulas.Round2(atr),
		CalculatedAt:    time.Now().UTC(),
	}
}
