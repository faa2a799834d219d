package execution

import "fmt"

// Trailing ladder: once the position gains these percentages, the stop is
// suggested at the corresponding level above (or at) entry.
const (
	trailArmPct    = 3.0
	trailMidPct    = 6.0
	trailDeepPct   = 10.0
	stopWarningPct = 2.0
)

// PositionAlerts produces the intraweek notices for one tracked position:
// stop proximity, target proximity, R-multiple milestones, and the trailing
// suggestion.
func PositionAlerts(symbol string, current, entry, stop, target1, target2 float64) []string {
	var alerts []string
	if current <= 0 || entry <= 0 {
		return alerts
	}

	stopDistancePct := (current - stop) / current * 100
	if stopDistancePct > 0 && stopDistancePct < stopWarningPct {
		alerts = append(alerts, fmt.Sprintf("%s: price within 2%% of stop %.2f", symbol, stop))
	}

	if current > entry {
		if d := (target1 - current) / current * 100; d > 0 && d < 2 {
			alerts = append(alerts, fmt.Sprintf("%s: approaching target 1 (%.2f)", symbol, target1))
		}
		if d := (target2 - current) / current * 100; d > 0 && d < 2 {
			alerts = append(alerts, fmt.Sprintf("%s: approaching target 2 (%.2f)", symbol, target2))
		}
	}

	r := rMultiple(entry, stop, current)
	switch {
	case r >= 0.95 && r <= 1.05:
		alerts = append(alerts, fmt.Sprintf("%s: at +1R, move stop to breakeven %.2f", symbol, entry))
	case r >= 1.95 && r <= 2.05:
		alerts = append(alerts, fmt.Sprintf("%s: at +2R (target 1), take partial profits", symbol))
	case r >= 2.95 && r <= 3.05:
		alerts = append(alerts, fmt.Sprintf("%s: at +3R, take further profits", symbol))
	}

	if r >= 1.5 {
		locked := entry + 0.5*(entry-stop)
		alerts = append(alerts, fmt.Sprintf("%s: trail stop to %.2f (locks +0.5R)", symbol, locked))
	}

	if trailed := TrailStop(entry, stop, current); trailed > stop {
		alerts = append(alerts, fmt.Sprintf("%s: trailing ladder stop %.2f", symbol, trailed))
	}

	return alerts
}

// TrailStop returns the ladder-adjusted stop for the current gain: breakeven
// at +3%, entry+3% at +6%, entry+6% at +10%. Never below the original stop.
func TrailStop(entry, stop, current float64) float64 {
	if entry <= 0 || current <= entry {
		return stop
	}
	gainPct := (current - entry) / entry * 100

	trailed := stop
	switch {
	case gainPct >= trailDeepPct:
		trailed = entry * 1.06
	case gainPct >= trailMidPct:
		trailed = entry * 1.03
	case gainPct >= trailArmPct:
		trailed = entry
	}
	if trailed < stop {
		return stop
	}
	return trailed
}
