package marketdata

import (
	"time"

	"github.com/aristath/lookout/internal/domain"
)

// ResampleWeekly aggregates daily bars into ISO-week (Monday-Friday) bars.
// A partial final week is dropped so consistency metrics never see an
// incomplete observation.
func ResampleWeekly(bars []domain.DailyBar) []domain.WeeklyBar {
	if len(bars) == 0 {
		return nil
	}

	var weekly []domain.WeeklyBar
	var current *domain.WeeklyBar

	for _, bar := range bars {
		week := domain.WeekOf(bar.Date)
		if current == nil || current.Week != week {
			if current != nil {
				weekly = append(weekly, *current)
			}
			current = &domain.WeeklyBar{
				Week:   week,
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: bar.Volume,
			}
			continue
		}
		if bar.High > current.High {
			current.High = bar.High
		}
		if bar.Low < current.Low {
			current.Low = bar.Low
		}
		current.Close = bar.Close
		current.Volume += bar.Volume
	}

	if current != nil && weekComplete(*current, bars[len(bars)-1].Date) {
		weekly = append(weekly, *current)
	}

	return weekly
}

// weekComplete reports whether the trailing week has closed: the last bar
// must be a Friday, or the week's Friday must already be in the past.
func weekComplete(w domain.WeeklyBar, lastBar time.Time) bool {
	friday := w.Week.Time().AddDate(0, 0, 4)
	if lastBar.Weekday() == time.Friday {
		return true
	}
	return time.Now().UTC().After(friday.AddDate(0, 0, 1))
}

// WeeklyReturns converts weekly bars into close-over-close returns.
func WeeklyReturns(weekly []domain.WeeklyBar) []float64 {
	if len(weekly) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(weekly)-1)
	for i := 1; i < len(weekly); i++ {
		prev := weekly[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (weekly[i].Close-prev)/prev)
	}
	return returns
}
