package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekOf(t *testing.T) {
	cases := []struct {
		name string
		date time.Time
		want Week
	}{
		{"monday maps to itself", time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC), Week("2026-08-17")},
		{"wednesday", time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), Week("2026-08-17")},
		{"saturday", time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC), Week("2026-08-17")},
		{"sunday stays in the prior-Monday week", time.Date(2026, 8, 23, 23, 59, 0, 0, time.UTC), Week("2026-08-17")},
		{"next monday starts a new week", time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), Week("2026-08-24")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WeekOf(tc.date))
		})
	}
}

func TestWeekTime(t *testing.T) {
	w := Week("2026-08-17")
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), w.Time())
	assert.Equal(t, time.Monday, w.Time().Weekday())
}

func TestDailyBarTurnover(t *testing.T) {
	bar := DailyBar{Close: 250, Volume: 1e6}
	assert.Equal(t, 2.5e8, bar.Turnover())
}
