// Package calendar computes month grids and calendar-day predicates for the
// reminder views. Everything here is pure: no clocks, no stores.
package calendar

import (
	"time"

	"remindcal/internal/model"
)

// MonthGrid returns the cell layout for the given month as a flat sequence
// of week rows. Zero-value entries are padding outside the month: the first
// weekday of the month (Sunday = column 0) determines the leading padding,
// real dates follow in ascending order, and trailing padding fills the last
// week so the length is always a multiple of 7.
func MonthGrid(year int, month time.Month, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	days := DaysInMonth(year, month)

	grid := make([]time.Time, 0, 42)
	for i := 0; i < int(first.Weekday()); i++ {
		grid = append(grid, time.Time{})
	}
	for day := 1; day <= days; day++ {
		grid = append(grid, time.Date(year, month, day, 0, 0, 0, 0, loc))
	}
	for len(grid)%7 != 0 {
		grid = append(grid, time.Time{})
	}

	return grid
}

// DaysInMonth returns the number of days in the month, leap years included.
func DaysInMonth(year int, month time.Month) int {
	// First of the next month, rolled back a day.
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}

// SameDay reports calendar-date equality: year, month and day match in each
// value's own location, time-of-day ignored.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsToday reports whether t falls on the same calendar day as now.
func IsToday(t, now time.Time) bool {
	return SameDay(t, now)
}

// NavigateMonth steps the month by delta (negative for back), rolling year
// boundaries. The day is pinned to 1 so short months cannot skip a step.
func NavigateMonth(current time.Time, delta int) time.Time {
	return time.Date(current.Year(), current.Month(), 1, 0, 0, 0, 0, current.Location()).AddDate(0, delta, 0)
}

// RemindersOn filters reminders whose date shares date's calendar day.
// Linear scan; reminder sets are small.
func RemindersOn(reminders []model.Reminder, date time.Time) []model.Reminder {
	if date.IsZero() {
		return nil
	}
	var out []model.Reminder
	for _, r := range reminders {
		if SameDay(r.Date.In(date.Location()), date) {
			out = append(out, r)
		}
	}
	return out
}

// CountOn returns the number of reminders on date's calendar day without
// allocating the subsequence.
func CountOn(reminders []model.Reminder, date time.Time) int {
	if date.IsZero() {
		return 0
	}
	n := 0
	for _, r := range reminders {
		if SameDay(r.Date.In(date.Location()), date) {
			n++
		}
	}
	return n
}
