// Package calendar holds the local-date arithmetic shared by streaks and weekly windows.
package calendar

import (
	"time"
)

// DateLayout is the layout of calendar date strings stored in login_day events.
const DateLayout = "2006-01-02"

// Date returns the calendar date of t in loc, formatted with DateLayout.
func Date(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// WeekStart returns local midnight of the most recent Sunday at or before t.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -int(midnight.Weekday()))
}

// DaysBetween returns the number of calendar days from a to b (b - a).
// Both are parsed as civil dates, so daylight saving shifts do not matter.
func DaysBetween(a, b string) (int, error) {
	ta, err := time.Parse(DateLayout, a)
	if err != nil {
		return 0, err
	}
	tb, err := time.Parse(DateLayout, b)
	if err != nil {
		return 0, err
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// WeeksBetween returns how many whole weeks separate the week containing from and the
// week containing to. It is zero when both fall in the same Sunday-based week.
func WeeksBetween(from, to time.Time, loc *time.Location) int {
	a := WeekStart(from, loc)
	b := WeekStart(to, loc)
	days, _ := DaysBetween(a.Format(DateLayout), b.Format(DateLayout))
	return days / 7
}
