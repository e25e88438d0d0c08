// Package streak derives consecutive-login-day counts from login_day events.
package streak

import (
	"sort"

	"github.com/partnerforge/progression/pkg/calendar"
	"github.com/partnerforge/progression/pkg/model"
	"github.com/sirupsen/logrus"
)

// Calculate returns the trailing streak anchored at the most recent date in dates.
//
// Dates are deduplicated and sorted descending. The streak starts at 1 and grows by one
// for each adjacent pair exactly one day apart, stopping at the first larger gap.
// The anchor is the latest recorded login, not today: a seller who last logged in a week
// ago still reports the streak that ended then.
func Calculate(dates []string) int {
	unique := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if _, err := calendar.DaysBetween(d, d); err != nil {
			logrus.Warnf("ignoring malformed login date %q", d)
			continue
		}
		unique[d] = struct{}{}
	}
	if len(unique) == 0 {
		return 0
	}

	sorted := make([]string, 0, len(unique))
	for d := range unique {
		sorted = append(sorted, d)
	}
	// DateLayout sorts lexically in chronological order.
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	streak := 1
	for i := 0; i < len(sorted)-1; i++ {
		gap, _ := calendar.DaysBetween(sorted[i+1], sorted[i])
		if gap != 1 {
			break
		}
		streak++
	}
	return streak
}

// LoginDates extracts the login dates from login_day events. Other events are skipped.
func LoginDates(events []model.ActivityEvent) []string {
	dates := make([]string, 0, len(events))
	for i := range events {
		if events[i].Type != model.EventLoginDay {
			continue
		}
		if events[i].DedupeKey != "" {
			dates = append(dates, events[i].DedupeKey)
			continue
		}
		payload, err := events[i].Payload()
		if err != nil {
			logrus.Warnf("skipping login event %s: %v", events[i].ID, err)
			continue
		}
		if p, ok := payload.(*model.LoginDayPayload); ok {
			dates = append(dates, p.LoginDate)
		}
	}
	return dates
}

// FromEvents is Calculate over the login dates found in events.
func FromEvents(events []model.ActivityEvent) int {
	return Calculate(LoginDates(events))
}
