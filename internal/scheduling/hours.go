// Package scheduling finds open appointment windows against a business's
// working-hours policy and existing busy intervals.
package scheduling

import "time"

// HoursPolicy describes when a business accepts appointments, evaluated in
// the business's local timezone.
type HoursPolicy struct {
	ExcludedWeekdays []time.Weekday
	// Candidate start hour must fall in [OpenHour, LastStartHour].
	OpenHour      int
	LastStartHour int
	// Candidate end must be at or before CloseHour:00.
	CloseHour int
}

// DefaultHoursPolicy returns the standard service-business window:
// closed Sundays, starts between 8am and 6pm, done by 8pm.
func DefaultHoursPolicy() HoursPolicy {
	return HoursPolicy{
		ExcludedWeekdays: []time.Weekday{time.Sunday},
		OpenHour:         8,
		LastStartHour:    18,
		CloseHour:        20,
	}
}

// Allows reports whether the window [start, end) fits the policy.
// Both instants are interpreted in loc.
func (p HoursPolicy) Allows(start, end time.Time, loc *time.Location) bool {
	localStart := start.In(loc)
	localEnd := end.In(loc)

	for _, wd := range p.ExcludedWeekdays {
		if localStart.Weekday() == wd {
			return false
		}
	}

	if localStart.Hour() < p.OpenHour || localStart.Hour() > p.LastStartHour {
		return false
	}

	closing := time.Date(localStart.Year(), localStart.Month(), localStart.Day(),
		p.CloseHour, 0, 0, 0, loc)
	return !localEnd.After(closing)
}
