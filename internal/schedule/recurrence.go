// Package schedule holds the pure date arithmetic of the engine: recurrence
// calculation and retry backoff. No I/O, no wall-clock access.
package schedule

import (
	"time"

	"github.com/dvloznov/savings-autopilot/internal/domain"
)

// fallbackDays applies when a rule carries a frequency this version does not
// know. Degraded but safe: the rule keeps moving forward instead of firing
// on every sweep.
const fallbackDays = 30

// NextExecutionDate returns the next due date after base for the given
// frequency. The result is always strictly after base for valid frequencies.
//
// Monthly and quarterly steps clamp to the last valid day of the target
// month rather than letting date normalization roll over: Jan 31 + monthly
// is Feb 28 (29 in leap years), not Mar 2 or Mar 3. Subsequent steps are
// taken from the clamped date, so a rule anchored on the 31st drifts to the
// 28th permanently; callers that need end-of-month semantics should anchor
// on the 28th or earlier.
func NextExecutionDate(base time.Time, freq domain.Frequency) time.Time {
	switch freq {
	case domain.FrequencyDaily:
		return base.AddDate(0, 0, 1)
	case domain.FrequencyWeekly:
		return base.AddDate(0, 0, 7)
	case domain.FrequencyBiWeekly:
		return base.AddDate(0, 0, 14)
	case domain.FrequencyMonthly:
		return addMonthsClamped(base, 1)
	case domain.FrequencyQuarterly:
		return addMonthsClamped(base, 3)
	default:
		return base.AddDate(0, 0, fallbackDays)
	}
}

// BaseDate returns the anchor for the next recurrence step: the last
// execution when one exists, else the rule's start date.
func BaseDate(rule *domain.TransferRule) time.Time {
	if rule.LastExecutionDate != nil {
		return *rule.LastExecutionDate
	}
	return rule.StartDate
}

// addMonthsClamped adds months to t, clamping the day-of-month to the last
// valid day of the target month instead of normalizing into the month after.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) + months
	y := year + (m-1)/12
	m = (m-1)%12 + 1

	if last := daysIn(y, time.Month(m)); day > last {
		day = last
	}
	return time.Date(y, time.Month(m), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
