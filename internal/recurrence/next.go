package recurrence

import (
	"fmt"
	"time"
)

// Next computes the occurrence following current under the rule. The
// time-of-day and location of current are preserved; only the date moves.
//
// Weekly rules with DaysOfWeek advance to the next matching weekday
// strictly after current. When the current week has no matching day left,
// the date wraps: Interval-1 full weeks are skipped and the first matching
// day of the target week is taken. Monthly rules clamp DayOfMonth to the
// last day of a shorter month. Yearly rules clamp Feb 29 to Feb 28 on
// non-leap years.
func Next(current time.Time, r Rule) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}

	switch r.Frequency {
	case Daily:
		return current.AddDate(0, 0, r.Interval), nil
	case Weekly:
		return nextWeekly(current, r), nil
	case Monthly:
		return nextMonthly(current, r), nil
	case Yearly:
		return nextYearly(current, r), nil
	}

	return time.Time{}, fmt.Errorf("%w: unreachable frequency %q", ErrInvalidRule, r.Frequency)
}

func nextWeekly(current time.Time, r Rule) time.Time {
	if len(r.DaysOfWeek) == 0 {
		return current.AddDate(0, 0, 7*r.Interval)
	}

	matches := make(map[time.Weekday]bool, len(r.DaysOfWeek))
	for _, d := range r.DaysOfWeek {
		matches[d] = true
	}

	// Remaining matching days in the current week belong to the current
	// cycle, regardless of interval.
	daysLeft := int(time.Saturday - current.Weekday())
	for i := 1; i <= daysLeft; i++ {
		candidate := current.AddDate(0, 0, i)
		if matches[candidate.Weekday()] {
			return candidate
		}
	}

	// Week exhausted: skip Interval-1 full weeks (not calendar days), then
	// take the first matching day of the target week.
	weekStart := current.AddDate(0, 0, -int(current.Weekday())) // Sunday
	targetWeek := weekStart.AddDate(0, 0, 7*r.Interval)
	for i := 0; i < 7; i++ {
		candidate := targetWeek.AddDate(0, 0, i)
		if matches[candidate.Weekday()] {
			return candidate
		}
	}

	// matches is non-empty, the loop above always returns.
	return targetWeek
}

func nextMonthly(current time.Time, r Rule) time.Time {
	year := current.Year()
	month := int(current.Month()) + r.Interval
	for month > 12 {
		month -= 12
		year++
	}

	day := r.DayOfMonth
	if day == 0 {
		day = current.Day()
	}
	day = clampDay(year, time.Month(month), day)

	return onDate(current, year, time.Month(month), day)
}

func nextYearly(current time.Time, r Rule) time.Time {
	year := current.Year() + r.Interval

	month := r.MonthOfYear
	if month == 0 {
		month = current.Month()
	}

	day := clampDay(year, month, current.Day())

	return onDate(current, year, month, day)
}

// clampDay pulls an out-of-range day back to the month's last valid day,
// e.g. the 31st in a 30-day month, or Feb 29 on a non-leap year.
func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

func onDate(current time.Time, year int, month time.Month, day int) time.Time {
	return time.Date(
		year, month, day,
		current.Hour(), current.Minute(), current.Second(), 0,
		current.Location(),
	)
}
