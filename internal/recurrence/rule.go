package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRule marks a structurally invalid recurrence rule. Retrying
// delivery will not fix it, so the consumer dead-letters instead of
// nacking.
var ErrInvalidRule = errors.New("invalid recurrence rule")

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Rule describes how a recurring task repeats. Exactly the qualifiers
// matching Frequency may be populated: DaysOfWeek for weekly, DayOfMonth
// for monthly, MonthOfYear for yearly.
type Rule struct {
	Frequency   Frequency
	Interval    int // every N units, >= 1
	DaysOfWeek  []time.Weekday
	DayOfMonth  int        // 1-31, clamps to the month's last day
	MonthOfYear time.Month // 1-12
	EndDate     *time.Time // no instances on/after this date
}

// Validate enforces the rule invariants.
func (r Rule) Validate() error {
	switch r.Frequency {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, r.Frequency)
	}

	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidRule, r.Interval)
	}

	if len(r.DaysOfWeek) > 0 {
		if r.Frequency != Weekly {
			return fmt.Errorf("%w: days_of_week requires weekly frequency", ErrInvalidRule)
		}
		for _, d := range r.DaysOfWeek {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: day_of_week out of range: %d", ErrInvalidRule, d)
			}
		}
	}

	if r.DayOfMonth != 0 {
		if r.Frequency != Monthly {
			return fmt.Errorf("%w: day_of_month requires monthly frequency", ErrInvalidRule)
		}
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day_of_month out of range: %d", ErrInvalidRule, r.DayOfMonth)
		}
	}

	if r.MonthOfYear != 0 {
		if r.Frequency != Yearly {
			return fmt.Errorf("%w: month_of_year requires yearly frequency", ErrInvalidRule)
		}
		if r.MonthOfYear < time.January || r.MonthOfYear > time.December {
			return fmt.Errorf("%w: month_of_year out of range: %d", ErrInvalidRule, r.MonthOfYear)
		}
	}

	return nil
}

// Ended reports whether generation must stop because the computed next
// occurrence falls on or after the rule's end date.
func (r Rule) Ended(next time.Time) bool {
	return r.EndDate != nil && !next.Before(*r.EndDate)
}
