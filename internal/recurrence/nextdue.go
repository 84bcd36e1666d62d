package recurrence

import (
	"fmt"
	"slices"
	"time"
)

// NextDueDate returns the occurrence that follows from under the rule's frequency.
// It does not look at the current date or at the rule's generation state.
func NextDueDate(rule Rule, from time.Time) (time.Time, error) {
	problems := &InvalidRuleError{}
	rule.validateSchedule(problems)
	if len(problems.Problems) > 0 {
		return time.Time{}, problems
	}

	from = DateOf(from)
	switch rule.Frequency {
	case FrequencyDaily:
		return AddDays(from, 1), nil
	case FrequencyWeekly:
		if rule.Weekdays != nil {
			return NextMatchingWeekday(from, rule.Weekdays), nil
		}
		return AddDays(from, 7), nil
	case FrequencyMonthly:
		day := rule.DayOfMonth
		if day == 0 {
			// Anchor on the start day so a clamped month does not carry over.
			day = DateOf(rule.StartDate).Day()
		}
		return AddMonthsPreservingDay(from, 1, day), nil
	case FrequencyYearly:
		return AddYears(from, 1), nil
	case FrequencyCustom:
		return AddDays(from, rule.CustomIntervalDays), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidFrequency, rule.Frequency)
}

// FirstDueDate returns the earliest date on or after StartDate that satisfies
// the rule's weekday or day-of-month constraint.
func FirstDueDate(rule Rule) (time.Time, error) {
	problems := &InvalidRuleError{}
	rule.validateSchedule(problems)
	if len(problems.Problems) > 0 {
		return time.Time{}, problems
	}

	start := DateOf(rule.StartDate)
	switch {
	case rule.Frequency == FrequencyWeekly && rule.Weekdays != nil:
		if slices.Contains(rule.Weekdays, ISOWeekdayOf(start)) {
			return start, nil
		}
		return NextMatchingWeekday(start, rule.Weekdays), nil
	case rule.Frequency == FrequencyMonthly && rule.DayOfMonth != 0:
		candidate := AddMonthsPreservingDay(start, 0, rule.DayOfMonth)
		if candidate.Before(start) {
			return AddMonthsPreservingDay(start, 1, rule.DayOfMonth), nil
		}
		return candidate, nil
	}
	return start, nil
}

// Upcoming lists up to n due dates starting at the rule's NextDueDate, stopping
// at EndDate.
func Upcoming(rule Rule, n int) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	dates := make([]time.Time, 0, n)
	current := rule.NextDueDate
	for len(dates) < n {
		if rule.EndDate != nil && current.After(*rule.EndDate) {
			break
		}
		dates = append(dates, current)
		next, err := NextDueDate(rule, current)
		if err != nil {
			return nil, err
		}
		if !next.After(current) {
			return nil, fmt.Errorf("%w: %s after %s", ErrNonAdvancing, next.Format(DateLayout), current.Format(DateLayout))
		}
		current = next
	}
	return dates, nil
}
