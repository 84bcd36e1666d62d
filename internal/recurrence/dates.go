package recurrence

import "time"

// DateOf strips the clock from t, keeping its calendar date as seen in t's own
// location, and returns midnight UTC of that date.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves a calendar date by n days.
func AddDays(date time.Time, n int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, time.UTC)
}

// IsLeapYear applies the Gregorian rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns 28, 29, 30 or 31.
func DaysInMonth(year int, month time.Month) int {
	switch month {
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

// ClampDayOfMonth returns desired, or the last day of the month when the month is shorter.
func ClampDayOfMonth(year int, month time.Month, desired int) int {
	if last := DaysInMonth(year, month); desired > last {
		return last
	}
	return desired
}

// AddMonthsPreservingDay moves date by months, carrying into the year. The target
// day is explicitDay clamped to the target month, the month's last day when
// explicitDay is LastDayOfMonth, or the source day clamped when explicitDay is zero.
func AddMonthsPreservingDay(date time.Time, months, explicitDay int) time.Time {
	year, month := shiftMonth(date.Year(), date.Month(), months)

	var day int
	switch {
	case explicitDay == LastDayOfMonth:
		day = DaysInMonth(year, month)
	case explicitDay > 0:
		day = ClampDayOfMonth(year, month, explicitDay)
	default:
		day = ClampDayOfMonth(year, month, date.Day())
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddYears moves date by years. February 29 becomes February 28 in common years.
func AddYears(date time.Time, years int) time.Time {
	year := date.Year() + years
	day := ClampDayOfMonth(year, date.Month(), date.Day())
	return time.Date(year, date.Month(), day, 0, 0, 0, 0, time.UTC)
}

// NextMatchingWeekday returns the first day strictly after date whose ISO weekday
// is in allowed. It panics when allowed contains no valid weekday: callers must
// validate the rule first.
func NextMatchingWeekday(date time.Time, allowed []Weekday) time.Time {
	var set [8]bool
	for _, day := range allowed {
		if day.Valid() {
			set[day] = true
		}
	}
	for i := 1; i <= 7; i++ {
		candidate := AddDays(date, i)
		if set[ISOWeekdayOf(candidate)] {
			return candidate
		}
	}
	panic("recurrence: NextMatchingWeekday called without a valid weekday")
}

func shiftMonth(year int, month time.Month, delta int) (int, time.Month) {
	index := int(month) - 1 + delta
	year += index / 12
	index %= 12
	if index < 0 {
		index += 12
		year--
	}
	return year, time.Month(index + 1)
}
