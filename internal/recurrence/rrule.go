package recurrence

import (
	"fmt"

	"github.com/teambition/rrule-go"
)

var rruleWeekdays = map[Weekday]rrule.Weekday{
	Monday:    rrule.MO,
	Tuesday:   rrule.TU,
	Wednesday: rrule.WE,
	Thursday:  rrule.TH,
	Friday:    rrule.FR,
	Saturday:  rrule.SA,
	Sunday:    rrule.SU,
}

// ToRRule expresses the rule as an RFC 5545 recurrence anchored at its first due
// date, for calendar export. The last-day sentinel maps to BYMONTHDAY=-1. Days
// 29-31 pair with -1 under BYSETPOS=1 so short months clamp instead of skipping.
func ToRRule(rule Rule) (*rrule.RRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	anchor, err := FirstDueDate(rule)
	if err != nil {
		return nil, err
	}

	opt := rrule.ROption{
		Dtstart:  anchor,
		Interval: 1,
	}

	switch rule.Frequency {
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
	case FrequencyCustom:
		opt.Freq = rrule.DAILY
		opt.Interval = rule.CustomIntervalDays
	case FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		if rule.Weekdays != nil {
			opt.Byweekday = make([]rrule.Weekday, 0, len(rule.Weekdays))
			for _, day := range rule.Weekdays {
				opt.Byweekday = append(opt.Byweekday, rruleWeekdays[day])
			}
		}
	case FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		day := rule.DayOfMonth
		if day == 0 {
			day = anchor.Day()
		}
		switch {
		case day == LastDayOfMonth:
			opt.Bymonthday = []int{-1}
		case day > 28:
			// The first of the day and the month's last day is the clamped date.
			opt.Bymonthday = []int{day, -1}
			opt.Bysetpos = []int{1}
		default:
			opt.Bymonthday = []int{day}
		}
	case FrequencyYearly:
		opt.Freq = rrule.YEARLY
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFrequency, rule.Frequency)
	}

	if rule.EndDate != nil {
		opt.Until = *rule.EndDate
	}

	return rrule.NewRRule(opt)
}

// RRuleString returns the RRULE line of ToRRule, without the DTSTART prefix.
func RRuleString(rule Rule) (string, error) {
	r, err := ToRRule(rule)
	if err != nil {
		return "", err
	}
	return r.OrigOptions.RRuleString(), nil
}
