package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily repeats every calendar day.
	FrequencyDaily
	// FrequencyWeekly repeats every week, optionally on selected weekdays.
	FrequencyWeekly
	// FrequencyMonthly repeats on a day of the month.
	FrequencyMonthly
	// FrequencyYearly repeats on the anniversary of the start date.
	FrequencyYearly
	// FrequencyCustom repeats every CustomIntervalDays days.
	FrequencyCustom
)

var frequencyNames = map[Frequency]string{
	FrequencyDaily:   "daily",
	FrequencyWeekly:  "weekly",
	FrequencyMonthly: "monthly",
	FrequencyYearly:  "yearly",
	FrequencyCustom:  "custom",
}

func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}
	return "unspecified"
}

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	_, ok := frequencyNames[f]
	return ok
}

// ParseFrequency converts the textual form used by storage and the API.
func ParseFrequency(value string) (Frequency, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for freq, name := range frequencyNames {
		if name == normalized {
			return freq, nil
		}
	}
	return FrequencyUnspecified, fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
}

// Weekday is an ISO-8601 weekday number, 1 (Monday) through 7 (Sunday).
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// Valid reports whether w is within 1..7.
func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

// Std converts w to the standard library representation.
func (w Weekday) Std() time.Weekday {
	return time.Weekday(int(w) % 7)
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return w.Std().String()
}

// ISOWeekdayOf returns the ISO weekday of t.
func ISOWeekdayOf(t time.Time) Weekday {
	wd := t.Weekday()
	if wd == time.Sunday {
		return Sunday
	}
	return Weekday(wd)
}

// Kind distinguishes money leaving the ledger from money entering it.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

// LastDayOfMonth is the DayOfMonth sentinel meaning "the final day of whichever month".
const LastDayOfMonth = 32

var (
	// ErrInvalidRule is wrapped by every rule validation failure.
	ErrInvalidRule = errors.New("recurrence: invalid rule")
	// ErrInvalidFrequency indicates the recurrence frequency is not supported.
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
	// ErrInvalidInterval indicates a custom interval below one day.
	ErrInvalidInterval = errors.New("recurrence: custom interval must be at least 1 day")
	// ErrEmptyWeekdays indicates a weekday set that is present but has no members.
	ErrEmptyWeekdays = errors.New("recurrence: weekday set is empty")
	// ErrInvalidWeekday indicates a weekday outside 1..7 or a repeated weekday.
	ErrInvalidWeekday = errors.New("recurrence: weekday must be between 1 and 7")
	// ErrInvalidDayOfMonth indicates a day of month outside 1..31 and not the last-day sentinel.
	ErrInvalidDayOfMonth = errors.New("recurrence: day of month must be between 1 and 31, or 32 for the last day")
	// ErrFieldNotApplicable indicates a frequency-specific field set on another frequency.
	ErrFieldNotApplicable = errors.New("recurrence: field does not apply to this frequency")
	// ErrInvalidAmount indicates a zero or negative amount.
	ErrInvalidAmount = errors.New("recurrence: amount must be positive")
	// ErrInvalidKind indicates an unknown transaction kind.
	ErrInvalidKind = errors.New("recurrence: kind must be expense or income")
	// ErrMissingCategory indicates an empty category.
	ErrMissingCategory = errors.New("recurrence: category is required")
	// ErrMissingStartDate indicates the start date was not provided.
	ErrMissingStartDate = errors.New("recurrence: start date is required")
	// ErrEndBeforeStart indicates an end date earlier than the start date.
	ErrEndBeforeStart = errors.New("recurrence: end date must not be before start date")
	// ErrNextDueBeforeStart indicates a next due date earlier than the start date.
	ErrNextDueBeforeStart = errors.New("recurrence: next due date must not be before start date")
)

// Rule is a repeating template for an expense or income entry.
//
// All dates are calendar dates normalized with DateOf. Weekdays is nil when the
// rule falls back to the weekday of StartDate; a non-nil empty slice is malformed.
// DayOfMonth is zero when the rule falls back to the day of StartDate.
type Rule struct {
	ID                 string
	Kind               Kind
	Amount             decimal.Decimal
	Category           string
	Note               string
	Frequency          Frequency
	CustomIntervalDays int
	Weekdays           []Weekday
	DayOfMonth         int
	StartDate          time.Time
	EndDate            *time.Time
	LastGeneratedDate  *time.Time
	NextDueDate        time.Time
	Active             bool
}

// Spec carries the user-editable attributes of a rule.
type Spec struct {
	Kind               Kind
	Amount             decimal.Decimal
	Category           string
	Note               string
	Frequency          Frequency
	CustomIntervalDays int
	Weekdays           []Weekday
	DayOfMonth         int
	StartDate          time.Time
	EndDate            *time.Time
}

// FieldProblem associates a validation failure with the attribute that caused it.
type FieldProblem struct {
	Field string
	Err   error
}

// InvalidRuleError lists every problem found while validating a rule.
type InvalidRuleError struct {
	Problems []FieldProblem
}

func (e *InvalidRuleError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrInvalidRule.Error()
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Err.Error())
	}
	return ErrInvalidRule.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap exposes ErrInvalidRule and each field sentinel to errors.Is.
func (e *InvalidRuleError) Unwrap() []error {
	errs := []error{ErrInvalidRule}
	if e == nil {
		return errs
	}
	for _, p := range e.Problems {
		errs = append(errs, p.Err)
	}
	return errs
}

func (e *InvalidRuleError) add(field string, err error) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Err: err})
}

// NewRule validates spec and returns an active rule whose NextDueDate is the
// first date on or after StartDate that satisfies the rule.
func NewRule(id string, spec Spec) (Rule, error) {
	rule := Rule{ID: id, Active: true}
	rule.apply(spec)

	problems := &InvalidRuleError{}
	rule.validateSchedule(problems)
	if len(problems.Problems) > 0 {
		return Rule{}, problems
	}

	first, err := FirstDueDate(rule)
	if err != nil {
		return Rule{}, err
	}
	rule.NextDueDate = first
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// Revise applies an edited spec to an existing rule. Generation state is kept:
// future dates are recomputed from LastGeneratedDate, never from StartDate, and
// never land before the first due date of the edited schedule.
func (r Rule) Revise(spec Spec) (Rule, error) {
	revised := r
	revised.apply(spec)

	problems := &InvalidRuleError{}
	revised.validateSchedule(problems)
	if len(problems.Problems) > 0 {
		return Rule{}, problems
	}

	first, err := FirstDueDate(revised)
	if err != nil {
		return Rule{}, err
	}
	revised.NextDueDate = first
	if revised.LastGeneratedDate != nil {
		next, err := NextDueDate(revised, *revised.LastGeneratedDate)
		if err != nil {
			return Rule{}, err
		}
		if next.After(first) {
			revised.NextDueDate = next
		}
	}

	if err := revised.Validate(); err != nil {
		return Rule{}, err
	}
	return revised, nil
}

func (r *Rule) apply(spec Spec) {
	r.Kind = spec.Kind
	r.Amount = spec.Amount
	r.Category = strings.TrimSpace(spec.Category)
	r.Note = strings.TrimSpace(spec.Note)
	r.Frequency = spec.Frequency
	r.CustomIntervalDays = spec.CustomIntervalDays
	if r.CustomIntervalDays == 0 {
		r.CustomIntervalDays = 1
	}
	r.Weekdays = nil
	if spec.Weekdays != nil {
		r.Weekdays = append(make([]Weekday, 0, len(spec.Weekdays)), spec.Weekdays...)
	}
	r.DayOfMonth = spec.DayOfMonth
	r.StartDate = DateOf(spec.StartDate)
	r.EndDate = nil
	if spec.EndDate != nil {
		end := DateOf(*spec.EndDate)
		r.EndDate = &end
	}
}

// Validate checks the rule against its structural invariants. The returned
// error, if any, is an *InvalidRuleError.
func (r Rule) Validate() error {
	problems := &InvalidRuleError{}
	r.validateSchedule(problems)
	if !r.StartDate.IsZero() && r.NextDueDate.Before(r.StartDate) {
		problems.add("next_due_date", ErrNextDueBeforeStart)
	}
	if len(problems.Problems) > 0 {
		return problems
	}
	return nil
}

func (r Rule) validateSchedule(problems *InvalidRuleError) {
	if !r.Kind.Valid() {
		problems.add("kind", ErrInvalidKind)
	}
	if !r.Amount.IsPositive() {
		problems.add("amount", ErrInvalidAmount)
	}
	if strings.TrimSpace(r.Category) == "" {
		problems.add("category", ErrMissingCategory)
	}
	if !r.Frequency.Valid() {
		problems.add("frequency", ErrInvalidFrequency)
	}
	if r.StartDate.IsZero() {
		problems.add("start_date", ErrMissingStartDate)
	}
	if r.EndDate != nil && !r.StartDate.IsZero() && r.EndDate.Before(r.StartDate) {
		problems.add("end_date", ErrEndBeforeStart)
	}

	if r.CustomIntervalDays < 1 {
		problems.add("custom_interval_days", ErrInvalidInterval)
	} else if r.CustomIntervalDays > 1 && r.Frequency != FrequencyCustom {
		problems.add("custom_interval_days", ErrFieldNotApplicable)
	}

	if r.Weekdays != nil {
		switch {
		case r.Frequency != FrequencyWeekly:
			problems.add("weekdays", ErrFieldNotApplicable)
		case len(r.Weekdays) == 0:
			problems.add("weekdays", ErrEmptyWeekdays)
		default:
			seen := make(map[Weekday]bool, len(r.Weekdays))
			for _, day := range r.Weekdays {
				if !day.Valid() || seen[day] {
					problems.add("weekdays", ErrInvalidWeekday)
					break
				}
				seen[day] = true
			}
		}
	}

	if r.DayOfMonth != 0 {
		switch {
		case r.Frequency != FrequencyMonthly:
			problems.add("day_of_month", ErrFieldNotApplicable)
		case r.DayOfMonth < 1 || r.DayOfMonth > LastDayOfMonth:
			problems.add("day_of_month", ErrInvalidDayOfMonth)
		}
	}
}

// EndedBefore reports whether the rule's end date lies strictly before day.
func (r Rule) EndedBefore(day time.Time) bool {
	return r.EndDate != nil && r.EndDate.Before(DateOf(day))
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	out := r
	if r.Weekdays != nil {
		out.Weekdays = append(make([]Weekday, 0, len(r.Weekdays)), r.Weekdays...)
	}
	out.EndDate = cloneDate(r.EndDate)
	out.LastGeneratedDate = cloneDate(r.LastGeneratedDate)
	return out
}

func cloneDate(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
