package application

import (
	"errors"
	"strings"
	"time"

	"github.com/example/pocket-ledger/internal/recurrence"
)

func parseKind(v *ValidationError, value string) recurrence.Kind {
	kind := recurrence.Kind(strings.ToLower(strings.TrimSpace(value)))
	if !kind.Valid() {
		v.add("kind", "kind must be expense or income")
	}
	return kind
}

func parseDateField(v *ValidationError, field, value string, required bool) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			v.add(field, field+" is required")
		}
		return nil
	}
	parsed, err := time.Parse(recurrence.DateLayout, value)
	if err != nil {
		v.add(field, field+" must use the YYYY-MM-DD format")
		return nil
	}
	return &parsed
}

// validateRuleInput converts caller input to a recurrence spec. Problems found
// while parsing are returned alongside the best-effort spec so that rule
// validation can report the remaining fields in the same response.
func validateRuleInput(input RuleInput) (recurrence.Spec, *ValidationError) {
	vErr := &ValidationError{}

	spec := recurrence.Spec{
		Kind:               parseKind(vErr, input.Kind),
		Amount:             input.Amount,
		Category:           input.Category,
		Note:               input.Note,
		CustomIntervalDays: input.CustomIntervalDays,
		DayOfMonth:         input.DayOfMonth,
	}

	frequency, err := recurrence.ParseFrequency(input.Frequency)
	if err != nil {
		vErr.add("frequency", "frequency must be one of daily, weekly, monthly, yearly, custom")
	}
	spec.Frequency = frequency

	if input.CustomIntervalDays < 0 {
		vErr.add("custom_interval_days", "custom_interval_days must be at least 1")
	}

	if input.Weekdays != nil {
		spec.Weekdays = make([]recurrence.Weekday, 0, len(input.Weekdays))
		for _, day := range input.Weekdays {
			spec.Weekdays = append(spec.Weekdays, recurrence.Weekday(day))
		}
	}

	if start := parseDateField(vErr, "start_date", input.StartDate, true); start != nil {
		spec.StartDate = *start
	}
	spec.EndDate = parseDateField(vErr, "end_date", input.EndDate, false)

	return spec, vErr
}

// ruleValidationError converts rule invariant failures to field errors. Other
// errors are returned unchanged.
func ruleValidationError(err error) error {
	var invalid *recurrence.InvalidRuleError
	if !errors.As(err, &invalid) {
		return err
	}
	vErr := &ValidationError{}
	for _, problem := range invalid.Problems {
		vErr.add(problem.Field, strings.TrimPrefix(problem.Err.Error(), "recurrence: "))
	}
	if !vErr.HasErrors() {
		vErr.add("rule", "rule is invalid")
	}
	return vErr
}

// buildRule validates input and applies it through build, which is either
// recurrence.NewRule or Rule.Revise. Every problem is reported at once.
func buildRule(input RuleInput, build func(recurrence.Spec) (recurrence.Rule, error)) (recurrence.Rule, error) {
	spec, vErr := validateRuleInput(input)

	rule, err := build(spec)
	if err != nil {
		converted := ruleValidationError(err)
		var ruleErr *ValidationError
		if !errors.As(converted, &ruleErr) {
			return recurrence.Rule{}, converted
		}
		vErr.merge(ruleErr)
	}
	if vErr.HasErrors() {
		return recurrence.Rule{}, vErr
	}
	return rule, nil
}

func validateTransactionInput(input TransactionInput) (Transaction, *ValidationError) {
	vErr := &ValidationError{}

	txn := Transaction{
		Kind:     parseKind(vErr, input.Kind),
		Amount:   input.Amount,
		Category: strings.TrimSpace(input.Category),
		Note:     strings.TrimSpace(input.Note),
		Origin:   recurrence.OriginManual,
	}
	if !txn.Amount.IsPositive() {
		vErr.add("amount", "amount must be positive")
	}
	if txn.Category == "" {
		vErr.add("category", "category is required")
	}
	if on := parseDateField(vErr, "occurred_on", input.OccurredOn, true); on != nil {
		txn.OccurredOn = *on
	}
	return txn, vErr
}
