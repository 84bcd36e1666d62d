package application

import (
	"fmt"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/recurrence"
)

func ruleToRecord(rule RecurringRule) persistence.RecurringRule {
	var weekdays []int
	if rule.Weekdays != nil {
		weekdays = make([]int, 0, len(rule.Weekdays))
		for _, day := range rule.Weekdays {
			weekdays = append(weekdays, int(day))
		}
	}
	return persistence.RecurringRule{
		ID:                 rule.ID,
		Kind:               string(rule.Kind),
		Amount:             rule.Amount,
		Category:           rule.Category,
		Note:               rule.Note,
		Frequency:          rule.Frequency.String(),
		CustomIntervalDays: rule.CustomIntervalDays,
		Weekdays:           weekdays,
		DayOfMonth:         rule.DayOfMonth,
		StartDate:          rule.StartDate,
		EndDate:            rule.EndDate,
		LastGeneratedDate:  rule.LastGeneratedDate,
		NextDueDate:        rule.NextDueDate,
		IsActive:           rule.Active,
		CreatedAt:          rule.CreatedAt,
		UpdatedAt:          rule.UpdatedAt,
	}
}

// ruleFromRecord decodes a stored rule. It does not validate the schedule;
// the engine reports malformed rules per rule.
func ruleFromRecord(record persistence.RecurringRule) (RecurringRule, error) {
	frequency, err := recurrence.ParseFrequency(record.Frequency)
	if err != nil {
		return RecurringRule{}, fmt.Errorf("rule %s: %w", record.ID, err)
	}

	var weekdays []recurrence.Weekday
	if record.Weekdays != nil {
		weekdays = make([]recurrence.Weekday, 0, len(record.Weekdays))
		for _, day := range record.Weekdays {
			weekdays = append(weekdays, recurrence.Weekday(day))
		}
	}

	return RecurringRule{
		Rule: recurrence.Rule{
			ID:                 record.ID,
			Kind:               recurrence.Kind(record.Kind),
			Amount:             record.Amount,
			Category:           record.Category,
			Note:               record.Note,
			Frequency:          frequency,
			CustomIntervalDays: record.CustomIntervalDays,
			Weekdays:           weekdays,
			DayOfMonth:         record.DayOfMonth,
			StartDate:          record.StartDate,
			EndDate:            record.EndDate,
			LastGeneratedDate:  record.LastGeneratedDate,
			NextDueDate:        record.NextDueDate,
			Active:             record.IsActive,
		},
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}, nil
}

func transactionFromRecord(record persistence.Transaction) Transaction {
	return Transaction{
		ID:           record.ID,
		Kind:         recurrence.Kind(record.Kind),
		Amount:       record.Amount,
		Category:     record.Category,
		Note:         record.Note,
		OccurredOn:   record.OccurredOn,
		SourceRuleID: record.SourceRuleID,
		Origin:       recurrence.Origin(record.Origin),
		CreatedAt:    record.CreatedAt,
	}
}

func transactionToRecord(txn Transaction) persistence.Transaction {
	return persistence.Transaction{
		ID:           txn.ID,
		Kind:         string(txn.Kind),
		Amount:       txn.Amount,
		Category:     txn.Category,
		Note:         txn.Note,
		OccurredOn:   txn.OccurredOn,
		SourceRuleID: txn.SourceRuleID,
		Origin:       string(txn.Origin),
		CreatedAt:    txn.CreatedAt,
	}
}

func runFromRecord(record persistence.GenerationRun) GenerationRun {
	return GenerationRun{
		RunDate:            record.RunDate,
		StartedAt:          record.StartedAt,
		CompletedAt:        record.CompletedAt,
		RulesEvaluated:     record.RulesEvaluated,
		RulesAdvanced:      record.RulesAdvanced,
		OccurrencesCreated: record.OccurrencesCreated,
		Failures:           record.Failures,
	}
}
