package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/recurrence"
)

// MaxUpcomingCount bounds the due date preview.
const MaxUpcomingCount = 100

// RuleService orchestrates validation and persistence for recurring rules.
type RuleService struct {
	rules       persistence.RuleRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRuleService constructs a rule service with the provided dependencies.
func NewRuleService(rules persistence.RuleRepository, idGenerator func() string, now func() time.Time) *RuleService {
	return NewRuleServiceWithLogger(rules, idGenerator, now, nil)
}

// NewRuleServiceWithLogger constructs a rule service with a specified logger.
func NewRuleServiceWithLogger(rules persistence.RuleRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RuleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RuleService{rules: rules, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *RuleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RuleService", operation, attrs...)
}

// CreateRule validates input and persists a new active rule whose next due
// date is its first matching date.
func (s *RuleService) CreateRule(ctx context.Context, input RuleInput) (rule RecurringRule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateRule", "frequency", input.Frequency)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("rule_id", rule.ID, "next_due_date", rule.NextDueDate.Format(recurrence.DateLayout)).InfoContext(ctx, "rule created")
	}()

	id := s.idGenerator()
	var built recurrence.Rule
	built, err = buildRule(input, func(spec recurrence.Spec) (recurrence.Rule, error) {
		return recurrence.NewRule(id, spec)
	})
	if err != nil {
		return
	}

	now := s.now().UTC()
	rule = RecurringRule{Rule: built, CreatedAt: now, UpdatedAt: now}
	if err = s.rules.CreateRule(ctx, ruleToRecord(rule)); err != nil {
		err = mapRuleRepoError(err)
		rule = RecurringRule{}
		return
	}
	return
}

// GetRule returns a single rule.
func (s *RuleService) GetRule(ctx context.Context, id string) (RecurringRule, error) {
	if s == nil {
		return RecurringRule{}, fmt.Errorf("RuleService is nil")
	}
	if s.rules == nil {
		return RecurringRule{}, fmt.Errorf("rule repository not configured")
	}

	record, err := s.rules.GetRule(ctx, id)
	if err != nil {
		err = mapRuleRepoError(err)
		if !errors.Is(err, ErrNotFound) {
			s.loggerWith(ctx, "GetRule", "rule_id", id).ErrorContext(ctx, "failed to load rule", "error", err, "error_kind", ErrorKind(err))
		}
		return RecurringRule{}, err
	}
	return ruleFromRecord(record)
}

// ListRules returns rules ordered by creation time.
func (s *RuleService) ListRules(ctx context.Context, opts RuleListOptions) (rules []RecurringRule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}
	if s.rules == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListRules", "active_only", opts.ActiveOnly)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rules", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "rules listed", "count", len(rules))
	}()

	var records []persistence.RecurringRule
	records, err = s.rules.ListRules(ctx, persistence.RuleFilter{ActiveOnly: opts.ActiveOnly})
	if err != nil {
		err = mapRuleRepoError(err)
		return
	}

	rules = make([]RecurringRule, 0, len(records))
	for _, record := range records {
		var rule RecurringRule
		rule, err = ruleFromRecord(record)
		if err != nil {
			rules = nil
			return
		}
		rules = append(rules, rule)
	}
	return
}

// UpdateRule applies edited attributes to an existing rule. Generation state is
// kept and future due dates are recomputed from the last generated date.
func (s *RuleService) UpdateRule(ctx context.Context, id string, input RuleInput) (rule RecurringRule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateRule", "rule_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("next_due_date", rule.NextDueDate.Format(recurrence.DateLayout)).InfoContext(ctx, "rule updated")
	}()

	var existing RecurringRule
	existing, err = s.GetRule(ctx, id)
	if err != nil {
		return
	}

	var revised recurrence.Rule
	revised, err = buildRule(input, existing.Revise)
	if err != nil {
		return
	}

	rule = RecurringRule{Rule: revised, CreatedAt: existing.CreatedAt, UpdatedAt: s.now().UTC()}
	if err = s.rules.UpdateRule(ctx, ruleToRecord(rule)); err != nil {
		err = mapRuleRepoError(err)
		rule = RecurringRule{}
		return
	}
	return
}

// PauseRule stops generation for a rule without touching its dates.
func (s *RuleService) PauseRule(ctx context.Context, id string) (RecurringRule, error) {
	return s.setActive(ctx, "PauseRule", id, false)
}

// ResumeRule re-enables generation for a rule. Its dates are kept, so the next
// pass catches up on the occurrences that fell due while it was paused.
func (s *RuleService) ResumeRule(ctx context.Context, id string) (RecurringRule, error) {
	return s.setActive(ctx, "ResumeRule", id, true)
}

func (s *RuleService) setActive(ctx context.Context, operation, id string, active bool) (rule RecurringRule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, operation, "rule_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change rule state", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rule state changed", "active", rule.Active)
	}()

	rule, err = s.GetRule(ctx, id)
	if err != nil {
		return
	}
	if rule.Active == active {
		return
	}

	rule.Active = active
	rule.UpdatedAt = s.now().UTC()
	if err = s.rules.UpdateRule(ctx, ruleToRecord(rule)); err != nil {
		err = mapRuleRepoError(err)
		rule = RecurringRule{}
		return
	}
	return
}

// DeleteRule removes a rule. Transactions it generated stay in the ledger and
// lose their link to the rule.
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("RuleService is nil")
	}
	if s.rules == nil {
		return fmt.Errorf("rule repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteRule", "rule_id", id)

	if err := s.rules.DeleteRule(ctx, id); err != nil {
		err = mapRuleRepoError(err)
		logger.ErrorContext(ctx, "failed to delete rule", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "rule deleted")
	return nil
}

// UpcomingDates previews the next count due dates of a rule, stopping at its
// end date. Paused rules are previewed as if they were resumed.
func (s *RuleService) UpcomingDates(ctx context.Context, id string, count int) ([]time.Time, error) {
	if count < 1 || count > MaxUpcomingCount {
		vErr := &ValidationError{}
		vErr.add("count", fmt.Sprintf("count must be between 1 and %d", MaxUpcomingCount))
		return nil, vErr
	}

	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	dates, err := recurrence.Upcoming(rule.Rule, count)
	if err != nil {
		s.loggerWith(ctx, "UpcomingDates", "rule_id", id).ErrorContext(ctx, "failed to preview rule", "error", err)
		return nil, ruleValidationError(err)
	}
	return dates, nil
}

func mapRuleRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrStale):
		return fmt.Errorf("%w: rule changed while it was being edited", ErrConflict)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: rule already exists", ErrConflict)
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("rule", "rule violates a storage constraint")
		return vErr
	}
	return err
}
