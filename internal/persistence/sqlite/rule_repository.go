package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
)

const ruleColumns = `id, kind, amount, category, note, frequency, custom_interval_days, weekdays,
	day_of_month, start_date, end_date, last_generated_date, next_due_date, is_active, created_at, updated_at`

// RuleRepository implements persistence.RuleRepository using SQLite
type RuleRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewRuleRepository creates a new SQLite rule repository
func NewRuleRepository(pool *ConnectionPool) *RuleRepository {
	return &RuleRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// CreateRule inserts a new rule
func (r *RuleRepository) CreateRule(ctx context.Context, rule persistence.RecurringRule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return persistence.ErrConstraintViolation
	}
	weekdays, err := encodeWeekdays(rule.Weekdays)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = rule.CreatedAt
	}

	query := `INSERT INTO recurring_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			rule.ID,
			rule.Kind,
			rule.Amount.String(),
			rule.Category,
			rule.Note,
			rule.Frequency,
			rule.CustomIntervalDays,
			weekdays,
			nullInt(rule.DayOfMonth),
			formatDate(rule.StartDate),
			nullDate(rule.EndDate),
			nullDate(rule.LastGeneratedDate),
			formatDate(rule.NextDueDate),
			boolToInt(rule.IsActive),
			formatTimestamp(rule.CreatedAt),
			formatTimestamp(rule.UpdatedAt),
		)
		return err
	})
}

// UpdateRule rewrites the editable columns of a rule together with its next due
// date and active flag. The write only applies while the stored
// last_generated_date still equals rule.LastGeneratedDate, so an edit computed
// before a generation pass cannot roll the rule back; that case returns
// persistence.ErrStale. The stored last_generated_date is never changed here.
func (r *RuleRepository) UpdateRule(ctx context.Context, rule persistence.RecurringRule) error {
	weekdays, err := encodeWeekdays(rule.Weekdays)
	if err != nil {
		return err
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now().UTC()
	}

	const query = `
		UPDATE recurring_rules
		SET kind = ?, amount = ?, category = ?, note = ?, frequency = ?, custom_interval_days = ?,
			weekdays = ?, day_of_month = ?, start_date = ?, end_date = ?, next_due_date = ?,
			is_active = ?, updated_at = ?
		WHERE id = ? AND last_generated_date IS ?`

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, query,
				rule.Kind,
				rule.Amount.String(),
				rule.Category,
				rule.Note,
				rule.Frequency,
				rule.CustomIntervalDays,
				weekdays,
				nullInt(rule.DayOfMonth),
				formatDate(rule.StartDate),
				nullDate(rule.EndDate),
				formatDate(rule.NextDueDate),
				boolToInt(rule.IsActive),
				formatTimestamp(rule.UpdatedAt),
				rule.ID,
				nullDate(rule.LastGeneratedDate),
			)
			if err != nil {
				return err
			}
			return r.expectOneRow(ctx, tx, result, rule.ID)
		})
	})
}

// expectOneRow distinguishes a missing rule from a conditional write that lost
// its race.
func (r *RuleRepository) expectOneRow(ctx context.Context, q queryer, result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	exists, err := ruleExists(ctx, q, id)
	if err != nil {
		return err
	}
	if !exists {
		return persistence.ErrNotFound
	}
	return persistence.ErrStale
}

func ruleExists(ctx context.Context, q queryer, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM recurring_rules WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetRule retrieves a rule by ID
func (r *RuleRepository) GetRule(ctx context.Context, id string) (persistence.RecurringRule, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		return persistence.RecurringRule{}, r.mapper.MapError(err)
	}
	return rule, nil
}

// ListRules returns rules ordered by creation time
func (r *RuleRepository) ListRules(ctx context.Context, filter persistence.RuleFilter) ([]persistence.RecurringRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM recurring_rules`
	if filter.ActiveOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	rules := []persistence.RecurringRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return rules, nil
}

// DeleteRule removes a rule. Transactions it produced keep their data and lose
// the back reference.
func (r *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (persistence.RecurringRule, error) {
	var (
		rule                       persistence.RecurringRule
		amount, startDate, nextDue string
		createdAt, updatedAt       string
		weekdays, dayOfMonth       sql.NullInt64
		endDate, lastGenerated     sql.NullString
		isActive                   int
	)

	if err := row.Scan(
		&rule.ID,
		&rule.Kind,
		&amount,
		&rule.Category,
		&rule.Note,
		&rule.Frequency,
		&rule.CustomIntervalDays,
		&weekdays,
		&dayOfMonth,
		&startDate,
		&endDate,
		&lastGenerated,
		&nextDue,
		&isActive,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.RecurringRule{}, err
	}

	var err error
	if rule.Amount, err = parseAmount(amount); err != nil {
		return persistence.RecurringRule{}, err
	}
	rule.Weekdays = decodeWeekdays(weekdays)
	rule.DayOfMonth = int(dayOfMonth.Int64)
	rule.IsActive = isActive == 1
	if rule.StartDate, err = parseDate(startDate); err != nil {
		return persistence.RecurringRule{}, err
	}
	if rule.NextDueDate, err = parseDate(nextDue); err != nil {
		return persistence.RecurringRule{}, err
	}
	if rule.EndDate, err = parseNullDate(endDate); err != nil {
		return persistence.RecurringRule{}, err
	}
	if rule.LastGeneratedDate, err = parseNullDate(lastGenerated); err != nil {
		return persistence.RecurringRule{}, err
	}
	if rule.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.RecurringRule{}, err
	}
	if rule.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.RecurringRule{}, err
	}
	return rule, nil
}
