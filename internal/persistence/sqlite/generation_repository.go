package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
)

// GenerationRepository implements persistence.GenerationRepository using SQLite
type GenerationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewGenerationRepository creates a new SQLite generation repository
func NewGenerationRepository(pool *ConnectionPool) *GenerationRepository {
	return &GenerationRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// CommitRuleAdvance moves the rule forward and inserts its transactions in one
// SQLite transaction. The rule row must still be active and carry
// ExpectedNextDueDate; otherwise nothing is written and persistence.ErrStale is
// returned. A transaction that was already materialized for the same rule and
// date fails the whole unit with persistence.ErrDuplicate.
func (r *GenerationRepository) CommitRuleAdvance(ctx context.Context, advance persistence.RuleAdvance) error {
	if strings.TrimSpace(advance.RuleID) == "" {
		return persistence.ErrConstraintViolation
	}
	if advance.UpdatedAt.IsZero() {
		advance.UpdatedAt = time.Now().UTC()
	}

	const updateSQL = `
		UPDATE recurring_rules
		SET last_generated_date = ?, next_due_date = ?, updated_at = ?
		WHERE id = ? AND next_due_date = ? AND is_active = 1`

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, updateSQL,
				nullDate(advance.LastGeneratedDate),
				formatDate(advance.NextDueDate),
				formatTimestamp(advance.UpdatedAt),
				advance.RuleID,
				formatDate(advance.ExpectedNextDueDate),
			)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if affected == 0 {
				exists, err := ruleExists(ctx, tx, advance.RuleID)
				if err != nil {
					return err
				}
				if !exists {
					return persistence.ErrNotFound
				}
				return persistence.ErrStale
			}

			for _, txn := range advance.Transactions {
				if err := insertTransaction(ctx, tx, txn); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// RecordRun stores the marker for run.RunDate, replacing an earlier marker for
// the same day.
func (r *GenerationRepository) RecordRun(ctx context.Context, run persistence.GenerationRun) error {
	const query = `
		INSERT INTO generation_runs
			(run_date, started_at, completed_at, rules_evaluated, rules_advanced, occurrences_created, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_date) DO UPDATE SET
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			rules_evaluated = excluded.rules_evaluated,
			rules_advanced = excluded.rules_advanced,
			occurrences_created = excluded.occurrences_created,
			failures = excluded.failures`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			formatDate(run.RunDate),
			formatTimestamp(run.StartedAt),
			formatTimestamp(run.CompletedAt),
			run.RulesEvaluated,
			run.RulesAdvanced,
			run.OccurrencesCreated,
			run.Failures,
		)
		return err
	})
}

const runColumns = `run_date, started_at, completed_at, rules_evaluated, rules_advanced, occurrences_created, failures`

// LatestRun returns the most recent run marker
func (r *GenerationRepository) LatestRun(ctx context.Context) (persistence.GenerationRun, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+runColumns+` FROM generation_runs ORDER BY run_date DESC LIMIT 1`)
	run, err := scanRun(row)
	if err != nil {
		return persistence.GenerationRun{}, r.mapper.MapError(err)
	}
	return run, nil
}

// RunFor returns the marker for day
func (r *GenerationRepository) RunFor(ctx context.Context, day time.Time) (persistence.GenerationRun, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+runColumns+` FROM generation_runs WHERE run_date = ?`, formatDate(day))
	run, err := scanRun(row)
	if err != nil {
		return persistence.GenerationRun{}, r.mapper.MapError(err)
	}
	return run, nil
}

func scanRun(row rowScanner) (persistence.GenerationRun, error) {
	var (
		run                             persistence.GenerationRun
		runDate, startedAt, completedAt string
	)
	if err := row.Scan(
		&runDate,
		&startedAt,
		&completedAt,
		&run.RulesEvaluated,
		&run.RulesAdvanced,
		&run.OccurrencesCreated,
		&run.Failures,
	); err != nil {
		return persistence.GenerationRun{}, err
	}

	var err error
	if run.RunDate, err = parseDate(runDate); err != nil {
		return persistence.GenerationRun{}, err
	}
	if run.StartedAt, err = parseTimestamp(startedAt); err != nil {
		return persistence.GenerationRun{}, err
	}
	if run.CompletedAt, err = parseTimestamp(completedAt); err != nil {
		return persistence.GenerationRun{}, err
	}
	return run, nil
}
