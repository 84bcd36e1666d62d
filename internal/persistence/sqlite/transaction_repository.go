package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
)

const transactionColumns = `id, kind, amount, category, note, occurred_on, source_rule_id, origin, created_at`

const insertTransactionSQL = `INSERT INTO transactions (` + transactionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// TransactionRepository implements persistence.TransactionRepository using SQLite
type TransactionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewTransactionRepository creates a new SQLite transaction repository
func NewTransactionRepository(pool *ConnectionPool) *TransactionRepository {
	return &TransactionRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// CreateTransaction inserts a ledger entry
func (r *TransactionRepository) CreateTransaction(ctx context.Context, txn persistence.Transaction) error {
	if strings.TrimSpace(txn.ID) == "" {
		return persistence.ErrConstraintViolation
	}
	return r.retry.WithRetry(ctx, func() error {
		return insertTransaction(ctx, r.pool.DB(), txn)
	})
}

func insertTransaction(ctx context.Context, q queryer, txn persistence.Transaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, insertTransactionSQL,
		txn.ID,
		txn.Kind,
		txn.Amount.String(),
		txn.Category,
		txn.Note,
		formatDate(txn.OccurredOn),
		nullString(txn.SourceRuleID),
		txn.Origin,
		formatTimestamp(txn.CreatedAt),
	)
	return err
}

// GetTransaction retrieves a ledger entry by ID
func (r *TransactionRepository) GetTransaction(ctx context.Context, id string) (persistence.Transaction, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		return persistence.Transaction{}, r.mapper.MapError(err)
	}
	return txn, nil
}

// ListTransactions returns entries newest first
func (r *TransactionRepository) ListTransactions(ctx context.Context, filter persistence.TransactionFilter) ([]persistence.Transaction, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.From != nil {
		conditions = append(conditions, "occurred_on >= ?")
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "occurred_on <= ?")
		args = append(args, formatDate(*filter.To))
	}
	if filter.SourceRuleID != "" {
		conditions = append(conditions, "source_rule_id = ?")
		args = append(args, filter.SourceRuleID)
	}
	if filter.Origin != "" {
		conditions = append(conditions, "origin = ?")
		args = append(args, filter.Origin)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY occurred_on DESC, created_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	txns := []persistence.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return txns, nil
}

// DeleteTransaction removes a ledger entry by ID
func (r *TransactionRepository) DeleteTransaction(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
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

func scanTransaction(row rowScanner) (persistence.Transaction, error) {
	var (
		txn                persistence.Transaction
		amount, occurredOn string
		createdAt          string
		sourceRuleID       sql.NullString
	)
	if err := row.Scan(
		&txn.ID,
		&txn.Kind,
		&amount,
		&txn.Category,
		&txn.Note,
		&occurredOn,
		&sourceRuleID,
		&txn.Origin,
		&createdAt,
	); err != nil {
		return persistence.Transaction{}, err
	}

	var err error
	if txn.Amount, err = parseAmount(amount); err != nil {
		return persistence.Transaction{}, err
	}
	if txn.OccurredOn, err = parseDate(occurredOn); err != nil {
		return persistence.Transaction{}, err
	}
	if txn.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Transaction{}, err
	}
	if sourceRuleID.Valid {
		id := sourceRuleID.String
		txn.SourceRuleID = &id
	}
	return txn, nil
}
