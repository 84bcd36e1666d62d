package persistence

import (
	"context"
	"time"
)

// RuleRepository exposes CRUD operations for recurring rules.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule RecurringRule) error
	UpdateRule(ctx context.Context, rule RecurringRule) error
	GetRule(ctx context.Context, id string) (RecurringRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]RecurringRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// TransactionRepository stores ledger entries.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, txn Transaction) error
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// GenerationRepository applies generation results and tracks run markers.
type GenerationRepository interface {
	// CommitRuleAdvance stores the rule's new dates and its transactions in one
	// transaction. It returns ErrStale when the rule moved since it was read.
	CommitRuleAdvance(ctx context.Context, advance RuleAdvance) error
	RecordRun(ctx context.Context, run GenerationRun) error
	// LatestRun returns the most recent marker, or ErrNotFound when none exists.
	LatestRun(ctx context.Context) (GenerationRun, error)
	// RunFor returns the marker for the given calendar date.
	RunFor(ctx context.Context, day time.Time) (GenerationRun, error)
}
