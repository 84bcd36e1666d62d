package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/recurrence"
)

const (
	// DefaultTransactionLimit applies when a listing does not ask for a limit.
	DefaultTransactionLimit = 200
	// MaxTransactionLimit caps a single listing.
	MaxTransactionLimit = 1000
)

// TransactionService records, lists and totals ledger entries.
type TransactionService struct {
	transactions persistence.TransactionRepository
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
	summaries    *summaryCache
}

// NewTransactionService constructs a transaction service with the provided dependencies.
func NewTransactionService(transactions persistence.TransactionRepository, idGenerator func() string, now func() time.Time) *TransactionService {
	return NewTransactionServiceWithLogger(transactions, idGenerator, now, nil)
}

// NewTransactionServiceWithLogger constructs a transaction service with a specified logger.
func NewTransactionServiceWithLogger(transactions persistence.TransactionRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TransactionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TransactionService{
		transactions: transactions,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
		summaries:    newSummaryCache(30*time.Second, 64, now),
	}
}

func (s *TransactionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TransactionService", operation, attrs...)
}

// InvalidateSummaries drops cached totals. Generation calls it after a pass
// that materialized entries.
func (s *TransactionService) InvalidateSummaries() {
	if s == nil {
		return
	}
	s.summaries.Invalidate()
}

// RecordTransaction validates and stores a manual ledger entry.
func (s *TransactionService) RecordTransaction(ctx context.Context, input TransactionInput) (txn Transaction, err error) {
	if s == nil {
		err = fmt.Errorf("TransactionService is nil")
		return
	}
	if s.transactions == nil {
		err = fmt.Errorf("transaction repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "RecordTransaction")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record transaction", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("transaction_id", txn.ID).InfoContext(ctx, "transaction recorded")
	}()

	candidate, vErr := validateTransactionInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	candidate.ID = s.idGenerator()
	candidate.CreatedAt = s.now().UTC()
	if err = s.transactions.CreateTransaction(ctx, transactionToRecord(candidate)); err != nil {
		err = mapTransactionRepoError(err)
		return
	}

	s.summaries.Invalidate()
	txn = candidate
	return
}

// GetTransaction returns a single ledger entry.
func (s *TransactionService) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	if s == nil {
		return Transaction{}, fmt.Errorf("TransactionService is nil")
	}
	if s.transactions == nil {
		return Transaction{}, fmt.Errorf("transaction repository not configured")
	}

	record, err := s.transactions.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, mapTransactionRepoError(err)
	}
	return transactionFromRecord(record), nil
}

// ListTransactions returns entries newest first.
func (s *TransactionService) ListTransactions(ctx context.Context, query TransactionQuery) (txns []Transaction, err error) {
	if s == nil {
		err = fmt.Errorf("TransactionService is nil")
		return
	}
	if s.transactions == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListTransactions")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list transactions", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var filter persistence.TransactionFilter
	filter, err = buildTransactionFilter(query)
	if err != nil {
		return
	}

	var records []persistence.Transaction
	records, err = s.transactions.ListTransactions(ctx, filter)
	if err != nil {
		err = mapTransactionRepoError(err)
		return
	}

	txns = make([]Transaction, 0, len(records))
	for _, record := range records {
		txns = append(txns, transactionFromRecord(record))
	}
	return
}

// DeleteTransaction removes a ledger entry. Deleting a generated entry does not
// cause it to be generated again: the rule has already moved past its date.
func (s *TransactionService) DeleteTransaction(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("TransactionService is nil")
	}
	if s.transactions == nil {
		return fmt.Errorf("transaction repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteTransaction", "transaction_id", id)

	if err := s.transactions.DeleteTransaction(ctx, id); err != nil {
		err = mapTransactionRepoError(err)
		logger.ErrorContext(ctx, "failed to delete transaction", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.summaries.Invalidate()
	logger.InfoContext(ctx, "transaction deleted")
	return nil
}

// Summarize totals income and expense over an inclusive date range. Empty
// bounds leave that side of the range open.
func (s *TransactionService) Summarize(ctx context.Context, from, to string) (summary Summary, err error) {
	if s == nil {
		err = fmt.Errorf("TransactionService is nil")
		return
	}
	if s.transactions == nil {
		err = fmt.Errorf("transaction repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "Summarize", "from", from, "to", to)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to summarize transactions", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var filter persistence.TransactionFilter
	filter, err = buildTransactionFilter(TransactionQuery{From: from, To: to})
	if err != nil {
		return
	}
	filter.Limit = 0

	key := summaryCacheKey(filter.From, filter.To)
	if cached, ok := s.summaries.Get(key); ok {
		summary = cached
		return
	}

	var records []persistence.Transaction
	records, err = s.transactions.ListTransactions(ctx, filter)
	if err != nil {
		err = mapTransactionRepoError(err)
		return
	}

	summary = summarize(records)
	summary.From = filter.From
	summary.To = filter.To
	s.summaries.Store(key, summary)
	return
}

func summarize(records []persistence.Transaction) Summary {
	summary := Summary{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		Count:   len(records),
	}

	type categoryKey struct {
		kind     recurrence.Kind
		category string
	}
	totals := make(map[categoryKey]*CategoryTotal)

	for _, record := range records {
		kind := recurrence.Kind(record.Kind)
		switch kind {
		case recurrence.KindIncome:
			summary.Income = summary.Income.Add(record.Amount)
		case recurrence.KindExpense:
			summary.Expense = summary.Expense.Add(record.Amount)
		default:
			continue
		}

		key := categoryKey{kind: kind, category: record.Category}
		total, ok := totals[key]
		if !ok {
			total = &CategoryTotal{Category: record.Category, Kind: kind, Total: decimal.Zero}
			totals[key] = total
		}
		total.Total = total.Total.Add(record.Amount)
		total.Count++
	}

	summary.Net = summary.Income.Sub(summary.Expense)
	summary.Categories = make([]CategoryTotal, 0, len(totals))
	for _, total := range totals {
		summary.Categories = append(summary.Categories, *total)
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		a, b := summary.Categories[i], summary.Categories[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if !a.Total.Equal(b.Total) {
			return a.Total.GreaterThan(b.Total)
		}
		return a.Category < b.Category
	})
	return summary
}

func buildTransactionFilter(query TransactionQuery) (persistence.TransactionFilter, error) {
	vErr := &ValidationError{}
	filter := persistence.TransactionFilter{
		From:         parseDateField(vErr, "from", query.From, false),
		To:           parseDateField(vErr, "to", query.To, false),
		SourceRuleID: strings.TrimSpace(query.RuleID),
		Limit:        query.Limit,
	}

	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		vErr.add("to", "to must not be before from")
	}

	switch origin := recurrence.Origin(strings.ToLower(strings.TrimSpace(query.Origin))); origin {
	case "":
	case recurrence.OriginManual, recurrence.OriginRecurring:
		filter.Origin = string(origin)
	default:
		vErr.add("origin", "origin must be manual or recurring")
	}

	switch {
	case query.Limit < 0 || query.Limit > MaxTransactionLimit:
		vErr.add("limit", fmt.Sprintf("limit must be between 1 and %d", MaxTransactionLimit))
	case query.Limit == 0:
		filter.Limit = DefaultTransactionLimit
	}

	if vErr.HasErrors() {
		return persistence.TransactionFilter{}, vErr
	}
	return filter, nil
}

func mapTransactionRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: transaction already exists", ErrConflict)
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		vErr := &ValidationError{}
		vErr.add("source_rule_id", "source rule does not exist")
		return vErr
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("transaction", "transaction violates a storage constraint")
		return vErr
	}
	return err
}
