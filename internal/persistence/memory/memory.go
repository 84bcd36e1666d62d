// Package memory provides a map-backed implementation of the persistence
// repositories with the same conflict semantics as the SQLite store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
)

// Storage keeps rules, transactions and run markers in memory.
type Storage struct {
	mu           sync.RWMutex
	rules        map[string]persistence.RecurringRule
	transactions map[string]persistence.Transaction
	runs         map[string]persistence.GenerationRun
}

var (
	_ persistence.RuleRepository        = (*Storage)(nil)
	_ persistence.TransactionRepository = (*Storage)(nil)
	_ persistence.GenerationRepository  = (*Storage)(nil)
)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		rules:        make(map[string]persistence.RecurringRule),
		transactions: make(map[string]persistence.Transaction),
		runs:         make(map[string]persistence.GenerationRun),
	}
}

// --- RuleRepository implementation ---

// CreateRule stores a new rule.
func (s *Storage) CreateRule(_ context.Context, rule persistence.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.rules[rule.ID]; ok {
		return fmt.Errorf("%w: rule %s", persistence.ErrDuplicate, rule.ID)
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// UpdateRule replaces the editable state of a rule while its last generated
// date is unchanged.
func (s *Storage) UpdateRule(_ context.Context, rule persistence.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rules[rule.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if !sameDate(stored.LastGeneratedDate, rule.LastGeneratedDate) {
		return persistence.ErrStale
	}

	updated := cloneRule(rule)
	updated.LastGeneratedDate = stored.LastGeneratedDate
	updated.CreatedAt = stored.CreatedAt
	s.rules[rule.ID] = updated
	return nil
}

// GetRule retrieves a rule by ID.
func (s *Storage) GetRule(_ context.Context, id string) (persistence.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return persistence.RecurringRule{}, persistence.ErrNotFound
	}
	return cloneRule(rule), nil
}

// ListRules returns rules ordered by CreatedAt ascending.
func (s *Storage) ListRules(_ context.Context, filter persistence.RuleFilter) ([]persistence.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]persistence.RecurringRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if filter.ActiveOnly && !rule.IsActive {
			continue
		}
		rules = append(rules, cloneRule(rule))
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules, nil
}

// DeleteRule removes a rule and clears the back reference of its transactions.
func (s *Storage) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.rules, id)

	for txnID, txn := range s.transactions {
		if txn.SourceRuleID != nil && *txn.SourceRuleID == id {
			txn.SourceRuleID = nil
			s.transactions[txnID] = txn
		}
	}
	return nil
}

// --- TransactionRepository implementation ---

// CreateTransaction stores a ledger entry.
func (s *Storage) CreateTransaction(_ context.Context, txn persistence.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertTransactionLocked(txn)
}

func (s *Storage) insertTransactionLocked(txn persistence.Transaction) error {
	if txn.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.transactions[txn.ID]; ok {
		return fmt.Errorf("%w: transaction %s", persistence.ErrDuplicate, txn.ID)
	}
	if txn.SourceRuleID != nil {
		if _, ok := s.rules[*txn.SourceRuleID]; !ok {
			return fmt.Errorf("%w: rule %s", persistence.ErrForeignKeyViolation, *txn.SourceRuleID)
		}
		if txn.Origin == "recurring" && s.hasOccurrenceLocked(*txn.SourceRuleID, txn.OccurredOn) {
			return fmt.Errorf("%w: rule %s already has an entry on %s",
				persistence.ErrDuplicate, *txn.SourceRuleID, txn.OccurredOn.Format("2006-01-02"))
		}
	}
	s.transactions[txn.ID] = cloneTransaction(txn)
	return nil
}

func (s *Storage) hasOccurrenceLocked(ruleID string, on time.Time) bool {
	for _, existing := range s.transactions {
		if existing.Origin == "recurring" && existing.SourceRuleID != nil &&
			*existing.SourceRuleID == ruleID && existing.OccurredOn.Equal(on) {
			return true
		}
	}
	return false
}

// GetTransaction retrieves a ledger entry by ID.
func (s *Storage) GetTransaction(_ context.Context, id string) (persistence.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return persistence.Transaction{}, persistence.ErrNotFound
	}
	return cloneTransaction(txn), nil
}

// ListTransactions returns entries newest first.
func (s *Storage) ListTransactions(_ context.Context, filter persistence.TransactionFilter) ([]persistence.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txns := make([]persistence.Transaction, 0, len(s.transactions))
	for _, txn := range s.transactions {
		if matchesTransactionFilter(txn, filter) {
			txns = append(txns, cloneTransaction(txn))
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].OccurredOn.Equal(txns[j].OccurredOn) {
			return txns[i].OccurredOn.After(txns[j].OccurredOn)
		}
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return txns[i].ID < txns[j].ID
	})
	if filter.Limit > 0 && len(txns) > filter.Limit {
		txns = txns[:filter.Limit]
	}
	return txns, nil
}

// DeleteTransaction removes a ledger entry by ID.
func (s *Storage) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

// --- GenerationRepository implementation ---

// CommitRuleAdvance applies a rule's catch-up atomically.
func (s *Storage) CommitRuleAdvance(_ context.Context, advance persistence.RuleAdvance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[advance.RuleID]
	if !ok {
		return persistence.ErrNotFound
	}
	if !rule.IsActive || !rule.NextDueDate.Equal(advance.ExpectedNextDueDate) {
		return persistence.ErrStale
	}

	// Validate every insert before mutating anything.
	pending := make(map[string]bool, len(advance.Transactions))
	for _, txn := range advance.Transactions {
		if _, ok := s.transactions[txn.ID]; ok || pending[txn.ID] {
			return fmt.Errorf("%w: transaction %s", persistence.ErrDuplicate, txn.ID)
		}
		if txn.SourceRuleID != nil && *txn.SourceRuleID == advance.RuleID && s.hasOccurrenceLocked(advance.RuleID, txn.OccurredOn) {
			return fmt.Errorf("%w: rule %s already has an entry on %s",
				persistence.ErrDuplicate, advance.RuleID, txn.OccurredOn.Format("2006-01-02"))
		}
		pending[txn.ID] = true
	}

	for _, txn := range advance.Transactions {
		s.transactions[txn.ID] = cloneTransaction(txn)
	}
	rule.LastGeneratedDate = cloneTime(advance.LastGeneratedDate)
	rule.NextDueDate = advance.NextDueDate
	if !advance.UpdatedAt.IsZero() {
		rule.UpdatedAt = advance.UpdatedAt
	}
	s.rules[rule.ID] = rule
	return nil
}

// RecordRun stores the marker for run.RunDate.
func (s *Storage) RecordRun(_ context.Context, run persistence.GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.RunDate.Format("2006-01-02")] = run
	return nil
}

// LatestRun returns the marker with the latest run date.
func (s *Storage) LatestRun(_ context.Context) (persistence.GenerationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest persistence.GenerationRun
		found  bool
	)
	for _, run := range s.runs {
		if !found || run.RunDate.After(latest.RunDate) {
			latest, found = run, true
		}
	}
	if !found {
		return persistence.GenerationRun{}, persistence.ErrNotFound
	}
	return latest, nil
}

// RunFor returns the marker for day.
func (s *Storage) RunFor(_ context.Context, day time.Time) (persistence.GenerationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[day.Format("2006-01-02")]
	if !ok {
		return persistence.GenerationRun{}, persistence.ErrNotFound
	}
	return run, nil
}

func matchesTransactionFilter(txn persistence.Transaction, filter persistence.TransactionFilter) bool {
	if filter.From != nil && txn.OccurredOn.Before(*filter.From) {
		return false
	}
	if filter.To != nil && txn.OccurredOn.After(*filter.To) {
		return false
	}
	if filter.SourceRuleID != "" && (txn.SourceRuleID == nil || *txn.SourceRuleID != filter.SourceRuleID) {
		return false
	}
	if filter.Origin != "" && txn.Origin != filter.Origin {
		return false
	}
	return true
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneRule(rule persistence.RecurringRule) persistence.RecurringRule {
	clone := rule
	if rule.Weekdays != nil {
		clone.Weekdays = append(make([]int, 0, len(rule.Weekdays)), rule.Weekdays...)
	}
	clone.EndDate = cloneTime(rule.EndDate)
	clone.LastGeneratedDate = cloneTime(rule.LastGeneratedDate)
	return clone
}

func cloneTransaction(txn persistence.Transaction) persistence.Transaction {
	clone := txn
	if txn.SourceRuleID != nil {
		id := *txn.SourceRuleID
		clone.SourceRuleID = &id
	}
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}
