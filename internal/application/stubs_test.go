package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pocket-ledger/internal/persistence"
)

type ruleRepoStub struct {
	createErr error
	created   persistence.RecurringRule

	getRule persistence.RecurringRule
	getErr  error

	updateErr error
	updated   persistence.RecurringRule

	deleteErr error
	deletedID string

	list    []persistence.RecurringRule
	listErr error
}

func (r *ruleRepoStub) CreateRule(ctx context.Context, rule persistence.RecurringRule) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = rule
	return nil
}

func (r *ruleRepoStub) UpdateRule(ctx context.Context, rule persistence.RecurringRule) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updated = rule
	return nil
}

func (r *ruleRepoStub) GetRule(ctx context.Context, id string) (persistence.RecurringRule, error) {
	if r.getErr != nil {
		return persistence.RecurringRule{}, r.getErr
	}
	if r.getRule.ID == "" || r.getRule.ID != id {
		return persistence.RecurringRule{}, persistence.ErrNotFound
	}
	return r.getRule, nil
}

func (r *ruleRepoStub) ListRules(ctx context.Context, filter persistence.RuleFilter) ([]persistence.RecurringRule, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]persistence.RecurringRule, 0, len(r.list))
	for _, rule := range r.list {
		if filter.ActiveOnly && !rule.IsActive {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *ruleRepoStub) DeleteRule(ctx context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deletedID = id
	return nil
}

type transactionRepoStub struct {
	createErr error
	created   []persistence.Transaction

	list       []persistence.Transaction
	listErr    error
	listCalls  int
	lastFilter persistence.TransactionFilter

	deleteErr error
}

func (r *transactionRepoStub) CreateTransaction(ctx context.Context, txn persistence.Transaction) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, txn)
	return nil
}

func (r *transactionRepoStub) GetTransaction(ctx context.Context, id string) (persistence.Transaction, error) {
	for _, txn := range r.list {
		if txn.ID == id {
			return txn, nil
		}
	}
	return persistence.Transaction{}, persistence.ErrNotFound
}

func (r *transactionRepoStub) ListTransactions(ctx context.Context, filter persistence.TransactionFilter) ([]persistence.Transaction, error) {
	r.listCalls++
	r.lastFilter = filter
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]persistence.Transaction, len(r.list))
	copy(out, r.list)
	return out, nil
}

func (r *transactionRepoStub) DeleteTransaction(ctx context.Context, id string) error {
	return r.deleteErr
}

type generationRepoStub struct {
	commitErr error
	commits   []persistence.RuleAdvance

	runs      []persistence.GenerationRun
	runForErr error
	recordErr error
}

func (g *generationRepoStub) CommitRuleAdvance(ctx context.Context, advance persistence.RuleAdvance) error {
	if g.commitErr != nil {
		return g.commitErr
	}
	g.commits = append(g.commits, advance)
	return nil
}

func (g *generationRepoStub) RecordRun(ctx context.Context, run persistence.GenerationRun) error {
	if g.recordErr != nil {
		return g.recordErr
	}
	g.runs = append(g.runs, run)
	return nil
}

func (g *generationRepoStub) LatestRun(ctx context.Context) (persistence.GenerationRun, error) {
	if len(g.runs) == 0 {
		return persistence.GenerationRun{}, persistence.ErrNotFound
	}
	return g.runs[len(g.runs)-1], nil
}

func (g *generationRepoStub) RunFor(ctx context.Context, day time.Time) (persistence.GenerationRun, error) {
	if g.runForErr != nil {
		return persistence.GenerationRun{}, g.runForErr
	}
	for _, run := range g.runs {
		if run.RunDate.Equal(day) {
			return run, nil
		}
	}
	return persistence.GenerationRun{}, persistence.ErrNotFound
}

func sequence(prefix string) func() string {
	var (
		mu   sync.Mutex
		next int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("%s-%d", prefix, next)
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func storedRule(id string, frequency string, start time.Time) persistence.RecurringRule {
	return persistence.RecurringRule{
		ID:                 id,
		Kind:               "expense",
		Amount:             amount("12.50"),
		Category:           "subscriptions",
		Frequency:          frequency,
		CustomIntervalDays: 1,
		StartDate:          start,
		NextDueDate:        start,
		IsActive:           true,
		CreatedAt:          start,
		UpdatedAt:          start,
	}
}
