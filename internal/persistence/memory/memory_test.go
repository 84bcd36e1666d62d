package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStorage_CommitRuleAdvance(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	rule := persistence.RecurringRule{
		ID:          "rule-1",
		Kind:        "expense",
		Amount:      decimal.RequireFromString("10"),
		Category:    "rent",
		Frequency:   "daily",
		StartDate:   day(2026, time.May, 1),
		NextDueDate: day(2026, time.May, 1),
		IsActive:    true,
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	ruleID := "rule-1"
	last := day(2026, time.May, 1)
	advance := persistence.RuleAdvance{
		RuleID:              ruleID,
		ExpectedNextDueDate: day(2026, time.May, 1),
		LastGeneratedDate:   &last,
		NextDueDate:         day(2026, time.May, 2),
		Transactions: []persistence.Transaction{{
			ID: "txn-1", Kind: "expense", Amount: rule.Amount, Category: "rent",
			OccurredOn: last, SourceRuleID: &ruleID, Origin: "recurring",
		}},
	}
	if err := store.CommitRuleAdvance(ctx, advance); err != nil {
		t.Fatalf("CommitRuleAdvance failed: %v", err)
	}
	if err := store.CommitRuleAdvance(ctx, advance); !errors.Is(err, persistence.ErrStale) {
		t.Fatalf("expected ErrStale on replay, got %v", err)
	}

	stale := rule
	stale.Category = "edited"
	if err := store.UpdateRule(ctx, stale); !errors.Is(err, persistence.ErrStale) {
		t.Fatalf("expected ErrStale for edit computed before generation, got %v", err)
	}

	if err := store.DeleteRule(ctx, ruleID); err != nil {
		t.Fatalf("DeleteRule failed: %v", err)
	}
	txn, err := store.GetTransaction(ctx, "txn-1")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if txn.SourceRuleID != nil {
		t.Fatal("expected source rule to be cleared")
	}
}

func TestStorage_RejectsDuplicateOccurrence(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	if err := store.CreateRule(ctx, persistence.RecurringRule{ID: "rule-1", NextDueDate: day(2026, time.May, 1), IsActive: true}); err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	ruleID := "rule-1"
	first := persistence.Transaction{ID: "a", OccurredOn: day(2026, time.May, 1), SourceRuleID: &ruleID, Origin: "recurring"}
	if err := store.CreateTransaction(ctx, first); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	err := store.CommitRuleAdvance(ctx, persistence.RuleAdvance{
		RuleID:              ruleID,
		ExpectedNextDueDate: day(2026, time.May, 1),
		NextDueDate:         day(2026, time.May, 2),
		Transactions:        []persistence.Transaction{{ID: "b", OccurredOn: day(2026, time.May, 1), SourceRuleID: &ruleID, Origin: "recurring"}},
	})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	rule, err := store.GetRule(ctx, ruleID)
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if !rule.NextDueDate.Equal(day(2026, time.May, 1)) {
		t.Fatalf("expected rule to be unchanged, got %v", rule.NextDueDate)
	}
	if _, err := store.GetTransaction(ctx, "b"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected rejected insert to be absent, got %v", err)
	}
}
