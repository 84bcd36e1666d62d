package application

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/persistence/memory"
)

// The smallest scrypt work factor keeps these tests fast.
const testWorkFactor = 1

func seededBackupStore(t *testing.T) *memory.Storage {
	t.Helper()
	store := memory.New()
	rule := storedRule("rule-1", "weekly", date(2026, time.January, 5))
	rule.Weekdays = []int{1, 5}
	last := date(2026, time.January, 9)
	rule.LastGeneratedDate = &last
	rule.NextDueDate = date(2026, time.January, 12)
	seedRule(t, store, rule)

	source := "rule-1"
	for _, txn := range []persistence.Transaction{
		{ID: "txn-1", Kind: "expense", Amount: amount("12.50"), Category: "subscriptions", OccurredOn: date(2026, time.January, 9), SourceRuleID: &source, Origin: "recurring", CreatedAt: date(2026, time.January, 9)},
		{ID: "txn-2", Kind: "income", Amount: amount("99.99"), Category: "refund", OccurredOn: date(2026, time.January, 8), Origin: "manual", CreatedAt: date(2026, time.January, 8)},
	} {
		if err := store.CreateTransaction(context.Background(), txn); err != nil {
			t.Fatalf("failed to seed transaction: %v", err)
		}
	}
	return store
}

func TestBackupService_ExportOpenRestore(t *testing.T) {
	t.Parallel()

	source := seededBackupStore(t)
	now := time.Date(2026, time.January, 10, 7, 0, 0, 0, time.UTC)
	svc := NewBackupService(source, source, fixedNow(now), testWorkFactor)

	var buf bytes.Buffer
	exported, err := svc.Export(context.Background(), &buf, "correct horse")
	if err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}
	if len(exported.Rules) != 1 || len(exported.Transactions) != 2 {
		t.Fatalf("unexpected export counts: %d rules, %d transactions", len(exported.Rules), len(exported.Transactions))
	}
	if strings.Contains(buf.String(), "subscriptions") {
		t.Fatalf("expected backup to be encrypted")
	}

	opened, err := svc.Open(context.Background(), bytes.NewReader(buf.Bytes()), "correct horse")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if opened.Version != BackupFormatVersion || !opened.CreatedAt.Equal(now) {
		t.Fatalf("unexpected snapshot header: %+v", opened)
	}
	rule := opened.Rules[0]
	if rule.LastGeneratedDate != "2026-01-09" || rule.NextDueDate != "2026-01-12" || len(rule.Weekdays) != 2 {
		t.Fatalf("unexpected archived rule: %+v", rule)
	}

	target := memory.New()
	restorer := NewBackupService(target, target, fixedNow(now), testWorkFactor)
	result, err := restorer.Restore(context.Background(), opened)
	if err != nil {
		t.Fatalf("unexpected restore error: %v", err)
	}
	if result.RulesRestored != 1 || result.TransactionsRestored != 2 {
		t.Fatalf("unexpected restore result: %+v", result)
	}

	restored, err := target.GetRule(context.Background(), "rule-1")
	if err != nil {
		t.Fatalf("expected restored rule: %v", err)
	}
	if restored.LastGeneratedDate == nil || !restored.LastGeneratedDate.Equal(date(2026, time.January, 9)) {
		t.Fatalf("expected generation state to survive the round trip, got %v", restored.LastGeneratedDate)
	}
	if !restored.Amount.Equal(amount("12.50")) {
		t.Fatalf("expected exact amount, got %s", restored.Amount)
	}

	again, err := restorer.Restore(context.Background(), opened)
	if err != nil {
		t.Fatalf("unexpected error on second restore: %v", err)
	}
	if again.RulesSkipped != 1 || again.TransactionsSkipped != 2 || again.RulesRestored != 0 {
		t.Fatalf("expected second restore to skip everything, got %+v", again)
	}
}

func TestBackupService_OpenRejectsWrongPassphrase(t *testing.T) {
	t.Parallel()

	store := seededBackupStore(t)
	svc := NewBackupService(store, store, nil, testWorkFactor)

	var buf bytes.Buffer
	if _, err := svc.Export(context.Background(), &buf, "secret"); err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}

	if _, err := svc.Open(context.Background(), &buf, "guess"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBackupService_Validation(t *testing.T) {
	t.Parallel()

	store := memory.New()
	svc := NewBackupService(store, store, nil, testWorkFactor)

	var vErr *ValidationError
	if _, err := svc.Export(context.Background(), &bytes.Buffer{}, ""); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty passphrase, got %v", err)
	}
	if _, err := svc.Open(context.Background(), strings.NewReader(`{"version":1}`), "secret"); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for plaintext input, got %v", err)
	}
}
