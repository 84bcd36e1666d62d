package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/persistence/sqlite/migration"
	"github.com/shopspring/decimal"
)

func setupStoreTest(t *testing.T) *Store {
	t.Helper()

	cfg := migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "ledger.db"))
	store, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleRule(id string) persistence.RecurringRule {
	created := time.Date(2026, time.January, 1, 9, 0, 0, 0, time.UTC)
	return persistence.RecurringRule{
		ID:                 id,
		Kind:               "expense",
		Amount:             decimal.RequireFromString("15.99"),
		Category:           "streaming",
		Frequency:          "monthly",
		CustomIntervalDays: 1,
		DayOfMonth:         32,
		StartDate:          day(2026, time.January, 31),
		NextDueDate:        day(2026, time.January, 31),
		IsActive:           true,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := setupStoreTest(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("expected second migration run to succeed, got %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
