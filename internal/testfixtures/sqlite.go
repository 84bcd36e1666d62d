package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/persistence/sqlite"
	"github.com/example/pocket-ledger/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite file for integration-style tests.
type SQLiteHarness struct {
	Store        *sqlite.Store
	Rules        persistence.RuleRepository
	Transactions persistence.TransactionRepository
	Generation   persistence.GenerationRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a store on a file under tb.TempDir. Callers may call
// Close early; it is also registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "ledger.db")
	store, err := sqlite.Open(context.Background(), migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store:        store,
		Rules:        store.Rules,
		Transactions: store.Transactions,
		Generation:   store.Generation,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
