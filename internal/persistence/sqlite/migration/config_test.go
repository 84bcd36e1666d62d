package migration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConnectionManager_DataSourceName(t *testing.T) {
	t.Parallel()

	dsn := NewConnectionManager(DefaultSQLiteConfig("/tmp/ledger.db")).DataSourceName()
	if !strings.HasPrefix(dsn, "/tmp/ledger.db?") {
		t.Fatalf("expected path prefix, got %s", dsn)
	}
	for _, part := range []string{"foreign_keys%281%29", "journal_mode%28WAL%29", "busy_timeout%2830000%29", "_txlock=immediate"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("expected %s in %s", part, dsn)
		}
	}

	if got := NewConnectionManager(SQLiteConfig{DSN: ":memory:"}).DataSourceName(); got != ":memory:" {
		t.Fatalf("expected bare DSN, got %s", got)
	}
}

func TestConnectionManager_ValidateConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*SQLiteConfig)
	}{
		{"empty dsn", func(c *SQLiteConfig) { c.DSN = " " }},
		{"dsn with query", func(c *SQLiteConfig) { c.DSN = "ledger.db?mode=ro" }},
		{"negative timeout", func(c *SQLiteConfig) { c.BusyTimeout = -time.Second }},
		{"journal mode", func(c *SQLiteConfig) { c.JournalMode = "FAST" }},
		{"synchronous", func(c *SQLiteConfig) { c.Synchronous = "SOMETIMES" }},
		{"max open", func(c *SQLiteConfig) { c.MaxOpenConns = -1 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultSQLiteConfig("ledger.db")
			tc.mutate(&cfg)
			if err := NewConnectionManager(cfg).ValidateConfig(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := NewConnectionManager(DefaultSQLiteConfig("ledger.db")).ValidateConfig(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
}

func TestConnectionManager_GetConnectionCreatesNestedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")
	db, err := NewConnectionManager(TempFileTestSQLiteConfig(path)).GetConnection()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file, got %v", err)
	}

	var enabled int
	if err := db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("query pragma: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("expected foreign keys enabled, got %d", enabled)
	}
}

func TestConnectionManager_InMemory(t *testing.T) {
	t.Parallel()

	db, err := NewConnectionManager(InMemoryTestSQLiteConfig()).GetConnection()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
