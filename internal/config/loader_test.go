package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var ledgerKeys = []string{
	"LEDGER_ENV_FILE",
	"LEDGER_HTTP_PORT",
	"LEDGER_SQLITE_PATH",
	"LEDGER_TIMEZONE",
	"LEDGER_GENERATION_INTERVAL",
	"LEDGER_MAX_CATCHUP",
	"LEDGER_PIN_HASH",
	"LEDGER_LOG_LEVEL",
	"LEDGER_LOG_FORMAT",
	"LEDGER_BACKUP_WORK_FACTOR",
	"LEDGER_BACKUP_PASSPHRASE",
	"LEDGER_SHUTDOWN_TIMEOUT",
}

// clearLedgerEnv unsets every key for the duration of the test and points the
// dotenv lookup at a file that does not exist.
func clearLedgerEnv(t *testing.T) {
	t.Helper()
	for _, key := range ledgerKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
	t.Setenv("LEDGER_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearLedgerEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLitePath != "ledger.db" {
			t.Fatalf("unexpected default path: %q", cfg.SQLitePath)
		}
		if cfg.Location != time.UTC {
			t.Fatalf("expected UTC, got %v", cfg.Location)
		}
		if cfg.GenerationInterval != time.Hour || cfg.MaxCatchUp != 5000 || cfg.BackupWorkFactor != 18 {
			t.Fatalf("unexpected defaults: %+v", cfg)
		}
		if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "json" {
			t.Fatalf("unexpected logging defaults: %v %q", cfg.LogLevel, cfg.LogFormat)
		}
	})

	t.Run("parses explicit values", func(t *testing.T) {
		clearLedgerEnv(t)
		t.Setenv("LEDGER_HTTP_PORT", "9090")
		t.Setenv("LEDGER_SQLITE_PATH", "/var/lib/ledger/ledger.db")
		t.Setenv("LEDGER_TIMEZONE", "Asia/Tokyo")
		t.Setenv("LEDGER_GENERATION_INTERVAL", "0")
		t.Setenv("LEDGER_MAX_CATCHUP", "100")
		t.Setenv("LEDGER_LOG_LEVEL", "debug")
		t.Setenv("LEDGER_LOG_FORMAT", "TEXT")
		t.Setenv("LEDGER_BACKUP_WORK_FACTOR", "15")
		t.Setenv("LEDGER_SHUTDOWN_TIMEOUT", "3s")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.Location.String() != "Asia/Tokyo" {
			t.Fatalf("expected Asia/Tokyo, got %v", cfg.Location)
		}
		if cfg.GenerationInterval != 0 {
			t.Fatalf("expected periodic generation to be disabled, got %s", cfg.GenerationInterval)
		}
		if cfg.MaxCatchUp != 100 || cfg.BackupWorkFactor != 15 || cfg.ShutdownTimeout != 3*time.Second {
			t.Fatalf("unexpected numeric values: %+v", cfg)
		}
		if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
			t.Fatalf("unexpected logging values: %v %q", cfg.LogLevel, cfg.LogFormat)
		}
	})

	t.Run("aggregates invalid values", func(t *testing.T) {
		clearLedgerEnv(t)
		t.Setenv("LEDGER_HTTP_PORT", "eighty")
		t.Setenv("LEDGER_TIMEZONE", "Mars/Olympus")
		t.Setenv("LEDGER_BACKUP_WORK_FACTOR", "40")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "invalid environment values: LEDGER_HTTP_PORT, LEDGER_TIMEZONE, LEDGER_BACKUP_WORK_FACTOR"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reads missing keys from the dotenv file", func(t *testing.T) {
		clearLedgerEnv(t)
		path := filepath.Join(t.TempDir(), "ledger.env")
		content := "LEDGER_HTTP_PORT=7070\nLEDGER_PIN_HASH=from-file\nLEDGER_SQLITE_PATH=file.db\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv("LEDGER_ENV_FILE", path)
		t.Setenv("LEDGER_SQLITE_PATH", "env.db")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 7070 || cfg.PINHash != "from-file" {
			t.Fatalf("expected values from the dotenv file, got %+v", cfg)
		}
		if cfg.SQLitePath != "env.db" {
			t.Fatalf("expected the environment to win over the file, got %q", cfg.SQLitePath)
		}
		if _, ok := os.LookupEnv("LEDGER_PIN_HASH"); ok {
			t.Fatalf("expected the process environment to stay untouched")
		}
	})
}
