// Package config loads ledger settings from the environment and an optional
// dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/example/pocket-ledger/internal/logging"
)

// Config captures environment driven configuration values for the ledger.
type Config struct {
	HTTPPort           int
	SQLitePath         string
	Location           *time.Location
	GenerationInterval time.Duration
	MaxCatchUp         int
	PINHash            string
	LogLevel           slog.Level
	LogFormat          string
	BackupWorkFactor   int
	BackupPassphrase   string
	ShutdownTimeout    time.Duration
}

// Load parses configuration values from the process environment. Keys missing
// from the environment are looked up in the dotenv file named by
// LEDGER_ENV_FILE (default ".env"), which may be absent. The process
// environment is never modified.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("LEDGER_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	fileValues, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		fileValues = map[string]string{}
	}

	lookup := func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(fileValues[key])
	}
	return parse(lookup)
}

func parse(lookup func(string) string) (Config, error) {
	cfg := Config{
		HTTPPort:           8080,
		SQLitePath:         "ledger.db",
		Location:           time.UTC,
		GenerationInterval: time.Hour,
		MaxCatchUp:         5000,
		LogLevel:           slog.LevelInfo,
		LogFormat:          "json",
		BackupWorkFactor:   18,
		ShutdownTimeout:    10 * time.Second,
	}

	invalid := make([]string, 0, 2)

	if portValue := lookup("LEDGER_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "LEDGER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := lookup("LEDGER_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	if zone := lookup("LEDGER_TIMEZONE"); zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			invalid = append(invalid, "LEDGER_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if intervalValue := lookup("LEDGER_GENERATION_INTERVAL"); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if intervalValue == "0" {
			interval, err = 0, nil
		}
		if err != nil || interval < 0 {
			invalid = append(invalid, "LEDGER_GENERATION_INTERVAL")
		} else {
			cfg.GenerationInterval = interval
		}
	}

	if capValue := lookup("LEDGER_MAX_CATCHUP"); capValue != "" {
		limit, err := strconv.Atoi(capValue)
		if err != nil || limit <= 0 {
			invalid = append(invalid, "LEDGER_MAX_CATCHUP")
		} else {
			cfg.MaxCatchUp = limit
		}
	}

	cfg.PINHash = lookup("LEDGER_PIN_HASH")

	if levelValue := lookup("LEDGER_LOG_LEVEL"); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, "LEDGER_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if format := strings.ToLower(lookup("LEDGER_LOG_FORMAT")); format != "" {
		if format != "json" && format != "text" {
			invalid = append(invalid, "LEDGER_LOG_FORMAT")
		} else {
			cfg.LogFormat = format
		}
	}

	if factorValue := lookup("LEDGER_BACKUP_WORK_FACTOR"); factorValue != "" {
		factor, err := strconv.Atoi(factorValue)
		if err != nil || factor < 1 || factor > 30 {
			invalid = append(invalid, "LEDGER_BACKUP_WORK_FACTOR")
		} else {
			cfg.BackupWorkFactor = factor
		}
	}

	cfg.BackupPassphrase = lookup("LEDGER_BACKUP_PASSPHRASE")

	if timeoutValue := lookup("LEDGER_SHUTDOWN_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "LEDGER_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
