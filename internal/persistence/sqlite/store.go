package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/example/pocket-ledger/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store bundles the ledger repositories over one connection pool.
type Store struct {
	pool         *ConnectionPool
	logger       *slog.Logger
	Rules        *RuleRepository
	Transactions *TransactionRepository
	Generation   *GenerationRepository
}

// Open connects to the database described by cfg and applies pending migrations.
func Open(ctx context.Context, cfg migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}

	store := &Store{
		pool:         pool,
		logger:       logger,
		Rules:        NewRuleRepository(pool),
		Transactions: NewTransactionRepository(pool),
		Generation:   NewGenerationRepository(pool),
	}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	source, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: open embedded migrations: %w", err)
	}
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		source,
		s.logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}

	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: migration status: %w", err)
	}
	s.logger.DebugContext(ctx, "schema ready",
		"schema_version", status.CurrentVersion,
		"applied", len(status.AppliedMigrations),
	)
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

var (
	_ persistence.RuleRepository        = (*RuleRepository)(nil)
	_ persistence.TransactionRepository = (*TransactionRepository)(nil)
	_ persistence.GenerationRepository  = (*GenerationRepository)(nil)
)
