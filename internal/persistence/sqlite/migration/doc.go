// Package migration applies versioned SQL schema changes to a SQLite database.
//
// Migrations are read from an fs.FS, usually an embedded directory, and must be
// named {version}_{description}.sql (for example "001_ledger_schema.sql").
// Each migration runs in its own transaction together with its row in the
// schema_migrations table, so a failed file leaves no trace.
//
// Example usage:
//
//	manager := NewMigrationManager(NewFileScanner(), NewSQLiteExecutor(db), migrationsFS, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
