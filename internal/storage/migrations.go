package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// schema lists the journal migrations in order. Entry i brings the database
// to PRAGMA user_version i+1; entries are never edited once released.
var schema = []struct {
	name       string
	statements []string
}{
	{
		name: "transaction journal",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				hash TEXT UNIQUE NOT NULL,
				email_id TEXT UNIQUE,
				date DATETIME NOT NULL,
				merchant TEXT NOT NULL,
				narration TEXT,
				amount TEXT NOT NULL,
				currency TEXT NOT NULL,
				card TEXT,
				account TEXT NOT NULL,
				category TEXT NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX idx_transactions_date ON transactions(date)`,
			`CREATE INDEX idx_transactions_category ON transactions(category)`,
		},
	},
	{
		name: "transaction source",
		statements: []string{
			`ALTER TABLE transactions ADD COLUMN source TEXT NOT NULL DEFAULT 'email'`,
			`CREATE INDEX idx_transactions_source ON transactions(source)`,
		},
	},
}

// ExpectedSchemaVersion is the user_version of a fully migrated journal.
var ExpectedSchemaVersion = len(schema)

func (s *SQLiteStorage) schemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read journal version: %w", err)
	}
	return v, nil
}

// Migrate brings the journal schema up to date. A journal written by a newer
// release is rejected rather than modified.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > ExpectedSchemaVersion {
		return fmt.Errorf("journal %s has schema version %d, this build knows %d", s.path, current, ExpectedSchemaVersion)
	}

	for v := current + 1; v <= ExpectedSchemaVersion; v++ {
		if err := s.applyVersion(ctx, v); err != nil {
			return err
		}
		slog.Info("Journal migrated", "version", v, "step", schema[v-1].name)
	}
	return nil
}

// applyVersion runs one migration and bumps user_version in the same transaction.
func (s *SQLiteStorage) applyVersion(ctx context.Context, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema[version-1].statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("journal migration %d (%s): %w", version, schema[version-1].name, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to record journal version %d: %w", version, err)
	}
	return tx.Commit()
}
