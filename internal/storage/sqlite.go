// Package storage keeps a SQLite journal of every transaction written to the
// ledger, so scans stay idempotent and spending can be reported.
package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage is the transaction journal.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// journalDSN opens the file in WAL mode so report queries never block the
// scanner, and waits out short write locks held by a concurrent CLI run.
func journalDSN(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	return "file:" + path + "?" + q.Encode()
}

// NewSQLiteStorage opens the journal at path, creating the file and its
// directory when missing. Call Migrate before use.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: journal path", ErrEmptyString)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", journalDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// One writer: the scanner serializes writes, and SQLite locks the whole file anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	return &SQLiteStorage{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
