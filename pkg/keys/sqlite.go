package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// migrations is an ordered list of SQL statements applied on open.
// Each entry is idempotent so re-running is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS secrets (
		kind           TEXT NOT NULL,
		logical_device INTEGER NOT NULL,
		session        INTEGER NOT NULL,
		value          BLOB NOT NULL,
		PRIMARY KEY (kind, logical_device, session)
	)`,
}

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) a SQLite database at path and runs
// migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("keys: open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("keys: migration: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Put stores value for (kind, ref), replacing any previous value.
func (s *SQLiteStore) Put(ctx context.Context, kind Kind, ref Ref, value []byte) error {
	if err := kind.validate(value); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (kind, logical_device, session, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, logical_device, session) DO UPDATE SET value = excluded.value`,
		kind.String(), int64(ref.LogicalDevice), int64(ref.Session), value)
	if err != nil {
		return fmt.Errorf("keys: put %s: %w", kind, err)
	}
	return nil
}

// Delete removes the value stored for (kind, ref).
func (s *SQLiteStore) Delete(ctx context.Context, kind Kind, ref Ref) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM secrets WHERE kind = ? AND logical_device = ? AND session = ?`,
		kind.String(), int64(ref.LogicalDevice), int64(ref.Session))
	return err
}

// Lookup returns the value stored for (kind, ref).
func (s *SQLiteStore) Lookup(kind Kind, ref Ref) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(
		`SELECT value FROM secrets WHERE kind = ? AND logical_device = ? AND session = ?`,
		kind.String(), int64(ref.LogicalDevice), int64(ref.Session)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keys: lookup %s: %w", kind, err)
	}
	return value, nil
}

// Count returns the number of stored values.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM secrets`).Scan(&n)
	return n, err
}
