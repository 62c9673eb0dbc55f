package unlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// flagQueries holds the dialect-specific statements for a SQL flag store
type flagQueries struct {
	read   string
	upsert string
	remove string
}

var (
	sqliteQueries = flagQueries{
		read:   `SELECT value FROM unlock_flags WHERE key = ?`,
		upsert: `INSERT INTO unlock_flags (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		remove: `DELETE FROM unlock_flags WHERE key = ?`,
	}

	postgresQueries = flagQueries{
		read:   `SELECT value FROM unlock_flags WHERE key = $1`,
		upsert: `INSERT INTO unlock_flags (key, value, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		remove: `DELETE FROM unlock_flags WHERE key = $1`,
	}
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS unlock_flags (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLStore implements FlagStore on a database/sql handle
type SQLStore struct {
	db      *sql.DB
	key     string
	queries flagQueries
	owned   bool
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path and
// stores the flag under key.
func NewSQLiteStore(path, key string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLStore{db: db, key: keyOrDefault(key), queries: sqliteQueries, owned: true}, nil
}

// NewPostgresStore stores the flag in the unlock_flags table of an existing
// PostgreSQL database. The table is created by the migrations.
func NewPostgresStore(db *sql.DB, key string) *SQLStore {
	return &SQLStore{db: db, key: keyOrDefault(key), queries: postgresQueries}
}

// ReadFlag returns the stored flag; no row means locked
func (s *SQLStore) ReadFlag(ctx context.Context) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.queries.read, s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read unlock flag: %w", err)
	}
	return parseFlag(raw)
}

// WriteFlag stores true or removes the row for false
func (s *SQLStore) WriteFlag(ctx context.Context, unlocked bool) error {
	var err error
	if unlocked {
		_, err = s.db.ExecContext(ctx, s.queries.upsert, s.key, flagTrue)
	} else {
		_, err = s.db.ExecContext(ctx, s.queries.remove, s.key)
	}
	if err != nil {
		return fmt.Errorf("failed to write unlock flag: %w", err)
	}
	return nil
}

// Close closes the database if the store opened it
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func keyOrDefault(key string) string {
	if key == "" {
		return DefaultKey
	}
	return key
}
