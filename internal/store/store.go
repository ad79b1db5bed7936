// Package store provides the shared SQLite persistence for codesweep.
// A single on-disk database holds both the response cache and the
// append-only search metrics; the cache and metrics packages layer their
// contracts on top of the *sql.DB opened here.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Store wraps the shared SQLite database.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// DefaultPath returns the default database path (~/.codesweep/codesweep.db).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codesweep", "codesweep.db")
	}
	return filepath.Join(home, ".codesweep", "codesweep.db")
}

// Open opens or creates the shared database at path and applies schema
// migrations. Safe for concurrent processes: WAL mode plus busy_timeout
// handle lock contention.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN params
	// may be ignored by the driver.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{
		db:   db,
		path: path,
		lock: flock.New(path + ".lock"),
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the cache and metrics tables if they don't exist.
func (s *Store) initSchema() error {
	schema := `
	-- Response cache keyed by the normalized-query hash.
	-- Expired rows persist until overwritten or explicitly cleared.
	CREATE TABLE IF NOT EXISTS cache_entries (
		key        TEXT PRIMARY KEY,
		response   TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	-- One row per provider invocation (attempt or cache hit), append-only.
	CREATE TABLE IF NOT EXISTS search_metrics (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp    INTEGER NOT NULL,
		provider     TEXT NOT NULL,
		query        TEXT NOT NULL,
		cache_hit    INTEGER NOT NULL DEFAULT 0,
		result_count INTEGER,
		elapsed_ms   INTEGER,
		error        TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_search_metrics_provider_ts
		ON search_metrics(provider, timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// DB exposes the underlying database for the cache and metrics layers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the on-disk database path.
func (s *Store) Path() string {
	return s.path
}

// WithExclusiveLock runs fn while holding the store's file lock.
// Used for destructive maintenance (cache clear) so two processes don't
// race on the same teardown.
func (s *Store) WithExclusiveLock(fn func() error) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
