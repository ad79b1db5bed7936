// Package cache provides the durable response cache: a key-value mapping
// from normalized-query hashes to serialized responses with expiry.
//
// Expired rows are never swept proactively; they persist until
// overwritten on key collision or removed by an explicit clear. That is
// a deliberate simplicity trade-off inherited from the storage design.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codesweep/codesweep/internal/search"
	"github.com/codesweep/codesweep/internal/store"
)

// Stats summarizes the cache contents.
type Stats struct {
	// EntryCount counts non-expired entries only.
	EntryCount int64 `json:"entry_count"`

	// ApproximateSizeBytes is the summed length of stored responses.
	ApproximateSizeBytes int64 `json:"approximate_size_bytes"`

	// OldestEntry is the creation time of the oldest stored row, nil
	// when the cache is empty.
	OldestEntry *time.Time `json:"oldest_entry,omitempty"`
}

// Store is the durable response cache over the shared SQLite store.
// Safe for concurrent callers: writes are serialized by the store's
// single-writer connection pool.
type Store struct {
	st *store.Store
	db *sql.DB
}

var _ search.Cache = (*Store)(nil)

// New creates a cache layer over the shared store.
func New(st *store.Store) (*Store, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Store{st: st, db: st.DB()}, nil
}

// Get returns the cached response for key. Expired entries read as
// misses but are left in place. Get never mutates state.
func (c *Store) Get(ctx context.Context, key string) (*search.Response, bool, error) {
	var payload string
	var expiresAt int64
	err := c.db.QueryRowContext(ctx, `
		SELECT response, expires_at FROM cache_entries WHERE key = ?
	`, key).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	if time.Now().Unix() >= expiresAt {
		return nil, false, nil
	}

	var resp search.Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		// A corrupt row reads as a miss; it will be overwritten by the
		// next store for this key.
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return &resp, true, nil
}

// Set upserts the response under key. Last write for a key wins.
// ttl <= 0 is legal and produces an already-expired entry.
func (c *Store) Set(ctx context.Context, key string, resp *search.Response, ttl time.Duration) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	now := time.Now()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, response, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			response   = excluded.response,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, string(payload), now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Clear removes entries whose key contains pattern as a substring; an
// empty pattern clears everything. Returns the number of removed rows.
// The store's file lock guards against two processes clearing at once.
func (c *Store) Clear(ctx context.Context, pattern string) (int64, error) {
	var removed int64
	err := c.st.WithExclusiveLock(func() error {
		var res sql.Result
		var err error
		if pattern == "" {
			res, err = c.db.ExecContext(ctx, `DELETE FROM cache_entries`)
		} else {
			res, err = c.db.ExecContext(ctx,
				`DELETE FROM cache_entries WHERE key LIKE ?`, "%"+pattern+"%")
		}
		if err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

// ClearExpired removes rows whose expiry has passed. Operator escape
// hatch for the no-proactive-sweep policy.
func (c *Store) ClearExpired(ctx context.Context) (int64, error) {
	var removed int64
	err := c.st.WithExclusiveLock(func() error {
		res, err := c.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("clear expired cache entries: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

// Stats reports the non-expired entry count, approximate stored bytes,
// and the oldest entry's creation time.
func (c *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cache_entries WHERE expires_at > ?
	`, time.Now().Unix()).Scan(&stats.EntryCount)
	if err != nil {
		return nil, fmt.Errorf("count cache entries: %w", err)
	}

	var size sql.NullInt64
	err = c.db.QueryRowContext(ctx,
		`SELECT SUM(LENGTH(response)) FROM cache_entries`).Scan(&size)
	if err != nil {
		return nil, fmt.Errorf("sum cache sizes: %w", err)
	}
	if size.Valid {
		stats.ApproximateSizeBytes = size.Int64
	}

	var oldest sql.NullInt64
	err = c.db.QueryRowContext(ctx,
		`SELECT MIN(created_at) FROM cache_entries`).Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("find oldest cache entry: %w", err)
	}
	if oldest.Valid {
		t := time.Unix(oldest.Int64, 0)
		stats.OldestEntry = &t
	}

	return stats, nil
}
