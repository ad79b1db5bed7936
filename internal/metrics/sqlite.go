package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codesweep/codesweep/internal/store"
)

// SQLiteSink implements Sink over the shared store's search_metrics table.
type SQLiteSink struct {
	db *sql.DB
}

var _ Sink = (*SQLiteSink)(nil)

// NewSQLiteSink creates a metrics sink backed by the shared store.
func NewSQLiteSink(st *store.Store) (*SQLiteSink, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &SQLiteSink{db: st.DB()}, nil
}

// Record appends one invocation row. Failed invocations persist only the
// error message; completed ones persist result count and elapsed time.
func (s *SQLiteSink) Record(ctx context.Context, e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var resultCount, elapsedMs, errMsg any
	if e.ErrorMessage != "" {
		errMsg = e.ErrorMessage
	} else {
		resultCount = e.ResultCount
		elapsedMs = e.ElapsedMs
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_metrics (timestamp, provider, query, cache_hit, result_count, elapsed_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ts.Unix(), e.Provider, e.Query, boolToInt(e.CacheHit), resultCount, elapsedMs, errMsg)
	if err != nil {
		return fmt.Errorf("insert metric row: %w", err)
	}
	return nil
}

// Stats aggregates per-provider request counts, error counts, cache hit
// rate, and nearest-rank latency percentiles within the lookback window.
func (s *SQLiteSink) Stats(ctx context.Context, lookback time.Duration) (map[string]ProviderStats, error) {
	since := time.Now().Add(-lookback).Unix()

	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, cache_hit, elapsed_ms, error
		FROM search_metrics
		WHERE timestamp >= ?
		ORDER BY provider, id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	type accum struct {
		requests int64
		errors   int64
		hits     int64
		elapsed  []int64
	}
	byProvider := make(map[string]*accum)

	for rows.Next() {
		var provider string
		var cacheHit int
		var elapsed sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(&provider, &cacheHit, &elapsed, &errMsg); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}

		a, ok := byProvider[provider]
		if !ok {
			a = &accum{}
			byProvider[provider] = a
		}

		a.requests++
		if cacheHit != 0 {
			a.hits++
		}
		if errMsg.Valid {
			a.errors++
		}
		// Cache hits cost no provider round trip; excluding them keeps the
		// percentiles describing real upstream latency.
		if elapsed.Valid && cacheHit == 0 {
			a.elapsed = append(a.elapsed, elapsed.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}

	result := make(map[string]ProviderStats, len(byProvider))
	for provider, a := range byProvider {
		result[provider] = computeStats(a.requests, a.errors, a.hits, a.elapsed)
	}
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
