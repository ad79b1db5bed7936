// Package metrics records one row per provider invocation and computes
// per-provider latency percentiles and cache hit rates over a lookback
// window. Recording is fire-and-forget: callers treat failures as
// non-fatal and only log them.
package metrics

import (
	"context"
	"math"
	"sort"
	"time"
)

// Entry is a single provider invocation record. Rows are immutable once
// written.
type Entry struct {
	Timestamp time.Time
	Provider  string
	Query     string
	CacheHit  bool

	// ResultCount and ElapsedMs describe a completed invocation; they are
	// not persisted when ErrorMessage is set.
	ResultCount int
	ElapsedMs   int64

	// ErrorMessage marks a failed invocation.
	ErrorMessage string
}

// ProviderStats aggregates one provider's invocations within a lookback
// window.
type ProviderStats struct {
	RequestCount int64   `json:"request_count"`
	ErrorCount   int64   `json:"error_count"`
	P50          int64   `json:"p50_ms"`
	P95          int64   `json:"p95_ms"`
	P99          int64   `json:"p99_ms"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Sink is the metrics persistence contract.
type Sink interface {
	// Record appends one invocation row.
	Record(ctx context.Context, e Entry) error

	// Stats aggregates per-provider statistics over the lookback window.
	Stats(ctx context.Context, lookback time.Duration) (map[string]ProviderStats, error)
}

// Percentile returns the nearest-rank percentile of sorted ascending
// samples: index ceil(n*p)-1, clamped to [0, n-1]. Not interpolated.
// An empty sample set yields 0.
func Percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// computeStats builds ProviderStats from raw samples.
func computeStats(requests, errors, hits int64, elapsed []int64) ProviderStats {
	sort.Slice(elapsed, func(i, j int) bool { return elapsed[i] < elapsed[j] })

	stats := ProviderStats{
		RequestCount: requests,
		ErrorCount:   errors,
		P50:          Percentile(elapsed, 0.50),
		P95:          Percentile(elapsed, 0.95),
		P99:          Percentile(elapsed, 0.99),
	}
	if requests > 0 {
		stats.CacheHitRate = float64(hits) / float64(requests)
	}
	return stats
}
