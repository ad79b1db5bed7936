package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codesweep/codesweep/internal/metrics"
)

// EngineConfig carries the already-resolved settings the engine needs.
// The engine performs no environment access of its own.
type EngineConfig struct {
	// DefaultTTL is the cache TTL applied when a query carries no
	// override (default: 1h).
	DefaultTTL time.Duration

	// DefaultLimit is applied when a query has no positive limit
	// (default: 20). The engine enforces no upper bound; that is the
	// caller-facing boundary's job.
	DefaultLimit int
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTTL:   time.Hour,
		DefaultLimit: 20,
	}
}

// Engine orchestrates cache lookup, parallel provider fan-out,
// partial-failure collection, dedup/re-rank, and cache population.
// One Engine instance is constructed at process start and shared by all
// request-handling tasks.
type Engine struct {
	registry *Registry
	cache    Cache
	metrics  metrics.Sink
	config   EngineConfig

	// hot is an optional in-process LRU in front of the durable cache.
	hot *lru.Cache[string, hotEntry]
}

type hotEntry struct {
	resp      *Response
	expiresAt time.Time
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithMetrics sets an optional metrics sink. When set, every provider
// invocation (attempt or cache hit) is recorded best-effort.
func WithMetrics(sink metrics.Sink) EngineOption {
	return func(e *Engine) {
		e.metrics = sink
	}
}

// WithHotCache adds an in-process LRU of the given size in front of the
// durable cache. Entries honor the same TTL as their durable twins.
func WithHotCache(size int) EngineOption {
	return func(e *Engine) {
		if size <= 0 {
			return
		}
		// lru.New only errors on non-positive size
		e.hot, _ = lru.New[string, hotEntry](size)
	}
}

// NewEngine creates the aggregation engine. The registry and cache are
// required; metrics are optional.
func NewEngine(registry *Registry, cache Cache, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: provider registry is required", ErrNilDependency)
	}
	if cache == nil {
		return nil, fmt.Errorf("%w: cache is required", ErrNilDependency)
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultEngineConfig().DefaultTTL
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultEngineConfig().DefaultLimit
	}

	e := &Engine{
		registry: registry,
		cache:    cache,
		config:   config,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// settled is one fully completed provider invocation. Outcomes are
// written into per-invocation slots and only merged after every
// invocation has settled, so the accumulators see no interleaved writes.
type settled struct {
	provider string
	results  []Result
	elapsed  time.Duration
	err      error
}

// Search executes one federated query. Provider-level failures are
// surfaced as response data, never as an error; cache and metrics
// failures are logged and swallowed. For a well-formed query Search
// does not fail: total provider loss yields a valid response with empty
// results and a populated failures list.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()

	if q.Limit <= 0 {
		q.Limit = e.config.DefaultLimit
	}
	q = Normalize(q)
	key := CacheKey(q)

	if resp, ok := e.lookupCache(ctx, key); ok {
		e.recordCacheHit(ctx, q)
		hit := *resp
		hit.ServedFromCache = true
		hit.SearchElapsedMs = resp.TotalElapsedMs
		hit.TotalElapsedMs = time.Since(start).Milliseconds()
		return &hit, nil
	}

	active := e.registry.Resolve(q.Providers)

	// Fan-out, wait-all: every active provider runs to completion, no
	// invocation is cancelled because another finished or failed. Each
	// adapter bounds its own request duration.
	outcomes := make([]settled, len(active))
	var g errgroup.Group
	for i, p := range active {
		g.Go(func() error {
			invokeStart := time.Now()
			results, err := p.Search(ctx, q)
			outcomes[i] = settled{
				provider: p.ID(),
				results:  results,
				elapsed:  time.Since(invokeStart),
				err:      err,
			}
			return nil
		})
	}
	_ = g.Wait()

	// Collect per-invocation outcomes in normalized provider order.
	merged := make([]Result, 0)
	failures := make([]ProviderFailure, 0)
	for _, out := range outcomes {
		if out.err != nil {
			failure := classifyFailure(out.provider, out.err)
			failures = append(failures, failure)
			e.record(ctx, metrics.Entry{
				Timestamp:    time.Now(),
				Provider:     out.provider,
				Query:        q.Text,
				ErrorMessage: failure.Message,
			})
			continue
		}
		merged = append(merged, out.results...)
		e.record(ctx, metrics.Entry{
			Timestamp:   time.Now(),
			Provider:    out.provider,
			Query:       q.Text,
			ResultCount: len(out.results),
			ElapsedMs:   out.elapsed.Milliseconds(),
		})
	}

	results := Aggregate(merged, q.Limit)

	resp := &Response{
		Query:          q,
		Results:        results,
		Total:          len(results),
		TotalElapsedMs: time.Since(start).Milliseconds(),
		Failures:       failures,
	}

	e.storeCache(ctx, key, q, resp)

	return resp, nil
}

// lookupCache consults the hot cache then the durable cache. Any cache
// error reads as a miss; the request must not fail on infrastructure.
func (e *Engine) lookupCache(ctx context.Context, key string) (*Response, bool) {
	if e.hot != nil {
		if entry, ok := e.hot.Get(key); ok {
			if time.Now().Before(entry.expiresAt) {
				return entry.resp, true
			}
			e.hot.Remove(key)
		}
	}

	resp, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false
	}
	return resp, ok
}

// storeCache persists the response best-effort: a failed write is logged
// and otherwise invisible to the caller.
func (e *Engine) storeCache(ctx context.Context, key string, q Query, resp *Response) {
	ttl := e.config.DefaultTTL
	if q.CacheTTL > 0 {
		ttl = time.Duration(q.CacheTTL) * time.Second
	}

	if err := e.cache.Set(ctx, key, resp, ttl); err != nil {
		slog.Warn("cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}

	if e.hot != nil && ttl > 0 {
		e.hot.Add(key, hotEntry{resp: resp, expiresAt: time.Now().Add(ttl)})
	}
}

// recordCacheHit writes a cache-hit metric for every provider in the
// normalized query: each of them was spared a call, so each one's hit
// rate must reflect it.
func (e *Engine) recordCacheHit(ctx context.Context, q Query) {
	for _, id := range q.Providers {
		e.record(ctx, metrics.Entry{
			Timestamp: time.Now(),
			Provider:  id,
			Query:     q.Text,
			CacheHit:  true,
		})
	}
}

// record writes one metrics row best-effort.
func (e *Engine) record(ctx context.Context, entry metrics.Entry) {
	if e.metrics == nil {
		return
	}
	if err := e.metrics.Record(ctx, entry); err != nil {
		slog.Warn("metrics write failed",
			slog.String("provider", entry.Provider),
			slog.String("error", err.Error()))
	}
}

// classifyFailure converts a provider error into response data. A
// provider-supplied kind is preserved; context deadlines map to TIMEOUT;
// anything else is UNKNOWN.
func classifyFailure(providerID string, err error) ProviderFailure {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return ProviderFailure{
			Provider: perr.Provider,
			Message:  perr.Message,
			Kind:     perr.Kind,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ProviderFailure{
			Provider: providerID,
			Message:  err.Error(),
			Kind:     FailureTimeout,
		}
	}
	return ProviderFailure{
		Provider: providerID,
		Message:  err.Error(),
		Kind:     FailureUnknown,
	}
}

// ValidateProviders runs every registered provider's health check
// concurrently and returns id -> healthy.
func (e *Engine) ValidateProviders(ctx context.Context) map[string]bool {
	ids := e.registry.IDs()
	healthy := make([]bool, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		p, ok := e.registry.Get(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			healthy[i] = p.Validate(ctx)
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]bool, len(ids))
	for i, id := range ids {
		result[id] = healthy[i]
	}
	return result
}

// Providers returns the registered provider ids, sorted.
func (e *Engine) Providers() []string {
	return e.registry.IDs()
}
