// Package search implements the federated search aggregation engine.
// A single logical query is fanned out to multiple upstream code-search
// providers, and the combined results are deduplicated, re-ranked, and
// cached under a deterministic key.
package search

import (
	"context"
	"fmt"
	"time"
)

// Query is a single logical search request addressed to one or more providers.
// Field order is load-bearing: the canonical JSON serialization of a
// normalized Query feeds the cache key.
type Query struct {
	// Text is the search text sent to every provider.
	Text string `json:"text"`

	// Providers lists the provider ids to fan out to (e.g. "github",
	// "sourcegraph"). Normalized form is sorted ascending and deduplicated.
	Providers []string `json:"providers"`

	// Filters narrows the search. Unset fields are stripped from the
	// canonical serialization.
	Filters FilterSet `json:"filters"`

	// Limit is the maximum number of results in the final response.
	Limit int `json:"limit"`

	// CacheTTL overrides the configured default cache TTL in seconds
	// when greater than zero.
	CacheTTL int `json:"cache_ttl,omitempty"`
}

// FilterSet is a sparse set of optional search filters.
// Zero values mean "not set" and are omitted from serialization, so a
// query with an explicitly empty filter hashes identically to one that
// never mentioned it.
type FilterSet struct {
	Language  string `json:"language,omitempty"`
	Repo      string `json:"repo,omitempty"`
	Org       string `json:"org,omitempty"`
	Path      string `json:"path,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Extension string `json:"extension,omitempty"`
	UseRegex  bool   `json:"use_regex,omitempty"`
}

// Result is one code-search hit in the common shape all providers
// normalize into.
type Result struct {
	// PermalinkURL is the canonical browser URL for this hit and the
	// identity used for deduplication across providers.
	PermalinkURL string `json:"permalink_url"`

	// RawContentURL points at the raw file content, when the provider
	// exposes one.
	RawContentURL string `json:"raw_content_url,omitempty"`

	// Repo is the repository identifier in owner/name form.
	Repo string `json:"repo"`

	// FilePath is the path of the matched file within the repository.
	FilePath string `json:"file_path"`

	// StartLine and EndLine bound the matched region (1-indexed).
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// Snippet is the matched content excerpt.
	Snippet string `json:"snippet"`

	// Language is the file's programming language, when known.
	Language string `json:"language,omitempty"`

	// Stars is the repository star count, used as a popularity signal
	// during re-ranking.
	Stars int `json:"stars"`

	// Provider is the id of the provider that produced this result.
	Provider string `json:"provider"`

	// Score is the provider-assigned relevance in [0, 1].
	Score float64 `json:"score"`
}

// FailureKind classifies a provider failure.
type FailureKind string

const (
	FailureRateLimit FailureKind = "RATE_LIMIT"
	FailureAuth      FailureKind = "AUTH"
	FailureTimeout   FailureKind = "TIMEOUT"
	FailureUnknown   FailureKind = "UNKNOWN"
)

// ProviderFailure records one failed provider invocation. Failures are
// response data, never errors: a failing provider cannot abort the request.
type ProviderFailure struct {
	Provider string      `json:"provider"`
	Message  string      `json:"message"`
	Kind     FailureKind `json:"kind"`
}

// Response is the aggregated answer to one Query.
type Response struct {
	// Query is the normalized query that produced this response.
	Query Query `json:"query"`

	// Results holds at most Query.Limit results, ranked best first.
	Results []Result `json:"results"`

	// Total is len(Results).
	Total int `json:"total"`

	// ServedFromCache is true when the response was returned from the
	// cache without invoking any provider.
	ServedFromCache bool `json:"served_from_cache"`

	// TotalElapsedMs is the wall time of this call.
	TotalElapsedMs int64 `json:"total_elapsed_ms"`

	// SearchElapsedMs is the original search's wall time; present only
	// when ServedFromCache is true.
	SearchElapsedMs int64 `json:"search_elapsed_ms,omitempty"`

	// Failures lists providers that failed during fan-out, in normalized
	// provider order.
	Failures []ProviderFailure `json:"failures"`
}

// Capabilities describes what an individual provider supports.
// New providers register under an id without engine changes.
type Capabilities struct {
	// SupportsRegex indicates the provider understands regex query text.
	SupportsRegex bool

	// SupportsOrgFilter indicates the provider can scope to an organization.
	SupportsOrgFilter bool

	// MaxLimit is the largest per-request result count the provider
	// accepts (0 = no documented bound).
	MaxLimit int
}

// Provider is an upstream code-search backend wrapped behind the common
// contract. Implementations bound their own request duration and surface
// a TIMEOUT-kind failure when exceeded; the engine imposes no deadline.
type Provider interface {
	// ID returns the stable provider identifier.
	ID() string

	// Search executes a normalized query and returns results in the
	// common shape. Errors should be *ProviderError where the failure
	// kind is known.
	Search(ctx context.Context, q Query) ([]Result, error)

	// Validate performs a best-effort connectivity and credential check.
	// It must not panic and should not be used to gate Search.
	Validate(ctx context.Context) bool

	// Capabilities describes the provider's feature set.
	Capabilities() Capabilities
}

// ProviderError is the error type provider adapters return from Search.
// The engine preserves its Kind when building the ProviderFailure entry.
type ProviderError struct {
	Provider string
	Message  string
	Kind     FailureKind
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Kind)
}

// Cache is the narrow cache contract the engine consumes.
// Implementations must be safe for concurrent callers; the engine adds
// no locking of its own.
type Cache interface {
	// Get returns the cached response for key, or ok=false on a miss.
	// Expired entries read as misses.
	Get(ctx context.Context, key string) (resp *Response, ok bool, err error)

	// Set upserts the response under key with the given TTL.
	// ttl <= 0 produces an already-expired entry.
	Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error
}
