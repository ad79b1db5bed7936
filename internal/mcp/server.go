package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codesweep/codesweep/internal/cache"
	"github.com/codesweep/codesweep/internal/config"
	"github.com/codesweep/codesweep/internal/metrics"
	"github.com/codesweep/codesweep/internal/search"
	"github.com/codesweep/codesweep/pkg/version"
)

// Server is the MCP server exposing federated code search.
type Server struct {
	mcp     *mcp.Server
	engine  *search.Engine
	cache   *cache.Store
	metrics metrics.Sink
	config  *config.Config
	logger  *slog.Logger
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"the code search query to execute"`
	Providers  []string `json:"providers,omitempty" jsonschema:"provider ids to query, default all configured"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of merged results, default 20"`
	Language   string   `json:"language,omitempty" jsonschema:"filter by programming language, e.g. go, yaml"`
	Repo       string   `json:"repo,omitempty" jsonschema:"filter by repository as owner/name"`
	Org        string   `json:"org,omitempty" jsonschema:"filter by owning organization"`
	Path       string   `json:"path,omitempty" jsonschema:"filter by path prefix"`
	Filename   string   `json:"filename,omitempty" jsonschema:"filter by file name"`
	Extension  string   `json:"extension,omitempty" jsonschema:"filter by file extension without dot"`
	Regex      bool     `json:"regex,omitempty" jsonschema:"treat the query as a regular expression where supported"`
	TTLSeconds int      `json:"ttl_seconds,omitempty" jsonschema:"cache lifetime override for this query in seconds"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results         []ResultOutput  `json:"results" jsonschema:"merged and re-ranked results"`
	Total           int             `json:"total" jsonschema:"number of results after dedup and truncation"`
	ServedFromCache bool            `json:"served_from_cache" jsonschema:"true when answered from the response cache"`
	ElapsedMs       int64           `json:"elapsed_ms" jsonschema:"wall time of this call in milliseconds"`
	Failures        []FailureOutput `json:"failures" jsonschema:"providers that failed, empty on full success"`
}

// ResultOutput defines a single result.
type ResultOutput struct {
	Repo      string  `json:"repo" jsonschema:"repository as owner/name"`
	FilePath  string  `json:"file_path" jsonschema:"path of the matched file"`
	StartLine int     `json:"start_line,omitempty" jsonschema:"first matched line, 1-based"`
	EndLine   int     `json:"end_line,omitempty" jsonschema:"last matched line, 1-based"`
	Snippet   string  `json:"snippet,omitempty" jsonschema:"matched content excerpt"`
	Language  string  `json:"language,omitempty" jsonschema:"programming language of the file"`
	Stars     int     `json:"stars" jsonschema:"repository star count"`
	Provider  string  `json:"provider" jsonschema:"provider that returned this result"`
	Score     float64 `json:"score" jsonschema:"provider relevance score between 0 and 1"`
	Permalink string  `json:"permalink" jsonschema:"canonical URL of the match"`
	RawURL    string  `json:"raw_url,omitempty" jsonschema:"raw file content URL"`
}

// FailureOutput describes one failed provider.
type FailureOutput struct {
	Provider string `json:"provider" jsonschema:"provider id"`
	Message  string `json:"message" jsonschema:"failure description"`
	Kind     string `json:"kind" jsonschema:"failure kind: RATE_LIMIT, AUTH, TIMEOUT or UNKNOWN"`
}

// CacheStatsInput defines the (empty) input schema for cache_stats.
type CacheStatsInput struct{}

// CacheStatsOutput defines the output schema for cache_stats.
type CacheStatsOutput struct {
	Entries     int    `json:"entries" jsonschema:"live cache entry count"`
	SizeBytes   int64  `json:"size_bytes" jsonschema:"approximate stored response bytes"`
	OldestEntry string `json:"oldest_entry,omitempty" jsonschema:"creation time of the oldest entry, RFC 3339"`
}

// CacheClearInput defines the input schema for cache_clear.
type CacheClearInput struct {
	Pattern     string `json:"pattern,omitempty" jsonschema:"substring matched against cache keys, empty clears everything"`
	ExpiredOnly bool   `json:"expired_only,omitempty" jsonschema:"remove only entries past their TTL"`
}

// CacheClearOutput defines the output schema for cache_clear.
type CacheClearOutput struct {
	Removed int64 `json:"removed" jsonschema:"number of entries removed"`
}

// ProviderStatusInput defines the (empty) input schema for provider_status.
type ProviderStatusInput struct{}

// ProviderStatusOutput defines the output schema for provider_status.
type ProviderStatusOutput struct {
	Providers []ProviderStatus `json:"providers" jsonschema:"configured providers and their health"`
}

// ProviderStatus describes one configured provider.
type ProviderStatus struct {
	ID      string `json:"id" jsonschema:"provider id"`
	Healthy bool   `json:"healthy" jsonschema:"true when the health check succeeded"`
}

// SearchMetricsInput defines the input schema for search_metrics.
type SearchMetricsInput struct {
	LookbackMinutes int `json:"lookback_minutes,omitempty" jsonschema:"stats window in minutes, default 60"`
}

// SearchMetricsOutput defines the output schema for search_metrics.
type SearchMetricsOutput struct {
	Providers map[string]metrics.ProviderStats `json:"providers" jsonschema:"per-provider latency and cache statistics"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine *search.Engine, cacheStore *cache.Store, sink metrics.Sink, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if cacheStore == nil {
		return nil, errors.New("cache store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:  engine,
		cache:   cacheStore,
		metrics: sink,
		config:  cfg,
		logger:  slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "codesweep",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Federated code search across GitHub and Sourcegraph. Results are merged, deduplicated by permalink, and re-ranked by relevance weighted with repository popularity. Responses are cached, so repeated queries are fast.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_stats",
		Description: "Report response cache statistics: live entry count, approximate size, and age of the oldest entry.",
	}, s.mcpCacheStatsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cache_clear",
		Description: "Remove cached responses, either all of them, those whose key matches a substring, or only expired entries.",
	}, s.mcpCacheClearHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "provider_status",
		Description: "Check which search providers are configured and whether each passes its health check.",
	}, s.mcpProviderStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_metrics",
		Description: "Per-provider request counts, error counts, latency percentiles, and cache hit rate over a lookback window.",
	}, s.mcpSearchMetricsHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 5))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	if input.Limit < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("limit must be a positive integer")
	}

	start := time.Now()
	requestID := generateRequestID()

	providers := input.Providers
	if len(providers) == 0 {
		providers = s.engine.Providers()
	}

	q := search.Query{
		Text:      input.Query,
		Providers: providers,
		Limit:     input.Limit,
		CacheTTL:  input.TTLSeconds,
		Filters: search.FilterSet{
			Language:  input.Language,
			Repo:      input.Repo,
			Org:       input.Org,
			Path:      input.Path,
			Filename:  input.Filename,
			Extension: input.Extension,
			UseRegex:  input.Regex,
		},
	}

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", input.Limit))

	resp, err := s.engine.Search(ctx, q)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", resp.Total),
		slog.Bool("cached", resp.ServedFromCache))

	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatResponse(resp)}},
	}
	return result, toSearchOutput(resp), nil
}

// mcpCacheStatsHandler is the MCP SDK handler for the cache_stats tool.
func (s *Server) mcpCacheStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ CacheStatsInput) (
	*mcp.CallToolResult,
	CacheStatsOutput,
	error,
) {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return nil, CacheStatsOutput{}, MapError(err)
	}

	out := CacheStatsOutput{
		Entries:   int(stats.EntryCount),
		SizeBytes: stats.ApproximateSizeBytes,
	}
	if stats.OldestEntry != nil {
		out.OldestEntry = stats.OldestEntry.UTC().Format(time.RFC3339)
	}
	return nil, out, nil
}

// mcpCacheClearHandler is the MCP SDK handler for the cache_clear tool.
func (s *Server) mcpCacheClearHandler(ctx context.Context, _ *mcp.CallToolRequest, input CacheClearInput) (
	*mcp.CallToolResult,
	CacheClearOutput,
	error,
) {
	if input.ExpiredOnly && input.Pattern != "" {
		return nil, CacheClearOutput{}, NewInvalidParamsError("pattern and expired_only are mutually exclusive")
	}

	var removed int64
	var err error
	if input.ExpiredOnly {
		removed, err = s.cache.ClearExpired(ctx)
	} else {
		removed, err = s.cache.Clear(ctx, input.Pattern)
	}
	if err != nil {
		return nil, CacheClearOutput{}, MapError(err)
	}

	s.logger.Info("cache cleared",
		slog.String("pattern", input.Pattern),
		slog.Bool("expired_only", input.ExpiredOnly),
		slog.Int64("removed", removed))

	return nil, CacheClearOutput{Removed: removed}, nil
}

// mcpProviderStatusHandler is the MCP SDK handler for the provider_status tool.
func (s *Server) mcpProviderStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ProviderStatusInput) (
	*mcp.CallToolResult,
	ProviderStatusOutput,
	error,
) {
	health := s.engine.ValidateProviders(ctx)

	out := ProviderStatusOutput{
		Providers: make([]ProviderStatus, 0, len(health)),
	}
	for _, id := range s.engine.Providers() {
		out.Providers = append(out.Providers, ProviderStatus{
			ID:      id,
			Healthy: health[id],
		})
	}
	return nil, out, nil
}

// mcpSearchMetricsHandler is the MCP SDK handler for the search_metrics tool.
func (s *Server) mcpSearchMetricsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchMetricsInput) (
	*mcp.CallToolResult,
	SearchMetricsOutput,
	error,
) {
	if s.metrics == nil {
		return nil, SearchMetricsOutput{}, NewInvalidParamsError("metrics collection is not enabled")
	}

	lookback := time.Duration(input.LookbackMinutes) * time.Minute
	if lookback <= 0 {
		lookback = time.Hour
	}

	stats, err := s.metrics.Stats(ctx, lookback)
	if err != nil {
		return nil, SearchMetricsOutput{}, MapError(err)
	}
	return nil, SearchMetricsOutput{Providers: stats}, nil
}

// toSearchOutput converts an engine response to the tool output schema.
func toSearchOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{
		Results:         make([]ResultOutput, 0, len(resp.Results)),
		Total:           resp.Total,
		ServedFromCache: resp.ServedFromCache,
		ElapsedMs:       resp.TotalElapsedMs,
		Failures:        make([]FailureOutput, 0, len(resp.Failures)),
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, ResultOutput{
			Repo:      r.Repo,
			FilePath:  r.FilePath,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Snippet:   r.Snippet,
			Language:  r.Language,
			Stars:     r.Stars,
			Provider:  r.Provider,
			Score:     r.Score,
			Permalink: r.PermalinkURL,
			RawURL:    r.RawContentURL,
		})
	}
	for _, f := range resp.Failures {
		out.Failures = append(out.Failures, FailureOutput{
			Provider: f.Provider,
			Message:  f.Message,
			Kind:     string(f.Kind),
		})
	}
	return out
}

// Serve runs the server over the given transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
