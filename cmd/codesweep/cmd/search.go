package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/output"
	"github.com/codesweep/codesweep/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	providers []string
	limit     int
	language  string
	repo      string
	org       string
	path      string
	filename  string
	extension string
	regex     bool
	format    string // "text", "json"
	ttl       int    // cache TTL override in seconds
	noCache   bool   // drop any cached response for this query first
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search code across the configured providers",
		Long: `Run one federated code search. Results from all providers are
merged, deduplicated by permalink, and ordered by relevance weighted
with repository stars.

Examples:
  codesweep search "nftables limit rate" --language yaml --limit 5
  codesweep search "func NewServer" --providers github
  codesweep search "errgroup\\.WithContext" --regex --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.providers, "providers", "p", nil, "Provider ids to query (default: all configured)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of merged results")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, yaml)")
	cmd.Flags().StringVar(&opts.repo, "repo", "", "Filter by repository (owner/name)")
	cmd.Flags().StringVar(&opts.org, "org", "", "Filter by owning organization")
	cmd.Flags().StringVar(&opts.path, "path", "", "Filter by path prefix")
	cmd.Flags().StringVar(&opts.filename, "filename", "", "Filter by file name")
	cmd.Flags().StringVar(&opts.extension, "extension", "", "Filter by file extension (without dot)")
	cmd.Flags().BoolVar(&opts.regex, "regex", false, "Treat the query as a regular expression where supported")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVar(&opts.ttl, "ttl", 0, "Cache TTL override in seconds (0 uses the configured default)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Ignore any cached response for this query")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.limit < 0 {
		return fmt.Errorf("limit must be a positive integer")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := output.New(cmd.OutOrStdout())

	providers := opts.providers
	if len(providers) == 0 {
		providers = a.cfg.Search.DefaultProviders
	}

	q := search.Query{
		Text:      query,
		Providers: providers,
		Limit:     opts.limit,
		CacheTTL:  opts.ttl,
		Filters: search.FilterSet{
			Language:  opts.language,
			Repo:      opts.repo,
			Org:       opts.org,
			Path:      opts.path,
			Filename:  opts.filename,
			Extension: opts.extension,
			UseRegex:  opts.regex,
		},
	}

	// The cache key is exact, so clearing by it as a substring removes
	// at most the one entry.
	if opts.noCache {
		if q.Limit <= 0 {
			q.Limit = a.cfg.Search.DefaultLimit
		}
		key := search.CacheKey(search.Normalize(q))
		if _, err := a.cache.Clear(ctx, key); err != nil {
			slog.Warn("failed to drop cached response", slog.String("error", err.Error()))
		}
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", q.Limit))

	resp, err := a.engine.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	slog.Info("search_complete",
		slog.Int("results", resp.Total),
		slog.Bool("cached", resp.ServedFromCache),
		slog.Int64("elapsed_ms", resp.TotalElapsedMs))

	switch opts.format {
	case "json":
		return out.JSON(resp)
	default:
		out.Response(resp)
		return nil
	}
}
