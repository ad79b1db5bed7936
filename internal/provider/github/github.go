// Package github adapts the GitHub code-search REST API to the provider
// contract. Code-search items carry no star counts, so repository metadata
// is resolved in a second round of lookups behind an LRU.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codesweep/codesweep/internal/search"
)

const (
	// ProviderID is the stable identifier used in queries and config.
	ProviderID = "github"

	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 10 * time.Second

	// maxPerPage is the GitHub code-search page-size ceiling.
	maxPerPage = 100

	// starCacheSize bounds the repo -> star-count LRU. Code-search
	// results cluster heavily on a few repos, so a small cache absorbs
	// nearly all lookups.
	starCacheSize = 512

	// starLookupConcurrency bounds parallel repository metadata fetches
	// so one search cannot burn through the REST rate limit.
	starLookupConcurrency = 4

	// rankDecay converts a zero-based result position into a relevance
	// score in (0,1]. GitHub returns items in relevance order without
	// exposing the score itself.
	rankDecay = 0.15
)

// Config configures the GitHub adapter.
type Config struct {
	// Token is the bearer token. Required; the adapter is only
	// constructed when one is present.
	Token string

	// BaseURL overrides the API root, mainly for tests and GHE.
	BaseURL string

	// Timeout bounds each Search invocation end to end, star lookups
	// included.
	Timeout time.Duration
}

// Provider implements search.Provider over the GitHub REST API.
type Provider struct {
	client  *http.Client
	config  Config
	baseURL string

	stars *lru.Cache[string, int]
}

var _ search.Provider = (*Provider)(nil)

// New creates a GitHub provider. The token is mandatory.
func New(cfg Config) (*Provider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Client timeout stays unset so per-request context deadlines govern.
	transport := &http.Transport{
		MaxIdleConns:        starLookupConcurrency * 2,
		MaxIdleConnsPerHost: starLookupConcurrency * 2,
		IdleConnTimeout:     30 * time.Second,
	}
	client := &http.Client{Transport: transport}

	stars, _ := lru.New[string, int](starCacheSize)

	return &Provider{
		client:  client,
		config:  cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		stars:   stars,
	}, nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string {
	return ProviderID
}

// Capabilities reports what the code-search endpoint supports. Regex
// patterns are not supported by this API surface.
func (p *Provider) Capabilities() search.Capabilities {
	return search.Capabilities{
		SupportsRegex:     false,
		SupportsOrgFilter: true,
		MaxLimit:          maxPerPage,
	}
}

// codeSearchResponse mirrors the subset of GET /search/code we consume.
type codeSearchResponse struct {
	TotalCount int              `json:"total_count"`
	Items      []codeSearchItem `json:"items"`
}

type codeSearchItem struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	SHA         string      `json:"sha"`
	HTMLURL     string      `json:"html_url"`
	Repository  repoSummary `json:"repository"`
	TextMatches []textMatch `json:"text_matches"`
}

type repoSummary struct {
	FullName string `json:"full_name"`
}

type textMatch struct {
	Fragment string `json:"fragment"`
}

type repoDetail struct {
	StargazersCount int    `json:"stargazers_count"`
	Language        string `json:"language"`
}

// Search executes one code-search request plus the star lookups it needs.
func (p *Provider) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	perPage := q.Limit
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	params := url.Values{}
	params.Set("q", buildQuery(q))
	params.Set("per_page", strconv.Itoa(perPage))

	endpoint := p.baseURL + "/search/code?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("github: create request: %w", err)
	}
	// text-match media type includes snippet fragments in the payload
	req.Header.Set("Accept", "application/vnd.github.text-match+json")
	req.Header.Set("Authorization", "Bearer "+p.config.Token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	var parsed codeSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("github: decode response: %w", err)
	}

	results := make([]search.Result, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		results = append(results, search.Result{
			PermalinkURL:  item.HTMLURL,
			RawContentURL: rawContentURL(item),
			Repo:          item.Repository.FullName,
			FilePath:      item.Path,
			Snippet:       firstFragment(item.TextMatches),
			Language:      q.Filters.Language,
			Provider:      ProviderID,
			Score:         relevanceForRank(i),
		})
	}

	p.resolveStars(ctx, results)

	return results, nil
}

// buildQuery assembles the code-search query string from the text and
// the filter qualifiers the endpoint understands.
func buildQuery(q search.Query) string {
	parts := []string{q.Text}
	f := q.Filters
	if f.Language != "" {
		parts = append(parts, "language:"+f.Language)
	}
	if f.Repo != "" {
		parts = append(parts, "repo:"+f.Repo)
	}
	if f.Org != "" {
		parts = append(parts, "org:"+f.Org)
	}
	if f.Path != "" {
		parts = append(parts, "path:"+f.Path)
	}
	if f.Filename != "" {
		parts = append(parts, "filename:"+f.Filename)
	}
	if f.Extension != "" {
		parts = append(parts, "extension:"+f.Extension)
	}
	return strings.Join(parts, " ")
}

// relevanceForRank converts a zero-based position into a score in (0,1].
// The API orders by relevance but does not expose the underlying score.
func relevanceForRank(rank int) float64 {
	return 1.0 / (1.0 + rankDecay*float64(rank))
}

func rawContentURL(item codeSearchItem) string {
	if item.Repository.FullName == "" {
		return ""
	}
	ref := item.SHA
	if ref == "" {
		ref = "HEAD"
	}
	return "https://raw.githubusercontent.com/" + item.Repository.FullName + "/" + ref + "/" + item.Path
}

func firstFragment(matches []textMatch) string {
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Fragment
}

// resolveStars fills StarCount for every result, deduplicating repos and
// bounding concurrency. A failed lookup leaves the count at zero; star
// resolution never fails the search.
func (p *Provider) resolveStars(ctx context.Context, results []search.Result) {
	unique := make(map[string]struct{})
	var repos []string
	for _, r := range results {
		if r.Repo == "" {
			continue
		}
		if _, seen := unique[r.Repo]; seen {
			continue
		}
		unique[r.Repo] = struct{}{}
		repos = append(repos, r.Repo)
	}

	counts := make([]int, len(repos))
	var g errgroup.Group
	g.SetLimit(starLookupConcurrency)
	for i, repo := range repos {
		if cached, ok := p.stars.Get(repo); ok {
			counts[i] = cached
			continue
		}
		g.Go(func() error {
			count, err := p.fetchStars(ctx, repo)
			if err != nil {
				slog.Debug("star lookup failed",
					slog.String("repo", repo),
					slog.String("error", err.Error()))
				return nil
			}
			counts[i] = count
			p.stars.Add(repo, count)
			return nil
		})
	}
	_ = g.Wait()

	byRepo := make(map[string]int, len(repos))
	for i, repo := range repos {
		byRepo[repo] = counts[i]
	}
	for i := range results {
		results[i].Stars = byRepo[results[i].Repo]
	}
}

func (p *Provider) fetchStars(ctx context.Context, repo string) (int, error) {
	endpoint := p.baseURL + "/repos/" + repo
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.config.Token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var detail repoDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return 0, err
	}
	return detail.StargazersCount, nil
}

// statusError maps HTTP failures to classified provider errors.
// Secondary rate limiting surfaces as 403, primary as 429.
func (p *Provider) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}

	kind := search.FailureUnknown
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		kind = search.FailureRateLimit
	case http.StatusUnauthorized:
		kind = search.FailureAuth
	}

	return &search.ProviderError{
		Provider: ProviderID,
		Message:  fmt.Sprintf("status %d: %s", resp.StatusCode, msg),
		Kind:     kind,
	}
}

// Validate checks that the token can reach the API at all.
func (p *Provider) Validate(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/rate_limit", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.config.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}
