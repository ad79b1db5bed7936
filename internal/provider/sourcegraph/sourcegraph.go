// Package sourcegraph adapts the Sourcegraph GraphQL search API to the
// provider contract. One GraphQL request returns matches and repository
// star counts together, so no secondary lookups are needed.
package sourcegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codesweep/codesweep/internal/search"
)

const (
	// ProviderID is the stable identifier used in queries and config.
	ProviderID = "sourcegraph"

	DefaultEndpoint = "https://sourcegraph.com"
	DefaultTimeout  = 10 * time.Second

	// rankDecay mirrors the GitHub adapter's position-based relevance;
	// the GraphQL API returns matches in rank order without a score.
	rankDecay = 0.15

	// snippetLines caps how many matched lines are joined into one snippet.
	snippetLines = 3
)

// searchGraphQL asks for file matches with repository stars inline.
const searchGraphQL = `query CodeSearch($query: String!) {
  search(query: $query, version: V3) {
    results {
      results {
        __typename
        ... on FileMatch {
          repository {
            name
            stars
          }
          file {
            path
            url
          }
          lineMatches {
            preview
            lineNumber
          }
        }
      }
    }
  }
}`

// Config configures the Sourcegraph adapter.
type Config struct {
	// Endpoint is the instance root, e.g. https://sourcegraph.com.
	Endpoint string

	// Token is optional; public instances accept anonymous search.
	Token string

	// Timeout bounds each Search invocation.
	Timeout time.Duration
}

// Provider implements search.Provider over the Sourcegraph GraphQL API.
type Provider struct {
	client   *http.Client
	config   Config
	endpoint string
}

var _ search.Provider = (*Provider)(nil)

// New creates a Sourcegraph provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Provider{
		client:   &http.Client{Transport: transport},
		config:   cfg,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string {
	return ProviderID
}

// Capabilities reports the query features this API surface supports.
// Org scoping is emulated through a repo name pattern, so it is
// advertised as supported.
func (p *Provider) Capabilities() search.Capabilities {
	return search.Capabilities{
		SupportsRegex:     true,
		SupportsOrgFilter: true,
		MaxLimit:          500,
	}
}

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		Search struct {
			Results struct {
				Results []fileMatch `json:"results"`
			} `json:"results"`
		} `json:"search"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type fileMatch struct {
	Typename   string `json:"__typename"`
	Repository struct {
		Name  string `json:"name"`
		Stars int    `json:"stars"`
	} `json:"repository"`
	File struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	} `json:"file"`
	LineMatches []lineMatch `json:"lineMatches"`
}

type lineMatch struct {
	Preview    string `json:"preview"`
	LineNumber int    `json:"lineNumber"`
}

// Search executes one GraphQL search request.
func (p *Provider) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	payload, err := json.Marshal(graphQLRequest{
		Query:     searchGraphQL,
		Variables: map[string]string{"query": buildQuery(q)},
	})
	if err != nil {
		return nil, fmt.Errorf("sourcegraph: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/.api/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("sourcegraph: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.Token != "" {
		req.Header.Set("Authorization", "token "+p.config.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sourcegraph: search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	var parsed graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("sourcegraph: decode response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, &search.ProviderError{
			Provider: ProviderID,
			Message:  parsed.Errors[0].Message,
			Kind:     search.FailureUnknown,
		}
	}

	matches := parsed.Data.Search.Results.Results
	results := make([]search.Result, 0, len(matches))
	rank := 0
	for _, m := range matches {
		if m.Typename != "FileMatch" {
			continue
		}
		start, end := lineRange(m.LineMatches)
		results = append(results, search.Result{
			PermalinkURL:  p.permalink(m, start),
			RawContentURL: p.rawURL(m),
			Repo:          repoID(m.Repository.Name),
			FilePath:      m.File.Path,
			StartLine:     start,
			EndLine:       end,
			Snippet:       snippet(m.LineMatches),
			Language:      q.Filters.Language,
			Stars:         m.Repository.Stars,
			Provider:      ProviderID,
			Score:         1.0 / (1.0 + rankDecay*float64(rank)),
		})
		rank++
	}

	return results, nil
}

// buildQuery assembles Sourcegraph query syntax from the text and filters.
func buildQuery(q search.Query) string {
	parts := []string{q.Text, "type:file"}
	f := q.Filters
	if f.Language != "" {
		parts = append(parts, "lang:"+f.Language)
	}
	if f.Repo != "" {
		parts = append(parts, "repo:"+f.Repo+"$")
	}
	if f.Org != "" {
		// repo names include the code host, so an org scopes as a path
		// segment pattern
		parts = append(parts, "repo:/"+f.Org+"/")
	}
	if f.Path != "" {
		parts = append(parts, "file:"+f.Path)
	}
	if f.Filename != "" {
		parts = append(parts, "file:"+f.Filename+"$")
	}
	if f.Extension != "" {
		parts = append(parts, `file:\.`+f.Extension+"$")
	}
	if f.UseRegex {
		parts = append(parts, "patternType:regexp")
	} else {
		parts = append(parts, "patternType:literal")
	}
	if q.Limit > 0 {
		parts = append(parts, fmt.Sprintf("count:%d", q.Limit))
	}
	return strings.Join(parts, " ")
}

// repoID strips the code-host prefix so "github.com/a/b" becomes "a/b",
// matching the owner/name identity the other providers emit.
func repoID(name string) string {
	parts := strings.SplitN(name, "/", 2)
	if len(parts) == 2 && strings.Contains(parts[0], ".") {
		return parts[1]
	}
	return name
}

// lineRange returns the 1-based span covered by the line matches, or
// zeros when the match carries no line info.
func lineRange(matches []lineMatch) (int, int) {
	if len(matches) == 0 {
		return 0, 0
	}
	lo, hi := matches[0].LineNumber, matches[0].LineNumber
	for _, m := range matches[1:] {
		if m.LineNumber < lo {
			lo = m.LineNumber
		}
		if m.LineNumber > hi {
			hi = m.LineNumber
		}
	}
	return lo + 1, hi + 1
}

func snippet(matches []lineMatch) string {
	n := len(matches)
	if n > snippetLines {
		n = snippetLines
	}
	lines := make([]string, 0, n)
	for _, m := range matches[:n] {
		lines = append(lines, m.Preview)
	}
	return strings.Join(lines, "\n")
}

func (p *Provider) permalink(m fileMatch, startLine int) string {
	link := p.endpoint + m.File.URL
	if startLine > 0 {
		link += fmt.Sprintf("?L%d", startLine)
	}
	return link
}

func (p *Provider) rawURL(m fileMatch) string {
	if m.Repository.Name == "" || m.File.Path == "" {
		return ""
	}
	return p.endpoint + "/" + m.Repository.Name + "/-/raw/" + m.File.Path
}

func (p *Provider) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}

	kind := search.FailureUnknown
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		kind = search.FailureRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = search.FailureAuth
	}

	return &search.ProviderError{
		Provider: ProviderID,
		Message:  fmt.Sprintf("status %d: %s", resp.StatusCode, msg),
		Kind:     kind,
	}
}

// Validate checks that the endpoint answers GraphQL at all.
func (p *Provider) Validate(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	payload := []byte(`{"query":"query { currentUser { username } }"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/.api/graphql", bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.Token != "" {
		req.Header.Set("Authorization", "token "+p.config.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}
