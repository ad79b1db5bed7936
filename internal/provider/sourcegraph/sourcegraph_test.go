package sourcegraph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesweep/codesweep/internal/search"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{Endpoint: srv.URL, Token: "test-token"})
	require.NoError(t, err)
	return p
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name  string
		query search.Query
		want  string
	}{
		{
			name:  "literal text",
			query: search.Query{Text: "http.Client", Limit: 20},
			want:  "http.Client type:file patternType:literal count:20",
		},
		{
			name: "regex with filters",
			query: search.Query{
				Text:  `func \w+Handler`,
				Limit: 10,
				Filters: search.FilterSet{
					Language: "go",
					Org:      "acme",
					UseRegex: true,
				},
			},
			want: `func \w+Handler type:file lang:go repo:/acme/ patternType:regexp count:10`,
		},
		{
			name: "repo and file filters",
			query: search.Query{
				Text: "retry",
				Filters: search.FilterSet{
					Repo:      "github.com/acme/widgets",
					Path:      "internal/",
					Filename:  "client.go",
					Extension: "go",
				},
			},
			want: `retry type:file repo:github.com/acme/widgets$ file:internal/ file:client.go$ file:\.go$ patternType:literal`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildQuery(tt.query))
		})
	}
}

func TestRepoID(t *testing.T) {
	assert.Equal(t, "acme/widgets", repoID("github.com/acme/widgets"))
	assert.Equal(t, "acme/widgets", repoID("gitlab.example.com/acme/widgets"))
	assert.Equal(t, "acme/widgets", repoID("acme/widgets"))
	assert.Equal(t, "widgets", repoID("widgets"))
}

func TestLineRange(t *testing.T) {
	start, end := lineRange(nil)
	assert.Zero(t, start)
	assert.Zero(t, end)

	start, end = lineRange([]lineMatch{{LineNumber: 41}})
	assert.Equal(t, 42, start)
	assert.Equal(t, 42, end)

	start, end = lineRange([]lineMatch{{LineNumber: 10}, {LineNumber: 3}, {LineNumber: 7}})
	assert.Equal(t, 4, start)
	assert.Equal(t, 11, end)
}

func TestSearchMapsFileMatches(t *testing.T) {
	var gotQuery string
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.api/graphql", r.URL.Path)
		assert.Equal(t, "token test-token", r.Header.Get("Authorization"))

		var body graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotQuery = body.Variables["query"]

		_, _ = w.Write([]byte(`{"data": {"search": {"results": {"results": [
			{
				"__typename": "FileMatch",
				"repository": {"name": "github.com/acme/widgets", "stars": 2400},
				"file": {"path": "internal/pool.go", "url": "/github.com/acme/widgets/-/blob/internal/pool.go"},
				"lineMatches": [
					{"preview": "pool := newPool()", "lineNumber": 14},
					{"preview": "pool.Close()", "lineNumber": 30}
				]
			},
			{"__typename": "CommitSearchResult"},
			{
				"__typename": "FileMatch",
				"repository": {"name": "github.com/acme/gadgets", "stars": 3},
				"file": {"path": "main.go", "url": "/github.com/acme/gadgets/-/blob/main.go"},
				"lineMatches": []
			}
		]}}}}`))
	}))

	results, err := p.Search(context.Background(), search.Query{
		Text:    "pool",
		Filters: search.FilterSet{Language: "go"},
		Limit:   20,
	})
	require.NoError(t, err)
	assert.Equal(t, "pool type:file lang:go patternType:literal count:20", gotQuery)

	// The commit match is skipped; only file matches survive.
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, p.endpoint+"/github.com/acme/widgets/-/blob/internal/pool.go?L15", first.PermalinkURL)
	assert.Equal(t, p.endpoint+"/github.com/acme/widgets/-/raw/internal/pool.go", first.RawContentURL)
	assert.Equal(t, "acme/widgets", first.Repo)
	assert.Equal(t, "internal/pool.go", first.FilePath)
	assert.Equal(t, 15, first.StartLine)
	assert.Equal(t, 31, first.EndLine)
	assert.Equal(t, "pool := newPool()\npool.Close()", first.Snippet)
	assert.Equal(t, 2400, first.Stars)
	assert.Equal(t, ProviderID, first.Provider)
	assert.InDelta(t, 1.0, first.Score, 1e-9)

	second := results[1]
	assert.Equal(t, p.endpoint+"/github.com/acme/gadgets/-/blob/main.go", second.PermalinkURL)
	assert.Zero(t, second.StartLine)
	assert.Empty(t, second.Snippet)
	assert.InDelta(t, 1.0/1.15, second.Score, 1e-9)
}

func TestSearchGraphQLErrors(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"message": "query too expensive"}]}`))
	}))

	_, err := p.Search(context.Background(), search.Query{Text: "x"})
	require.Error(t, err)

	var perr *search.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, search.FailureUnknown, perr.Kind)
	assert.Equal(t, "query too expensive", perr.Message)
}

func TestSearchStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   search.FailureKind
	}{
		{http.StatusTooManyRequests, search.FailureRateLimit},
		{http.StatusUnauthorized, search.FailureAuth},
		{http.StatusForbidden, search.FailureAuth},
		{http.StatusServiceUnavailable, search.FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			_, err := p.Search(context.Background(), search.Query{Text: "x"})
			require.Error(t, err)

			var perr *search.ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.kind, perr.Kind)
		})
	}
}

func TestAnonymousAccessOmitsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data": {"search": {"results": {"results": []}}}}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	results, err := p.Search(context.Background(), search.Query{Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestValidate(t *testing.T) {
	ok := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	assert.True(t, ok.Validate(context.Background()))

	bad := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	assert.False(t, bad.Validate(context.Background()))
}

func TestCapabilities(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)

	caps := p.Capabilities()
	assert.True(t, caps.SupportsRegex)
	assert.True(t, caps.SupportsOrgFilter)
	assert.Equal(t, 500, caps.MaxLimit)
}
