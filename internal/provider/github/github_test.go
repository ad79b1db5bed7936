package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesweep/codesweep/internal/search"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{Token: "test-token", BaseURL: srv.URL})
	require.NoError(t, err)
	return p
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestBuildQueryQualifiers(t *testing.T) {
	tests := []struct {
		name  string
		query search.Query
		want  string
	}{
		{
			name:  "text only",
			query: search.Query{Text: "http.Client"},
			want:  "http.Client",
		},
		{
			name: "all qualifiers",
			query: search.Query{
				Text: "reconnect",
				Filters: search.FilterSet{
					Language:  "go",
					Repo:      "acme/widgets",
					Org:       "acme",
					Path:      "internal/",
					Filename:  "client.go",
					Extension: "go",
				},
			},
			want: "reconnect language:go repo:acme/widgets org:acme path:internal/ filename:client.go extension:go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildQuery(tt.query))
		})
	}
}

func TestRelevanceForRank(t *testing.T) {
	assert.InDelta(t, 1.0, relevanceForRank(0), 1e-9)
	assert.InDelta(t, 1.0/1.15, relevanceForRank(1), 1e-9)
	assert.Greater(t, relevanceForRank(3), relevanceForRank(4))
}

func TestSearchMapsResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.text-match+json", r.Header.Get("Accept"))
		assert.Equal(t, "handler language:go", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"total_count": 2,
			"items": [
				{
					"name": "server.go",
					"path": "internal/server.go",
					"sha": "abc123",
					"html_url": "https://github.com/acme/widgets/blob/abc123/internal/server.go",
					"repository": {"full_name": "acme/widgets"},
					"text_matches": [{"fragment": "func handler() {}"}]
				},
				{
					"name": "mux.go",
					"path": "mux.go",
					"html_url": "https://github.com/acme/gadgets/blob/main/mux.go",
					"repository": {"full_name": "acme/gadgets"},
					"text_matches": []
				}
			]
		}`))
	})
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"stargazers_count": 1500, "language": "Go"}`))
	})
	mux.HandleFunc("/repos/acme/gadgets", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"stargazers_count": 12, "language": "Go"}`))
	})

	p := newTestProvider(t, mux)
	results, err := p.Search(context.Background(), search.Query{
		Text:    "handler",
		Filters: search.FilterSet{Language: "go"},
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "https://github.com/acme/widgets/blob/abc123/internal/server.go", first.PermalinkURL)
	assert.Equal(t, "https://raw.githubusercontent.com/acme/widgets/abc123/internal/server.go", first.RawContentURL)
	assert.Equal(t, "acme/widgets", first.Repo)
	assert.Equal(t, "internal/server.go", first.FilePath)
	assert.Equal(t, "func handler() {}", first.Snippet)
	assert.Equal(t, "go", first.Language)
	assert.Equal(t, 1500, first.Stars)
	assert.Equal(t, ProviderID, first.Provider)
	assert.InDelta(t, 1.0, first.Score, 1e-9)

	second := results[1]
	assert.Equal(t, "https://raw.githubusercontent.com/acme/gadgets/HEAD/mux.go", second.RawContentURL)
	assert.Empty(t, second.Snippet)
	assert.Equal(t, 12, second.Stars)
	assert.InDelta(t, 1.0/1.15, second.Score, 1e-9)
}

func TestSearchStarLookupFailureLeavesZero(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total_count": 1, "items": [
			{"path": "a.go", "html_url": "https://github.com/acme/widgets/blob/main/a.go",
			 "repository": {"full_name": "acme/widgets"}}
		]}`))
	})
	mux.HandleFunc("/repos/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	p := newTestProvider(t, mux)
	results, err := p.Search(context.Background(), search.Query{Text: "x", Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Stars)
}

func TestSearchCachesStarLookups(t *testing.T) {
	var repoCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"total_count": 2, "items": [
			{"path": "a.go", "html_url": "https://github.com/acme/widgets/blob/main/a.go",
			 "repository": {"full_name": "acme/widgets"}},
			{"path": "b.go", "html_url": "https://github.com/acme/widgets/blob/main/b.go",
			 "repository": {"full_name": "acme/widgets"}}
		]}`))
	})
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, _ *http.Request) {
		repoCalls.Add(1)
		_, _ = w.Write([]byte(`{"stargazers_count": 7}`))
	})

	p := newTestProvider(t, mux)
	ctx := context.Background()

	_, err := p.Search(ctx, search.Query{Text: "x", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), repoCalls.Load())

	_, err = p.Search(ctx, search.Query{Text: "y", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), repoCalls.Load())
}

func TestSearchStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   search.FailureKind
	}{
		{http.StatusForbidden, search.FailureRateLimit},
		{http.StatusTooManyRequests, search.FailureRateLimit},
		{http.StatusUnauthorized, search.FailureAuth},
		{http.StatusBadGateway, search.FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("upstream says no"))
			}))

			_, err := p.Search(context.Background(), search.Query{Text: "x", Limit: 5})
			require.Error(t, err)

			var perr *search.ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, ProviderID, perr.Provider)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Contains(t, perr.Message, "upstream says no")
		})
	}
}

func TestValidate(t *testing.T) {
	ok := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rate_limit", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	assert.True(t, ok.Validate(context.Background()))

	bad := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	assert.False(t, bad.Validate(context.Background()))
}

func TestCapabilities(t *testing.T) {
	p, err := New(Config{Token: "t"})
	require.NoError(t, err)

	caps := p.Capabilities()
	assert.False(t, caps.SupportsRegex)
	assert.True(t, caps.SupportsOrgFilter)
	assert.Equal(t, maxPerPage, caps.MaxLimit)
}
