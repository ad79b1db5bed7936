package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankScore(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   float64
	}{
		{
			name:   "zero stars gives zero score",
			result: Result{Score: 0.9, Stars: 0},
			want:   0,
		},
		{
			name:   "exact formula",
			result: Result{Score: 0.5, Stars: 10000},
			want:   0.5 * math.Log(10001),
		},
		{
			name:   "full relevance",
			result: Result{Score: 1.0, Stars: 100},
			want:   math.Log(101),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RankScore(tt.result), 1e-12)
		})
	}
}

func TestAggregateDedupFirstWins(t *testing.T) {
	shared := "https://github.com/a/b/blob/x/main.go"
	results := []Result{
		{PermalinkURL: shared, Provider: "github", Score: 0.4, Stars: 10},
		{PermalinkURL: "https://other/unique", Provider: "github", Score: 0.3, Stars: 5},
		{PermalinkURL: shared, Provider: "sourcegraph", Score: 0.99, Stars: 99999},
	}

	got := Aggregate(results, 0)
	require.Len(t, got, 2)

	var kept Result
	for _, r := range got {
		if r.PermalinkURL == shared {
			kept = r
		}
	}
	// The later duplicate vanishes entirely, higher score and stars included.
	assert.Equal(t, "github", kept.Provider)
	assert.Equal(t, 0.4, kept.Score)
	assert.Equal(t, 10, kept.Stars)
}

func TestAggregatePopularityCanOutrankRelevance(t *testing.T) {
	a := Result{PermalinkURL: "a", Score: 0.9, Stars: 10}
	b := Result{PermalinkURL: "b", Score: 0.5, Stars: 10000}
	require.Greater(t, RankScore(b), RankScore(a))

	got := Aggregate([]Result{a, b}, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].PermalinkURL)
	assert.Equal(t, "a", got[1].PermalinkURL)
}

func TestAggregateOrdering(t *testing.T) {
	results := []Result{
		{PermalinkURL: "low", Score: 0.2, Stars: 10},
		{PermalinkURL: "high", Score: 0.9, Stars: 1000},
		{PermalinkURL: "mid", Score: 0.5, Stars: 500},
	}

	got := Aggregate(results, 0)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, RankScore(got[i-1]), RankScore(got[i]))
	}
	assert.Equal(t, "high", got[0].PermalinkURL)
}

func TestAggregateStableForEqualScores(t *testing.T) {
	// Identical rank scores keep post-dedup input order.
	results := []Result{
		{PermalinkURL: "first", Score: 0.5, Stars: 100},
		{PermalinkURL: "second", Score: 0.5, Stars: 100},
		{PermalinkURL: "third", Score: 0.5, Stars: 100},
	}

	got := Aggregate(results, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].PermalinkURL)
	assert.Equal(t, "second", got[1].PermalinkURL)
	assert.Equal(t, "third", got[2].PermalinkURL)
}

func TestAggregateLimit(t *testing.T) {
	results := []Result{
		{PermalinkURL: "a", Score: 0.9, Stars: 100},
		{PermalinkURL: "b", Score: 0.8, Stars: 100},
		{PermalinkURL: "c", Score: 0.7, Stars: 100},
	}

	got := Aggregate(results, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PermalinkURL)
	assert.Equal(t, "b", got[1].PermalinkURL)

	// Truncation happens after ranking, so limit keeps the best, not the
	// first seen.
	reversed := []Result{results[2], results[1], results[0]}
	got = Aggregate(reversed, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].PermalinkURL)
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil, 5)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
