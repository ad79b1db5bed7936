package search

import (
	"math"
	"sort"
)

// RankScore is the re-ranking metric: relevance weighted by repository
// popularity. The logarithm compresses the long-tailed star distribution
// so a single mega-popular repository cannot dominate every query.
func RankScore(r Result) float64 {
	return r.Score * math.Log(float64(r.Stars)+1)
}

// Aggregate deduplicates, re-ranks, and truncates merged provider results.
// Pure and deterministic.
//
// Deduplication keys on PermalinkURL: the first occurrence in input order
// wins outright; later duplicates are discarded entirely, including their
// score and star count. The sort is stable, so results with equal rank
// scores keep their post-dedup input order.
func Aggregate(results []Result, limit int) []Result {
	deduped := make([]Result, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, dup := seen[r.PermalinkURL]; dup {
			continue
		}
		seen[r.PermalinkURL] = struct{}{}
		deduped = append(deduped, r)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return RankScore(deduped[i]) > RankScore(deduped[j])
	})

	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}
