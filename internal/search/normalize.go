package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Normalize returns the canonical form of a query: provider ids sorted
// ascending and deduplicated, filters untouched (unset fields carry no
// weight in serialization). Normalize is pure and idempotent; two queries
// differing only in provider order normalize to byte-identical serialized
// form.
func Normalize(q Query) Query {
	providers := make([]string, 0, len(q.Providers))
	seen := make(map[string]struct{}, len(q.Providers))
	for _, id := range q.Providers {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		providers = append(providers, id)
	}
	sort.Strings(providers)

	q.Providers = providers
	return q
}

// CacheKey derives the deterministic cache key for a query: the hex
// SHA-256 of the normalized query's canonical JSON. Struct field order
// is fixed at compile time, so the serialization is stable across
// process restarts.
func CacheKey(q Query) string {
	canonical, err := json.Marshal(Normalize(q))
	if err != nil {
		// Query contains only marshalable fields; this is unreachable
		// for well-formed input and treated as a programming error.
		panic("search: query serialization failed: " + err.Error())
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
