package search

import (
	"sort"
	"sync"
)

// Registry holds the configured provider adapters, addressed by id.
// Providers are registered at process start (driven by which credentials
// are present) and resolved per request.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own id, replacing any previous
// registration for that id.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Resolve maps requested ids onto registered providers, preserving input
// order. Unknown or unconfigured ids are silently dropped: a provider
// whose credential was not supplied is simply skipped, not an error.
func (r *Registry) Resolve(ids []string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]Provider, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.providers[id]; ok {
			active = append(active, p)
		}
	}
	return active
}

// IDs returns all registered provider ids, sorted ascending.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
