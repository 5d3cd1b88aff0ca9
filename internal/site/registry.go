// Package site maps site identifiers to their adapters. Adding a job board
// is a registration at process start, not a change to the crawl engine.
package site

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jobsift/jobsift/internal/ingest"
)

// Registry holds the configured adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ingest.Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]ingest.Adapter)}
}

// Register adds an adapter under its profile's site id.
func (r *Registry) Register(adapter ingest.Adapter) error {
	id := adapter.Profile().Site
	if id == "" {
		return fmt.Errorf("adapter has empty site id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[id]; ok {
		return fmt.Errorf("site %q already registered", id)
	}
	r.adapters[id] = adapter
	return nil
}

// Lookup returns the adapter for a site id.
func (r *Registry) Lookup(id string) (ingest.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// Sites lists registered site ids in sorted order.
func (r *Registry) Sites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
