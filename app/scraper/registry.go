package scraper

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps vendor names to adapters, case-insensitively.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(vendor string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[normalizeVendor(vendor)] = adapter
}

// Lookup reports false for an unknown vendor rather than failing, so the
// caller can fail the run with a readable message.
func (r *Registry) Lookup(vendor string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[normalizeVendor(vendor)]
	return a, ok
}

func (r *Registry) Vendors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeVendor(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}
