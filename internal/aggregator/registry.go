package aggregator

import (
	"sync"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Registry holds the configured platform adapters in invocation order. It is
// built once at startup and passed to the Aggregator explicitly.
type Registry struct {
	mu       sync.RWMutex
	order    []domain.Platform
	adapters map[domain.Platform]domain.PlatformAdapter
}

// NewRegistry returns an empty registry. Call Register to add adapters.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.Platform]domain.PlatformAdapter)}
}

// Register adds an adapter under its own platform identifier. Registering the
// same platform twice replaces the adapter but keeps its original position.
func (r *Registry) Register(a domain.PlatformAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := a.Platform()
	if _, exists := r.adapters[p]; !exists {
		r.order = append(r.order, p)
	}
	r.adapters[p] = a
}

// Get returns the adapter for p.
func (r *Registry) Get(p domain.Platform) (domain.PlatformAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// Platforms returns the registered platforms in registration order.
func (r *Registry) Platforms() []domain.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Platform, len(r.order))
	copy(out, r.order)
	return out
}

// Select returns the adapters whose platform appears in filter, in
// registration order. A nil or empty filter selects every adapter. Platforms
// in filter that are not registered are ignored.
func (r *Registry) Select(filter []domain.Platform) []domain.PlatformAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var want map[domain.Platform]bool
	if len(filter) > 0 {
		want = make(map[domain.Platform]bool, len(filter))
		for _, p := range filter {
			want[p] = true
		}
	}

	out := make([]domain.PlatformAdapter, 0, len(r.order))
	for _, p := range r.order {
		if want != nil && !want[p] {
			continue
		}
		out = append(out, r.adapters[p])
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
