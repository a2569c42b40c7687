// Package inflight cancels a request when a newer one for the same key arrives.
package inflight

import (
	"context"
	"sync"
)

// Registry tracks the latest in-flight request per key
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextID  uint64
}

type entry struct {
	id     uint64
	cancel context.CancelFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Begin registers a request under key and returns its context.
// A previous request under the same key has its context cancelled.
// The returned release func must be called when the request finishes.
func (r *Registry) Begin(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	if prev, ok := r.entries[key]; ok {
		prev.cancel()
	}
	r.entries[key] = &entry{id: id, cancel: cancel}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if current, ok := r.entries[key]; ok && current.id == id {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Len returns the number of requests currently registered
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
