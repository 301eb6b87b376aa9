package forecast

import (
	"sort"
	"sync"

	"FinSight/internal/domain/repository"
)

// Registry owns one Engine per symbol. Engines are created on first use and share
// the registry's store and options; nothing is shared between symbols.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine
	store   repository.ModelStore
	opts    []Option
}

// NewRegistry creates an empty registry.
func NewRegistry(store repository.ModelStore, opts ...Option) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		store:   store,
		opts:    opts,
	}
}

// Engine returns the engine for symbol, creating an untrained one if needed.
func (r *Registry) Engine(symbol string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[symbol]
	if !ok {
		e = NewEngine(symbol, r.store, r.opts...)
		r.engines[symbol] = e
	}
	return e
}

// Evict forgets the in-memory engine for symbol. Persisted artifacts are kept.
func (r *Registry) Evict(symbol string) {
	r.mu.Lock()
	delete(r.engines, symbol)
	r.mu.Unlock()
}

// Symbols lists symbols with an engine, sorted.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.engines))
	for s := range r.engines {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
