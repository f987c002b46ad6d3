// Package source defines the evidence source adapters: a closed set of
// providers (document index, live feed cache, web search) behind one
// search capability.
package source

import (
	"context"
	"sync"

	"github.com/udaysk3/smart-research-assistant/internal/model"
)

// Adapter is the uniform capability every evidence source exposes. Search
// returns an empty slice (not an error) when nothing matches; transport or
// auth failures are reported as model.ErrSourceUnavailable.
type Adapter interface {
	Kind() model.SourceKind
	Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error)
}

// Registry holds the adapters available to the aggregator, keyed by kind.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.SourceKind]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[model.SourceKind]Adapter),
	}
}

// Register adds an adapter, replacing any previous one of the same kind.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Get returns the adapter for a kind, or nil.
func (r *Registry) Get(kind model.SourceKind) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[kind]
}

// All returns the registered adapters in a fixed kind order so fan-out and
// logging are deterministic.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, kind := range []model.SourceKind{model.SourceDocument, model.SourceLiveFeed, model.SourceWeb} {
		if a, ok := r.adapters[kind]; ok {
			out = append(out, a)
		}
	}
	return out
}
