// Package embedding defines the embedder boundary: a named function from
// text to fixed-width float32 vectors. Real model providers live behind this
// interface; the package ships a deterministic hashing embedder so indexes
// and concept models work without any external model service.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when no embedder is registered under a name.
var ErrNotFound = errors.New("embedding not found")

// Embedder produces vectors for text values, aligned 1:1 with its input.
type Embedder interface {
	Name() string
	Dims() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Registry holds named embedders.
type Registry struct {
	mu       sync.RWMutex
	embedder map[string]Embedder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{embedder: make(map[string]Embedder)}
}

// Register adds an embedder. Re-registering a name replaces it.
func (r *Registry) Register(e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedder[e.Name()] = e
}

// Get returns the embedder registered under the name.
func (r *Registry) Get(name string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.embedder[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e, nil
}

// Names returns the registered embedder names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.embedder))
	for name := range r.embedder {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
