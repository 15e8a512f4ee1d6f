// Package concept implements trained concept models: named sets of positive
// and negative example texts scored against an embedding space. A concept
// score is the sigmoid-calibrated margin between a vector's similarity to
// the positive and negative centroids.
package concept

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/siftdata/sift/internal/embedding"
	"github.com/siftdata/sift/internal/vectorindex"
)

var (
	ErrNotFound      = errors.New("concept not found")
	ErrAlreadyExists = errors.New("concept already exists")
	ErrNoExamples    = errors.New("concept requires at least one positive example")
)

// Concept is a stored concept definition.
type Concept struct {
	Namespace string   `json:"namespace"`
	Name      string   `json:"name"`
	Positive  []string `json:"positive"`
	Negative  []string `json:"negative,omitempty"`
}

// Key returns the registry key for a namespace+name pair.
func Key(namespace, name string) string {
	return namespace + "/" + name
}

// Model is a concept trained against one embedding space.
type Model struct {
	Concept     Concept
	Embedding   string
	posCentroid []float32
	negCentroid []float32
}

// Score returns the calibrated concept score of a vector in [0, 1].
func (m *Model) Score(vec []float32) float32 {
	margin := vectorindex.Cosine(vec, m.posCentroid)
	if m.negCentroid != nil {
		margin -= vectorindex.Cosine(vec, m.negCentroid)
	}
	// Sigmoid with a moderate slope keeps scores away from the extremes for
	// the near-orthogonal vectors hashing embedders produce.
	return float32(1 / (1 + math.Exp(-4*float64(margin))))
}

// Registry stores concepts and caches trained models per embedding.
type Registry struct {
	mu       sync.RWMutex
	concepts map[string]*Concept
	models   map[string]*Model // Key(ns,name) + "@" + embedding
}

// NewRegistry creates an empty concept registry.
func NewRegistry() *Registry {
	return &Registry{
		concepts: make(map[string]*Concept),
		models:   make(map[string]*Model),
	}
}

// Create stores a new concept definition.
func (r *Registry) Create(c Concept) error {
	if len(c.Positive) == 0 {
		return ErrNoExamples
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := Key(c.Namespace, c.Name)
	if _, ok := r.concepts[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	stored := c
	r.concepts[key] = &stored
	return nil
}

// Get returns a stored concept.
func (r *Registry) Get(namespace, name string) (*Concept, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.concepts[Key(namespace, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, Key(namespace, name))
	}
	return c, nil
}

// Delete removes a concept and its cached models.
func (r *Registry) Delete(namespace, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := Key(namespace, name)
	if _, ok := r.concepts[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(r.concepts, key)
	for mk := range r.models {
		if len(mk) > len(key) && mk[:len(key)] == key && mk[len(key)] == '@' {
			delete(r.models, mk)
		}
	}
	return nil
}

// List returns all stored concepts, sorted by key.
func (r *Registry) List() []*Concept {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Concept, 0, len(r.concepts))
	for _, c := range r.concepts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return Key(out[i].Namespace, out[i].Name) < Key(out[j].Namespace, out[j].Name)
	})
	return out
}

// Model returns the concept trained against the given embedder, training
// and caching it on first use.
func (r *Registry) Model(ctx context.Context, namespace, name string, embedder embedding.Embedder) (*Model, error) {
	modelKey := Key(namespace, name) + "@" + embedder.Name()

	r.mu.RLock()
	if m, ok := r.models[modelKey]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	c, err := r.Get(namespace, name)
	if err != nil {
		return nil, err
	}

	m, err := train(ctx, c, embedder)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.models[modelKey] = m
	r.mu.Unlock()
	return m, nil
}

func train(ctx context.Context, c *Concept, embedder embedding.Embedder) (*Model, error) {
	posVecs, err := embedder.Embed(ctx, c.Positive)
	if err != nil {
		return nil, fmt.Errorf("embedding positive examples: %w", err)
	}
	m := &Model{
		Concept:     *c,
		Embedding:   embedder.Name(),
		posCentroid: centroid(posVecs, embedder.Dims()),
	}
	if len(c.Negative) > 0 {
		negVecs, err := embedder.Embed(ctx, c.Negative)
		if err != nil {
			return nil, fmt.Errorf("embedding negative examples: %w", err)
		}
		m.negCentroid = centroid(negVecs, embedder.Dims())
	}
	return m, nil
}

func centroid(vecs [][]float32, dims int) []float32 {
	out := make([]float32, dims)
	if len(vecs) == 0 {
		return out
	}
	for _, v := range vecs {
		for i := range v {
			if i < dims {
				out[i] += v[i]
			}
		}
	}
	inv := float32(1) / float32(len(vecs))
	for i := range out {
		out[i] *= inv
	}
	return out
}
