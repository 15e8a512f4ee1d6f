// Package signal defines the enrichment interface: a signal takes the values
// of one source field and produces derived values with a declared output
// schema, which the dataset grafts under the source field.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/siftdata/sift/internal/schema"
)

var (
	ErrNotFound     = errors.New("signal not found")
	ErrInvalidInput = errors.New("signal input dtype not supported")
	ErrBadConfig    = errors.New("invalid signal config")
)

// Signal computes derived values over a column of source values.
//
// Compute receives one source value per row (nil where the row has no value)
// and must return exactly one output value per input, nil included. The
// output values conform to the field returned by OutputSchema.
type Signal interface {
	Name() string
	OutputSchema(input schema.DType) (*schema.Field, error)
	Compute(ctx context.Context, values []any) ([]any, error)
}

// Factory builds a signal instance from its JSON config.
type Factory func(config map[string]any) (Signal, error)

// Registry maps signal names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty signal registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New instantiates the named signal with the given config.
func (r *Registry) New(name string, config map[string]any) (Signal, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f(config)
}

// Names returns the registered signal names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// OutputField wraps a signal's output schema with provenance so the grafted
// subtree records which signal produced it and from which source path.
func OutputField(s Signal, config map[string]any, source schema.Path, input schema.DType) (*schema.Field, error) {
	out, err := s.OutputSchema(input)
	if err != nil {
		return nil, err
	}
	out.SignalRoot = true
	out.Signal = &schema.SignalInfo{Name: s.Name(), Config: config}
	out.DerivedFrom = []schema.Path{source.Clone()}
	return out, nil
}

func requireText(name string, input schema.DType) error {
	if input != schema.DTypeString {
		return fmt.Errorf("%w: %s requires string input, got %s", ErrInvalidInput, name, input)
	}
	return nil
}
