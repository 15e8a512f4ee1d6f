// Package dataset implements the in-memory dataset store: rows loaded from
// source data, an evolving signal-enriched schema, materialized signal
// columns, and per-field vector indexes. All mutations are copy-on-write
// against the schema so readers never observe a half-applied enrichment.
package dataset

import (
	"errors"
	"fmt"
	"sync"

	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/vectorindex"
)

var (
	ErrNotFound             = errors.New("dataset not found")
	ErrEmbeddingNotComputed = errors.New("embedding index not computed")
	ErrComputeInFlight      = errors.New("computation already in flight for this field")
	ErrNotSignalRoot        = errors.New("field is not a signal root")
	ErrEmptySource          = errors.New("source has no rows")
)

// Row is one loaded item: a stable identifier plus the raw value tree.
type Row struct {
	ID     string
	Values map[string]any
}

// IndexInfo describes one computed vector index in the manifest.
type IndexInfo struct {
	Path      string `json:"path"`
	Embedding string `json:"embedding"`
	Dims      int    `json:"dims"`
}

// Manifest is the persisted summary of a dataset: its schema, size, and
// which embedding indexes exist. Version increments on every mutation and
// anchors query-cache keys.
type Manifest struct {
	Name    string         `json:"name"`
	Schema  *schema.Schema `json:"schema"`
	NumRows int            `json:"num_rows"`
	Version uint64         `json:"version"`
	Indexes []IndexInfo    `json:"indexes,omitempty"`
	Columns []string       `json:"columns,omitempty"`
}

// Dataset holds rows and their enrichments for one named dataset.
type Dataset struct {
	mu   sync.RWMutex
	name string

	sch     *schema.Schema
	rows    []Row
	columns map[string][]any            // serialized signal path -> per-ordinal value trees
	indexes map[string]*vectorindex.Index // vectorindex.Key -> index
	version uint64

	inflight map[string]struct{} // serialized output path of running computations
}

// New creates a dataset over already-loaded rows. Row IDs must be unique;
// the schema covers the raw values only.
func New(name string, sch *schema.Schema, rows []Row) *Dataset {
	return &Dataset{
		name:     name,
		sch:      sch,
		rows:     rows,
		columns:  make(map[string][]any),
		indexes:  make(map[string]*vectorindex.Index),
		version:  1,
		inflight: make(map[string]struct{}),
	}
}

func (d *Dataset) Name() string { return d.name }

// Schema returns the current schema. Callers must not mutate it; mutations
// go through ComputeSignal and DeleteSignal.
func (d *Dataset) Schema() *schema.Schema {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sch
}

func (d *Dataset) NumRows() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

func (d *Dataset) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Row returns the row at an ordinal.
func (d *Dataset) Row(ordinal int) Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rows[ordinal]
}

// Manifest snapshots the dataset summary.
func (d *Dataset) Manifest() Manifest {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m := Manifest{
		Name:    d.name,
		Schema:  d.sch,
		NumRows: len(d.rows),
		Version: d.version,
	}
	for key := range d.columns {
		m.Columns = append(m.Columns, key)
	}
	for _, ix := range d.indexes {
		m.Indexes = append(m.Indexes, IndexInfo{
			Path:      schema.SerializePath(ix.Path),
			Embedding: ix.Embedding,
			Dims:      ix.Dims,
		})
	}
	return m
}

// Index returns the vector index for a path and embedding, or
// ErrEmbeddingNotComputed when none has been built.
func (d *Dataset) Index(p schema.Path, embeddingName string) (*vectorindex.Index, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ix, ok := d.indexes[vectorindex.Key(p, embeddingName)]
	if !ok {
		return nil, fmt.Errorf("%w: %s with embedding %q", ErrEmbeddingNotComputed, p, embeddingName)
	}
	return ix, nil
}

// ValueTree returns the value of one row at a path, preserving wildcard
// nesting. Materialized signal columns take precedence over the raw row
// tree via longest-prefix lookup.
func (d *Dataset) ValueTree(ordinal int, p schema.Path) any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.valueTreeLocked(ordinal, p)
}

// Values returns the flattened leaf values of one row at a path, the form
// filters and keyword matchers consume.
func (d *Dataset) Values(ordinal int, p schema.Path) []any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return leafValues(d.valueTreeLocked(ordinal, p), wildcardDepth(p))
}

func (d *Dataset) valueTreeLocked(ordinal int, p schema.Path) any {
	// Longest materialized prefix wins: a column computed at question.pii
	// serves question.pii.emails.* without touching the raw tree.
	for i := len(p); i > 0; i-- {
		col, ok := d.columns[schema.SerializePath(p[:i])]
		if !ok {
			continue
		}
		tree := col[ordinal]
		// The stored tree already mirrors the wildcard nesting of the
		// column path, so only the remaining segments need walking.
		return walkWithin(tree, wildcardDepth(p[:i]), p[i:])
	}
	return extractTree(d.rows[ordinal].Values, p)
}

// walkWithin applies the remaining path segments below a materialized
// column value, descending through the structural list levels the column
// prefix already introduced.
func walkWithin(tree any, depth int, rest schema.Path) any {
	if depth == 0 {
		return extractTree(tree, rest)
	}
	list, ok := tree.([]any)
	if !ok {
		return nil
	}
	out := make([]any, len(list))
	for i, elem := range list {
		out[i] = walkWithin(elem, depth-1, rest)
	}
	return out
}
