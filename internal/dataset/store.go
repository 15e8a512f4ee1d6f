package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/siftdata/sift/internal/logging"
	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/vectorindex"
	"github.com/siftdata/sift/pkg/objectstore"
)

// ErrAlreadyExists is returned when creating a dataset under a taken name.
var ErrAlreadyExists = errors.New("dataset already exists")

// ErrInvalidName is returned for dataset names the store cannot accept.
var ErrInvalidName = errors.New("invalid dataset name")

const segmentRows = 1024

const maxNameLength = 128

// ValidateName checks that a dataset name is usable as an object store
// prefix and a URL path segment.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return fmt.Errorf("%w: character %q not allowed", ErrInvalidName, c)
		}
	}
	return nil
}

// Store holds all loaded datasets and persists them through an object
// store. Mutation listeners fire after any dataset changes version, which
// is how the query cache learns to invalidate.
type Store struct {
	mu        sync.RWMutex
	datasets  map[string]*Dataset
	objects   objectstore.Store
	logger    *logging.Logger
	listeners []func(dataset string)
}

// NewStore creates a store backed by the given object store.
func NewStore(objects objectstore.Store, logger *logging.Logger) *Store {
	return &Store{
		datasets: make(map[string]*Dataset),
		objects:  objects,
		logger:   logger,
	}
}

// OnChange registers a listener called with the dataset name after every
// mutation. Listeners must not call back into the store.
func (s *Store) OnChange(fn func(dataset string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// NotifyChange fires the change listeners for a dataset.
func (s *Store) NotifyChange(name string) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(name)
	}
}

// Get returns a loaded dataset by name.
func (s *Store) Get(name string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return d, nil
}

// List returns the loaded dataset names, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create ingests raw items as a new dataset: rows get fresh IDs, the
// schema is inferred, and the dataset is registered under the name.
func (s *Store) Create(name string, items []map[string]any) (*Dataset, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptySource
	}
	rows := make([]Row, len(items))
	for i, item := range items {
		rows[i] = Row{ID: uuid.New().String(), Values: item}
	}
	sch, err := InferSchema(rows)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}
	d := New(name, sch, rows)
	s.datasets[name] = d
	return d, nil
}

// Delete drops a dataset from memory and removes its persisted objects.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	if _, ok := s.datasets[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(s.datasets, name)
	s.mu.Unlock()

	prefix := datasetPrefix(name)
	listed, err := s.objects.List(ctx, &objectstore.ListOptions{Prefix: prefix})
	if err != nil {
		return fmt.Errorf("listing %s: %w", prefix, err)
	}
	for _, obj := range listed.Objects {
		if err := s.objects.Delete(ctx, obj.Key); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
			return fmt.Errorf("deleting %s: %w", obj.Key, err)
		}
	}
	s.NotifyChange(name)
	return nil
}

// IngestJSONL reads newline-delimited JSON items and creates a dataset.
func (s *Store) IngestJSONL(name string, r io.Reader) (*Dataset, error) {
	var items []map[string]any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var item map[string]any
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s.Create(name, items)
}

func datasetPrefix(name string) string {
	return "datasets/" + name + "/"
}

func columnObjectKey(name, columnKey string) string {
	return fmt.Sprintf("%scolumns/%016x.json.zst", datasetPrefix(name), xxhash.Sum64String(columnKey))
}

func indexObjectKey(name, indexKey string) string {
	return fmt.Sprintf("%sindexes/%016x.json.zst", datasetPrefix(name), xxhash.Sum64String(indexKey))
}

type persistedRow struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

type persistedColumn struct {
	Path   string `json:"path"`
	Values []any  `json:"values"`
}

type persistedIndex struct {
	Path      string      `json:"path"`
	Embedding string      `json:"embedding"`
	Dims      int         `json:"dims"`
	Vectors   [][]float32 `json:"vectors"`
}

// Save persists a dataset: the manifest, zstd-compressed row segments, the
// materialized columns, and the vector indexes.
func (s *Store) Save(ctx context.Context, name string) error {
	d, err := s.Get(name)
	if err != nil {
		return err
	}

	d.mu.RLock()
	manifest := Manifest{
		Name:    d.name,
		Schema:  d.sch,
		NumRows: len(d.rows),
		Version: d.version,
	}
	rows := d.rows
	columns := make(map[string][]any, len(d.columns))
	for key, col := range d.columns {
		columns[key] = col
		manifest.Columns = append(manifest.Columns, key)
	}
	indexes := make([]*vectorindex.Index, 0, len(d.indexes))
	for _, ix := range d.indexes {
		indexes = append(indexes, ix)
		manifest.Indexes = append(manifest.Indexes, IndexInfo{
			Path:      schema.SerializePath(ix.Path),
			Embedding: ix.Embedding,
			Dims:      ix.Dims,
		})
	}
	d.mu.RUnlock()
	sort.Strings(manifest.Columns)

	prefix := datasetPrefix(name)

	for start := 0; start < len(rows); start += segmentRows {
		end := start + segmentRows
		if end > len(rows) {
			end = len(rows)
		}
		var raw bytes.Buffer
		enc := json.NewEncoder(&raw)
		for _, row := range rows[start:end] {
			if err := enc.Encode(persistedRow{ID: row.ID, Values: row.Values}); err != nil {
				return fmt.Errorf("encoding rows: %w", err)
			}
		}
		key := fmt.Sprintf("%ssegments/%06d.jsonl.zst", prefix, start/segmentRows)
		if err := s.putCompressed(ctx, key, raw.Bytes()); err != nil {
			return err
		}
	}

	for colKey, col := range columns {
		raw, err := json.Marshal(persistedColumn{Path: colKey, Values: col})
		if err != nil {
			return fmt.Errorf("encoding column %s: %w", colKey, err)
		}
		if err := s.putCompressed(ctx, columnObjectKey(name, colKey), raw); err != nil {
			return err
		}
	}

	for _, ix := range indexes {
		raw, err := json.Marshal(persistedIndex{
			Path:      schema.SerializePath(ix.Path),
			Embedding: ix.Embedding,
			Dims:      ix.Dims,
			Vectors:   ix.Vectors(),
		})
		if err != nil {
			return fmt.Errorf("encoding index: %w", err)
		}
		key := indexObjectKey(name, vectorindex.Key(ix.Path, ix.Embedding))
		if err := s.putCompressed(ctx, key, raw); err != nil {
			return err
		}
	}

	// The manifest goes last so a crashed save never leaves a manifest
	// pointing at missing objects.
	raw, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if _, err := s.objects.Put(ctx, prefix+"manifest.json", bytes.NewReader(raw), int64(len(raw)), &objectstore.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("dataset saved", "dataset", name, "num_rows", manifest.NumRows, "version", manifest.Version)
	}
	return nil
}

// Load restores a persisted dataset into memory.
func (s *Store) Load(ctx context.Context, name string) (*Dataset, error) {
	prefix := datasetPrefix(name)

	raw, err := s.getObject(ctx, prefix+"manifest.json", false)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	rows := make([]Row, 0, manifest.NumRows)
	for seg := 0; len(rows) < manifest.NumRows; seg++ {
		key := fmt.Sprintf("%ssegments/%06d.jsonl.zst", prefix, seg)
		raw, err := s.getObject(ctx, key, true)
		if err != nil {
			return nil, fmt.Errorf("reading segment %d: %w", seg, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		for {
			var pr persistedRow
			if err := dec.Decode(&pr); err == io.EOF {
				break
			} else if err != nil {
				return nil, fmt.Errorf("decoding segment %d: %w", seg, err)
			}
			rows = append(rows, Row{ID: pr.ID, Values: pr.Values})
		}
	}

	d := New(name, manifest.Schema, rows)
	d.version = manifest.Version

	for _, colKey := range manifest.Columns {
		raw, err := s.getObject(ctx, columnObjectKey(name, colKey), true)
		if err != nil {
			return nil, fmt.Errorf("reading column %s: %w", colKey, err)
		}
		var pc persistedColumn
		if err := json.Unmarshal(raw, &pc); err != nil {
			return nil, fmt.Errorf("decoding column %s: %w", colKey, err)
		}
		d.columns[pc.Path] = pc.Values
	}

	for _, info := range manifest.Indexes {
		p, err := schema.DeserializePath(info.Path)
		if err != nil {
			return nil, fmt.Errorf("manifest index path %q: %w", info.Path, err)
		}
		raw, err := s.getObject(ctx, indexObjectKey(name, vectorindex.Key(p, info.Embedding)), true)
		if err != nil {
			return nil, fmt.Errorf("reading index %s: %w", info.Path, err)
		}
		var pi persistedIndex
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decoding index %s: %w", info.Path, err)
		}
		d.indexes[vectorindex.Key(p, info.Embedding)] = vectorindex.New(p, pi.Embedding, pi.Dims, pi.Vectors)
	}

	s.mu.Lock()
	s.datasets[name] = d
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("dataset loaded", "dataset", name, "num_rows", manifest.NumRows, "version", manifest.Version)
	}
	return d, nil
}

func (s *Store) putCompressed(ctx context.Context, key string, raw []byte) error {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return err
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if _, err := s.objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), &objectstore.PutOptions{ContentType: "application/zstd"}); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *Store) getObject(ctx context.Context, key string, compressed bool) ([]byte, error) {
	body, _, err := s.objects.Get(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return raw, nil
	}
	dec, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
