// Package cache implements the in-memory query result cache. Entries are
// keyed by a hash of the dataset, its manifest version, and the canonical
// request body, so any dataset mutation naturally orphans stale entries;
// Invalidate reclaims them eagerly.
package cache

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/siftdata/sift/internal/metrics"
)

var (
	ErrMiss     = errors.New("result cache miss")
	ErrTooLarge = errors.New("result larger than cache budget")
)

// Key identifies one cached query result.
type Key struct {
	Dataset string
	Version uint64
	Kind    string // select_rows, select_groups, stats
	Request any    // the parsed request, canonicalized through JSON
}

// hash renders the key to the internal map key.
func (k Key) hash() (string, error) {
	body, err := json.Marshal(k.Request)
	if err != nil {
		return "", fmt.Errorf("canonicalizing request: %w", err)
	}
	h := xxhash.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00", k.Dataset, k.Version, k.Kind)
	h.Write(body)
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

type entry struct {
	key     string
	dataset string
	data    []byte
	element *list.Element
}

// ResultCache is a byte-budgeted LRU over marshaled query responses.
type ResultCache struct {
	mu sync.Mutex

	maxBytes  int64
	usedBytes int64

	entries   map[string]*entry
	byDataset map[string]map[string]*entry
	lru       *list.List // front = most recently used

	hits   int64
	misses int64
}

// New creates a result cache with the given byte budget. A non-positive
// budget gets a 256 MiB default.
func New(maxBytes int64) *ResultCache {
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	return &ResultCache{
		maxBytes:  maxBytes,
		entries:   make(map[string]*entry),
		byDataset: make(map[string]map[string]*entry),
		lru:       list.New(),
	}
}

// Get returns the cached marshaled response for a key, or ErrMiss.
func (c *ResultCache) Get(key Key) ([]byte, error) {
	hash, err := key.hash()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash]
	if !ok {
		c.misses++
		metrics.IncCacheMiss(key.Dataset)
		return nil, ErrMiss
	}
	c.lru.MoveToFront(e.element)
	c.hits++
	metrics.IncCacheHit(key.Dataset)
	return e.data, nil
}

// Put stores a marshaled response, evicting least recently used entries
// until the budget holds.
func (c *ResultCache) Put(key Key, data []byte) error {
	hash, err := key.hash()
	if err != nil {
		return err
	}
	size := int64(len(data))
	if size > c.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[hash]; ok {
		c.removeLocked(old)
	}
	for c.usedBytes+size > c.maxBytes {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(*entry))
	}

	e := &entry{key: hash, dataset: key.Dataset, data: data}
	e.element = c.lru.PushFront(e)
	c.entries[hash] = e
	ds, ok := c.byDataset[key.Dataset]
	if !ok {
		ds = make(map[string]*entry)
		c.byDataset[key.Dataset] = ds
	}
	ds[hash] = e
	c.usedBytes += size
	return nil
}

// Invalidate drops every cached result for a dataset.
func (c *ResultCache) Invalidate(dataset string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.byDataset[dataset] {
		c.removeLocked(e)
	}
}

// Stats reports cache occupancy and hit counters.
func (c *ResultCache) Stats() (entries int, usedBytes int64, hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.usedBytes, c.hits, c.misses
}

func (c *ResultCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	if ds, ok := c.byDataset[e.dataset]; ok {
		delete(ds, e.key)
		if len(ds) == 0 {
			delete(c.byDataset, e.dataset)
		}
	}
	c.lru.Remove(e.element)
	c.usedBytes -= int64(len(e.data))
}
