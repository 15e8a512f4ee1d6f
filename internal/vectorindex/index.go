// Package vectorindex provides the nearest-neighbor index backing semantic
// and concept search: one index per (field path, embedding name) pair,
// holding a vector per row ordinal.
//
// Search is an exhaustive cosine scan. Row counts in an exploration session
// are small enough that a partitioned index would not pay for itself.
package vectorindex

import (
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/siftdata/sift/internal/schema"
)

var (
	// ErrDimsMismatch is returned when a query vector's width differs from
	// the indexed vectors.
	ErrDimsMismatch = errors.New("query vector dims mismatch")
)

// Index holds one vector per row ordinal for a (path, embedding) pair.
// A nil vector marks a row whose field value was absent.
type Index struct {
	Path      schema.Path
	Embedding string
	Dims      int

	vectors [][]float32
}

// New builds an index over vectors aligned with row ordinals.
func New(path schema.Path, embeddingName string, dims int, vectors [][]float32) *Index {
	return &Index{
		Path:      path.Clone(),
		Embedding: embeddingName,
		Dims:      dims,
		vectors:   vectors,
	}
}

// Len returns the number of row slots in the index.
func (ix *Index) Len() int {
	return len(ix.vectors)
}

// Vector returns the indexed vector for a row ordinal, or nil.
func (ix *Index) Vector(ordinal uint32) []float32 {
	if int(ordinal) >= len(ix.vectors) {
		return nil
	}
	return ix.vectors[ordinal]
}

// Vectors returns the underlying per-ordinal vectors, for persistence.
// Callers must not mutate the result.
func (ix *Index) Vectors() [][]float32 {
	return ix.vectors
}

// Key returns the manifest key for a (path, embedding) pair.
func Key(path schema.Path, embeddingName string) string {
	return fmt.Sprintf("%s@%s", schema.SerializePath(path), embeddingName)
}

// Result is one scored row from a scan.
type Result struct {
	Ordinal uint32
	Score   float32
}

// Scan scores every candidate ordinal against the query vector and returns
// results in descending score order, ordinal ascending on ties. A nil
// candidates bitmap scans all rows.
func (ix *Index) Scan(query []float32, candidates *roaring.Bitmap) ([]Result, error) {
	if len(query) != ix.Dims {
		return nil, fmt.Errorf("%w: index has %d dims, query has %d", ErrDimsMismatch, ix.Dims, len(query))
	}

	var results []Result
	score := func(ordinal uint32) {
		vec := ix.Vector(ordinal)
		if vec == nil {
			return
		}
		results = append(results, Result{Ordinal: ordinal, Score: Cosine(query, vec)})
	}

	if candidates != nil {
		it := candidates.Iterator()
		for it.HasNext() {
			score(it.Next())
		}
	} else {
		for i := range ix.vectors {
			score(uint32(i))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Ordinal < results[j].Ordinal
	})
	return results, nil
}
