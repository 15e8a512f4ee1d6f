package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMiniHash(0))

	e, err := r.Get(MiniHashName)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Dims() != MiniHashDims {
		t.Errorf("expected default dims %d, got %d", MiniHashDims, e.Dims())
	}

	if _, err := r.Get("gpt-embeddings"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	names := r.Names()
	if len(names) != 1 || names[0] != MiniHashName {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestMiniHashDeterministic(t *testing.T) {
	e := NewMiniHash(32)
	a, err := e.Embed(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("embedding is not deterministic")
		}
	}
}

func TestMiniHashNormalized(t *testing.T) {
	e := NewMiniHash(64)
	vecs, err := e.Embed(context.Background(), []string{"the quick brown fox"})
	if err != nil {
		t.Fatal(err)
	}
	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestMiniHashAlignment(t *testing.T) {
	e := NewMiniHash(16)
	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 16 {
			t.Errorf("vector %d: expected 16 dims, got %d", i, len(v))
		}
	}
}

func TestMiniHashEmptyText(t *testing.T) {
	e := NewMiniHash(16)
	vecs, err := e.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vecs[0] {
		if v != 0 {
			t.Error("empty text should embed to the zero vector")
		}
	}
}
