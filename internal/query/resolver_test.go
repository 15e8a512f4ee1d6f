package query

import (
	"errors"
	"testing"

	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/search"
	"github.com/siftdata/sift/internal/signal"
)

func testResolver(t *testing.T) (*Resolver, *schema.Schema) {
	t.Helper()
	e, d, _, _ := testFixture(t)
	return e.resolver, d.Schema()
}

func TestResolveIdentity(t *testing.T) {
	r, base := testResolver(t)

	res, err := r.Resolve(base, &SelectRowsRequest{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.DataSchema.Root.Equal(base.Root) {
		t.Error("schema changed without UDFs or searches")
	}
	if len(res.UDFs) != 0 || len(res.SearchResults) != 0 || len(res.Sorts) != 0 {
		t.Errorf("unexpected derived state: %+v", res)
	}
}

func TestResolveUDFGraft(t *testing.T) {
	r, base := testResolver(t)

	res, err := r.Resolve(base, &SelectRowsRequest{
		Columns: []Column{{Path: schema.PathOf("text"), UDF: &UDF{Name: signal.PIIName}}},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	pii := res.DataSchema.GetField(schema.PathOf("text", "pii"))
	if pii == nil {
		t.Fatal("missing grafted field text.pii")
	}
	if !pii.SignalRoot {
		t.Error("grafted field is not a signal root")
	}
	if base.GetField(schema.PathOf("text", "pii")) != nil {
		t.Error("base schema was mutated")
	}
	if len(res.UDFs) != 1 {
		t.Fatalf("got %d UDF columns, want 1", len(res.UDFs))
	}
}

func TestResolveUnknownSignal(t *testing.T) {
	r, base := testResolver(t)

	_, err := r.Resolve(base, &SelectRowsRequest{
		Columns: []Column{{Path: schema.PathOf("text"), UDF: &UDF{Name: "nope"}}},
	})
	if !errors.Is(err, signal.ErrNotFound) {
		t.Fatalf("err = %v, want signal.ErrNotFound", err)
	}
}

func TestResolveGraftConflict(t *testing.T) {
	r, base := testResolver(t)

	// A real column already lives at meta.lang, so a signal named "lang"
	// grafted under meta would have to replace it.
	base = base.Clone()
	if err := base.Graft(schema.PathOf("meta", "lang", "pii"), &schema.Field{DType: schema.DTypeInt64}); err != nil {
		t.Fatalf("seed graft: %v", err)
	}

	_, err := r.Resolve(base, &SelectRowsRequest{
		Columns: []Column{{Path: schema.PathOf("meta", "lang"), UDF: &UDF{Name: signal.PIIName}}},
	})
	if !errors.Is(err, schema.ErrSchemaConflict) {
		t.Fatalf("err = %v, want ErrSchemaConflict", err)
	}
}

func TestResolveSearchResultField(t *testing.T) {
	r, base := testResolver(t)

	res, err := r.Resolve(base, &SelectRowsRequest{
		Searches: []SearchSpec{{
			Path:      PathSpec{"text"},
			Type:      search.TypeSemantic,
			Query:     "hi",
			Embedding: "minihash",
		}},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	p := schema.PathOf("text", "semantic_similarity(minihash)")
	f := res.DataSchema.GetField(p)
	if f == nil {
		t.Fatalf("missing search result field %s", p)
	}
	if f.DType != schema.DTypeFloat32 {
		t.Errorf("dtype = %s, want float32", f.DType)
	}
	if len(res.SearchResults) != 1 || !res.SearchResults[0].Path.Equal(p) {
		t.Errorf("search results = %+v", res.SearchResults)
	}
}

func TestResolveSortPrecedence(t *testing.T) {
	r, base := testResolver(t)

	semantic := SearchSpec{
		Path:      PathSpec{"text"},
		Type:      search.TypeSemantic,
		Query:     "hi",
		Embedding: "minihash",
	}

	// Without sort_by the ranking search sets a descending sort.
	res, err := r.Resolve(base, &SelectRowsRequest{Searches: []SearchSpec{semantic}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Sorts) != 1 {
		t.Fatalf("got %d sorts, want 1", len(res.Sorts))
	}
	s := res.Sorts[0]
	if s.Order != SortDesc || s.SearchIndex == nil || *s.SearchIndex != 0 {
		t.Errorf("implicit sort = %+v, want DESC on search 0", s)
	}

	// An explicit sort_by overrides the search ranking.
	res, err = r.Resolve(base, &SelectRowsRequest{
		Searches: []SearchSpec{semantic},
		SortBy:   []PathSpec{{"score"}},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Sorts) != 1 {
		t.Fatalf("got %d sorts, want 1", len(res.Sorts))
	}
	s = res.Sorts[0]
	if !s.Path.Equal(schema.PathOf("score")) || s.Order != SortAsc || s.SearchIndex != nil {
		t.Errorf("explicit sort = %+v, want score ASC", s)
	}
}

func TestResolveSortOnSearchResult(t *testing.T) {
	r, base := testResolver(t)

	// Derived fields are sortable once the search grafts them.
	res, err := r.Resolve(base, &SelectRowsRequest{
		Searches: []SearchSpec{{
			Path:      PathSpec{"text"},
			Type:      search.TypeSemantic,
			Query:     "hi",
			Embedding: "minihash",
		}},
		SortBy:    []PathSpec{{"text", "semantic_similarity(minihash)"}},
		SortOrder: SortAsc,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Sorts) != 1 || res.Sorts[0].Order != SortAsc {
		t.Errorf("sorts = %+v", res.Sorts)
	}
}

func TestResolveAliasConflict(t *testing.T) {
	r, base := testResolver(t)

	_, err := r.Resolve(base, &SelectRowsRequest{
		Columns: []Column{
			{Path: schema.PathOf("text"), Alias: "a"},
			{Path: schema.PathOf("score"), Alias: "a"},
		},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
