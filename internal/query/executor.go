package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/siftdata/sift/internal/concept"
	"github.com/siftdata/sift/internal/dataset"
	"github.com/siftdata/sift/internal/embedding"
	"github.com/siftdata/sift/internal/filter"
	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/search"
	"github.com/siftdata/sift/internal/signal"
	"github.com/siftdata/sift/internal/vectorindex"
)

// Engine executes select_rows-family requests against loaded datasets.
type Engine struct {
	resolver  *Resolver
	signals   *signal.Registry
	embedders *embedding.Registry
	concepts  *concept.Registry
}

// NewEngine wires the engine to its collaborator registries.
func NewEngine(signals *signal.Registry, embedders *embedding.Registry, concepts *concept.Registry) *Engine {
	return &Engine{
		resolver:  NewResolver(signals),
		signals:   signals,
		embedders: embedders,
		concepts:  concepts,
	}
}

// ResolveSchema computes the effective schema of a request without
// executing it.
func (e *Engine) ResolveSchema(d *dataset.Dataset, req *SelectRowsRequest) (*SchemaResult, error) {
	return e.resolver.Resolve(d.Schema(), req)
}

// SelectRowsResult is one page of rows plus the post-filter total.
type SelectRowsResult struct {
	Rows         []map[string]any `json:"rows"`
	TotalNumRows int              `json:"total_num_rows"`
}

// SelectRows resolves, filters, searches, sorts and pages in that order.
// Resolution failures reject the request before any row is touched.
func (e *Engine) SelectRows(ctx context.Context, d *dataset.Dataset, req *SelectRowsRequest) (*SelectRowsResult, error) {
	resolved, err := e.resolver.Resolve(d.Schema(), req)
	if err != nil {
		return nil, err
	}

	// Semantic and concept searches need their embedder and (path,
	// embedding) index up front. A missing one rejects the request
	// before any row is scanned.
	for i, spec := range req.Searches {
		s := spec.Search()
		if s.Type == search.TypeKeyword {
			continue
		}
		if _, err := e.embedders.Get(s.Embedding); err != nil {
			return nil, fmt.Errorf("searches[%d]: %w", i, err)
		}
		if _, err := d.Index(s.Path, s.Embedding); err != nil {
			return nil, fmt.Errorf("searches[%d]: %w", i, err)
		}
	}

	numRows := d.NumRows()
	candidates := roaring.New()
	candidates.AddRange(0, uint64(numRows))

	// Filters: logical AND, any-element semantics per filter.
	for _, spec := range req.Filters {
		f := spec.Filter()
		matched := roaring.New()
		it := candidates.Iterator()
		for it.HasNext() {
			ord := it.Next()
			if f.Match(d.Values(int(ord), f.Path)) {
				matched.Add(ord)
			}
		}
		candidates = matched
	}

	// Searches restrict candidates further and produce overlay columns
	// holding their derived values for projection and sorting.
	overlay := make(map[string][]any)
	for i, spec := range req.Searches {
		s := spec.Search()
		var err error
		candidates, err = e.runSearch(ctx, d, &s, candidates, overlay)
		if err != nil {
			return nil, fmt.Errorf("searches[%d]: %w", i, err)
		}
	}

	ordinals := make([]int, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		ordinals = append(ordinals, int(it.Next()))
	}
	total := len(ordinals)

	// UDF columns that feed a sort key must exist for every candidate
	// before ordering; the rest compute over the returned page only.
	sortUDFs, pageUDFs := splitSortUDFs(resolved.UDFs, resolved.Sorts)
	if err := e.computeUDFs(ctx, d, sortUDFs, ordinals, overlay); err != nil {
		return nil, err
	}

	e.sortOrdinals(d, resolved.Sorts, overlay, ordinals)

	// Paging: an offset beyond the set is an empty page, not an error.
	if req.Offset >= len(ordinals) {
		ordinals = nil
	} else {
		ordinals = ordinals[req.Offset:]
	}
	if req.Limit > 0 && req.Limit < len(ordinals) {
		ordinals = ordinals[:req.Limit]
	}

	if err := e.computeUDFs(ctx, d, pageUDFs, ordinals, overlay); err != nil {
		return nil, err
	}

	rows, err := e.project(d, req, resolved, ordinals, overlay)
	if err != nil {
		return nil, err
	}
	return &SelectRowsResult{Rows: rows, TotalNumRows: total}, nil
}

// runSearch narrows candidates to matching rows and records the search's
// derived column.
func (e *Engine) runSearch(ctx context.Context, d *dataset.Dataset, s *search.Search, candidates *roaring.Bitmap, overlay map[string][]any) (*roaring.Bitmap, error) {
	numRows := d.NumRows()
	outKey := schema.SerializePath(s.ResultPath())

	if s.Type == search.TypeKeyword {
		m := search.NewKeywordMatcher(s.Query, s.Stem)
		matched := roaring.New()
		col := make([]any, numRows)
		it := candidates.Iterator()
		for it.HasNext() {
			ord := it.Next()
			var spans []any
			for _, v := range d.Values(int(ord), s.Path) {
				text, ok := v.(string)
				if !ok {
					continue
				}
				for _, sp := range m.Spans(text) {
					spans = append(spans, sp.ToValue())
				}
			}
			if len(spans) > 0 {
				matched.Add(ord)
				col[ord] = spans
			}
		}
		overlay[outKey] = col
		return matched, nil
	}

	embedder, err := e.embedders.Get(s.Embedding)
	if err != nil {
		return nil, err
	}
	ix, err := d.Index(s.Path, s.Embedding)
	if err != nil {
		return nil, err
	}

	var results []vectorindex.Result
	switch s.Type {
	case search.TypeSemantic:
		queryVecs, err := embedder.Embed(ctx, []string{s.Query})
		if err != nil {
			return nil, err
		}
		results, err = ix.Scan(queryVecs[0], candidates)
		if err != nil {
			return nil, err
		}
	case search.TypeConcept:
		model, err := e.concepts.Model(ctx, s.ConceptNamespace, s.ConceptName, embedder)
		if err != nil {
			return nil, err
		}
		it := candidates.Iterator()
		for it.HasNext() {
			ord := it.Next()
			vec := ix.Vector(ord)
			if vec == nil {
				continue
			}
			results = append(results, vectorindex.Result{Ordinal: ord, Score: model.Score(vec)})
		}
	default:
		return nil, fmt.Errorf("%w: %q", search.ErrUnknownType, s.Type)
	}

	matched := roaring.New()
	col := make([]any, numRows)
	for _, r := range results {
		matched.Add(r.Ordinal)
		col[r.Ordinal] = r.Score
	}
	overlay[outKey] = col
	return matched, nil
}

// sortKey returns the value ordering a row at a path. Overlay columns
// (search and UDF outputs) win over stored data, and a sort path may
// address a field inside a derived value, so the longest overlay prefix
// is located and the remaining segments walked into it.
func sortKey(d *dataset.Dataset, overlay map[string][]any, ord int, p schema.Path) any {
	for end := len(p); end > 0; end-- {
		if col, ok := overlay[schema.SerializePath(p[:end])]; ok {
			return descend(col[ord], p[end:])
		}
	}
	values := d.Values(ord, p)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// descend walks a value tree along the remaining path segments, taking
// the first element at list levels so the result stays scalar.
func descend(v any, rest schema.Path) any {
	for _, seg := range rest {
		for {
			list, ok := v.([]any)
			if !ok {
				break
			}
			if len(list) == 0 {
				return nil
			}
			v = list[0]
		}
		if seg == schema.Wildcard {
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[seg]
	}
	for {
		list, ok := v.([]any)
		if !ok {
			return v
		}
		if len(list) == 0 {
			return nil
		}
		v = list[0]
	}
}

// sortOrdinals orders rows by the resolved sort chain. Rows without a sort
// value go last regardless of direction; full ties order by row id so
// pagination is stable.
func (e *Engine) sortOrdinals(d *dataset.Dataset, sorts []SortResult, overlay map[string][]any, ordinals []int) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(ordinals, func(i, j int) bool {
		a, b := ordinals[i], ordinals[j]
		for _, s := range sorts {
			av := sortKey(d, overlay, a, s.Path)
			bv := sortKey(d, overlay, b, s.Path)
			if av == nil && bv == nil {
				continue
			}
			if av == nil {
				return false
			}
			if bv == nil {
				return true
			}
			cmp, ok := filter.Compare(av, bv)
			if !ok || cmp == 0 {
				continue
			}
			if s.Order == SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return d.Row(a).ID < d.Row(b).ID
	})
}

// splitSortUDFs partitions UDF columns into those whose output feeds a
// sort key and the rest.
func splitSortUDFs(udfs []Column, sorts []SortResult) (sortUDFs, pageUDFs []Column) {
	for _, col := range udfs {
		out := col.OutputPath()
		feeds := false
		for _, s := range sorts {
			if s.Path.HasPrefix(out) {
				feeds = true
				break
			}
		}
		if feeds {
			sortUDFs = append(sortUDFs, col)
		} else {
			pageUDFs = append(pageUDFs, col)
		}
	}
	return sortUDFs, pageUDFs
}

func (e *Engine) computeUDFs(ctx context.Context, d *dataset.Dataset, udfs []Column, ordinals []int, overlay map[string][]any) error {
	for _, col := range udfs {
		sig, err := e.signals.New(col.UDF.Name, col.UDF.Config)
		if err != nil {
			return err
		}
		values, err := d.ComputeUDFValues(ctx, sig, col.Path, ordinals)
		if err != nil {
			return err
		}
		full := make([]any, d.NumRows())
		for i, ord := range ordinals {
			full[ord] = values[i]
		}
		overlay[schema.SerializePath(col.OutputPath())] = full
	}
	return nil
}

// project renders the page. With combine_columns the projected paths are
// merged into one nested tree per row mirroring the schema; without it
// each column becomes an independent top-level key.
func (e *Engine) project(d *dataset.Dataset, req *SelectRowsRequest, resolved *SchemaResult, ordinals []int, overlay map[string][]any) ([]map[string]any, error) {
	type projection struct {
		key  string
		path schema.Path
	}

	var projections []projection
	if len(req.Columns) > 0 {
		for i := range req.Columns {
			col := &req.Columns[i]
			projections = append(projections, projection{key: col.OutputKey(), path: col.OutputPath()})
		}
	} else {
		// Default selection: every top-level field of the effective schema.
		for _, child := range schema.ChildFields(resolved.DataSchema.Root) {
			projections = append(projections, projection{key: child.Name, path: schema.PathOf(child.Name)})
		}
	}
	// Search results always project, so clients see scores and spans even
	// with an explicit column list.
	for _, sr := range resolved.SearchResults {
		projections = append(projections, projection{key: schema.SerializePath(sr.Path), path: sr.Path})
	}

	rows := make([]map[string]any, 0, len(ordinals))
	for _, ord := range ordinals {
		out := map[string]any{RowIDColumn: d.Row(ord).ID}
		for _, pr := range projections {
			value := e.valueAt(d, overlay, ord, pr.path)
			if req.CombineColumns {
				mergeAt(out, pr.path, value)
			} else {
				out[pr.key] = value
			}
		}
		rows = append(rows, out)
	}
	return rows, nil
}

// valueAt reads a row's value tree at a path, preferring overlay columns
// (search and UDF outputs) over stored data.
func (e *Engine) valueAt(d *dataset.Dataset, overlay map[string][]any, ord int, p schema.Path) any {
	if col, ok := overlay[schema.SerializePath(p)]; ok {
		return col[ord]
	}
	return d.ValueTree(ord, p)
}

// mergeAt inserts a value tree into a nested output row at a path,
// zipping through list levels at wildcard segments. A scalar already at
// an intersection point survives under ValueColumn next to the derived
// children grafted beside it.
func mergeAt(dst map[string]any, p schema.Path, value any) {
	if len(p) == 0 {
		return
	}
	if len(p) == 1 {
		dst[p[0]] = mergeValue(dst[p[0]], value)
		return
	}
	head, rest := p[0], p[1:]
	if rest[0] == schema.Wildcard {
		existing, _ := dst[head].([]any)
		dst[head] = mergeList(existing, rest, value)
		return
	}
	child, ok := dst[head].(map[string]any)
	if !ok {
		child = make(map[string]any)
		if prev := dst[head]; prev != nil {
			child[ValueColumn] = prev
		}
		dst[head] = child
	}
	mergeAt(child, rest, value)
}

// mergeValue reconciles two values landing at the same output key. Maps
// merge key by key; a scalar meeting a map of derived children keeps its
// place under ValueColumn.
func mergeValue(existing, value any) any {
	if existing == nil {
		return value
	}
	if value == nil {
		return existing
	}
	em, eok := existing.(map[string]any)
	vm, vok := value.(map[string]any)
	switch {
	case eok && vok:
		for k, v := range vm {
			em[k] = mergeValue(em[k], v)
		}
		return em
	case eok:
		em[ValueColumn] = mergeValue(em[ValueColumn], value)
		return em
	case vok:
		vm[ValueColumn] = mergeValue(existing, vm[ValueColumn])
		return vm
	default:
		return value
	}
}

// mergeList zips a wildcard level: value must be a list aligned with the
// existing elements (or the existing list may be empty).
func mergeList(existing []any, p schema.Path, value any) []any {
	values, _ := value.([]any)
	n := len(existing)
	if len(values) > n {
		n = len(values)
	}
	out := make([]any, n)
	copy(out, existing)
	rest := p[1:] // consume the wildcard
	for i := 0; i < n; i++ {
		var elemValue any
		if i < len(values) {
			elemValue = values[i]
		}
		if len(rest) == 0 {
			out[i] = mergeValue(out[i], elemValue)
			continue
		}
		if rest[0] == schema.Wildcard {
			inner, _ := out[i].([]any)
			out[i] = mergeList(inner, rest, elemValue)
			continue
		}
		elem, ok := out[i].(map[string]any)
		if !ok {
			elem = make(map[string]any)
			if prev := out[i]; prev != nil {
				elem[ValueColumn] = prev
			}
			out[i] = elem
		}
		mergeAt(elem, rest, elemValue)
	}
	return out
}
