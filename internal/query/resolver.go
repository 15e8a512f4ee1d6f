package query

import (
	"fmt"

	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/search"
	"github.com/siftdata/sift/internal/signal"
)

// SortResult describes one component of the effective ordering: an explicit
// sort_by path, or the relevance order a search contributes. SearchIndex is
// set when a search produced the sort.
type SortResult struct {
	Path        schema.Path `json:"path"`
	Order       SortOrder   `json:"order"`
	SearchIndex *int        `json:"search_index,omitempty"`
}

// SearchResultInfo maps a request search to the derived field it grafted.
type SearchResultInfo struct {
	SearchIndex int         `json:"search_index"`
	Path        schema.Path `json:"path"`
	Type        search.Type `json:"type"`
}

// SchemaResult is the resolved output descriptor of a select_rows request:
// the effective schema with UDF and search fields grafted in, plus the
// metadata a client needs to render headers before rows arrive.
type SchemaResult struct {
	DataSchema    *schema.Schema     `json:"data_schema"`
	UDFs          []Column           `json:"udfs,omitempty"`
	SearchResults []SearchResultInfo `json:"search_results,omitempty"`
	Sorts         []SortResult       `json:"sorts,omitempty"`
}

// Resolver computes effective schemas. It is pure: resolving never triggers
// signal computation, only schema derivation.
type Resolver struct {
	signals *signal.Registry
}

// NewResolver creates a resolver over the signal registry.
func NewResolver(signals *signal.Registry) *Resolver {
	return &Resolver{signals: signals}
}

// Resolve validates the request against the base schema and produces the
// effective schema. The base schema is never mutated; with no UDFs and no
// searches the result schema equals the base.
//
// Conflicting grafts surface schema.ErrSchemaConflict; unknown signals
// surface signal.ErrNotFound; everything else malformed wraps
// ErrValidation naming the offending element.
func (rv *Resolver) Resolve(base *schema.Schema, req *SelectRowsRequest) (*SchemaResult, error) {
	if err := req.ValidateShape(); err != nil {
		return nil, err
	}

	effective := base.Clone()
	result := &SchemaResult{DataSchema: effective}

	for i, col := range req.Columns {
		field := base.GetField(col.Path)
		if field == nil {
			return nil, validationErr("columns", i, fmt.Errorf("%w: %q", schema.ErrFieldNotFound, col.Path.String()))
		}
		if col.UDF == nil {
			continue
		}
		sig, err := rv.signals.New(col.UDF.Name, col.UDF.Config)
		if err != nil {
			return nil, fmt.Errorf("columns[%d]: %w", i, err)
		}
		out, err := signal.OutputField(sig, col.UDF.Config, col.Path, field.DType)
		if err != nil {
			return nil, validationErr("columns", i, err)
		}
		if err := effective.Graft(col.OutputPath(), out); err != nil {
			return nil, fmt.Errorf("columns[%d]: %w", i, err)
		}
		result.UDFs = append(result.UDFs, col)
	}

	for i, spec := range req.Filters {
		f := spec.Filter()
		field := base.GetField(f.Path)
		if err := f.Validate(field); err != nil {
			return nil, validationErr("filters", i, err)
		}
	}

	for i, spec := range req.Searches {
		s := spec.Search()
		field := base.GetField(s.Path)
		if err := s.Validate(field); err != nil {
			return nil, validationErr("searches", i, err)
		}
		if err := effective.Graft(s.ResultPath(), s.ResultField()); err != nil {
			return nil, fmt.Errorf("searches[%d]: %w", i, err)
		}
		result.SearchResults = append(result.SearchResults, SearchResultInfo{
			SearchIndex: i,
			Path:        s.ResultPath(),
			Type:        s.Type,
		})
	}

	// Explicit sort_by wins over anything a search would imply. Without it,
	// the first ranking search in request order sets the order.
	if len(req.SortBy) > 0 {
		order := req.SortOrder
		if order == "" {
			order = SortAsc
		}
		for i, ps := range req.SortBy {
			p := ps.Path()
			if effective.GetField(p) == nil {
				return nil, validationErr("sort_by", i, fmt.Errorf("%w: %q", schema.ErrFieldNotFound, p.String()))
			}
			result.Sorts = append(result.Sorts, SortResult{Path: p, Order: order})
		}
	} else {
		for i, spec := range req.Searches {
			s := spec.Search()
			if !s.RanksRows() {
				continue
			}
			idx := i
			result.Sorts = append(result.Sorts, SortResult{
				Path:        s.ResultPath(),
				Order:       SortDesc,
				SearchIndex: &idx,
			})
			break
		}
	}

	return result, nil
}
