// Package query implements the request DSL, the schema resolver, and the
// row selection engine: everything between a parsed HTTP body and a page
// of rows.
package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/siftdata/sift/internal/filter"
	"github.com/siftdata/sift/internal/schema"
	"github.com/siftdata/sift/internal/search"
)

// ErrValidation wraps every request rejection that identifies a bad
// column, filter, search, or sort element.
var ErrValidation = errors.New("invalid request")

// RowIDColumn is the reserved output key carrying each row's identifier.
const RowIDColumn = "__rowid__"

// ValueColumn is the reserved output key holding a field's own scalar
// value when combine_columns nests derived children under the same key.
const ValueColumn = "__value__"

// SortOrder is the direction of an explicit or search-implied sort.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// PathSpec decodes a path that may arrive as a dotted string or as an
// array of segments.
type PathSpec schema.Path

func (p *PathSpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := schema.DeserializePath(s)
		if err != nil {
			return err
		}
		*p = PathSpec(parsed)
		return nil
	}
	var segments []string
	if err := json.Unmarshal(data, &segments); err != nil {
		return fmt.Errorf("path must be a string or an array of segments")
	}
	*p = PathSpec(segments)
	return nil
}

func (p PathSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(schema.SerializePath(schema.Path(p)))
}

// Path converts the wire form to a schema path.
func (p PathSpec) Path() schema.Path {
	return schema.Path(p)
}

// UDF is an ad hoc signal application requested for one column. On the
// wire it is the signal's config object plus a signal_name key.
type UDF struct {
	Name   string
	Config map[string]any
}

func (u *UDF) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, _ := raw["signal_name"].(string)
	if name == "" {
		return fmt.Errorf("signal_udf requires a signal_name")
	}
	delete(raw, "signal_name")
	u.Name = name
	u.Config = raw
	return nil
}

func (u UDF) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Config)+1)
	for k, v := range u.Config {
		out[k] = v
	}
	out["signal_name"] = u.Name
	return json.Marshal(out)
}

// Column is one projection in a select_rows request: a bare path, a path
// with an alias, or a path with an inline signal UDF.
type Column struct {
	Path  schema.Path
	Alias string
	UDF   *UDF
}

// OutputPath is where the column's values land in the effective schema:
// the path itself, or the UDF output grafted beneath it.
func (c *Column) OutputPath() schema.Path {
	if c.UDF != nil {
		return c.Path.Child(c.UDF.Name)
	}
	return c.Path
}

// OutputKey is the flat-projection key: the alias when set, otherwise the
// serialized output path.
func (c *Column) OutputKey() string {
	if c.Alias != "" {
		return c.Alias
	}
	return schema.SerializePath(c.OutputPath())
}

func (c *Column) UnmarshalJSON(data []byte) error {
	// Bare path forms first.
	var ps PathSpec
	if err := json.Unmarshal(data, &ps); err == nil {
		c.Path = ps.Path()
		return nil
	}
	var obj struct {
		Path  PathSpec `json:"path"`
		Alias string   `json:"alias"`
		UDF   *UDF     `json:"signal_udf"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("column must be a path or an object with a path")
	}
	c.Path = obj.Path.Path()
	c.Alias = obj.Alias
	c.UDF = obj.UDF
	return nil
}

func (c Column) MarshalJSON() ([]byte, error) {
	if c.Alias == "" && c.UDF == nil {
		return json.Marshal(schema.SerializePath(c.Path))
	}
	out := map[string]any{"path": schema.SerializePath(c.Path)}
	if c.Alias != "" {
		out["alias"] = c.Alias
	}
	if c.UDF != nil {
		out["signal_udf"] = *c.UDF
	}
	return json.Marshal(out)
}

// FilterSpec is the wire form of a filter.
type FilterSpec struct {
	Path  PathSpec  `json:"path"`
	Op    filter.Op `json:"op"`
	Value any       `json:"value,omitempty"`
}

// Filter converts the wire form to the internal filter.
func (f FilterSpec) Filter() filter.Filter {
	return filter.Filter{Path: f.Path.Path(), Op: f.Op, Value: f.Value}
}

// SearchSpec is the wire form of a search.
type SearchSpec struct {
	Path             PathSpec    `json:"path"`
	Type             search.Type `json:"type"`
	Query            string      `json:"query,omitempty"`
	Embedding        string      `json:"embedding,omitempty"`
	ConceptNamespace string      `json:"concept_namespace,omitempty"`
	ConceptName      string      `json:"concept_name,omitempty"`
	Stem             bool        `json:"stem,omitempty"`
}

// Search converts the wire form to the internal search.
func (s SearchSpec) Search() search.Search {
	return search.Search{
		Path:             s.Path.Path(),
		Type:             s.Type,
		Query:            s.Query,
		Embedding:        s.Embedding,
		ConceptNamespace: s.ConceptNamespace,
		ConceptName:      s.ConceptName,
		Stem:             s.Stem,
	}
}

// SelectRowsRequest is the body of select_rows and select_rows_schema.
// An empty Columns list selects every top-level field.
type SelectRowsRequest struct {
	Columns        []Column     `json:"columns,omitempty"`
	Filters        []FilterSpec `json:"filters,omitempty"`
	Searches       []SearchSpec `json:"searches,omitempty"`
	SortBy         []PathSpec   `json:"sort_by,omitempty"`
	SortOrder      SortOrder    `json:"sort_order,omitempty"`
	Limit          int          `json:"limit,omitempty"`
	Offset         int          `json:"offset,omitempty"`
	CombineColumns bool         `json:"combine_columns,omitempty"`
}

func validationErr(kind string, index int, err error) error {
	return fmt.Errorf("%w: %s[%d]: %v", ErrValidation, kind, index, err)
}

// ValidateShape checks the request parts that need no schema: operator and
// search-variant well-formedness, alias uniqueness, paging bounds. Field
// resolution happens in Resolve.
func (r *SelectRowsRequest) ValidateShape() error {
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit must be non-negative", ErrValidation)
	}
	if r.Offset < 0 {
		return fmt.Errorf("%w: offset must be non-negative", ErrValidation)
	}
	switch r.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: sort_order must be ASC or DESC", ErrValidation)
	}

	seenAliases := make(map[string]int)
	for i, col := range r.Columns {
		if err := schema.ValidatePath(col.Path); err != nil {
			return validationErr("columns", i, err)
		}
		if col.Alias != "" {
			if prev, ok := seenAliases[col.Alias]; ok {
				return validationErr("columns", i, fmt.Errorf("alias %q already used by columns[%d]", col.Alias, prev))
			}
			seenAliases[col.Alias] = i
		}
	}
	for i, f := range r.Filters {
		if err := schema.ValidatePath(f.Path.Path()); err != nil {
			return validationErr("filters", i, err)
		}
		if !f.Op.IsValid() {
			return validationErr("filters", i, fmt.Errorf("unknown operator %q", f.Op))
		}
	}
	for i, s := range r.Searches {
		if err := schema.ValidatePath(s.Path.Path()); err != nil {
			return validationErr("searches", i, err)
		}
		if !s.Type.IsValid() {
			return validationErr("searches", i, fmt.Errorf("unknown search type %q", s.Type))
		}
	}
	for i, p := range r.SortBy {
		if err := schema.ValidatePath(p.Path()); err != nil {
			return validationErr("sort_by", i, err)
		}
	}
	return nil
}

// SelectGroupsRequest is the body of select_groups: value counts over one
// leaf path, optionally pre-filtered.
type SelectGroupsRequest struct {
	LeafPath PathSpec     `json:"leaf_path"`
	Filters  []FilterSpec `json:"filters,omitempty"`
	Limit    int          `json:"limit,omitempty"`
}

// StatsRequest is the body of the stats endpoint.
type StatsRequest struct {
	LeafPath PathSpec `json:"leaf_path"`
}
