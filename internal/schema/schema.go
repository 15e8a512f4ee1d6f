package schema

import (
	"encoding/json"
	"fmt"
)

// Schema is the root of a dataset's field tree. It is immutable per dataset
// manifest version: signal computation produces a new Schema rather than
// mutating one in place.
type Schema struct {
	Root *Field
}

// New creates an empty schema with a struct root.
func New() *Schema {
	return &Schema{Root: &Field{DType: DTypeStruct}}
}

// FieldEntry pairs a field with its path, as produced by ListFields.
type FieldEntry struct {
	Path  Path
	Field *Field
}

// ListFields returns every field in the schema in pre-order, preserving the
// insertion order of the source schema. Repeated children are listed with a
// wildcard segment in their path.
func (s *Schema) ListFields() []FieldEntry {
	if s == nil || s.Root == nil {
		return nil
	}
	var out []FieldEntry
	collectFields(s.Root, nil, &out)
	return out
}

func collectFields(f *Field, prefix Path, out *[]FieldEntry) {
	for _, nf := range f.Fields {
		p := prefix.Child(nf.Name)
		*out = append(*out, FieldEntry{Path: p, Field: nf.Field})
		collectFields(nf.Field, p, out)
	}
	if f.RepeatedField != nil {
		p := prefix.Child(Wildcard)
		*out = append(*out, FieldEntry{Path: p, Field: f.RepeatedField})
		collectFields(f.RepeatedField, p, out)
	}
}

// GetField resolves a path to its field. A wildcard segment resolves the
// repeated child of a list field. Returns nil when the path does not
// resolve; never panics for a well-formed path.
func (s *Schema) GetField(p Path) *Field {
	if s == nil || s.Root == nil {
		return nil
	}
	return getField(s.Root, p)
}

func getField(f *Field, p Path) *Field {
	current := f
	for _, seg := range p {
		if current == nil {
			return nil
		}
		if seg == Wildcard {
			current = current.RepeatedField
			continue
		}
		current = current.Fields.Get(seg)
	}
	return current
}

// ChildFields returns the direct children of a field. For a list field it
// returns the children of the repeated child, dereferencing exactly one
// repetition level.
func ChildFields(f *Field) []NamedField {
	if f == nil {
		return nil
	}
	if f.DType == DTypeList && f.RepeatedField != nil {
		return f.RepeatedField.Fields
	}
	return f.Fields
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	return &Schema{Root: s.Root.Clone()}
}

// Validate checks the structural invariants of the whole tree.
func (s *Schema) Validate() error {
	if s == nil || s.Root == nil {
		return fmt.Errorf("%w: nil schema", ErrInvalidDType)
	}
	if s.Root.DType != DTypeStruct {
		return fmt.Errorf("%w: schema root must be a struct, got %q", ErrInvalidDType, s.Root.DType)
	}
	return s.Root.Validate()
}

// MarshalJSON encodes the schema as its root field object.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Root)
}

// UnmarshalJSON decodes a schema from its root field object.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var root Field
	if err := json.Unmarshal(data, &root); err != nil {
		return err
	}
	s.Root = &root
	return nil
}
