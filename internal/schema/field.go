package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SignalInfo records the provenance of a signal-derived field: the signal
// that produced it and the configuration it ran with.
type SignalInfo struct {
	Name   string         `json:"signal_name"`
	Config map[string]any `json:"config,omitempty"`
}

// Clone returns a deep copy of the signal info.
func (s *SignalInfo) Clone() *SignalInfo {
	if s == nil {
		return nil
	}
	clone := &SignalInfo{Name: s.Name}
	if s.Config != nil {
		clone.Config = make(map[string]any, len(s.Config))
		for k, v := range s.Config {
			clone.Config[k] = v
		}
	}
	return clone
}

// Equal compares signal provenance by name and configuration.
func (s *SignalInfo) Equal(other *SignalInfo) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Name != other.Name || len(s.Config) != len(other.Config) {
		return false
	}
	for k, v := range s.Config {
		if fmt.Sprint(other.Config[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// Field is a node in the schema tree. Scalar fields may still carry named
// children: signal enrichment grafts derived subtrees onto the field they
// were computed from.
type Field struct {
	DType         DType       `json:"dtype"`
	Fields        FieldList   `json:"fields,omitempty"`
	RepeatedField *Field      `json:"repeated_field,omitempty"`
	Signal        *SignalInfo `json:"signal,omitempty"`
	DerivedFrom   []Path      `json:"derived_from,omitempty"`
	IsEntity      bool        `json:"is_entity,omitempty"`
	SignalRoot    bool        `json:"signal_root,omitempty"`
}

// NamedField pairs a child name with its field.
type NamedField struct {
	Name  string
	Field *Field
}

// FieldList is an ordered collection of named child fields. Order is
// insertion order and survives a JSON round trip, which keeps ListFields
// deterministic.
type FieldList []NamedField

// Get returns the child field with the given name, or nil.
func (l FieldList) Get(name string) *Field {
	for _, nf := range l {
		if nf.Name == name {
			return nf.Field
		}
	}
	return nil
}

// Set replaces the child with the given name, or appends it.
func (l *FieldList) Set(name string, f *Field) {
	for i, nf := range *l {
		if nf.Name == name {
			(*l)[i].Field = f
			return
		}
	}
	*l = append(*l, NamedField{Name: name, Field: f})
}

// Delete removes the child with the given name. Returns true if it existed.
func (l *FieldList) Delete(name string) bool {
	for i, nf := range *l {
		if nf.Name == name {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the child names in order.
func (l FieldList) Names() []string {
	names := make([]string, len(l))
	for i, nf := range l {
		names[i] = nf.Name
	}
	return names
}

// MarshalJSON encodes the list as a JSON object preserving child order.
func (l FieldList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, nf := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(nf.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(nf.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the list, preserving key order.
func (l *FieldList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected JSON object, got %v", tok)
	}
	out := FieldList{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("fields: expected string key, got %v", keyTok)
		}
		var f Field
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("fields: child %q: %w", name, err)
		}
		out = append(out, NamedField{Name: name, Field: &f})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// Clone returns a deep copy of the field tree.
func (f *Field) Clone() *Field {
	if f == nil {
		return nil
	}
	clone := &Field{
		DType:      f.DType,
		Signal:     f.Signal.Clone(),
		IsEntity:   f.IsEntity,
		SignalRoot: f.SignalRoot,
	}
	if f.RepeatedField != nil {
		clone.RepeatedField = f.RepeatedField.Clone()
	}
	if len(f.Fields) > 0 {
		clone.Fields = make(FieldList, 0, len(f.Fields))
		for _, nf := range f.Fields {
			clone.Fields = append(clone.Fields, NamedField{Name: nf.Name, Field: nf.Field.Clone()})
		}
	}
	if len(f.DerivedFrom) > 0 {
		clone.DerivedFrom = make([]Path, len(f.DerivedFrom))
		for i, p := range f.DerivedFrom {
			clone.DerivedFrom[i] = p.Clone()
		}
	}
	return clone
}

// Equal compares two field trees structurally: dtype, children (including
// order-insensitive name matching), repeated child, and signal provenance.
func (f *Field) Equal(other *Field) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.DType != other.DType || f.IsEntity != other.IsEntity || f.SignalRoot != other.SignalRoot {
		return false
	}
	if !f.Signal.Equal(other.Signal) {
		return false
	}
	if (f.RepeatedField == nil) != (other.RepeatedField == nil) {
		return false
	}
	if f.RepeatedField != nil && !f.RepeatedField.Equal(other.RepeatedField) {
		return false
	}
	if len(f.Fields) != len(other.Fields) {
		return false
	}
	for _, nf := range f.Fields {
		theirs := other.Fields.Get(nf.Name)
		if theirs == nil || !nf.Field.Equal(theirs) {
			return false
		}
	}
	return true
}

// Validate checks the structural invariants of the field tree: list fields
// carry a repeated child, struct fields carry named children, and only list
// fields carry a repeated child.
func (f *Field) Validate() error {
	if !f.DType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidDType, f.DType)
	}
	if f.DType == DTypeList && f.RepeatedField == nil {
		return fmt.Errorf("%w: list field requires repeated_field", ErrInvalidDType)
	}
	if f.DType != DTypeList && f.RepeatedField != nil {
		return fmt.Errorf("%w: repeated_field on non-list dtype %q", ErrInvalidDType, f.DType)
	}
	if f.DType == DTypeStruct && len(f.Fields) == 0 {
		return fmt.Errorf("%w: struct field requires fields", ErrInvalidDType)
	}
	if f.RepeatedField != nil {
		if err := f.RepeatedField.Validate(); err != nil {
			return err
		}
	}
	for _, nf := range f.Fields {
		if nf.Name == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidPath)
		}
		if nf.Name == Wildcard {
			return fmt.Errorf("%w: field name %q is reserved", ErrInvalidPath, Wildcard)
		}
		if err := nf.Field.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", nf.Name, err)
		}
	}
	return nil
}
