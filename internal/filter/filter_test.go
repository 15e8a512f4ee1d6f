package filter

import (
	"errors"
	"testing"

	"github.com/siftdata/sift/internal/schema"
)

func TestOpIsValid(t *testing.T) {
	valid := []Op{OpEquals, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpIn, OpExists}
	for _, op := range valid {
		if !op.IsValid() {
			t.Errorf("%s should be valid", op)
		}
	}
	if Op("like").IsValid() {
		t.Error("unknown op should be invalid")
	}
}

func TestValidate(t *testing.T) {
	strField := &schema.Field{DType: schema.DTypeString}
	intField := &schema.Field{DType: schema.DTypeInt64}
	listField := &schema.Field{
		DType:         schema.DTypeList,
		RepeatedField: &schema.Field{DType: schema.DTypeString},
	}
	spanField := &schema.Field{DType: schema.DTypeStringSpan}

	tests := []struct {
		name    string
		f       Filter
		field   *schema.Field
		wantErr error
	}{
		{"equals string", Filter{Path: schema.PathOf("q"), Op: OpEquals, Value: "x"}, strField, nil},
		{"equals missing value", Filter{Path: schema.PathOf("q"), Op: OpEquals}, strField, ErrValueRequired},
		{"equals wrong operand type", Filter{Path: schema.PathOf("q"), Op: OpEquals, Value: 3.0}, strField, ErrNotFilterable},
		{"less numeric", Filter{Path: schema.PathOf("n"), Op: OpLess, Value: 5.0}, intField, nil},
		{"less on bool", Filter{Path: schema.PathOf("b"), Op: OpLess, Value: true}, &schema.Field{DType: schema.DTypeBool}, ErrNotOrdered},
		{"in with list", Filter{Path: schema.PathOf("q"), Op: OpIn, Value: []any{"a", "b"}}, strField, nil},
		{"in without list", Filter{Path: schema.PathOf("q"), Op: OpIn, Value: "a"}, strField, ErrListRequired},
		{"exists no value", Filter{Path: schema.PathOf("q"), Op: OpExists}, strField, nil},
		{"exists with value", Filter{Path: schema.PathOf("q"), Op: OpExists, Value: "x"}, strField, ErrValueForbidden},
		{"exists on span", Filter{Path: schema.PathOf("s"), Op: OpExists}, spanField, nil},
		{"equals on span", Filter{Path: schema.PathOf("s"), Op: OpEquals, Value: "x"}, spanField, ErrNotFilterable},
		{"equals on list element dtype", Filter{Path: schema.PathOf("tags"), Op: OpEquals, Value: "x"}, listField, nil},
		{"unknown op", Filter{Path: schema.PathOf("q"), Op: Op("like"), Value: "x"}, strField, ErrUnknownOp},
		{"empty path", Filter{Path: schema.Path{}, Op: OpEquals, Value: "x"}, strField, schema.ErrInvalidPath},
		{"missing field", Filter{Path: schema.PathOf("q"), Op: OpEquals, Value: "x"}, nil, schema.ErrFieldNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate(tt.field)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMatchScalar(t *testing.T) {
	tests := []struct {
		name   string
		f      Filter
		values []any
		want   bool
	}{
		{"equals hit", Filter{Op: OpEquals, Value: "goodbye"}, []any{"goodbye"}, true},
		{"equals miss", Filter{Op: OpEquals, Value: "goodbye"}, []any{"hello world"}, false},
		{"equals absent", Filter{Op: OpEquals, Value: "goodbye"}, nil, false},
		{"not_equal hit", Filter{Op: OpNotEqual, Value: "hello"}, []any{"goodbye"}, true},
		{"not_equal miss", Filter{Op: OpNotEqual, Value: "goodbye"}, []any{"goodbye"}, false},
		{"not_equal absent", Filter{Op: OpNotEqual, Value: "x"}, nil, false},
		{"less", Filter{Op: OpLess, Value: 10.0}, []any{5.0}, true},
		{"less equal boundary", Filter{Op: OpLessEqual, Value: 5.0}, []any{5.0}, true},
		{"less boundary", Filter{Op: OpLess, Value: 5.0}, []any{5.0}, false},
		{"greater", Filter{Op: OpGreater, Value: 1.0}, []any{5.0}, true},
		{"greater_equal", Filter{Op: OpGreaterEqual, Value: 5.0}, []any{5.0}, true},
		{"numeric coercion", Filter{Op: OpEquals, Value: 5.0}, []any{int64(5)}, true},
		{"in hit", Filter{Op: OpIn, Value: []any{"a", "b"}}, []any{"b"}, true},
		{"in miss", Filter{Op: OpIn, Value: []any{"a", "b"}}, []any{"c"}, false},
		{"exists present", Filter{Op: OpExists}, []any{"x"}, true},
		{"exists nil element", Filter{Op: OpExists}, []any{nil}, false},
		{"exists absent", Filter{Op: OpExists}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Match(tt.values); got != tt.want {
				t.Errorf("Match(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestMatchRepeatedAnyElement(t *testing.T) {
	// Repeated-path semantics: at least one element must satisfy the op.
	f := Filter{Op: OpGreater, Value: 10.0}
	if !f.Match([]any{1.0, 3.0, 20.0}) {
		t.Error("expected match when one element satisfies")
	}
	if f.Match([]any{1.0, 3.0}) {
		t.Error("expected no match when no element satisfies")
	}

	eq := Filter{Op: OpEquals, Value: "spam"}
	if !eq.Match([]any{"ham", "spam"}) {
		t.Error("expected equals to match any element")
	}

	// not_equal matches only when a value exists and no element equals.
	ne := Filter{Op: OpNotEqual, Value: "spam"}
	if ne.Match([]any{"ham", "spam"}) {
		t.Error("not_equal should fail when any element equals")
	}
	if !ne.Match([]any{"ham", "eggs"}) {
		t.Error("not_equal should match when no element equals")
	}
}

func TestCompareValues(t *testing.T) {
	if cmp, ok := compareValues("a", "b"); !ok || cmp != -1 {
		t.Errorf("string compare: got (%d, %v)", cmp, ok)
	}
	if cmp, ok := compareValues(int64(7), 7.0); !ok || cmp != 0 {
		t.Errorf("numeric coercion compare: got (%d, %v)", cmp, ok)
	}
	if _, ok := compareValues("a", 1.0); ok {
		t.Error("mixed string/number should not be comparable")
	}
	if _, ok := compareValues(nil, 1.0); ok {
		t.Error("nil should not be comparable")
	}
}
