// Package filter provides the structured row-filter vocabulary for sift
// select_rows requests: a path, an operator, and an optional value.
//
// Filters always AND together. For repeated paths a filter is evaluated per
// element and the row matches if at least one element satisfies the operator.
package filter

import (
	"errors"
	"fmt"

	"github.com/siftdata/sift/internal/schema"
)

// Op is a filter operator.
type Op string

const (
	OpEquals       Op = "equals"
	OpNotEqual     Op = "not_equal"
	OpLess         Op = "less"
	OpLessEqual    Op = "less_equal"
	OpGreater      Op = "greater"
	OpGreaterEqual Op = "greater_equal"
	OpIn           Op = "in"
	OpExists       Op = "exists"
)

var (
	ErrUnknownOp      = errors.New("unknown filter operator")
	ErrValueRequired  = errors.New("filter operator requires a value")
	ErrValueForbidden = errors.New("exists filter takes no value")
	ErrListRequired   = errors.New("in filter requires a list value")
	ErrNotOrdered     = errors.New("relational filter requires an ordered dtype")
	ErrNotFilterable  = errors.New("field cannot be filtered with this operator")
)

// IsValid returns true if the operator is recognized.
func (o Op) IsValid() bool {
	switch o {
	case OpEquals, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpIn, OpExists:
		return true
	default:
		return false
	}
}

// IsRelational returns true for the ordering operators.
func (o Op) IsRelational() bool {
	switch o {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	default:
		return false
	}
}

// Filter is a single row predicate anchored to a field path.
type Filter struct {
	Path  schema.Path `json:"path"`
	Op    Op          `json:"op"`
	Value any         `json:"value,omitempty"`
}

// Validate checks the filter against the field it targets. The field may be
// nil only for OpExists, since existence can be asked of any path.
func (f *Filter) Validate(field *schema.Field) error {
	if err := schema.ValidatePath(f.Path); err != nil {
		return err
	}
	if !f.Op.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownOp, f.Op)
	}

	if f.Op == OpExists {
		if f.Value != nil {
			return ErrValueForbidden
		}
		return nil
	}

	if field == nil {
		return fmt.Errorf("%w: %q", schema.ErrFieldNotFound, f.Path.String())
	}
	dtype := field.DType
	if dtype == schema.DTypeList && field.RepeatedField != nil {
		dtype = field.RepeatedField.DType
	}
	if dtype.IsComposite() || dtype == schema.DTypeStringSpan || dtype == schema.DTypeEmbedding {
		return fmt.Errorf("%w: dtype %q only supports exists", ErrNotFilterable, dtype)
	}

	switch f.Op {
	case OpIn:
		if _, ok := toSlice(f.Value); !ok {
			return ErrListRequired
		}
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		if f.Value == nil {
			return ErrValueRequired
		}
		if !dtype.IsOrdered() {
			return fmt.Errorf("%w: dtype %q", ErrNotOrdered, dtype)
		}
	case OpEquals, OpNotEqual:
		if f.Value == nil {
			return ErrValueRequired
		}
	}
	if f.Value != nil && f.Op != OpIn {
		if err := checkValueDType(dtype, f.Value); err != nil {
			return err
		}
	}
	return nil
}

// Match evaluates the filter against the values found at its path for one
// row. values holds every element after wildcard expansion; a scalar path
// yields a single-element slice, an absent value yields an empty slice.
func (f *Filter) Match(values []any) bool {
	switch f.Op {
	case OpExists:
		for _, v := range values {
			if v != nil {
				return true
			}
		}
		return false
	case OpEquals:
		return anyMatch(values, func(v any) bool { return valuesEqual(v, f.Value) })
	case OpNotEqual:
		// A row matches not_equal when it has a value and no element equals
		// the operand.
		if len(values) == 0 {
			return false
		}
		return !anyMatch(values, func(v any) bool { return valuesEqual(v, f.Value) })
	case OpIn:
		operands, ok := toSlice(f.Value)
		if !ok {
			return false
		}
		return anyMatch(values, func(v any) bool {
			for _, op := range operands {
				if valuesEqual(v, op) {
					return true
				}
			}
			return false
		})
	case OpLess:
		return anyRelational(values, f.Value, -1, false)
	case OpLessEqual:
		return anyRelational(values, f.Value, -1, true)
	case OpGreater:
		return anyRelational(values, f.Value, 1, false)
	case OpGreaterEqual:
		return anyRelational(values, f.Value, 1, true)
	default:
		return false
	}
}

func anyMatch(values []any, pred func(any) bool) bool {
	for _, v := range values {
		if v == nil {
			continue
		}
		if pred(v) {
			return true
		}
	}
	return false
}

// anyRelational applies a comparison against each element.
// direction is -1 for less, 1 for greater; orEqual admits equality.
func anyRelational(values []any, operand any, direction int, orEqual bool) bool {
	return anyMatch(values, func(v any) bool {
		cmp, ok := compareValues(v, operand)
		if !ok {
			return false
		}
		if cmp == 0 {
			return orEqual
		}
		return cmp == direction
	})
}

func toSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(arr))
		for i, f := range arr {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(arr))
		for i, n := range arr {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

// checkValueDType rejects operand values that cannot possibly match the
// field's dtype, so mistakes fail at validation instead of matching nothing.
func checkValueDType(dtype schema.DType, v any) error {
	switch {
	case dtype == schema.DTypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%w: expected string operand for dtype %q, got %T", ErrNotFilterable, dtype, v)
		}
	case dtype == schema.DTypeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%w: expected boolean operand for dtype %q, got %T", ErrNotFilterable, dtype, v)
		}
	case dtype.IsNumeric():
		if _, ok := toFloat64(v); !ok {
			return fmt.Errorf("%w: expected numeric operand for dtype %q, got %T", ErrNotFilterable, dtype, v)
		}
	}
	return nil
}
