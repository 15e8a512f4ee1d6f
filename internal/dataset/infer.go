package dataset

import (
	"fmt"
	"math"
	"sort"

	"github.com/siftdata/sift/internal/schema"
)

// InferSchema derives a schema from raw row values. Object keys become
// struct fields in lexical order, arrays become list fields with a merged
// element type, and JSON numbers map to int64 when every observed value is
// integral, float64 otherwise.
func InferSchema(rows []Row) (*schema.Schema, error) {
	root := &schema.Field{DType: schema.DTypeStruct}
	for i, row := range rows {
		if err := mergeValue(root, row.Values); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	sch := &schema.Schema{Root: root}
	if err := sch.Validate(); err != nil {
		return nil, err
	}
	return sch, nil
}

func mergeValue(f *schema.Field, v any) error {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		if err := settleDType(f, schema.DTypeStruct); err != nil {
			return err
		}
		for _, key := range sortedKeysStable(val) {
			child := f.Fields.Get(key)
			if child == nil {
				child = &schema.Field{}
				f.Fields.Set(key, child)
			}
			if err := mergeValue(child, val[key]); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	case []any:
		if err := settleDType(f, schema.DTypeList); err != nil {
			return err
		}
		if f.RepeatedField == nil {
			f.RepeatedField = &schema.Field{}
		}
		for _, elem := range val {
			if err := mergeValue(f.RepeatedField, elem); err != nil {
				return err
			}
		}
	case string:
		return settleDType(f, schema.DTypeString)
	case bool:
		return settleDType(f, schema.DTypeBool)
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return settleDType(f, schema.DTypeInt64)
		}
		return settleDType(f, schema.DTypeFloat64)
	case int, int64:
		return settleDType(f, schema.DTypeInt64)
	case float32:
		return settleDType(f, schema.DTypeFloat64)
	default:
		return fmt.Errorf("%w: unsupported value type %T", schema.ErrInvalidDType, v)
	}
	return nil
}

// settleDType reconciles an observed dtype with what earlier rows implied.
// An unset field takes the observation; int widens to float; anything else
// must agree.
func settleDType(f *schema.Field, observed schema.DType) error {
	switch {
	case f.DType == "":
		f.DType = observed
	case f.DType == observed:
	case f.DType == schema.DTypeInt64 && observed == schema.DTypeFloat64:
		f.DType = schema.DTypeFloat64
	case f.DType == schema.DTypeFloat64 && observed == schema.DTypeInt64:
	default:
		return fmt.Errorf("%w: saw both %s and %s", schema.ErrInvalidDType, f.DType, observed)
	}
	return nil
}

// sortedKeysStable returns map keys in a stable order. JSON decoding loses
// source order, so struct children sort lexically at inference time and
// stay in that order from then on.
func sortedKeysStable(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
