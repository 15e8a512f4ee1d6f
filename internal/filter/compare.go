package filter

import (
	"strings"
	"time"
)

// valuesEqual compares two values for equality with numeric type coercion,
// since JSON decoding hands us float64 for every number.
func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av == bv
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv
		}
	case time.Time:
		switch bv := b.(type) {
		case time.Time:
			return av.Equal(bv)
		case string:
			parsed, err := parseTime(bv)
			return err == nil && av.Equal(parsed)
		}
	}

	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		return aNum == bNum
	}
	return false
}

// Compare returns -1, 0 or 1 and ok=false when the values are not
// comparable. Strings compare lexicographically, temporals as instants,
// numerics with coercion. Sort implementations share this with the
// relational operators so ordering and filtering never disagree.
func Compare(a, b any) (int, bool) {
	return compareValues(a, b)
}

// compareValues returns -1, 0 or 1 and ok=false when the values are not
// comparable. Strings compare lexicographically, temporals as instants,
// numerics with coercion.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if aStr, ok := a.(string); ok {
		if bStr, ok := b.(string); ok {
			return strings.Compare(aStr, bStr), true
		}
	}

	if aTime, ok := a.(time.Time); ok {
		var bTime time.Time
		switch bv := b.(type) {
		case time.Time:
			bTime = bv
		case string:
			var err error
			bTime, err = parseTime(bv)
			if err != nil {
				return 0, false
			}
		case float64:
			bTime = time.UnixMilli(int64(bv))
		case int64:
			bTime = time.UnixMilli(bv)
		default:
			return 0, false
		}
		switch {
		case aTime.Before(bTime):
			return -1, true
		case aTime.After(bTime):
			return 1, true
		default:
			return 0, true
		}
	}

	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		switch {
		case aNum < bNum:
			return -1, true
		case aNum > bNum:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}
