package query

import (
	"fmt"
	"sort"

	"github.com/siftdata/sift/internal/dataset"
	"github.com/siftdata/sift/internal/filter"
	"github.com/siftdata/sift/internal/schema"
)

// GroupCount is one bucket of a select_groups response.
type GroupCount struct {
	Value any `json:"value"`
	Count int `json:"count"`
}

// SelectGroupsResult holds value counts for a leaf, most frequent first.
type SelectGroupsResult struct {
	TooManyDistinct bool         `json:"too_many_distinct"`
	Counts          []GroupCount `json:"counts"`
}

// maxDistinctGroups caps the number of buckets tracked before a leaf is
// declared ungroupable.
const maxDistinctGroups = 10_000

// SelectGroups counts distinct leaf values across rows matching the
// request's filters. Repeated leaves contribute one count per element;
// null leaves are skipped.
func (e *Engine) SelectGroups(d *dataset.Dataset, req *SelectGroupsRequest) (*SelectGroupsResult, error) {
	leaf := req.LeafPath.Path()
	if err := schema.ValidatePath(leaf); err != nil {
		return nil, fmt.Errorf("%w: leaf_path: %v", ErrValidation, err)
	}
	field := d.Schema().GetField(leaf)
	if field == nil {
		return nil, fmt.Errorf("%w: leaf_path: %v: %q", ErrValidation, schema.ErrFieldNotFound, leaf.String())
	}
	if field.DType == schema.DTypeStruct {
		return nil, fmt.Errorf("%w: leaf_path: cannot group by struct field %q", ErrValidation, leaf.String())
	}
	filters, err := validateFilters(d.Schema(), req.Filters)
	if err != nil {
		return nil, err
	}

	counts := make(map[any]int)
	for ord := 0; ord < d.NumRows(); ord++ {
		if !matchesAll(d, ord, filters) {
			continue
		}
		for _, v := range d.Values(ord, leaf) {
			key, ok := groupKey(v)
			if !ok {
				continue
			}
			counts[key]++
			if len(counts) > maxDistinctGroups {
				return &SelectGroupsResult{TooManyDistinct: true}, nil
			}
		}
	}

	result := &SelectGroupsResult{Counts: make([]GroupCount, 0, len(counts))}
	for v, c := range counts {
		result.Counts = append(result.Counts, GroupCount{Value: v, Count: c})
	}
	sort.SliceStable(result.Counts, func(i, j int) bool {
		if result.Counts[i].Count != result.Counts[j].Count {
			return result.Counts[i].Count > result.Counts[j].Count
		}
		return fmt.Sprint(result.Counts[i].Value) < fmt.Sprint(result.Counts[j].Value)
	})
	if req.Limit > 0 && req.Limit < len(result.Counts) {
		result.Counts = result.Counts[:req.Limit]
	}
	return result, nil
}

// StatsResult summarizes a leaf across the whole dataset. Min, Max and Avg
// are set for numeric leaves only.
type StatsResult struct {
	Path           schema.Path `json:"path"`
	TotalCount     int         `json:"total_count"`
	ApproxDistinct int         `json:"approx_count_distinct"`
	Min            *float64    `json:"min_val,omitempty"`
	Max            *float64    `json:"max_val,omitempty"`
	Avg            *float64    `json:"avg_val,omitempty"`
}

// Stats computes summary statistics for one leaf path: the number of
// non-null values, the distinct value count, and numeric min/max/avg.
func (e *Engine) Stats(d *dataset.Dataset, req *StatsRequest) (*StatsResult, error) {
	leaf := req.LeafPath.Path()
	if err := schema.ValidatePath(leaf); err != nil {
		return nil, fmt.Errorf("%w: leaf_path: %v", ErrValidation, err)
	}
	if d.Schema().GetField(leaf) == nil {
		return nil, fmt.Errorf("%w: leaf_path: %v: %q", ErrValidation, schema.ErrFieldNotFound, leaf.String())
	}

	result := &StatsResult{Path: leaf.Clone()}
	distinct := make(map[any]struct{})
	var sum float64
	var numCount int
	var minV, maxV float64

	for ord := 0; ord < d.NumRows(); ord++ {
		for _, v := range d.Values(ord, leaf) {
			key, ok := groupKey(v)
			if !ok {
				continue
			}
			result.TotalCount++
			if len(distinct) <= maxDistinctGroups {
				distinct[key] = struct{}{}
			}
			f, ok := asFloat(v)
			if !ok {
				continue
			}
			if numCount == 0 || f < minV {
				minV = f
			}
			if numCount == 0 || f > maxV {
				maxV = f
			}
			sum += f
			numCount++
		}
	}

	result.ApproxDistinct = len(distinct)
	if numCount > 0 {
		avg := sum / float64(numCount)
		result.Min, result.Max, result.Avg = &minV, &maxV, &avg
	}
	return result, nil
}

// validateFilters checks every filter against the schema and returns the
// converted filters.
func validateFilters(sch *schema.Schema, specs []FilterSpec) ([]filter.Filter, error) {
	filters := make([]filter.Filter, 0, len(specs))
	for i, spec := range specs {
		f := spec.Filter()
		if err := f.Validate(sch.GetField(f.Path)); err != nil {
			return nil, validationErr("filters", i, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func matchesAll(d *dataset.Dataset, ord int, filters []filter.Filter) bool {
	for i := range filters {
		f := &filters[i]
		if !f.Match(d.Values(ord, f.Path)) {
			return false
		}
	}
	return true
}

// groupKey maps a leaf value to a comparable map key. Only scalar leaves
// group; nil and composite values are skipped.
func groupKey(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string, bool, int64, float64:
		return x, true
	case int:
		return int64(x), true
	case float32:
		return float64(x), true
	default:
		return nil, false
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	default:
		return 0, false
	}
}
