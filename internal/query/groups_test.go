package query

import (
	"errors"
	"testing"

	"github.com/siftdata/sift/internal/filter"
)

func TestSelectGroups(t *testing.T) {
	e, d, _, _ := testFixture(t)

	res, err := e.SelectGroups(d, &SelectGroupsRequest{LeafPath: PathSpec{"meta", "lang"}})
	if err != nil {
		t.Fatalf("select groups: %v", err)
	}
	want := []GroupCount{{Value: "en", Count: 3}, {Value: "fr", Count: 1}}
	if len(res.Counts) != len(want) {
		t.Fatalf("counts = %+v, want %+v", res.Counts, want)
	}
	for i := range want {
		if res.Counts[i] != want[i] {
			t.Errorf("counts[%d] = %+v, want %+v", i, res.Counts[i], want[i])
		}
	}
}

func TestSelectGroupsRepeatedLeaf(t *testing.T) {
	e, d, _, _ := testFixture(t)

	// Each list element counts separately.
	res, err := e.SelectGroups(d, &SelectGroupsRequest{LeafPath: PathSpec{"tags", "*"}})
	if err != nil {
		t.Fatalf("select groups: %v", err)
	}
	total := 0
	for _, c := range res.Counts {
		if c.Count != 1 {
			t.Errorf("%v: count = %d, want 1", c.Value, c.Count)
		}
		total += c.Count
	}
	if total != 4 {
		t.Errorf("total elements = %d, want 4", total)
	}
}

func TestSelectGroupsFiltered(t *testing.T) {
	e, d, _, _ := testFixture(t)

	res, err := e.SelectGroups(d, &SelectGroupsRequest{
		LeafPath: PathSpec{"meta", "lang"},
		Filters:  []FilterSpec{{Path: PathSpec{"score"}, Op: filter.OpGreater, Value: float64(1)}},
	})
	if err != nil {
		t.Fatalf("select groups: %v", err)
	}
	want := []GroupCount{{Value: "en", Count: 2}, {Value: "fr", Count: 1}}
	if len(res.Counts) != len(want) {
		t.Fatalf("counts = %+v, want %+v", res.Counts, want)
	}
	for i := range want {
		if res.Counts[i] != want[i] {
			t.Errorf("counts[%d] = %+v, want %+v", i, res.Counts[i], want[i])
		}
	}
}

func TestSelectGroupsLimit(t *testing.T) {
	e, d, _, _ := testFixture(t)

	res, err := e.SelectGroups(d, &SelectGroupsRequest{LeafPath: PathSpec{"tags", "*"}, Limit: 2})
	if err != nil {
		t.Fatalf("select groups: %v", err)
	}
	if len(res.Counts) != 2 {
		t.Errorf("got %d buckets, want 2", len(res.Counts))
	}
}

func TestSelectGroupsValidation(t *testing.T) {
	e, d, _, _ := testFixture(t)

	if _, err := e.SelectGroups(d, &SelectGroupsRequest{LeafPath: PathSpec{"nope"}}); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown field: err = %v, want ErrValidation", err)
	}
	if _, err := e.SelectGroups(d, &SelectGroupsRequest{LeafPath: PathSpec{"meta"}}); !errors.Is(err, ErrValidation) {
		t.Errorf("struct field: err = %v, want ErrValidation", err)
	}
}

func TestStats(t *testing.T) {
	e, d, _, _ := testFixture(t)

	res, err := e.Stats(d, &StatsRequest{LeafPath: PathSpec{"score"}})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if res.TotalCount != 4 {
		t.Errorf("total_count = %d, want 4", res.TotalCount)
	}
	if res.ApproxDistinct != 4 {
		t.Errorf("approx distinct = %d, want 4", res.ApproxDistinct)
	}
	if res.Min == nil || *res.Min != 1 {
		t.Errorf("min = %v, want 1", res.Min)
	}
	if res.Max == nil || *res.Max != 5 {
		t.Errorf("max = %v, want 5", res.Max)
	}
	if res.Avg == nil || *res.Avg != 2.75 {
		t.Errorf("avg = %v, want 2.75", res.Avg)
	}
}

func TestStatsText(t *testing.T) {
	e, d, _, _ := testFixture(t)

	res, err := e.Stats(d, &StatsRequest{LeafPath: PathSpec{"text"}})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if res.TotalCount != 4 || res.ApproxDistinct != 4 {
		t.Errorf("counts = %d/%d, want 4/4", res.TotalCount, res.ApproxDistinct)
	}
	if res.Min != nil || res.Max != nil || res.Avg != nil {
		t.Error("numeric aggregates set for a string leaf")
	}
}

func TestStatsUnknownField(t *testing.T) {
	e, d, _, _ := testFixture(t)

	if _, err := e.Stats(d, &StatsRequest{LeafPath: PathSpec{"nope"}}); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}
