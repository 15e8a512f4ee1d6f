package api

import (
	"net/http"
	"testing"
)

type selectRowsResponse struct {
	Rows         []map[string]any `json:"rows"`
	TotalNumRows int              `json:"total_num_rows"`
}

func TestSelectRowsEquals(t *testing.T) {
	r := newTestRouter(t)
	createTestDataset(t, r, "chat")

	w := doJSON(t, r, "POST", "/v1/datasets/chat/select_rows", map[string]any{
		"filters": []map[string]any{
			{"path": "text", "op": "equals", "value": "goodbye"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res selectRowsResponse
	decodeBody(t, w, &res)
	if res.TotalNumRows != 1 {
		t.Errorf("total_num_rows = %d, want 1", res.TotalNumRows)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	if res.Rows[0]["text"] != "goodbye" {
		t.Errorf("text = %v, want goodbye", res.Rows[0]["text"])
	}
	if res.Rows[0]["__rowid__"] == nil {
		t.Error("missing __rowid__ column")
	}
}

func TestSelectRowsPagingAndSort(t *testing.T) {
	r := newTestRouter(t)
	createTestDataset(t, r, "chat")

	w := doJSON(t, r, "POST", "/v1/datasets/chat/select_rows", map[string]any{
		"sort_by":    []string{"score"},
		"sort_order": "DESC",
		"limit":      2,
		"offset":     1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res selectRowsResponse
	decodeBody(t, w, &res)
	if res.TotalNumRows != 3 {
		t.Errorf("total_num_rows = %d, want 3", res.TotalNumRows)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}
	// Scores are 3, 2, 1 descending; offset 1 starts at 2.
	if res.Rows[0]["score"] != float64(2) || res.Rows[1]["score"] != float64(1) {
		t.Errorf("scores = %v, %v, want 2, 1", res.Rows[0]["score"], res.Rows[1]["score"])
	}
}

func TestSelectRowsValidationStatus(t *testing.T) {
	r := newTestRouter(t)
	createTestDataset(t, r, "chat")

	w := doJSON(t, r, "POST", "/v1/datasets/chat/select_rows", map[string]any{
		"filters": []map[string]any{
			{"path": "nope", "op": "exists"},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestSelectRowsLimitCap(t *testing.T) {
	r := newTestRouter(t)
	createTestDataset(t, r, "chat")

	w := doJSON(t, r, "POST", "/v1/datasets/chat/select_rows", map[string]any{
		"limit": 1000000,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSelectRowsCached(t *testing.T) {
	r := newTestRouter(t)
	createTestDataset(t, r, "chat")

	req := map[string]any{
		"filters": []map[string]any{
			{"path": "text", "op": "equals", "value": "hello"},
		},
	}
	first := doJSON(t, r, "POST", "/v1/datasets/chat/select_rows", req)
	if first.Code != http.StatusOK {
		t.Fatalf("first: status %d", first.Code)
	}
	second := doJSON(t, r, "POST", "/v1/datasets/chat/select_rows", req)
	if second.Code != http.StatusOK {
		t.Fatalf("second: status %d", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("cached response differs from original")
	}
	_, _, hits, _ := r.cache.Stats()
	if hits == 0 {
		t.Errorf("cache hits = %d, want at least 1", hits)
	}
}

func TestSelectRowsSchema(t *testing.T) {
	r := newTestRouter(t)
	createTestDataset(t, r, "chat")

	w := doJSON(t, r, "POST", "/v1/datasets/chat/select_rows_schema", map[string]any{
		"columns": []map[string]any{
			{"path": "question", "signal_udf": map[string]any{"signal_name": "pii"}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		DataSchema map[string]any `json:"data_schema"`
	}
	decodeBody(t, w, &res)
	if res.DataSchema == nil {
		t.Fatal("missing data_schema")
	}
}

func TestSelectGroupsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	createTestDataset(t, r, "chat")

	w := doJSON(t, r, "POST", "/v1/datasets/chat/select_groups", map[string]any{
		"leaf_path": "text",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Counts []struct {
			Value any `json:"value"`
			Count int `json:"count"`
		} `json:"counts"`
	}
	decodeBody(t, w, &res)
	if len(res.Counts) != 3 {
		t.Errorf("got %d buckets, want 3", len(res.Counts))
	}
}

func TestStatsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	createTestDataset(t, r, "chat")

	w := doJSON(t, r, "POST", "/v1/datasets/chat/stats", map[string]any{
		"leaf_path": "score",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		TotalCount int      `json:"total_count"`
		Min        *float64 `json:"min_val"`
		Max        *float64 `json:"max_val"`
	}
	decodeBody(t, w, &res)
	if res.TotalCount != 3 {
		t.Errorf("total_count = %d, want 3", res.TotalCount)
	}
	if res.Min == nil || *res.Min != 1 || res.Max == nil || *res.Max != 3 {
		t.Errorf("min/max = %v/%v, want 1/3", res.Min, res.Max)
	}
}
