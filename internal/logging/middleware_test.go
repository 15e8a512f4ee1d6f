package logging

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// serveLogged routes req through the logging middleware wrapped around
// handler and returns the recorder plus the decoded log line.
func serveLogged(t *testing.T, handler http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf strings.Builder
	logger := NewWithWriter(&buf)

	rec := httptest.NewRecorder()
	Middleware(logger)(handler).ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal([]byte(buf.String()), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	return rec, entry
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareLogsRequest(t *testing.T) {
	rec, entry := serveLogged(t, okHandler(), httptest.NewRequest("GET", "/v1/datasets", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	requestID := rec.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Fatal("X-Request-ID header not set")
	}
	if entry["request_id"] != requestID {
		t.Errorf("logged request_id = %v, header = %s", entry["request_id"], requestID)
	}
	if entry["endpoint"] != "GET /v1/datasets" {
		t.Errorf("endpoint = %v, want GET /v1/datasets", entry["endpoint"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if ms, ok := entry["server_total_ms"].(float64); !ok || ms < 0 {
		t.Errorf("server_total_ms = %v, want non-negative float", entry["server_total_ms"])
	}
}

func TestMiddlewareKeepsClientRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/datasets", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")

	rec, entry := serveLogged(t, okHandler(), req)

	if rec.Header().Get("X-Request-ID") != "client-supplied-id" {
		t.Error("client request ID not echoed back")
	}
	if entry["request_id"] != "client-supplied-id" {
		t.Errorf("logged request_id = %v, want client-supplied-id", entry["request_id"])
	}
}

func TestMiddlewareDatasetField(t *testing.T) {
	// register the middleware inside the route so PathValue is populated
	var buf strings.Builder
	logger := NewWithWriter(&buf)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/datasets/{dataset}/select_rows", Middleware(logger)(okHandler()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/datasets/movies/select_rows", nil))

	var entry map[string]any
	if err := json.Unmarshal([]byte(buf.String()), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["dataset"] != "movies" {
		t.Errorf("dataset = %v, want movies", entry["dataset"])
	}
}

func TestMiddlewareStatusCodes(t *testing.T) {
	codes := []int{
		http.StatusOK,
		http.StatusAccepted,
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	}
	for _, code := range codes {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		})
		_, entry := serveLogged(t, handler, httptest.NewRequest("GET", "/probe", nil))
		if entry["status"] != float64(code) {
			t.Errorf("logged status = %v, want %d", entry["status"], code)
		}
	}
}

func TestMiddlewareImplicitOK(t *testing.T) {
	// a handler that writes without calling WriteHeader logs 200
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	_, entry := serveLogged(t, handler, httptest.NewRequest("GET", "/probe", nil))
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
}

func TestMiddlewareRequestMetrics(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m := RequestMetricsFromContext(r.Context()); m != nil {
			m.Cache = CacheHit
			m.QueryExecMs = 12.5
		}
		w.WriteHeader(http.StatusOK)
	})
	_, entry := serveLogged(t, handler, httptest.NewRequest("GET", "/probe", nil))

	if entry["cache"] != "hit" {
		t.Errorf("cache = %v, want hit", entry["cache"])
	}
	if entry["query_execution_ms"] != 12.5 {
		t.Errorf("query_execution_ms = %v, want 12.5", entry["query_execution_ms"])
	}
}

func TestMiddlewareFunc(t *testing.T) {
	var buf strings.Builder
	logger := NewWithWriter(&buf)

	wrapped := MiddlewareFunc(logger, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	rec := httptest.NewRecorder()
	wrapped(rec, httptest.NewRequest("POST", "/probe", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(buf.String()), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["status"] != float64(201) {
		t.Errorf("logged status = %v, want 201", entry["status"])
	}
}
