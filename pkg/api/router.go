package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siftdata/sift/internal/cache"
	"github.com/siftdata/sift/internal/concept"
	"github.com/siftdata/sift/internal/config"
	"github.com/siftdata/sift/internal/dataset"
	"github.com/siftdata/sift/internal/embedding"
	"github.com/siftdata/sift/internal/logging"
	"github.com/siftdata/sift/internal/query"
	"github.com/siftdata/sift/internal/signal"
	"github.com/siftdata/sift/internal/task"
	"github.com/siftdata/sift/pkg/objectstore"
)

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(nil)
	},
}

type gzipResponseWriter struct {
	http.ResponseWriter
	gz *gzip.Writer
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.gz.Write(b)
}

// loggingResponseWriter captures status code for logging.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Deps are the collaborators behind the HTTP surface. Nil fields are
// filled with working defaults, which is what the tests rely on.
type Deps struct {
	Logger    *logging.Logger
	Objects   objectstore.Store
	Store     *dataset.Store
	Signals   *signal.Registry
	Embedders *embedding.Registry
	Concepts  *concept.Registry
	Tasks     *task.Manager
	Cache     *cache.ResultCache
}

type Router struct {
	cfg       *config.Config
	mux       *http.ServeMux
	logger    *logging.Logger
	store     *dataset.Store
	engine    *query.Engine
	signals   *signal.Registry
	embedders *embedding.Registry
	concepts  *concept.Registry
	tasks     *task.Manager
	cache     *cache.ResultCache
}

// NewRouter creates the HTTP router with default collaborators backed by
// an in-memory object store.
func NewRouter(cfg *config.Config) *Router {
	return NewRouterWithDeps(cfg, Deps{})
}

// NewRouterWithDeps creates the router, filling missing dependencies.
func NewRouterWithDeps(cfg *config.Config, deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = logging.New()
	}
	if deps.Objects == nil {
		deps.Objects = objectstore.NewMemoryStore()
	}
	if deps.Store == nil {
		deps.Store = dataset.NewStore(objectstore.NewInstrumentedStore(deps.Objects), deps.Logger)
	}
	if deps.Embedders == nil {
		deps.Embedders = embedding.NewRegistry()
		deps.Embedders.Register(embedding.NewMiniHash(0))
	}
	if deps.Concepts == nil {
		deps.Concepts = concept.NewRegistry()
	}
	if deps.Signals == nil {
		deps.Signals = signal.NewRegistry()
		deps.Signals.Register(signal.PIIName, signal.NewPII)
		deps.Signals.Register(signal.TextStatisticsName, signal.NewTextStatistics)
		deps.Signals.Register(signal.ConceptScoreName, signal.NewConceptScoreFactory(deps.Concepts, deps.Embedders))
	}
	if deps.Tasks == nil {
		deps.Tasks = task.NewManagerWithLimit(deps.Logger, cfg.Limits.GetMaxConcurrentTasks())
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(cfg.Cache.ResultCacheBytes())
	}

	r := &Router{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    deps.Logger,
		store:     deps.Store,
		engine:    query.NewEngine(deps.Signals, deps.Embedders, deps.Concepts),
		signals:   deps.Signals,
		embedders: deps.Embedders,
		concepts:  deps.Concepts,
		tasks:     deps.Tasks,
		cache:     deps.Cache,
	}

	// Any dataset mutation makes cached results for it unreachable; drop
	// them eagerly so the budget goes to live entries.
	r.store.OnChange(r.cache.Invalidate)

	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /metrics", r.handleMetrics)

	r.mux.HandleFunc("GET /v1/datasets", r.auth(r.handleListDatasets))
	r.mux.HandleFunc("POST /v1/datasets", r.auth(r.handleCreateDataset))
	r.mux.HandleFunc("GET /v1/datasets/{dataset}", r.auth(r.validateDataset(r.handleGetManifest)))
	r.mux.HandleFunc("DELETE /v1/datasets/{dataset}", r.auth(r.validateDataset(r.handleDeleteDataset)))

	r.mux.HandleFunc("POST /v1/datasets/{dataset}/select_rows", r.auth(r.validateDataset(r.queryTimeout(r.handleSelectRows))))
	r.mux.HandleFunc("POST /v1/datasets/{dataset}/select_rows_schema", r.auth(r.validateDataset(r.handleSelectRowsSchema)))
	r.mux.HandleFunc("POST /v1/datasets/{dataset}/select_groups", r.auth(r.validateDataset(r.queryTimeout(r.handleSelectGroups))))
	r.mux.HandleFunc("POST /v1/datasets/{dataset}/stats", r.auth(r.validateDataset(r.queryTimeout(r.handleStats))))

	r.mux.HandleFunc("POST /v1/datasets/{dataset}/compute_signal", r.auth(r.validateDataset(r.handleComputeSignal)))
	r.mux.HandleFunc("POST /v1/datasets/{dataset}/compute_embedding_index", r.auth(r.validateDataset(r.handleComputeEmbeddingIndex)))
	r.mux.HandleFunc("POST /v1/datasets/{dataset}/delete_signal", r.auth(r.validateDataset(r.handleDeleteSignal)))
	r.mux.HandleFunc("POST /v1/datasets/{dataset}/load", r.auth(r.validateDataset(r.handleLoadDataset)))

	r.mux.HandleFunc("GET /v1/tasks", r.auth(r.handleListTasks))
	r.mux.HandleFunc("GET /v1/tasks/{task}", r.auth(r.handleGetTask))

	r.mux.HandleFunc("GET /v1/concepts", r.auth(r.handleListConcepts))
	r.mux.HandleFunc("POST /v1/concepts", r.auth(r.handleCreateConcept))
	r.mux.HandleFunc("DELETE /v1/concepts/{namespace}/{name}", r.auth(r.handleDeleteConcept))

	r.mux.HandleFunc("GET /v1/signals", r.auth(r.handleListSignals))
	r.mux.HandleFunc("GET /v1/embeddings", r.auth(r.handleListEmbeddings))

	return r
}

// Close stops background work owned by the router.
func (r *Router) Close() error {
	r.tasks.Close()
	return nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	requestID := req.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	ctx := req.Context()
	ctx = logging.ContextWithRequestID(ctx, requestID)
	ctx = logging.ContextWithRequestTime(ctx, start)
	ctx = logging.ContextWithEndpoint(ctx, req.Method+" "+req.URL.Path)
	reqMetrics := &logging.RequestMetrics{}
	ctx = logging.ContextWithRequestMetrics(ctx, reqMetrics)
	req = req.WithContext(ctx)

	lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	if req.ContentLength > MaxRequestBodySize {
		r.writeAPIError(lw, ErrPayloadTooLarge("request body exceeds 256MB limit"))
		r.logRequest(req, lw.statusCode, start, reqMetrics)
		return
	}

	req.Body = http.MaxBytesReader(lw, req.Body, MaxRequestBodySize)
	req.Body = r.decompressBody(req)

	if strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") {
		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(lw)
		defer func() {
			gz.Close()
			gzipWriterPool.Put(gz)
		}()

		lw.Header().Set("Content-Encoding", "gzip")
		lw.Header().Del("Content-Length")
		r.mux.ServeHTTP(&gzipResponseWriter{ResponseWriter: lw, gz: gz}, req)
		r.logRequest(req, lw.statusCode, start, reqMetrics)
		return
	}

	r.mux.ServeHTTP(lw, req)
	r.logRequest(req, lw.statusCode, start, reqMetrics)
}

func (r *Router) logRequest(req *http.Request, status int, start time.Time, reqMetrics *logging.RequestMetrics) {
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	info := &logging.RequestInfo{
		RequestID:     logging.RequestIDFromContext(req.Context()),
		Dataset:       req.PathValue("dataset"),
		Endpoint:      req.Method + " " + req.URL.Path,
		Cache:         reqMetrics.Cache,
		QueryExecMs:   reqMetrics.QueryExecMs,
		ServerTotalMs: elapsed,
	}

	r.logger.WithRequestInfo(info).Info("request completed",
		"status", status,
		"method", req.Method,
		"path", req.URL.Path,
	)
}

func (r *Router) decompressBody(req *http.Request) io.ReadCloser {
	if req.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(req.Body)
		if err != nil {
			return req.Body
		}
		return gz
	}
	return req.Body
}

func (r *Router) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.AuthToken == "" {
			next(w, req)
			return
		}

		auth := req.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			r.writeAPIError(w, ErrUnauthorized("missing or invalid Authorization header"))
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token != r.cfg.AuthToken {
			r.writeAPIError(w, ErrUnauthorized("invalid token"))
			return
		}

		next(w, req)
	}
}

func (r *Router) validateDataset(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := req.PathValue("dataset")
		if err := dataset.ValidateName(name); err != nil {
			r.writeAPIError(w, ErrBadRequest(err.Error()))
			return
		}
		next(w, req)
	}
}

// queryTimeout wraps a handler with the configured query deadline.
func (r *Router) queryTimeout(next http.HandlerFunc) http.HandlerFunc {
	timeout := time.Duration(r.cfg.Timeout.GetQueryTimeout()) * time.Millisecond
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), timeout)
		defer cancel()
		next(w, req.WithContext(ctx))
	}
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) {
	promhttp.Handler().ServeHTTP(w, req)
}

func (r *Router) handleListSignals(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"signals": r.signals.Names()})
}

func (r *Router) handleListEmbeddings(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, map[string]any{"embeddings": r.embedders.Names()})
}

func (r *Router) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeRawJSON writes pre-marshaled JSON, which is how cached query
// results go out without a decode/encode round trip.
func (r *Router) writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (r *Router) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "error",
		"error":  message,
	})
}

func (r *Router) writeAPIError(w http.ResponseWriter, err *APIError) {
	r.writeError(w, err.StatusCode, err.Message)
}

func (r *Router) writeDomainError(w http.ResponseWriter, err error) {
	r.writeAPIError(w, mapError(err))
}
