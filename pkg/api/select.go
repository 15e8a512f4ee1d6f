package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/siftdata/sift/internal/cache"
	"github.com/siftdata/sift/internal/dataset"
	"github.com/siftdata/sift/internal/logging"
	"github.com/siftdata/sift/internal/metrics"
	"github.com/siftdata/sift/internal/query"
)

func (r *Router) handleSelectRows(w http.ResponseWriter, req *http.Request) {
	var body query.SelectRowsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}
	if max := r.cfg.Limits.GetMaxSelectLimit(); body.Limit > max {
		r.writeAPIError(w, ErrBadRequest(fmt.Sprintf("limit %d exceeds maximum %d", body.Limit, max)))
		return
	}
	r.runQuery(w, req, "select_rows", &body, func(d *dataset.Dataset) (any, error) {
		return r.engine.SelectRows(req.Context(), d, &body)
	})
}

func (r *Router) handleSelectRowsSchema(w http.ResponseWriter, req *http.Request) {
	var body query.SelectRowsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}
	name := req.PathValue("dataset")
	d, err := r.store.Get(name)
	if err != nil {
		r.writeAPIError(w, ErrDatasetNotFound(name))
		return
	}
	res, err := r.engine.ResolveSchema(d, &body)
	if err != nil {
		r.writeDomainError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, res)
}

func (r *Router) handleSelectGroups(w http.ResponseWriter, req *http.Request) {
	var body query.SelectGroupsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}
	r.runQuery(w, req, "select_groups", &body, func(d *dataset.Dataset) (any, error) {
		return r.engine.SelectGroups(d, &body)
	})
}

func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) {
	var body query.StatsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeAPIError(w, ErrInvalidJSON())
		return
	}
	r.runQuery(w, req, "stats", &body, func(d *dataset.Dataset) (any, error) {
		return r.engine.Stats(d, &body)
	})
}

// runQuery wraps the read-only query endpoints with the shared cache,
// metrics and timing plumbing. The cache key includes the dataset version,
// so a stale entry can never serve after a mutation.
func (r *Router) runQuery(w http.ResponseWriter, req *http.Request, kind string, request any, exec func(d *dataset.Dataset) (any, error)) {
	name := req.PathValue("dataset")
	d, err := r.store.Get(name)
	if err != nil {
		r.writeAPIError(w, ErrDatasetNotFound(name))
		return
	}

	reqMetrics := logging.RequestMetricsFromContext(req.Context())
	key := cache.Key{Dataset: name, Version: d.Version(), Kind: kind, Request: request}

	if data, err := r.cache.Get(key); err == nil {
		if reqMetrics != nil {
			reqMetrics.Cache = logging.CacheHit
		}
		r.writeRawJSON(w, http.StatusOK, data)
		return
	}
	if reqMetrics != nil {
		reqMetrics.Cache = logging.CacheMiss
	}

	metrics.IncQueryConcurrency(name)
	start := time.Now()
	result, err := exec(d)
	elapsed := time.Since(start)
	metrics.DecQueryConcurrency(name)
	metrics.ObserveQuery(name, kind, elapsed.Seconds(), err)
	if reqMetrics != nil {
		reqMetrics.QueryExecMs = float64(elapsed.Microseconds()) / 1000.0
	}

	if err != nil {
		if errors.Is(err, req.Context().Err()) && req.Context().Err() != nil {
			r.writeAPIError(w, ErrServiceUnavailable("query timed out"))
			return
		}
		r.writeDomainError(w, err)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		r.writeAPIError(w, ErrInternalServer(err.Error()))
		return
	}
	if err := r.cache.Put(key, data); err != nil && !errors.Is(err, cache.ErrTooLarge) {
		r.logger.WithContext(req.Context()).Warn("result cache put failed", "error", err)
	}
	r.writeRawJSON(w, http.StatusOK, data)
}
