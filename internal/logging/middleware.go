package logging

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware creates an HTTP middleware that logs requests.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			endpoint := r.Method + " " + r.URL.Path
			dataset := r.PathValue("dataset")

			ctx := r.Context()
			ctx = ContextWithRequestID(ctx, requestID)
			ctx = ContextWithRequestTime(ctx, start)
			ctx = ContextWithEndpoint(ctx, endpoint)
			if dataset != "" {
				ctx = ContextWithDataset(ctx, dataset)
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			w.Header().Set("X-Request-ID", requestID)

			metrics := &RequestMetrics{}
			ctx = ContextWithRequestMetrics(ctx, metrics)

			next.ServeHTTP(rw, r.WithContext(ctx))

			elapsed := float64(time.Since(start).Microseconds()) / 1000.0

			info := &RequestInfo{
				RequestID:     requestID,
				Dataset:       dataset,
				Endpoint:      endpoint,
				Cache:         metrics.Cache,
				QueryExecMs:   metrics.QueryExecMs,
				ServerTotalMs: elapsed,
			}

			logger.WithRequestInfo(info).Info("request completed",
				"status", rw.statusCode,
				"method", r.Method,
				"path", r.URL.Path,
			)
		})
	}
}

// MiddlewareFunc creates an HTTP middleware function for use with http.HandlerFunc.
func MiddlewareFunc(logger *Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		Middleware(logger)(next).ServeHTTP(w, r)
	}
}
