// Package logging provides structured JSON logging for Sift.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with helpers that pull request-scoped fields
// out of a context.
type Logger struct {
	*slog.Logger
}

// Context keys are unexported struct types so no other package can
// collide with them.
type (
	requestIDKey      struct{}
	datasetKey        struct{}
	endpointKey       struct{}
	requestTimeKey    struct{}
	requestMetricsKey struct{}
)

// CacheStatus records whether a query was answered from the result cache.
type CacheStatus string

const (
	CacheHit  CacheStatus = "hit"
	CacheMiss CacheStatus = "miss"
)

// RequestInfo contains contextual information about the request.
type RequestInfo struct {
	RequestID     string
	Dataset       string
	Endpoint      string
	Cache         CacheStatus
	ServerTotalMs float64
	QueryExecMs   float64
	RequestTime   time.Time
}

// RequestMetrics holds mutable per-request measurements for logging.
type RequestMetrics struct {
	Cache       CacheStatus
	QueryExecMs float64
}

// New creates a Logger emitting JSON to stdout.
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Logger emitting JSON to w.
func NewWithWriter(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{Logger: slog.New(handler)}
}

// WithContext returns a logger carrying whatever request fields the
// context holds.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if ds := DatasetFromContext(ctx); ds != "" {
		attrs = append(attrs, slog.String("dataset", ds))
	}
	if ep := EndpointFromContext(ctx); ep != "" {
		attrs = append(attrs, slog.String("endpoint", ep))
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(attrs...)}
}

// WithRequestInfo returns a logger with request summary fields attached.
func (l *Logger) WithRequestInfo(info *RequestInfo) *Logger {
	var attrs []any
	if info.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", info.RequestID))
	}
	if info.Dataset != "" {
		attrs = append(attrs, slog.String("dataset", info.Dataset))
	}
	if info.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", info.Endpoint))
	}
	if info.Cache != "" {
		attrs = append(attrs, slog.String("cache", string(info.Cache)))
	}
	if info.ServerTotalMs > 0 {
		attrs = append(attrs, slog.Float64("server_total_ms", info.ServerTotalMs))
	}
	if info.QueryExecMs > 0 {
		attrs = append(attrs, slog.Float64("query_execution_ms", info.QueryExecMs))
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(attrs...)}
}

// With returns a new logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func ContextWithDataset(ctx context.Context, dataset string) context.Context {
	return context.WithValue(ctx, datasetKey{}, dataset)
}

func ContextWithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey{}, endpoint)
}

func ContextWithRequestTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

func ContextWithRequestMetrics(ctx context.Context, metrics *RequestMetrics) context.Context {
	return context.WithValue(ctx, requestMetricsKey{}, metrics)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func DatasetFromContext(ctx context.Context) string {
	ds, _ := ctx.Value(datasetKey{}).(string)
	return ds
}

func EndpointFromContext(ctx context.Context) string {
	ep, _ := ctx.Value(endpointKey{}).(string)
	return ep
}

func RequestTimeFromContext(ctx context.Context) time.Time {
	t, _ := ctx.Value(requestTimeKey{}).(time.Time)
	return t
}

func RequestMetricsFromContext(ctx context.Context) *RequestMetrics {
	m, _ := ctx.Value(requestMetricsKey{}).(*RequestMetrics)
	return m
}

// ElapsedMs returns the milliseconds elapsed since the request start
// time, or 0 when the context carries none.
func ElapsedMs(ctx context.Context) float64 {
	start := RequestTimeFromContext(ctx)
	if start.IsZero() {
		return 0
	}
	return float64(time.Since(start).Microseconds()) / 1000.0
}
