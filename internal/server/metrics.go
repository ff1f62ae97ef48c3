// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the label used to partition metrics by the logical
// endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// uploadsTotal counts completed /v1/upload requests, partitioned by
	// outcome: "accepted", "rejected", or "error".
	uploadsTotal *prometheus.CounterVec

	// queriesTotal counts completed query requests, partitioned by outcome:
	// "ok", "degraded", or "error".
	queriesTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of each query
	// from receipt to response completion.
	queryDurationSeconds *prometheus.HistogramVec

	// queryActiveStreams is the number of /v1/query/stream SSE streams
	// currently open.
	queryActiveStreams prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of /v1/upload requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragserve",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of query requests from receipt to response completion.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		queryActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragserve",
			Subsystem: "query",
			Name:      "active_streams",
			Help:      "Number of /v1/query/stream SSE streams currently open.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragserve",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
