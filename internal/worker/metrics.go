// Package worker — metrics.go registers all Prometheus metrics for the
// ingestion worker.
package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// workerMetrics holds all Prometheus metrics owned by the ingestion worker.
// A single instance is created in New and stored on Worker so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type workerMetrics struct {
	// jobsTotal counts completed ingestion jobs, partitioned by outcome:
	// "succeeded", "failed", or "skipped".
	jobsTotal *prometheus.CounterVec

	// jobDurationSeconds records the wall-clock duration of each ingestion
	// job from lease acquisition to terminal status.
	jobDurationSeconds *prometheus.HistogramVec

	// activeJobs is the number of ingestion jobs currently running.
	activeJobs prometheus.Gauge

	// fragmentsIndexedTotal counts fragments written to the vector store.
	fragmentsIndexedTotal prometheus.Counter
}

// newWorkerMetrics registers all worker metrics against reg. promauto.With
// is used so each call registers into the provided registry rather than the
// global default, keeping unit tests hermetic.
func newWorkerMetrics(reg prometheus.Registerer) *workerMetrics {
	factory := promauto.With(reg)

	return &workerMetrics{
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "ingest",
			Name:      "jobs_total",
			Help:      "Total number of ingestion jobs completed, partitioned by outcome.",
		}, []string{"outcome"}),

		jobDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragserve",
			Subsystem: "ingest",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of ingestion jobs from pickup to terminal status.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"outcome"}),

		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragserve",
			Subsystem: "ingest",
			Name:      "active_jobs",
			Help:      "Number of ingestion jobs currently running.",
		}),

		fragmentsIndexedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ragserve",
			Subsystem: "ingest",
			Name:      "fragments_indexed_total",
			Help:      "Total number of fragments written to the vector store.",
		}),
	}
}
