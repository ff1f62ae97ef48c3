// Package worker consumes ingestion jobs from the queue and drives each
// document through the pipeline on a bounded goroutine pool. A per-document
// lease keeps racing workers from processing the same document twice, and a
// job failure never takes the worker down: the document is marked failed
// with the error retained, and the loop moves on.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragworks/ragserve/internal/ingest"
	"github.com/ragworks/ragserve/internal/jobstore"
	"github.com/ragworks/ragserve/internal/logging"
	"github.com/ragworks/ragserve/internal/queue"
	"github.com/ragworks/ragserve/internal/registry"
)

// Worker pulls jobs from the queue and runs the ingestion pipeline.
type Worker struct {
	queue    queue.Queue
	registry *registry.Registry
	pipeline *ingest.Pipeline
	history  *jobstore.Store

	pool     *ants.Pool
	leaseTTL time.Duration
	metrics  *workerMetrics
	wg       sync.WaitGroup
}

// Config holds the worker's collaborators and settings.
type Config struct {
	Queue    queue.Queue
	Registry *registry.Registry
	Pipeline *ingest.Pipeline
	// History is optional; when nil no job timeline is recorded.
	History *jobstore.Store
	// Concurrency is the goroutine pool size (default 4).
	Concurrency int
	// LeaseTTL bounds how long a crashed worker blocks re-processing
	// (default 10 minutes).
	LeaseTTL time.Duration
	// Registerer receives the worker's Prometheus metrics.
	Registerer prometheus.Registerer
}

// New constructs a Worker and its goroutine pool.
func New(cfg *Config) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("worker: create pool: %w", err)
	}
	return &Worker{
		queue:    cfg.Queue,
		registry: cfg.Registry,
		pipeline: cfg.Pipeline,
		history:  cfg.History,
		pool:     pool,
		leaseTTL: leaseTTL,
		metrics:  newWorkerMetrics(reg),
	}, nil
}

// Run consumes jobs until ctx is cancelled, then waits for in-flight jobs
// to finish.
func (w *Worker) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("ingestion worker started",
		slog.Int("concurrency", w.pool.Cap()),
		slog.Duration("lease_ttl", w.leaseTTL),
	)
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				break
			}
			log.Error("dequeue failed", slog.String("error", err.Error()))
			// Transient backend error; back off briefly instead of spinning.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}
		w.wg.Add(1)
		if err := w.pool.Submit(func() {
			defer w.wg.Done()
			w.process(ctx, job)
		}); err != nil {
			w.wg.Done()
			log.Error("submit job failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	w.wg.Wait()
	log.Info("ingestion worker stopped")
	return nil
}

// Close releases the goroutine pool after in-flight jobs finish.
func (w *Worker) Close() {
	w.wg.Wait()
	w.pool.Release()
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	log := logging.FromContext(ctx).With(
		slog.String("job_id", job.ID),
		slog.String("document_id", job.DocumentID),
	)
	start := time.Now()
	w.metrics.activeJobs.Inc()
	defer w.metrics.activeJobs.Dec()

	outcome := jobstore.OutcomeSkipped
	errDetail := ""
	defer func() {
		if r := recover(); r != nil {
			outcome = jobstore.OutcomeFailed
			errDetail = fmt.Sprintf("panic: %v", r)
			log.Error("ingestion job panicked", slog.Any("panic", r))
			// The document may be stuck in processing; best effort reset.
			_ = w.registry.TransitionStatus(ctx, job.DocumentID, registry.StatusProcessing, registry.StatusFailed, errDetail)
		}
		w.metrics.jobsTotal.WithLabelValues(string(outcome)).Inc()
		w.metrics.jobDurationSeconds.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())
		w.recordCompleted(ctx, job.ID, outcome, errDetail)
	}()

	w.recordStarted(ctx, job.ID)

	release, acquired, err := w.queue.AcquireLease(ctx, job.DocumentID, w.leaseTTL)
	if err != nil {
		outcome = jobstore.OutcomeFailed
		errDetail = err.Error()
		log.Error("lease acquisition failed", slog.String("error", err.Error()))
		return
	}
	if !acquired {
		log.Info("document lease held elsewhere, skipping job")
		return
	}
	defer release()

	doc, err := w.registry.GetDocument(ctx, job.DocumentID)
	if errors.Is(err, registry.ErrNotFound) {
		log.Info("document deleted before ingestion, skipping job")
		return
	}
	if err != nil {
		outcome = jobstore.OutcomeFailed
		errDetail = err.Error()
		log.Error("document lookup failed", slog.String("error", err.Error()))
		return
	}

	// A duplicate delivery can find the document mid-ingestion when the
	// first holder's lease expired before its job finished. That is a
	// skip, not a failure.
	if doc.Status == registry.StatusProcessing {
		log.Info("document already processing, skipping job")
		return
	}

	if err := w.registry.TransitionStatus(ctx, doc.ID, doc.Status, registry.StatusProcessing, ""); err != nil {
		if errors.Is(err, registry.ErrStatusConflict) {
			log.Info("document status changed concurrently, skipping job",
				slog.String("status", string(doc.Status)),
			)
			return
		}
		outcome = jobstore.OutcomeFailed
		errDetail = err.Error()
		log.Error("status transition failed", slog.String("error", err.Error()))
		return
	}

	fragments, err := w.pipeline.Run(ctx, doc)
	if err != nil {
		outcome = jobstore.OutcomeFailed
		errDetail = err.Error()
		log.Error("ingestion failed", slog.String("error", err.Error()))
		if terr := w.registry.TransitionStatus(ctx, doc.ID, registry.StatusProcessing, registry.StatusFailed, err.Error()); terr != nil {
			log.Error("failed-status transition failed", slog.String("error", terr.Error()))
		}
		return
	}

	if err := w.registry.TransitionStatus(ctx, doc.ID, registry.StatusProcessing, registry.StatusIngested, ""); err != nil {
		outcome = jobstore.OutcomeFailed
		errDetail = err.Error()
		log.Error("ingested-status transition failed", slog.String("error", err.Error()))
		return
	}

	outcome = jobstore.OutcomeSucceeded
	w.metrics.fragmentsIndexedTotal.Add(float64(fragments))
	log.Info("ingestion job completed",
		slog.Int("fragments", fragments),
		slog.Duration("duration", time.Since(start)),
	)
}

func (w *Worker) recordStarted(ctx context.Context, jobID string) {
	if w.history == nil {
		return
	}
	if err := w.history.RecordStarted(ctx, jobID); err != nil {
		logging.FromContext(ctx).Warn("job history write failed", slog.String("error", err.Error()))
	}
}

func (w *Worker) recordCompleted(ctx context.Context, jobID string, outcome jobstore.Outcome, errDetail string) {
	if w.history == nil {
		return
	}
	if err := w.history.RecordCompleted(ctx, jobID, outcome, errDetail); err != nil {
		logging.FromContext(ctx).Warn("job history write failed", slog.String("error", err.Error()))
	}
}
