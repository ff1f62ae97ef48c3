package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ragworks/ragserve/internal/chunker"
	"github.com/ragworks/ragserve/internal/config"
	"github.com/ragworks/ragserve/internal/embedder"
	"github.com/ragworks/ragserve/internal/ingest"
	"github.com/ragworks/ragserve/internal/logging"
	"github.com/ragworks/ragserve/internal/parser"
	"github.com/ragworks/ragserve/internal/registry"
	"github.com/ragworks/ragserve/internal/worker"
)

// NewWorkerCmd constructs the `ragserve worker` command, which runs a
// standalone ingestion worker pool without the HTTP API.
func NewWorkerCmd() *cobra.Command {
	var concurrency int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a standalone ingestion worker pool",
		Long: `Run ingestion workers that consume queued documents from Redis and index
them into Qdrant, without starting the HTTP API.

Multiple worker processes can run against the same queue; a per-document
lease guarantees each document is processed by exactly one worker at a time.

Examples:
  ragserve worker
  ragserve worker --concurrency 8
  ragserve worker --metrics-addr :9091`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			cfg := config.FromEnv()

			emb, err := embedder.New(cfg)
			if err != nil {
				return fmt.Errorf("worker: failed to initialise embedder: %w", err)
			}

			gw, err := buildGateway(cfg, log)
			if err != nil {
				return fmt.Errorf("worker: %w", err)
			}
			defer func() { _ = gw.Close() }()

			q, err := buildQueue(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("worker: %w", err)
			}
			defer func() { _ = q.Close() }()

			blobs, err := buildBlobStore(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("worker: %w", err)
			}

			history, closeHistory := buildJobstore(cfg, log)
			defer closeHistory()

			promReg := prometheus.NewRegistry()
			promReg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			if concurrency <= 0 {
				concurrency = cfg.Ingest.Workers
			}
			w, err := worker.New(&worker.Config{
				Queue:    q,
				Registry: registry.New(gw, cfg.Qdrant.DocumentsCollection),
				Pipeline: ingest.New(&ingest.Config{
					Blobs:     blobs,
					Parser:    parser.New(),
					Chunker:   chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
					Embedder:  emb,
					Gateway:   gw,
					Fragments: cfg.Qdrant.FragmentsCollection,
					Version:   cfg.Embedding.Version,
				}),
				History:     history,
				Concurrency: concurrency,
				LeaseTTL:    time.Duration(cfg.Ingest.LeaseTTLSeconds) * time.Second,
				Registerer:  promReg,
			})
			if err != nil {
				return fmt.Errorf("worker: %w", err)
			}
			defer w.Close()

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
				metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadTimeout: 10 * time.Second}
				go func() {
					log.Info("worker metrics listening", slog.String("addr", metricsAddr))
					if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Warn("worker metrics server stopped", slog.Any("error", err))
					}
				}()
				defer func() { _ = metricsSrv.Close() }()
			}

			log.Info("ingestion worker started", slog.Int("concurrency", concurrency))
			return w.Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Worker pool size (default: INGEST_WORKERS or 4)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Optional address for a /metrics endpoint (e.g. :9091)")

	return cmd
}
