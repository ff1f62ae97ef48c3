package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ragworks/ragserve/internal/chunker"
	"github.com/ragworks/ragserve/internal/config"
	"github.com/ragworks/ragserve/internal/embedder"
	"github.com/ragworks/ragserve/internal/ingest"
	"github.com/ragworks/ragserve/internal/logging"
	"github.com/ragworks/ragserve/internal/parser"
	"github.com/ragworks/ragserve/internal/provider"
	"github.com/ragworks/ragserve/internal/rag"
	"github.com/ragworks/ragserve/internal/registry"
	"github.com/ragworks/ragserve/internal/server"
	"github.com/ragworks/ragserve/internal/tracing"
	"github.com/ragworks/ragserve/internal/worker"
)

// NewServeCmd constructs the `ragserve serve` command, which starts the HTTP
// API and, by default, an embedded ingestion worker pool.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragserve HTTP API",
		Long: `Start the ragserve HTTP API on localhost.

The server exposes upload, document management, and query endpoints
(including an SSE answer stream). Unless --no-worker is given, an embedded
ingestion worker pool processes queued documents in the same process —
run dedicated 'ragserve worker' processes to scale ingestion separately.

Examples:
  ragserve serve
  ragserve serve --port 9090 --no-worker
  MODEL_PROVIDER=azure ragserve serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			cfg := config.FromEnv()

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromConfig(ctx, cfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", cfg.Model.Provider))

			emb, err := embedder.New(cfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			gw, err := buildGateway(cfg, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = gw.Close() }()

			q, err := buildQueue(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = q.Close() }()

			blobs, err := buildBlobStore(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			history, closeHistory := buildJobstore(cfg, log)
			defer closeHistory()

			reg := registry.New(gw, cfg.Qdrant.DocumentsCollection)
			docParser := parser.New()

			retriever, err := rag.NewRetriever(emb, gw, cfg.Qdrant.FragmentsCollection, 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			synth, err := rag.NewSynthesizer(chatModel, reg, 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			promReg := prometheus.NewRegistry()
			promReg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			srv, err := server.New(&server.Deps{
				Registry:    reg,
				Blobs:       blobs,
				Queue:       q,
				History:     history,
				Retriever:   retriever,
				Synthesizer: synth,
				FragmentsDeleter: &server.GatewayFragmentsDeleter{
					Gateway:    gw,
					Collection: cfg.Qdrant.FragmentsCollection,
				},
			}, &server.Config{
				Host:           host,
				Port:           port,
				MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
				Logger:         log,
				APIKey:         cfg.Server.APIKey,
				Pingers: []server.Pinger{
					server.NamedPinger("qdrant", gw.Ping),
					server.NamedPinger("redis", q.Ping),
					server.NamedPinger("storage", blobs.Ping),
				},
			}, promReg)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })

			if !noWorker {
				w, err := worker.New(&worker.Config{
					Queue:    q,
					Registry: reg,
					Pipeline: ingest.New(&ingest.Config{
						Blobs:     blobs,
						Parser:    docParser,
						Chunker:   chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
						Embedder:  emb,
						Gateway:   gw,
						Fragments: cfg.Qdrant.FragmentsCollection,
						Version:   cfg.Embedding.Version,
					}),
					History:     history,
					Concurrency: cfg.Ingest.Workers,
					LeaseTTL:    time.Duration(cfg.Ingest.LeaseTTLSeconds) * time.Second,
					Registerer:  promReg,
				})
				if err != nil {
					return fmt.Errorf("serve: failed to create worker: %w", err)
				}
				defer w.Close()
				g.Go(func() error { return w.Run(gctx) })
				log.Info("embedded ingestion worker started", slog.Int("concurrency", cfg.Ingest.Workers))
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Do not run the embedded ingestion worker")

	return cmd
}
