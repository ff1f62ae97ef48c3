// Package server implements the HTTP API for the document service: uploads,
// document management, ingestion triggers, and retrieval-augmented query
// endpoints including an SSE stream. The server is started by the
// `ragserve serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragworks/ragserve/internal/logging"
	"github.com/ragworks/ragserve/internal/vecstore"
)

// FragmentsDeleter removes all indexed fragments for a document. The vector
// store gateway satisfies it through a thin closure so handlers never touch
// collection names.
type FragmentsDeleter interface {
	DeleteFragments(ctx context.Context, documentID string) error
}

// GatewayFragmentsDeleter adapts a vecstore Gateway and collection name to
// the FragmentsDeleter interface.
type GatewayFragmentsDeleter struct {
	Gateway    vecstore.Gateway
	Collection string
}

// DeleteFragments removes every fragment carrying the document id.
func (d *GatewayFragmentsDeleter) DeleteFragments(ctx context.Context, documentID string) error {
	return d.Gateway.DeleteByFilter(ctx, d.Collection, vecstore.Filter{"document_id": documentID})
}

// New constructs a Server from the provided dependencies and config. The
// registerer receives the server's Prometheus metrics and backs /metrics;
// pass a fresh registry in tests.
func New(deps *Deps, cfg *Config, reg *prometheus.Registry) (*Server, error) {
	if deps == nil || deps.Registry == nil || deps.Blobs == nil || deps.Queue == nil {
		return nil, fmt.Errorf("server: registry, blobs, and queue must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("api authentication disabled — no api key configured")
	}
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.requestLogger(name, rl.middleware(authMiddleware(cfg.APIKey, h)))
	}
	open := func(name string, h http.Handler) http.Handler {
		return s.requestLogger(name, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/upload", protected("upload", s.handleUpload))
	mux.Handle("GET /v1/documents", protected("documents_list", s.handleListDocuments))
	mux.Handle("GET /v1/documents/{id}", protected("documents_get", s.handleGetDocument))
	mux.Handle("GET /v1/documents/{id}/history", protected("documents_history", s.handleDocumentHistory))
	mux.Handle("DELETE /v1/documents/{id}", protected("documents_delete", s.handleDeleteDocument))
	mux.Handle("POST /v1/ingest/{id}", protected("ingest", s.handleIngest))
	mux.Handle("POST /v1/query", protected("query", s.handleQuery))
	mux.Handle("GET /v1/query/stream", protected("query_stream", s.handleQueryStream))
	mux.Handle("GET /v1/health", open("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /v1/ready", open("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the configured mux for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
