package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ragworks/ragserve/internal/blob"
	"github.com/ragworks/ragserve/internal/jobstore"
	"github.com/ragworks/ragserve/internal/queue"
	"github.com/ragworks/ragserve/internal/rag"
	"github.com/ragworks/ragserve/internal/registry"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the accepted upload size. Defaults to 32 MiB.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /v1/ready.
	// If empty, /v1/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /v1/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// Deps bundles the service collaborators the handlers work against.
type Deps struct {
	// Registry owns document metadata and lifecycle state.
	Registry *registry.Registry
	// Blobs stores raw uploaded bytes.
	Blobs blob.Store
	// Queue dispatches ingestion jobs to workers.
	Queue queue.Queue
	// History is the optional job timeline store; nil disables /history.
	History *jobstore.Store
	// Retriever finds fragments for a query.
	Retriever *rag.Retriever
	// Synthesizer turns fragments into a cited answer.
	Synthesizer *rag.Synthesizer
	// FragmentsDeleter removes a document's fragments on delete.
	FragmentsDeleter FragmentsDeleter
}

// Server is the HTTP server exposing the document and query API.
type Server struct {
	cfg        *Config
	deps       *Deps
	httpServer *http.Server
	log        *slog.Logger
	pingers    []Pinger
	metrics    *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// uploadResponse is the JSON body for POST /v1/upload.
type uploadResponse struct {
	// DocumentID identifies the newly registered document.
	DocumentID string `json:"document_id"`
	// Status is the document's lifecycle state, always "uploaded" here.
	Status string `json:"status"`
	// JobID identifies the queued ingestion job.
	JobID string `json:"job_id"`
}

// documentResponse is the JSON shape of one document record.
type documentResponse struct {
	DocumentID  string   `json:"document_id"`
	Filename    string   `json:"filename"`
	ContentType string   `json:"content_type"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Checksum    string   `json:"checksum,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// documentListResponse is the JSON body for GET /v1/documents.
type documentListResponse struct {
	// Documents is the requested page, newest first.
	Documents []documentResponse `json:"documents"`
	// Total is the full document count, independent of paging.
	Total int `json:"total"`
	// Skip and Limit echo the applied paging parameters.
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// historyResponse is the JSON body for GET /v1/documents/{id}/history.
type historyResponse struct {
	DocumentID string         `json:"document_id"`
	Jobs       []historyEntry `json:"jobs"`
}

type historyEntry struct {
	JobID       string `json:"job_id"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
	EnqueuedAt  string `json:"enqueued_at"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// ingestResponse is the JSON body for POST /v1/ingest/{id}.
type ingestResponse struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
}

// queryRequest is the JSON body for POST /v1/query.
type queryRequest struct {
	// Question is the user's natural language query.
	Question string `json:"question"`
	// TopK overrides how many fragments are retrieved (default 5).
	TopK int `json:"top_k,omitempty"`
}
