package worker

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragworks/ragserve/internal/blob"
	"github.com/ragworks/ragserve/internal/chunker"
	"github.com/ragworks/ragserve/internal/embedder/mock"
	"github.com/ragworks/ragserve/internal/ingest"
	"github.com/ragworks/ragserve/internal/jobstore"
	"github.com/ragworks/ragserve/internal/parser"
	"github.com/ragworks/ragserve/internal/queue"
	"github.com/ragworks/ragserve/internal/registry"
	"github.com/ragworks/ragserve/internal/vecstore"
)

type workerEnv struct {
	worker   *Worker
	queue    *queue.MemQueue
	registry *registry.Registry
	blobs    blob.Store
	history  *jobstore.Store
	gateway  *vecstore.MemoryGateway
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()
	gw := vecstore.NewMemoryGateway()
	reg := registry.New(gw, "documents")
	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	pipeline := ingest.New(&ingest.Config{
		Blobs:     blobs,
		Parser:    parser.New(),
		Chunker:   chunker.New(100, 20),
		Embedder:  mock.New(8),
		Gateway:   gw,
		Fragments: "chunks",
	})
	history, err := jobstore.Open(":memory:")
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	q := queue.NewMemQueue(16)
	w, err := New(&Config{
		Queue:       q,
		Registry:    reg,
		Pipeline:    pipeline,
		History:     history,
		Concurrency: 2,
		LeaseTTL:    time.Minute,
		Registerer:  prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &workerEnv{worker: w, queue: q, registry: reg, blobs: blobs, history: history, gateway: gw}
}

func (e *workerEnv) uploadDocument(t *testing.T, id, content string) {
	t.Helper()
	ctx := context.Background()
	key := blob.ObjectKey(id, "file.txt")
	if err := e.blobs.Put(ctx, key, strings.NewReader(content), int64(len(content)), "text/plain"); err != nil {
		t.Fatalf("store blob: %v", err)
	}
	doc := &registry.Document{
		ID:          id,
		Filename:    "file.txt",
		ContentType: "text/plain",
		StorageURI:  key,
		Status:      registry.StatusUploaded,
	}
	if err := e.registry.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
}

func (e *workerEnv) enqueueAndRecord(t *testing.T, id string) *queue.Job {
	t.Helper()
	ctx := context.Background()
	job, err := e.queue.Enqueue(ctx, id)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := e.history.RecordEnqueued(ctx, job.ID, id, job.EnqueuedAt); err != nil {
		t.Fatalf("RecordEnqueued: %v", err)
	}
	return job
}

func (e *workerEnv) waitForStatus(t *testing.T, id string, want registry.Status) *registry.Document {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := e.registry.GetDocument(context.Background(), id)
		if err == nil && doc.Status == want {
			return doc
		}
		time.Sleep(10 * time.Millisecond)
	}
	doc, err := e.registry.GetDocument(context.Background(), id)
	t.Fatalf("document %s never reached %s (last: %+v, err: %v)", id, want, doc, err)
	return nil
}

func TestWorkerIngestsDocument(t *testing.T) {
	t.Parallel()
	env := newWorkerEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)

	env.uploadDocument(t, "doc-1", "A sentence to ingest. Another sentence right behind it.")
	job := env.enqueueAndRecord(t, "doc-1")

	doc := env.waitForStatus(t, "doc-1", registry.StatusIngested)
	if doc.Error != "" {
		t.Errorf("Error = %q, want empty on success", doc.Error)
	}

	recs, err := env.history.History(context.Background(), "doc-1", 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(recs) != 1 || recs[0].JobID != job.ID {
		t.Fatalf("history = %+v, want one record for %s", recs, job.ID)
	}
	if recs[0].Outcome != jobstore.OutcomeSucceeded {
		t.Errorf("Outcome = %q, want succeeded", recs[0].Outcome)
	}
}

func TestWorkerMarksFailureAndKeepsRunning(t *testing.T) {
	t.Parallel()
	env := newWorkerEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)

	// Registered but with no stored bytes: the pipeline fails on blob read.
	broken := &registry.Document{
		ID:          "doc-broken",
		Filename:    "gone.txt",
		ContentType: "text/plain",
		StorageURI:  "doc-broken_gone.txt",
		Status:      registry.StatusUploaded,
	}
	if err := env.registry.CreateDocument(context.Background(), broken); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	env.enqueueAndRecord(t, "doc-broken")

	doc := env.waitForStatus(t, "doc-broken", registry.StatusFailed)
	if doc.Error == "" {
		t.Error("failed document has no retained error detail")
	}

	// The failure must not take the worker down.
	env.uploadDocument(t, "doc-ok", "Still alive. The worker keeps consuming jobs.")
	env.enqueueAndRecord(t, "doc-ok")
	env.waitForStatus(t, "doc-ok", registry.StatusIngested)
}

// TestWorkerUnknownTypeBinaryFailsAsync covers the full path for an upload
// with an unrecognized content type: the job runs, the byte-to-text fallback
// rejects the binary content, and the document ends failed with the parse
// error retained and nothing indexed.
func TestWorkerUnknownTypeBinaryFailsAsync(t *testing.T) {
	t.Parallel()
	env := newWorkerEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.worker.Run(ctx)

	id := "doc-binary"
	key := blob.ObjectKey(id, "photo.png")
	content := []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe, 0x00, 0x01}
	if err := env.blobs.Put(context.Background(), key, bytes.NewReader(content), int64(len(content)), "image/png"); err != nil {
		t.Fatalf("store blob: %v", err)
	}
	doc := &registry.Document{
		ID:          id,
		Filename:    "photo.png",
		ContentType: "image/png",
		StorageURI:  key,
		Status:      registry.StatusUploaded,
	}
	if err := env.registry.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	env.enqueueAndRecord(t, id)

	failed := env.waitForStatus(t, id, registry.StatusFailed)
	if failed.Error == "" {
		t.Error("failed document has no retained error detail")
	}

	count, err := env.gateway.Count(context.Background(), "chunks", vecstore.Filter{"document_id": id})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("fragments indexed = %d, want 0 for a failed document", count)
	}
}

func TestWorkerSkipsDeletedDocument(t *testing.T) {
	t.Parallel()
	env := newWorkerEnv(t)

	job := env.enqueueAndRecord(t, "doc-ghost")

	ctx, cancel := context.WithCancel(context.Background())
	go env.worker.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		recs, _ := env.history.History(context.Background(), "doc-ghost", 1)
		if len(recs) == 1 && recs[0].Outcome == jobstore.OutcomeSkipped {
			cancel()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	t.Fatalf("job %s for deleted document never recorded as skipped", job.ID)
}

func TestWorkerSkipsAlreadyProcessingDocument(t *testing.T) {
	t.Parallel()
	env := newWorkerEnv(t)

	doc := &registry.Document{
		ID:          "doc-busy",
		Filename:    "busy.txt",
		ContentType: "text/plain",
		StorageURI:  "doc-busy_busy.txt",
		Status:      registry.StatusProcessing,
	}
	if err := env.registry.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	job := env.enqueueAndRecord(t, "doc-busy")

	ctx, cancel := context.WithCancel(context.Background())
	go env.worker.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		recs, _ := env.history.History(context.Background(), "doc-busy", 1)
		if len(recs) == 1 && recs[0].Outcome == jobstore.OutcomeSkipped {
			cancel()
			got, err := env.registry.GetDocument(context.Background(), "doc-busy")
			if err != nil {
				t.Fatalf("GetDocument: %v", err)
			}
			if got.Status != registry.StatusProcessing {
				t.Errorf("Status = %q, want processing left untouched", got.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	t.Fatalf("job %s for in-flight document never completed", job.ID)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()
	env := newWorkerEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
