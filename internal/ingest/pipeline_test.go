package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ragworks/ragserve/internal/blob"
	"github.com/ragworks/ragserve/internal/chunker"
	"github.com/ragworks/ragserve/internal/embedder/mock"
	"github.com/ragworks/ragserve/internal/parser"
	"github.com/ragworks/ragserve/internal/registry"
	"github.com/ragworks/ragserve/internal/vecstore"
)

const fragmentsCollection = "chunks"

type testEnv struct {
	pipeline *Pipeline
	blobs    blob.Store
	gateway  vecstore.Gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	gw := vecstore.NewMemoryGateway()
	p := New(&Config{
		Blobs:     blobs,
		Parser:    parser.New(),
		Chunker:   chunker.New(80, 20),
		Embedder:  mock.New(8),
		Gateway:   gw,
		Fragments: fragmentsCollection,
	})
	return &testEnv{pipeline: p, blobs: blobs, gateway: gw}
}

func (e *testEnv) storeDocument(t *testing.T, doc *registry.Document, content string) {
	t.Helper()
	key := blob.ObjectKey(doc.ID, doc.Filename)
	doc.StorageURI = key
	if err := e.blobs.Put(context.Background(), key, strings.NewReader(content), int64(len(content)), doc.ContentType); err != nil {
		t.Fatalf("store blob: %v", err)
	}
}

func TestRunIndexesFragments(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	doc := &registry.Document{
		ID:          "doc-1",
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Tags:        []string{"team-a"},
	}
	env.storeDocument(t, doc, "First sentence of the document. Second sentence follows here. Third one closes it out. And a fourth for good measure.")

	n, err := env.pipeline.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if n < 1 {
		t.Fatalf("fragments = %d, want >= 1", n)
	}

	points, err := env.gateway.QueryByFilter(context.Background(), fragmentsCollection, vecstore.Filter{"document_id": "doc-1"}, 100, 0)
	if err != nil {
		t.Fatalf("QueryByFilter: %v", err)
	}
	if len(points) != n {
		t.Fatalf("indexed %d points, Run reported %d", len(points), n)
	}

	seen := make(map[int]bool)
	for _, pt := range points {
		payload := pt.Payload
		if payload["document_id"] != "doc-1" {
			t.Errorf("document_id = %v", payload["document_id"])
		}
		if payload["chunk_id"] != pt.ID {
			t.Errorf("chunk_id %v does not match point id %v", payload["chunk_id"], pt.ID)
		}
		if payload["embedding_version"] != "mock/deterministic" {
			t.Errorf("embedding_version = %v", payload["embedding_version"])
		}
		text, _ := payload["text"].(string)
		if text == "" {
			t.Error("fragment has empty text")
		}
		idx, ok := payload["chunk_index"].(int)
		if !ok {
			t.Fatalf("chunk_index type %T", payload["chunk_index"])
		}
		seen[idx] = true
	}
	// Indices must be a contiguous run from zero.
	for i := 0; i < n; i++ {
		if !seen[i] {
			t.Errorf("chunk_index %d missing", i)
		}
	}
}

func TestRunEmptyDocumentFails(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	doc := &registry.Document{ID: "doc-1", Filename: "empty.txt", ContentType: "text/plain"}
	env.storeDocument(t, doc, "   \n ")

	if _, err := env.pipeline.Run(context.Background(), doc); err == nil {
		t.Fatal("Run succeeded on empty document, want failure")
	}
}

func TestRunUnknownTypeBinaryFails(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	doc := &registry.Document{ID: "doc-1", Filename: "img.png", ContentType: "image/png"}
	env.storeDocument(t, doc, "\x89\x50\x4e\x47\xff\xfe")

	_, err := env.pipeline.Run(context.Background(), doc)
	var pe *parser.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *parser.ParseError", err)
	}
	if pe.Kind != parser.KindDecodeFailure {
		t.Errorf("Kind = %q, want decode_failure", pe.Kind)
	}
}

func TestRunUnknownTypeReadableTextIngests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	doc := &registry.Document{ID: "doc-1", Filename: "notes.custom", ContentType: "application/x-custom-notes"}
	env.storeDocument(t, doc, "Readable notes in a format nobody registered. Still just text.")

	n, err := env.pipeline.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if n == 0 {
		t.Error("no fragments indexed for readable unknown-type content")
	}
}

func TestRunMissingBlobFails(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	doc := &registry.Document{ID: "doc-1", Filename: "gone.txt", ContentType: "text/plain", StorageURI: "doc-1_gone.txt"}

	_, err := env.pipeline.Run(context.Background(), doc)
	if !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("error = %v, want blob.ErrNotFound", err)
	}
}

func TestRunReplacesExistingFragments(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	doc := &registry.Document{ID: "doc-1", Filename: "v.txt", ContentType: "text/plain"}

	env.storeDocument(t, doc, "Original content sentence one. Original content sentence two. Original content sentence three.")
	first, err := env.pipeline.Run(ctx, doc)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	env.storeDocument(t, doc, "Replacement text.")
	second, err := env.pipeline.Run(ctx, doc)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second >= first {
		t.Logf("fragment counts: first=%d second=%d", first, second)
	}

	points, _ := env.gateway.QueryByFilter(ctx, fragmentsCollection, vecstore.Filter{"document_id": "doc-1"}, 100, 0)
	if len(points) != second {
		t.Errorf("store holds %d fragments after re-ingest, want %d", len(points), second)
	}
	for _, pt := range points {
		if text, _ := pt.Payload["text"].(string); strings.Contains(text, "Original") {
			t.Errorf("stale fragment survived re-ingest: %q", text)
		}
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("backend down")
}
func (failingEmbedder) Dimensions() int    { return 8 }
func (failingEmbedder) ProviderID() string { return "test/failing" }

func TestRunEmbedFailureKeepsOldFragments(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	doc := &registry.Document{ID: "doc-1", Filename: "v.txt", ContentType: "text/plain"}

	env.storeDocument(t, doc, "Stable content that was ingested successfully.")
	n, err := env.pipeline.Run(ctx, doc)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	broken := New(&Config{
		Blobs:     env.blobs,
		Parser:    parser.New(),
		Chunker:   chunker.New(80, 20),
		Embedder:  failingEmbedder{},
		Gateway:   env.gateway,
		Fragments: fragmentsCollection,
	})
	if _, err := broken.Run(ctx, doc); err == nil {
		t.Fatal("Run with failing embedder succeeded")
	}

	points, _ := env.gateway.QueryByFilter(ctx, fragmentsCollection, vecstore.Filter{"document_id": "doc-1"}, 100, 0)
	if len(points) != n {
		t.Errorf("old fragments = %d after failed re-ingest, want %d preserved", len(points), n)
	}
}
