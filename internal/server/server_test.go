package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragworks/ragserve/internal/blob"
	"github.com/ragworks/ragserve/internal/embedder/mock"
	"github.com/ragworks/ragserve/internal/jobstore"
	"github.com/ragworks/ragserve/internal/queue"
	"github.com/ragworks/ragserve/internal/rag"
	"github.com/ragworks/ragserve/internal/registry"
	"github.com/ragworks/ragserve/internal/vecstore"
)

const (
	testDocsCollection      = "documents"
	testFragmentsCollection = "chunks"
)

// ---------------------------------------------------------------------------
// Fakes and test environment
// ---------------------------------------------------------------------------

// fakeModel returns a fixed reply or error for answer synthesis tests.
type fakeModel struct {
	reply string
	err   error
}

func (m *fakeModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

// testEnv wires a Server against fully in-memory dependencies.
type testEnv struct {
	srv      *Server
	gateway  *vecstore.MemoryGateway
	registry *registry.Registry
	queue    *queue.MemQueue
	blobs    blob.Store
	history  *jobstore.Store
	embedder *mock.Embedder
	model    *fakeModel
}

func newTestEnv(t *testing.T, cfg *Config) *testEnv {
	t.Helper()

	gw := vecstore.NewMemoryGateway()
	reg := registry.New(gw, testDocsCollection)
	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	q := queue.NewMemQueue(16)
	t.Cleanup(func() { _ = q.Close() })
	history, err := jobstore.Open(":memory:")
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = history.Close() })

	emb := mock.New(16)
	retriever, err := rag.NewRetriever(emb, gw, testFragmentsCollection, 5)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	chat := &fakeModel{reply: "It works [1]."}
	synth, err := rag.NewSynthesizer(chat, reg, 0)
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}

	if cfg == nil {
		cfg = &Config{}
	}
	deps := &Deps{
		Registry:         reg,
		Blobs:            blobs,
		Queue:            q,
		History:          history,
		Retriever:        retriever,
		Synthesizer:      synth,
		FragmentsDeleter: &GatewayFragmentsDeleter{Gateway: gw, Collection: testFragmentsCollection},
	}
	srv, err := New(deps, cfg, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.stopRL)

	return &testEnv{
		srv:      srv,
		gateway:  gw,
		registry: reg,
		queue:    q,
		blobs:    blobs,
		history:  history,
		embedder: emb,
		model:    chat,
	}
}

// do routes a request through the full middleware-wrapped mux.
func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

// uploadRequest builds a multipart POST /v1/upload carrying one file part.
func uploadRequest(t *testing.T, filename, contentType string, body []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// createDocument registers a document directly, bypassing the upload path.
func (e *testEnv) createDocument(t *testing.T, status registry.Status) *registry.Document {
	t.Helper()
	doc := &registry.Document{
		ID:          uuid.NewString(),
		Filename:    "notes.txt",
		ContentType: "text/plain",
		StorageURI:  blob.ObjectKey(uuid.NewString(), "notes.txt"),
		Status:      status,
	}
	if err := e.registry.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc
}

// indexFragment embeds text with the mock embedder and upserts it into the
// fragments collection so retrieval can find it.
func (e *testEnv) indexFragment(t *testing.T, docID string, index int, text string) {
	t.Helper()
	vecs, err := e.embedder.Embed(context.Background(), []string{text})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	id := uuid.NewString()
	err = e.gateway.Upsert(context.Background(), testFragmentsCollection, []vecstore.Point{{
		ID:     id,
		Vector: vecs[0],
		Payload: map[string]any{
			"chunk_id":          id,
			"document_id":       docID,
			"chunk_index":       index,
			"text":              text,
			"embedding_version": e.embedder.ProviderID(),
		},
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func decodeJSON[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}
