package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/ragworks/ragserve/internal/embedder/mock"
	"github.com/ragworks/ragserve/internal/registry"
	"github.com/ragworks/ragserve/internal/vecstore"
)

const fragmentsCollection = "chunks"

// fakeModel returns a fixed reply or error and records the messages it saw.
type fakeModel struct {
	reply    string
	err      error
	messages []*schema.Message
}

func (m *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.messages = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func indexFragment(t *testing.T, gw vecstore.Gateway, emb *mock.Embedder, docID string, index int, text string) {
	t.Helper()
	vecs, err := emb.Embed(context.Background(), []string{text})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	id := uuid.NewString()
	err = gw.Upsert(context.Background(), fragmentsCollection, []vecstore.Point{{
		ID:     id,
		Vector: vecs[0],
		Payload: map[string]any{
			"chunk_id":          id,
			"document_id":       docID,
			"chunk_index":       index,
			"text":              text,
			"embedding_version": emb.ProviderID(),
		},
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestRetrieveRanksMatchingFragmentFirst(t *testing.T) {
	t.Parallel()
	gw := vecstore.NewMemoryGateway()
	emb := mock.New(16)
	indexFragment(t, gw, emb, "doc-1", 0, "kubernetes cluster autoscaling configuration")
	indexFragment(t, gw, emb, "doc-2", 0, "quarterly financial revenue summary")

	r, err := NewRetriever(emb, gw, fragmentsCollection, 5)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	// The mock embedder is hash-based, so only an exact text match is a
	// guaranteed nearest neighbor.
	got, err := r.Retrieve(context.Background(), "kubernetes cluster autoscaling configuration", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(fragments) = %d, want 2", len(got))
	}
	if got[0].DocumentID != "doc-1" {
		t.Errorf("top fragment from %s, want doc-1", got[0].DocumentID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores not descending: %f < %f", got[0].Score, got[1].Score)
	}
	if got[0].Text == "" || got[0].ChunkID == "" {
		t.Errorf("fragment fields not populated: %+v", got[0])
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	t.Parallel()
	r, err := NewRetriever(mock.New(16), vecstore.NewMemoryGateway(), fragmentsCollection, 5)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	got, err := r.Retrieve(context.Background(), "anything", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(fragments) = %d, want 0", len(got))
	}
}

func newTestRegistry(t *testing.T, docs ...*registry.Document) *registry.Registry {
	t.Helper()
	reg := registry.New(vecstore.NewMemoryGateway(), "documents")
	for _, doc := range docs {
		if err := reg.CreateDocument(context.Background(), doc); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
	}
	return reg
}

func TestSynthesizeAnswerWithSources(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t, &registry.Document{
		ID: "doc-1", Filename: "infra.md", ContentType: "text/markdown", Status: registry.StatusIngested,
	})
	m := &fakeModel{reply: "Enable the autoscaler [1]."}
	s, err := NewSynthesizer(m, reg, 0)
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}

	fragments := []Fragment{{
		ChunkID:    "c-1",
		DocumentID: "doc-1",
		Index:      3,
		Text:       "The cluster autoscaler is enabled via the node pool settings.",
		Score:      0.91,
	}}
	got := s.Synthesize(context.Background(), "how do I autoscale?", fragments)

	if got.Answer != "Enable the autoscaler [1]." {
		t.Errorf("Answer = %q", got.Answer)
	}
	if len(got.Sources) != 1 {
		t.Fatalf("len(sources) = %d, want 1", len(got.Sources))
	}
	src := got.Sources[0]
	if src.Filename != "infra.md" || src.DocumentID != "doc-1" || src.ChunkIndex != 3 {
		t.Errorf("source = %+v", src)
	}
	if !strings.HasPrefix(fragments[0].Text, src.Excerpt) {
		t.Errorf("excerpt %q is not a prefix of the fragment text", src.Excerpt)
	}

	// The model must have seen the system prompt, context, and query.
	if len(m.messages) != 3 {
		t.Fatalf("model saw %d messages, want 3", len(m.messages))
	}
	if !strings.Contains(m.messages[1].Content, "[1]") {
		t.Errorf("context message missing numbered fragment: %q", m.messages[1].Content)
	}
	if m.messages[2].Content != "how do I autoscale?" {
		t.Errorf("user message = %q", m.messages[2].Content)
	}
}

func TestSynthesizeModelFailureDegrades(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t, &registry.Document{
		ID: "doc-1", Filename: "a.txt", ContentType: "text/plain", Status: registry.StatusIngested,
	})
	m := &fakeModel{err: errors.New("model unavailable")}
	s, _ := NewSynthesizer(m, reg, 0)

	got := s.Synthesize(context.Background(), "q", []Fragment{{
		DocumentID: "doc-1", Text: "some context", Score: 0.5,
	}})
	if got.Answer != "" {
		t.Errorf("Answer = %q, want empty on degraded response", got.Answer)
	}
	if len(got.Sources) != 1 {
		t.Errorf("len(sources) = %d, degraded response must keep sources", len(got.Sources))
	}
	if !strings.Contains(got.Metadata["error"], "model unavailable") {
		t.Errorf("Metadata[error] = %q", got.Metadata["error"])
	}
}

func TestSynthesizeNoFragments(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	m := &fakeModel{reply: "should not be called"}
	s, _ := NewSynthesizer(m, reg, 0)

	got := s.Synthesize(context.Background(), "q", nil)
	if got.Answer == "" || got.Answer == "should not be called" {
		t.Errorf("Answer = %q, want a no-results message without a model call", got.Answer)
	}
	if m.messages != nil {
		t.Error("model was invoked despite empty retrieval")
	}
	if len(got.Sources) != 0 {
		t.Errorf("sources = %v, want empty", got.Sources)
	}
	if got.Metadata["no_results"] != "true" {
		t.Errorf("Metadata = %v, want no_results annotation", got.Metadata)
	}
}

func TestSynthesizeDeletedDocumentKeepsCitation(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	m := &fakeModel{reply: "answer"}
	s, _ := NewSynthesizer(m, reg, 0)

	got := s.Synthesize(context.Background(), "q", []Fragment{{
		DocumentID: "doc-gone", Index: 0, Text: "orphaned fragment", Score: 0.4,
	}})
	if len(got.Sources) != 1 {
		t.Fatalf("len(sources) = %d, want 1", len(got.Sources))
	}
	if got.Sources[0].DocumentID != "doc-gone" || got.Sources[0].Filename != "" {
		t.Errorf("source = %+v, want id kept with empty filename", got.Sources[0])
	}
}

func TestSynthesizeContextBudget(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	m := &fakeModel{reply: "ok"}
	s, _ := NewSynthesizer(m, reg, 100)

	fragments := []Fragment{
		{DocumentID: "d", Index: 0, Text: strings.Repeat("a", 80)},
		{DocumentID: "d", Index: 1, Text: strings.Repeat("b", 80)},
	}
	got := s.Synthesize(context.Background(), "q", fragments)
	if strings.Contains(m.messages[1].Content, "bbbb") {
		t.Error("second fragment exceeded the context budget but was included")
	}
	// Sources still cover everything retrieved.
	if len(got.Sources) != 2 {
		t.Errorf("len(sources) = %d, want 2", len(got.Sources))
	}
}
