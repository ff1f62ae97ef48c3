package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ragworks/ragserve/internal/logging"
	"github.com/ragworks/ragserve/internal/registry"
)

const systemPrompt = `You are a careful assistant answering questions about the user's uploaded documents.
Answer using ONLY the provided context fragments. If the context does not contain
the answer, say so plainly instead of guessing. Cite fragments by their bracketed
number, e.g. [2], when they support a statement.`

// defaultMaxContextChars bounds how much fragment text is packed into the
// model prompt. Fragments beyond the budget are retrieved (and cited) but
// not shown to the model.
const defaultMaxContextChars = 8000

// ChatModel is the narrow slice of the eino chat model used for synthesis.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Synthesizer turns retrieved fragments into a cited natural-language answer.
type Synthesizer struct {
	model           ChatModel
	registry        *registry.Registry
	maxContextChars int
}

// NewSynthesizer constructs a Synthesizer. The registry resolves document
// filenames for source attribution.
func NewSynthesizer(chatModel ChatModel, reg *registry.Registry, maxContextChars int) (*Synthesizer, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("rag: chat model must not be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("rag: registry must not be nil")
	}
	if maxContextChars <= 0 {
		maxContextChars = defaultMaxContextChars
	}
	return &Synthesizer{
		model:           chatModel,
		registry:        reg,
		maxContextChars: maxContextChars,
	}, nil
}

// Synthesize answers the query from the given fragments. Model failures
// degrade rather than error: the returned Answer has an empty answer text,
// the sources that were retrieved, and the failure reason in metadata, so
// callers can still show the user what was found.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, fragments []Fragment) *Answer {
	sources := s.buildSources(ctx, fragments)

	if len(fragments) == 0 {
		return &Answer{
			Answer:  "No relevant documents were found for this question.",
			Sources: []Source{},
			// Lets callers detect the empty-index case without
			// string-matching the answer text.
			Metadata: map[string]string{"no_results": "true"},
		}
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.SystemMessage(s.buildContext(fragments)),
		schema.UserMessage(query),
	}

	reply, err := s.model.Generate(ctx, messages)
	if err != nil {
		logging.FromContext(ctx).Error("answer synthesis failed",
			slog.String("error", err.Error()),
			slog.Int("fragments", len(fragments)),
		)
		return &Answer{
			Answer:  "",
			Sources: sources,
			Metadata: map[string]string{
				"error": "answer synthesis failed: " + err.Error(),
			},
		}
	}

	return &Answer{
		Answer:  reply.Content,
		Sources: sources,
	}
}

// buildContext packs fragments into numbered context blocks up to the
// character budget.
func (s *Synthesizer) buildContext(fragments []Fragment) string {
	var b strings.Builder
	b.WriteString("Context fragments from the user's documents:\n\n")
	used := 0
	for i, f := range fragments {
		block := fmt.Sprintf("[%d] %s\n\n", i+1, strings.TrimSpace(f.Text))
		if used+len(block) > s.maxContextChars && used > 0 {
			break
		}
		b.WriteString(block)
		used += len(block)
	}
	return b.String()
}

// buildSources resolves filenames per document and trims excerpts. A
// document deleted between retrieval and attribution keeps its id with an
// empty filename rather than dropping the citation.
func (s *Synthesizer) buildSources(ctx context.Context, fragments []Fragment) []Source {
	filenames := make(map[string]string)
	sources := make([]Source, 0, len(fragments))
	for _, f := range fragments {
		name, ok := filenames[f.DocumentID]
		if !ok {
			doc, err := s.registry.GetDocument(ctx, f.DocumentID)
			switch {
			case err == nil:
				name = doc.Filename
			case errors.Is(err, registry.ErrNotFound):
				name = ""
			default:
				logging.FromContext(ctx).Warn("source filename lookup failed",
					slog.String("document_id", f.DocumentID),
					slog.String("error", err.Error()),
				)
				name = ""
			}
			filenames[f.DocumentID] = name
		}
		sources = append(sources, Source{
			DocumentID: f.DocumentID,
			Filename:   name,
			ChunkIndex: f.Index,
			Score:      f.Score,
			Excerpt:    excerpt(f.Text),
		})
	}
	return sources
}
