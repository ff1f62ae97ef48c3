// Package ingest implements the document ingestion pipeline: read stored
// bytes, extract text, chunk, embed, and index fragments in the vector
// store. The pipeline is re-runnable: existing fragments for a document are
// dropped before the new set is written, so re-ingestion never leaves stale
// fragments behind.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ragworks/ragserve/internal/blob"
	"github.com/ragworks/ragserve/internal/chunker"
	"github.com/ragworks/ragserve/internal/embedder"
	"github.com/ragworks/ragserve/internal/logging"
	"github.com/ragworks/ragserve/internal/parser"
	"github.com/ragworks/ragserve/internal/registry"
	"github.com/ragworks/ragserve/internal/vecstore"
)

// embedBatchSize caps how many chunks go to the embedding backend per call.
const embedBatchSize = 64

// Pipeline transforms an uploaded document into indexed fragments.
type Pipeline struct {
	blobs    blob.Store
	parser   *parser.Parser
	chunker  *chunker.Chunker
	embedder embedder.Provider
	gateway  vecstore.Gateway

	// fragments is the vector store collection fragments are written to.
	fragments string
	// version is recorded on every fragment so a model change can be
	// detected and re-ingested later.
	version string
}

// Config holds the pipeline's collaborators and settings.
type Config struct {
	Blobs     blob.Store
	Parser    *parser.Parser
	Chunker   *chunker.Chunker
	Embedder  embedder.Provider
	Gateway   vecstore.Gateway
	Fragments string
	// Version overrides the embedding version tag; defaults to the
	// embedder's provider id.
	Version string
}

// New assembles a Pipeline.
func New(cfg *Config) *Pipeline {
	version := cfg.Version
	if version == "" {
		version = cfg.Embedder.ProviderID()
	}
	return &Pipeline{
		blobs:     cfg.Blobs,
		parser:    cfg.Parser,
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		gateway:   cfg.Gateway,
		fragments: cfg.Fragments,
		version:   version,
	}
}

// Run ingests one document and returns the number of fragments indexed.
// Any error leaves the vector store without partial state for the document:
// old fragments are only dropped once all new embeddings are computed.
func (p *Pipeline) Run(ctx context.Context, doc *registry.Document) (int, error) {
	log := logging.FromContext(ctx)

	rc, err := p.blobs.Get(ctx, doc.StorageURI)
	if err != nil {
		return 0, fmt.Errorf("read stored file: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return 0, fmt.Errorf("read stored file: %w", err)
	}

	text, err := p.parser.Parse(doc.ContentType, data)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no text extracted from %s", doc.Filename)
	}
	log.Debug("document chunked",
		slog.String("document_id", doc.ID),
		slog.Int("chunks", len(chunks)),
	)

	points := make([]vecstore.Point, 0, len(chunks))
	dims := p.embedder.Dimensions()
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		vectors, err := p.embedder.Embed(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("embed chunks [%d,%d): %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embed chunks [%d,%d): got %d vectors for %d chunks", start, end, len(vectors), len(batch))
		}
		for i, vec := range vectors {
			if len(vec) != dims {
				return 0, fmt.Errorf("embed chunk %d: dimension %d, expected %d", start+i, len(vec), dims)
			}
			points = append(points, p.fragmentPoint(doc, start+i, batch[i], vec))
		}
	}

	// Drop the previous fragment set only after embedding succeeded, so a
	// failed re-ingest keeps the old fragments queryable.
	if err := p.gateway.DeleteByFilter(ctx, p.fragments, vecstore.Filter{"document_id": doc.ID}); err != nil {
		return 0, fmt.Errorf("clear previous fragments: %w", err)
	}
	if err := p.gateway.Upsert(ctx, p.fragments, points); err != nil {
		return 0, fmt.Errorf("index fragments: %w", err)
	}

	log.Info("document ingested",
		slog.String("document_id", doc.ID),
		slog.String("filename", doc.Filename),
		slog.Int("fragments", len(points)),
	)
	return len(points), nil
}

func (p *Pipeline) fragmentPoint(doc *registry.Document, index int, text string, vec []float32) vecstore.Point {
	chunkID := uuid.NewString()
	payload := map[string]any{
		"chunk_id":          chunkID,
		"document_id":       doc.ID,
		"chunk_index":       index,
		"text":              text,
		"embedding_version": p.version,
	}
	if len(doc.Tags) > 0 {
		tags := make([]any, len(doc.Tags))
		for i, t := range doc.Tags {
			tags[i] = t
		}
		payload["tags"] = tags
	}
	return vecstore.Point{
		ID:      chunkID,
		Vector:  vec,
		Payload: payload,
	}
}
