package rag

import (
	"context"
	"fmt"

	"github.com/ragworks/ragserve/internal/embedder"
	"github.com/ragworks/ragserve/internal/vecstore"
)

// DefaultTopK is the number of fragments retrieved when the caller passes 0.
const DefaultTopK = 5

// Retriever embeds a query and finds its nearest indexed fragments.
type Retriever struct {
	embedder  embedder.Provider
	gateway   vecstore.Gateway
	fragments string
	topK      int
}

// NewRetriever constructs a Retriever over the given fragments collection.
func NewRetriever(provider embedder.Provider, gw vecstore.Gateway, fragmentsCollection string, defaultTopK int) (*Retriever, error) {
	if provider == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if gw == nil {
		return nil, fmt.Errorf("rag: gateway must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{
		embedder:  provider,
		gateway:   gw,
		fragments: fragmentsCollection,
		topK:      defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the top-k most similar fragments,
// best match first. If topK is 0 the configured default is used.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Fragment, error) {
	if topK <= 0 {
		topK = r.topK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	points, err := r.gateway.SimilaritySearch(ctx, r.fragments, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	fragments := make([]Fragment, 0, len(points))
	for _, p := range points {
		fragments = append(fragments, fragmentFromPoint(p))
	}
	return fragments, nil
}
