// Package embedder provides implementations of the Provider interface for
// converting text into dense vector embeddings. Each implementation talks to
// a different backend (OpenAI, Azure OpenAI, Ollama) via plain HTTP — no
// additional SDK dependencies are required.
package embedder

import (
	"context"
	"fmt"
)

// Provider converts batches of text into embedding vectors.
type Provider interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector length this provider produces.
	Dimensions() int
	// ProviderID identifies the provider and model, recorded on fragments
	// as the embedding version.
	ProviderID() string
}

// EmbedError describes an embedding backend failure.
type EmbedError struct {
	Provider string
	Err      error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("%s embedder: %v", e.Provider, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

func embedErrorf(provider, format string, args ...any) error {
	return &EmbedError{Provider: provider, Err: fmt.Errorf(format, args...)}
}
