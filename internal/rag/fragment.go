// Package rag implements the retrieval and answer-synthesis layer: embedding
// a query, finding the most relevant indexed fragments, and asking a chat
// model to answer from them with source attribution.
package rag

import "github.com/ragworks/ragserve/internal/vecstore"

// Fragment is one indexed chunk of a document returned by retrieval.
type Fragment struct {
	// ChunkID is the fragment's unique identifier.
	ChunkID string

	// DocumentID is the owning document.
	DocumentID string

	// Index is the fragment's position within the document's chunk sequence.
	Index int

	// Text is the chunk text.
	Text string

	// Score is the similarity score assigned during retrieval.
	Score float32

	// EmbeddingVersion identifies the model that produced the stored vector.
	EmbeddingVersion string
}

// excerptLength bounds the source excerpt shown to clients.
const excerptLength = 200

// Source attributes part of an answer to a document fragment.
type Source struct {
	// DocumentID is the cited document.
	DocumentID string `json:"document_id"`

	// Filename is the cited document's original filename.
	Filename string `json:"filename"`

	// ChunkIndex is the cited fragment's position in the document.
	ChunkIndex int `json:"chunk_index"`

	// Score is the retrieval similarity score.
	Score float32 `json:"score"`

	// Excerpt is the leading portion of the fragment text.
	Excerpt string `json:"excerpt"`
}

// Answer is the synthesized response to a query.
type Answer struct {
	// Answer is the model's response text. Empty when synthesis was
	// degraded; Metadata carries the reason.
	Answer string `json:"answer"`

	// Sources lists the fragments the answer drew on, best match first.
	Sources []Source `json:"sources"`

	// Metadata carries response annotations such as the degradation
	// reason under "error".
	Metadata map[string]string `json:"metadata,omitempty"`
}

func fragmentFromPoint(p vecstore.Point) Fragment {
	f := Fragment{
		ChunkID: p.ID,
		Score:   p.Score,
	}
	if v, ok := p.Payload["chunk_id"].(string); ok && v != "" {
		f.ChunkID = v
	}
	if v, ok := p.Payload["document_id"].(string); ok {
		f.DocumentID = v
	}
	if v, ok := p.Payload["text"].(string); ok {
		f.Text = v
	}
	if v, ok := p.Payload["embedding_version"].(string); ok {
		f.EmbeddingVersion = v
	}
	switch v := p.Payload["chunk_index"].(type) {
	case int:
		f.Index = v
	case int64:
		f.Index = int(v)
	case float64:
		f.Index = int(v)
	}
	return f
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength])
}
