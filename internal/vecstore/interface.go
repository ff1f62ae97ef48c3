// Package vecstore provides a typed gateway over the two logical vector
// collections the system uses: the fragments collection (real embeddings,
// target of similarity search) and the documents collection (metadata-only
// records with a degenerate one-dimensional vector, used as a filterable
// key-value store). Concrete implementations (Qdrant, in-memory) satisfy the
// Gateway interface so no other package depends on a specific backend.
package vecstore

import (
	"context"
)

// Point is a single record in a collection: an id, a vector, and an
// arbitrary payload. Score is populated only on points returned from a
// similarity search.
type Point struct {
	// ID is the point's unique identifier (UUID string).
	ID string

	// Vector is the embedding. For the documents collection this is the
	// degenerate constant vector [0].
	Vector []float32

	// Payload holds the record's key-value metadata.
	Payload map[string]any

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// Filter is an exact-match payload filter. All entries must match
// (logical AND).
type Filter map[string]string

// Gateway is the interface for persisting and querying points across the
// system's collections. Implementations must be safe to call from multiple
// goroutines and must create collections lazily on first use.
type Gateway interface {
	// Upsert stores or replaces the given points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// QueryByFilter returns up to limit points whose payload matches the
	// filter, skipping offset points. A nil filter matches everything.
	QueryByFilter(ctx context.Context, collection string, filter Filter, limit, offset uint64) ([]Point, error)

	// SimilaritySearch returns the topK points ranked by cosine similarity
	// to the query vector. Only meaningful for the fragments collection.
	SimilaritySearch(ctx context.Context, collection string, vector []float32, topK int) ([]Point, error)

	// DeleteByFilter removes every point whose payload matches the filter.
	DeleteByFilter(ctx context.Context, collection string, filter Filter) error

	// Count returns the number of points matching the filter. A nil filter
	// counts the whole collection.
	Count(ctx context.Context, collection string, filter Filter) (uint64, error)

	// Ping checks whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the gateway.
	Close() error
}

// DegenerateVector is the constant vector stored with documents-collection
// points. The collection is never subject to similarity search; the vector
// exists only because the backend requires one.
var DegenerateVector = []float32{0}
