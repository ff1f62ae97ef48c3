// Package mock provides a deterministic in-process embedding provider for
// tests and local development without a model backend. Vectors are derived
// from a hash of the input text, so identical texts always embed identically
// and distinct texts almost never collide.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Embedder produces deterministic unit-norm vectors from text hashes.
type Embedder struct {
	dims int
}

// New returns a mock Embedder emitting vectors of the given dimension.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 1536
	}
	return &Embedder{dims: dims}
}

// Dimensions returns the configured vector length.
func (e *Embedder) Dimensions() int { return e.dims }

// ProviderID identifies this provider for embedding versioning.
func (e *Embedder) ProviderID() string { return "mock/deterministic" }

// Embed converts texts into deterministic hash-derived vectors. It never
// fails and ignores the context.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vectorFor(text)
	}
	return out, nil
}

func (e *Embedder) vectorFor(text string) []float32 {
	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, e.dims)
	var norm float64
	for i := range vec {
		// Stretch the 32-byte digest across arbitrary dimensions by
		// rehashing with the index.
		var buf [40]byte
		copy(buf[:32], seed[:])
		binary.LittleEndian.PutUint64(buf[32:], uint64(i))
		h := sha256.Sum256(buf[:])
		v := float64(int64(binary.LittleEndian.Uint64(h[:8]))) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
