package vecstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryGateway is an in-memory Gateway using brute-force cosine similarity.
// It backs unit tests and single-process development runs; it is safe for
// concurrent use.
type MemoryGateway struct {
	// mu guards collections.
	mu sync.RWMutex

	// collections maps collection name to its points keyed by id.
	collections map[string]map[string]Point

	// dims records the vector dimension fixed by the first upsert into
	// each collection.
	dims map[string]int
}

// NewMemoryGateway constructs an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		collections: make(map[string]map[string]Point),
		dims:        make(map[string]int),
	}
}

// Upsert stores or replaces the given points. The first upsert into a
// collection fixes its dimension; later mismatches are rejected.
func (g *MemoryGateway) Upsert(_ context.Context, collection string, points []Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	coll, ok := g.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		g.collections[collection] = coll
	}

	for _, p := range points {
		dim, fixed := g.dims[collection]
		if !fixed {
			g.dims[collection] = len(p.Vector)
		} else if len(p.Vector) != dim {
			return newStoreError("upsert", KindInvalid,
				fmt.Errorf("point %s: vector dimension %d does not match collection dimension %d", p.ID, len(p.Vector), dim))
		}
		coll[p.ID] = p
	}
	return nil
}

// QueryByFilter returns up to limit matching points, skipping offset points,
// ordered by id for stable pagination.
func (g *MemoryGateway) QueryByFilter(_ context.Context, collection string, filter Filter, limit, offset uint64) ([]Point, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	matched := g.matchLocked(collection, filter)
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if offset >= uint64(len(matched)) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && uint64(len(matched)) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// SimilaritySearch returns the topK points ranked by cosine similarity.
func (g *MemoryGateway) SimilaritySearch(_ context.Context, collection string, vector []float32, topK int) ([]Point, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if topK <= 0 {
		topK = 5
	}

	candidates := g.matchLocked(collection, nil)
	for i := range candidates {
		candidates[i].Score = cosine(candidates[i].Vector, vector)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// DeleteByFilter removes every matching point.
func (g *MemoryGateway) DeleteByFilter(_ context.Context, collection string, filter Filter) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	coll := g.collections[collection]
	for id, p := range coll {
		if payloadMatches(p.Payload, filter) {
			delete(coll, id)
		}
	}
	return nil
}

// Count returns the number of matching points.
func (g *MemoryGateway) Count(_ context.Context, collection string, filter Filter) (uint64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return uint64(len(g.matchLocked(collection, filter))), nil
}

// Ping always succeeds for the in-memory gateway.
func (g *MemoryGateway) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory gateway.
func (g *MemoryGateway) Close() error { return nil }

// matchLocked returns copies of all points in the collection whose payload
// matches the filter. Callers must hold at least a read lock.
func (g *MemoryGateway) matchLocked(collection string, filter Filter) []Point {
	coll := g.collections[collection]
	matched := make([]Point, 0, len(coll))
	for _, p := range coll {
		if payloadMatches(p.Payload, filter) {
			matched = append(matched, p)
		}
	}
	return matched
}

// payloadMatches reports whether every filter entry equals the payload's
// string value for that key.
func payloadMatches(payload map[string]any, filter Filter) bool {
	for key, want := range filter {
		got, ok := payload[key].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// cosine computes the cosine similarity between two vectors. Vectors of
// mismatched length score zero.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
