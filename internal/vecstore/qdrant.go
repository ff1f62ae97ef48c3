package vecstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// FragmentsCollection is the collection holding embedded fragments.
	FragmentsCollection string

	// DocumentsCollection is the collection holding document metadata.
	DocumentsCollection string

	// VectorSize is the dimensionality of the embeddings stored in the
	// fragments collection. Fixed for the lifetime of a deployment.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantGateway implements Gateway backed by a Qdrant instance. The gRPC
// connection is long-lived and shared across all callers; the qdrant client
// is safe for concurrent use.
type QdrantGateway struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this gateway.
	cfg *QdrantConfig

	// mu guards ensured.
	mu sync.Mutex

	// ensured records collections already verified to exist, so the
	// existence check runs once per collection per process.
	ensured map[string]bool
}

// NewQdrantGateway creates a new QdrantGateway. Collections are created
// lazily on first use, parameterized by the configured vector size.
func NewQdrantGateway(cfg *QdrantConfig) (*QdrantGateway, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("vecstore: vector size must be set before opening the gateway")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vecstore: failed to create qdrant client: %w", err)
	}

	return &QdrantGateway{
		client:  client,
		cfg:     cfg,
		ensured: make(map[string]bool),
	}, nil
}

// dimensionFor returns the vector size a collection is created with.
// The documents collection uses the degenerate one-dimensional vector.
func (g *QdrantGateway) dimensionFor(collection string) uint64 {
	if collection == g.cfg.DocumentsCollection {
		return 1
	}
	return g.cfg.VectorSize
}

// ensureCollection creates the collection if it does not already exist.
func (g *QdrantGateway) ensureCollection(ctx context.Context, collection string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ensured[collection] {
		return nil
	}

	exists, err := g.client.CollectionExists(ctx, collection)
	if err != nil {
		return newStoreError("ensure", KindUnavailable, err)
	}
	if !exists {
		err = g.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     g.dimensionFor(collection),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return newStoreError("ensure", KindUnavailable,
				fmt.Errorf("create collection %q: %w", collection, err))
		}
	}

	g.ensured[collection] = true
	return nil
}

// Upsert stores or replaces the given points in the collection. Vectors
// whose length does not match the collection's dimension are rejected.
func (g *QdrantGateway) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := g.ensureCollection(ctx, collection); err != nil {
		return err
	}

	dim := g.dimensionFor(collection)
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if uint64(len(p.Vector)) != dim {
			return newStoreError("upsert", KindInvalid,
				fmt.Errorf("point %s: vector dimension %d does not match collection dimension %d", p.ID, len(p.Vector), dim))
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	_, err := g.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
	})
	if err != nil {
		return newStoreError("upsert", KindUnavailable, err)
	}
	return nil
}

// QueryByFilter returns up to limit points matching the filter, skipping
// offset points. Ordering is by point id, which is stable across calls.
func (g *QdrantGateway) QueryByFilter(ctx context.Context, collection string, filter Filter, limit, offset uint64) ([]Point, error) {
	if err := g.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	results, err := g.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Filter:         buildFilter(filter),
		Limit:          &limit,
		Offset:         &offset,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, newStoreError("query_by_filter", KindUnavailable, err)
	}

	return scoredToPoints(results), nil
}

// SimilaritySearch performs a cosine similarity search and returns the
// topK ranked points.
func (g *QdrantGateway) SimilaritySearch(ctx context.Context, collection string, vector []float32, topK int) ([]Point, error) {
	if err := g.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	limit := uint64(topK)
	results, err := g.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, newStoreError("similarity_search", KindUnavailable, err)
	}

	return scoredToPoints(results), nil
}

// DeleteByFilter removes every point whose payload matches the filter.
func (g *QdrantGateway) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	if err := g.ensureCollection(ctx, collection); err != nil {
		return err
	}

	_, err := g.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(buildFilter(filter)),
	})
	if err != nil {
		return newStoreError("delete_by_filter", KindUnavailable, err)
	}
	return nil
}

// Count returns the number of points matching the filter.
func (g *QdrantGateway) Count(ctx context.Context, collection string, filter Filter) (uint64, error) {
	if err := g.ensureCollection(ctx, collection); err != nil {
		return 0, err
	}

	count, err := g.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         buildFilter(filter),
	})
	if err != nil {
		return 0, newStoreError("count", KindUnavailable, err)
	}
	return count, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (g *QdrantGateway) Ping(ctx context.Context) error {
	if _, err := g.client.HealthCheck(ctx); err != nil {
		return newStoreError("ping", KindUnavailable, err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (g *QdrantGateway) Close() error {
	return g.client.Close()
}

// buildFilter converts an exact-match Filter into a Qdrant must-filter.
// Returns nil for an empty filter so the backend scans the whole collection.
func buildFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		conditions = append(conditions, qdrant.NewMatch(key, value))
	}
	return &qdrant.Filter{Must: conditions}
}

// scoredToPoints converts Qdrant scored points into gateway Points.
func scoredToPoints(results []*qdrant.ScoredPoint) []Point {
	points := make([]Point, 0, len(results))
	for _, r := range results {
		p := Point{
			ID:      r.Id.GetUuid(),
			Score:   r.Score,
			Payload: make(map[string]any, len(r.Payload)),
		}
		for k, v := range r.Payload {
			p.Payload[k] = valueToAny(v)
		}
		points = append(points, p)
	}
	return points
}

// valueToAny converts a Qdrant payload value into its Go representation.
// Nested structs are not used by this system and decode to nil.
func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			items = append(items, valueToAny(item))
		}
		return items
	default:
		return nil
	}
}
