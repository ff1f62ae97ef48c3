package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ragworks/ragserve/internal/blob"
	"github.com/ragworks/ragserve/internal/config"
	"github.com/ragworks/ragserve/internal/embedder"
	"github.com/ragworks/ragserve/internal/jobstore"
	"github.com/ragworks/ragserve/internal/queue"
	"github.com/ragworks/ragserve/internal/vecstore"
)

// buildGateway opens the Qdrant gateway. The vector size is fixed at startup
// from the embedding configuration so the fragments collection is created
// with the right dimensionality.
func buildGateway(cfg *config.Config, log *slog.Logger) (*vecstore.QdrantGateway, error) {
	backend := cfg.Embedding.Provider
	if backend == "" {
		backend = cfg.Model.Provider
	}
	vectorSize := cfg.Embedding.Dimensions
	if vectorSize == 0 {
		vectorSize = embedder.DefaultDimensions(backend)
	}

	gw, err := vecstore.NewQdrantGateway(&vecstore.QdrantConfig{
		Host:                cfg.Qdrant.Host,
		Port:                cfg.Qdrant.Port,
		FragmentsCollection: cfg.Qdrant.FragmentsCollection,
		DocumentsCollection: cfg.Qdrant.DocumentsCollection,
		VectorSize:          uint64(vectorSize), //nolint:gosec // dimensions are bounded
		APIKey:              cfg.Qdrant.APIKey,
		UseTLS:              cfg.Qdrant.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.Qdrant.Host, cfg.Qdrant.Port, err)
	}
	log.Info("qdrant gateway ready",
		slog.String("host", cfg.Qdrant.Host),
		slog.Int("port", cfg.Qdrant.Port),
		slog.String("fragments", cfg.Qdrant.FragmentsCollection),
		slog.Int("vector_size", vectorSize),
	)
	return gw, nil
}

// buildQueue connects the Redis-backed job queue and verifies reachability.
func buildQueue(ctx context.Context, cfg *config.Config, log *slog.Logger) (*queue.RedisQueue, error) {
	q := queue.NewRedisQueue(&queue.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.Ping(pingCtx); err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("redis queue ready", slog.String("addr", cfg.Redis.Addr))
	return q, nil
}

// buildBlobStore opens the configured upload store: a local directory by
// default, or an S3-compatible object store when storage.backend is "s3".
func buildBlobStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		store, err := blob.NewLocalStore(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open upload directory %s: %w", cfg.Storage.Dir, err)
		}
		log.Info("local upload store ready", slog.String("dir", cfg.Storage.Dir))
		return store, nil

	case "s3":
		store, err := blob.NewS3Store(ctx, &blob.S3Config{
			Endpoint:  cfg.Storage.S3Endpoint,
			Bucket:    cfg.Storage.S3Bucket,
			AccessKey: cfg.Storage.S3AccessKey,
			SecretKey: cfg.Storage.S3SecretKey,
			UseSSL:    cfg.Storage.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to object store at %s: %w", cfg.Storage.S3Endpoint, err)
		}
		log.Info("s3 upload store ready",
			slog.String("endpoint", cfg.Storage.S3Endpoint),
			slog.String("bucket", cfg.Storage.S3Bucket),
		)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q (want local or s3)", cfg.Storage.Backend)
	}
}

// buildJobstore opens the SQLite job history. RAGSERVE_JOBS_DB overrides the
// default path (~/.ragserve/jobs.db); set to "disabled" to turn history off.
// Failures disable history with a warning rather than aborting startup.
func buildJobstore(cfg *config.Config, log *slog.Logger) (*jobstore.Store, func()) {
	dbPath := cfg.Jobs.DBPath
	if dbPath == "disabled" {
		log.Info("job history disabled via RAGSERVE_JOBS_DB=disabled")
		return nil, func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = config.DefaultJobsDBPath()
		if err != nil {
			log.Warn("job history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
	}
	store, err := jobstore.Open(dbPath)
	if err != nil {
		log.Warn("job history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("job history store opened", slog.String("path", dbPath))
	return store, func() { _ = store.Close() }
}
