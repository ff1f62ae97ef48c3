package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Built-in defaults applied when neither YAML nor env provides a value.
const (
	DefaultFragmentsCollection = "ragserve-chunks"
	DefaultDocumentsCollection = "ragserve-documents"

	defaultQdrantHost = "localhost"
	defaultQdrantPort = 6334
	defaultRedisAddr  = "localhost:6379"
)

// FromEnv builds a fully populated Config from environment variables and
// built-in defaults. Call after [Load] so YAML values have been projected
// into the environment; the result is what the factories consume.
func FromEnv() *Config {
	cfg := &Config{}

	cfg.Server.Host = envOr("RAGSERVE_HOST", "127.0.0.1")
	cfg.Server.Port = envInt("RAGSERVE_PORT", 8080)
	cfg.Server.APIKey = os.Getenv("RAGSERVE_API_KEY")
	cfg.Server.MaxUploadMB = envInt("MAX_UPLOAD_MB", 32)

	cfg.Model.Provider = envOr("MODEL_PROVIDER", "ollama")
	cfg.Model.MaxTokens = envInt("MODEL_MAX_TOKENS", 0)
	cfg.Model.Temperature = envFloat32("MODEL_TEMPERATURE", 0)
	cfg.Model.Ollama.Host = os.Getenv("OLLAMA_HOST")
	cfg.Model.Ollama.Model = os.Getenv("OLLAMA_MODEL")
	cfg.Model.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Model.OpenAI.Model = os.Getenv("OPENAI_MODEL")

	cfg.Embedding.Provider = os.Getenv("EMBEDDING_PROVIDER")
	cfg.Embedding.Model = os.Getenv("EMBEDDING_MODEL")
	cfg.Embedding.Dimensions = envInt("EMBEDDING_DIMENSIONS", 0)
	cfg.Embedding.APIKey = os.Getenv("EMBEDDING_API_KEY")
	cfg.Embedding.Endpoint = os.Getenv("EMBEDDING_ENDPOINT")
	cfg.Embedding.Version = os.Getenv("EMBEDDING_VERSION")

	cfg.Qdrant.Host = envOr("QDRANT_HOST", defaultQdrantHost)
	cfg.Qdrant.Port = envInt("QDRANT_PORT", defaultQdrantPort)
	cfg.Qdrant.FragmentsCollection = envOr("QDRANT_FRAGMENTS_COLLECTION", DefaultFragmentsCollection)
	cfg.Qdrant.DocumentsCollection = envOr("QDRANT_DOCUMENTS_COLLECTION", DefaultDocumentsCollection)
	cfg.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")
	cfg.Qdrant.TLS = os.Getenv("QDRANT_TLS") == "true"

	cfg.Redis.Addr = envOr("REDIS_ADDR", defaultRedisAddr)
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = envInt("REDIS_DB", 0)

	cfg.Storage.Backend = envOr("STORAGE_BACKEND", "local")
	cfg.Storage.Dir = envOr("STORAGE_DIR", defaultStorageDir())
	cfg.Storage.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.Storage.S3Bucket = envOr("S3_BUCKET", "ragserve-uploads")
	cfg.Storage.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.Storage.S3SecretKey = os.Getenv("S3_SECRET_KEY")
	cfg.Storage.S3UseSSL = os.Getenv("S3_USE_SSL") == "true"

	cfg.Ingest.ChunkSize = envInt("CHUNK_SIZE", 1000)
	cfg.Ingest.ChunkOverlap = envInt("CHUNK_OVERLAP", 200)
	cfg.Ingest.Workers = envInt("INGEST_WORKERS", 4)
	cfg.Ingest.LeaseTTLSeconds = envInt("INGEST_LEASE_TTL", 600)

	cfg.Jobs.DBPath = os.Getenv("RAGSERVE_JOBS_DB")

	cfg.Logging.Level = envOr("LOG_LEVEL", "info")
	cfg.Logging.Format = envOr("LOG_FORMAT", "json")

	cfg.Tracing.PublicKey = os.Getenv("LANGFUSE_PUBLIC_KEY")
	cfg.Tracing.SecretKey = os.Getenv("LANGFUSE_SECRET_KEY")
	cfg.Tracing.Host = os.Getenv("LANGFUSE_HOST")

	return cfg
}

// DefaultJobsDBPath returns the default SQLite path for the job history,
// creating its parent directory if needed.
func DefaultJobsDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".ragserve")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "jobs.db"), nil
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "uploads"
	}
	return filepath.Join(home, ".ragserve", "uploads")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
