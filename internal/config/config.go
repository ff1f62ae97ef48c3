// Package config provides YAML-based configuration for ragserve.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so container deployments keep working
// without a config file.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGSERVE_CONFIG environment variable
//  3. ~/.ragserve/config.yaml
//  4. ./ragserve.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Server configures the HTTP API server.
	Server ServerConfig `yaml:"server"`

	// Model configures the LLM chat model used for answer synthesis.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Redis configures the ingestion job queue connection.
	Redis RedisConfig `yaml:"redis"`

	// Storage configures where uploaded files are kept.
	Storage StorageConfig `yaml:"storage"`

	// Ingest configures chunking and the worker pool.
	Ingest IngestConfig `yaml:"ingest"`

	// Jobs configures the SQLite ingestion job history.
	Jobs JobsConfig `yaml:"jobs"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGSERVE_API_KEY.
	APIKey string `yaml:"api_key"`
	// MaxUploadMB is the maximum accepted upload size in megabytes.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// ModelConfig holds LLM chat model settings for answer synthesis.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Version tags every stored fragment so a model upgrade is detectable.
	Version string `yaml:"version"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// FragmentsCollection is the collection holding embedded fragments.
	FragmentsCollection string `yaml:"fragments_collection"`
	// DocumentsCollection is the collection holding document metadata.
	DocumentsCollection string `yaml:"documents_collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// RedisConfig holds job queue settings.
type RedisConfig struct {
	// Addr is the "host:port" of the Redis server.
	Addr string `yaml:"addr"`
	// Password is the Redis AUTH password. Prefer env var REDIS_PASSWORD.
	Password string `yaml:"password"`
	// DB is the Redis logical database number.
	DB int `yaml:"db"`
}

// StorageConfig holds upload storage settings.
type StorageConfig struct {
	// Backend selects the blob store: local, s3.
	Backend string `yaml:"backend"`
	// Dir is the local upload directory (backend: local).
	Dir string `yaml:"dir"`
	// S3Endpoint is the S3-compatible endpoint (backend: s3).
	S3Endpoint string `yaml:"s3_endpoint"`
	// S3Bucket is the bucket uploads are written to.
	S3Bucket string `yaml:"s3_bucket"`
	// S3AccessKey is the S3 access key ID.
	S3AccessKey string `yaml:"s3_access_key"`
	// S3SecretKey is the S3 secret key. Prefer env var S3_SECRET_KEY.
	S3SecretKey string `yaml:"s3_secret_key"`
	// S3UseSSL enables TLS for the S3 connection.
	S3UseSSL bool `yaml:"s3_use_ssl"`
}

// IngestConfig holds chunking and worker pool settings.
type IngestConfig struct {
	// ChunkSize is the maximum fragment size in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the character overlap between consecutive fragments.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// Workers is the ingestion worker pool size.
	Workers int `yaml:"workers"`
	// LeaseTTLSeconds is the per-document ingestion lease duration.
	LeaseTTLSeconds int `yaml:"lease_ttl_seconds"`
}

// JobsConfig holds ingestion job history settings.
type JobsConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"RAGSERVE_HOST", func(c *Config) string { return c.Server.Host }},
	{"RAGSERVE_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGSERVE_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"MAX_UPLOAD_MB", func(c *Config) string { return intStr(c.Server.MaxUploadMB) }},
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_VERSION", func(c *Config) string { return c.Embedding.Version }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_FRAGMENTS_COLLECTION", func(c *Config) string { return c.Qdrant.FragmentsCollection }},
	{"QDRANT_DOCUMENTS_COLLECTION", func(c *Config) string { return c.Qdrant.DocumentsCollection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"REDIS_ADDR", func(c *Config) string { return c.Redis.Addr }},
	{"REDIS_PASSWORD", func(c *Config) string { return c.Redis.Password }},
	{"REDIS_DB", func(c *Config) string { return intStr(c.Redis.DB) }},
	{"STORAGE_BACKEND", func(c *Config) string { return c.Storage.Backend }},
	{"STORAGE_DIR", func(c *Config) string { return c.Storage.Dir }},
	{"S3_ENDPOINT", func(c *Config) string { return c.Storage.S3Endpoint }},
	{"S3_BUCKET", func(c *Config) string { return c.Storage.S3Bucket }},
	{"S3_ACCESS_KEY", func(c *Config) string { return c.Storage.S3AccessKey }},
	{"S3_SECRET_KEY", func(c *Config) string { return c.Storage.S3SecretKey }},
	{"S3_USE_SSL", func(c *Config) string { return boolStr(c.Storage.S3UseSSL) }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingest.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingest.ChunkOverlap) }},
	{"INGEST_WORKERS", func(c *Config) string { return intStr(c.Ingest.Workers) }},
	{"INGEST_LEASE_TTL", func(c *Config) string { return intStr(c.Ingest.LeaseTTLSeconds) }},
	{"RAGSERVE_JOBS_DB", func(c *Config) string { return c.Jobs.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGSERVE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragserve", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragserve.yaml"); err == nil {
		return "ragserve.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
