package embedder

import (
	"fmt"
	"os"

	"github.com/ragworks/ragserve/internal/config"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with embedding.dimensions.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions returns the correct default embedding vector size for the
// given backend name. Callers that need to pre-configure a vector store (e.g.
// Qdrant collection creation) should use this rather than hardcoding a value.
// An explicit embedding.dimensions setting always takes precedence.
func DefaultDimensions(backend string) int {
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs a Provider from configuration using cascading defaults that
// inherit from the chat model settings when embedding-specific overrides are
// not set.
//
// Resolution order:
//
//  1. embedding.provider — if unset, inherits model.provider (default: ollama)
//  2. Per-backend credentials are inherited from the chat model's settings
//  3. embedding.model — overrides the default model for the resolved backend
//  4. embedding.endpoint / embedding.api_key — override the inherited values
//  5. embedding.dimensions — overrides the default (ollama: 768, openai/azure: 1536)
func New(cfg *config.Config) (Provider, error) {
	backend := cfg.Embedding.Provider
	if backend == "" {
		backend = cfg.Model.Provider
	}
	if backend == "" {
		backend = "ollama"
	}

	switch backend {
	case "ollama":
		host := cfg.Embedding.Endpoint
		if host == "" {
			host = cfg.Model.Ollama.Host
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		model := cfg.Embedding.Model
		if model == "" {
			model = defaultOllamaModel
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       host,
			Model:      model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil

	case "openai":
		apiKey := cfg.Embedding.APIKey
		if apiKey == "" {
			apiKey = cfg.Model.OpenAI.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires an API key (embedding.api_key or model.openai.api_key)")
		}
		baseURL := cfg.Embedding.Endpoint
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := cfg.Embedding.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil

	case "azure":
		apiKey := cfg.Embedding.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or embedding.api_key")
		}
		endpoint := cfg.Embedding.Endpoint
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or embedding.endpoint")
		}
		apiVersion := os.Getenv("AZURE_OPENAI_API_VERSION")
		if apiVersion == "" {
			apiVersion = "2025-04-01-preview"
		}
		model := cfg.Embedding.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      model,
			Dimensions: cfg.Embedding.Dimensions,
			Azure:      true,
			APIVersion: apiVersion,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure", backend)
	}
}
