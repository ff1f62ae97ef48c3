// Package provider selects and constructs the LLM chat model backend used
// for answer synthesis. Supported backends: Ollama, OpenAI, Azure OpenAI.
package provider

import (
	"fmt"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
)

// Config holds provider-level configuration resolved from the application
// config or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name or deployment ID (e.g. "gpt-4o", "llama3").
	Model string

	// BaseURL overrides the default API endpoint (required for Ollama and Azure).
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	APIKey string

	// AzureAPIVersion is the Azure OpenAI REST API version (Azure only).
	AzureAPIVersion string

	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Validate checks that required fields for the selected backend are present,
// so callers get a clear error at startup rather than on the first request.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		// BaseURL falls back to the local default; no credentials needed.
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("provider: api key is required for openai backend")
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("provider: api key is required for azure backend")
		}
		if c.BaseURL == "" {
			return fmt.Errorf("provider: endpoint is required for azure backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: ollama, openai, azure", c.Backend)
	}
	if c.Model == "" {
		return fmt.Errorf("provider: model name is required")
	}
	return nil
}
