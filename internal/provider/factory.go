package provider

import (
	"context"
	"fmt"
	"os"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/ragworks/ragserve/internal/config"
)

// NewFromConfig constructs a ChatModel from the application configuration.
// model.provider selects the backend; each backend uses its own settings
// block, with Azure credentials read from the standard AZURE_OPENAI_* env
// vars.
func NewFromConfig(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	pc := &Config{
		Backend:     Backend(cfg.Model.Provider),
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: cfg.Model.Temperature,
	}
	if pc.Backend == "" {
		pc.Backend = BackendOllama
	}
	switch pc.Backend {
	case BackendOllama:
		pc.BaseURL = cfg.Model.Ollama.Host
		pc.Model = cfg.Model.Ollama.Model
		if pc.Model == "" {
			pc.Model = "llama3"
		}
	case BackendOpenAI:
		pc.APIKey = cfg.Model.OpenAI.APIKey
		pc.Model = cfg.Model.OpenAI.Model
		if pc.Model == "" {
			pc.Model = "gpt-4o"
		}
	case BackendAzure:
		pc.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		pc.BaseURL = os.Getenv("AZURE_OPENAI_ENDPOINT")
		pc.Model = os.Getenv("AZURE_OPENAI_DEPLOYMENT")
		pc.AzureAPIVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
		if pc.AzureAPIVersion == "" {
			pc.AzureAPIVersion = "2024-02-01"
		}
	}
	return New(ctx, pc)
}

// New constructs a ChatModel from an explicit Config, delegating to the
// appropriate backend constructor.
func New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q", cfg.Backend)
	}
}

func newOllama(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		BaseURL: baseURL,
		Model:   cfg.Model,
	})
}

func newOpenAI(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
	})
}

func newAzure(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		ByAzure:     true,
		APIVersion:  cfg.AzureAPIVersion,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		// Use the deployment name as-is — the default mapper strips dots/colons
		// which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	})
}
