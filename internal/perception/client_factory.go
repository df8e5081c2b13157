package perception

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mathmine/internal/config"
)

// NewClientFromConfig builds the client for the configured provider. Replies
// are requested as JSON objects.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (LLMClient, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}

	clientConfig := ClientConfig{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		Timeout:      cfg.GetLLMTimeout(),
		JSONResponse: true,
	}

	// The default model names an OpenAI model; other providers fall back
	// to their own default instead.
	if cfg.LLM.Provider != "openai" && clientConfig.Model == config.DefaultConfig().LLM.Model {
		clientConfig.Model = ""
	}

	switch cfg.LLM.Provider {
	case "openai":
		return NewOpenAIClient(clientConfig, logger), nil
	case "anthropic":
		return NewAnthropicClient(clientConfig, logger), nil
	case "gemini":
		client, err := NewGeminiClient(ctx, clientConfig, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}
