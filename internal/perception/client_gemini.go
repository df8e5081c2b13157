package perception

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"mathmine/internal/usage"
)

// GeminiClient implements LLMClient on the Google GenAI SDK.
type GeminiClient struct {
	config   ClientConfig
	client   *genai.Client
	throttle throttle
	logger   *zap.Logger
}

// NewGeminiClient creates a Gemini client. BaseURL, when set, overrides the
// API endpoint.
func NewGeminiClient(ctx context.Context, config ClientConfig, logger *zap.Logger) (*GeminiClient, error) {
	config = config.withDefaults("", "gemini-2.5-flash")
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: config.Timeout},
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

// Complete sends a system instruction and a user message.
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	if c.config.JSONResponse {
		genConfig.ResponseMIMEType = "application/json"
	}

	startTime := time.Now()
	c.logger.Debug("gemini request",
		zap.String("model", c.config.Model),
		zap.Int("system_len", len(systemPrompt)),
		zap.Int("user_len", len(userPrompt)))

	var lastErr error
	for i := 0; i <= c.config.MaxRetries; i++ {
		if i > 0 {
			if err := backoff(ctx, c.config.RetryBackoff, i); err != nil {
				return "", err
			}
		}
		if err := c.throttle.wait(ctx); err != nil {
			return "", err
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(userPrompt), genConfig)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = fmt.Errorf("generate content: %w", err)
			continue
		}

		response := strings.TrimSpace(resp.Text())
		if meta := resp.UsageMetadata; meta != nil {
			usage.FromContext(ctx).Track(ctx, "gemini", c.config.Model, int(meta.PromptTokenCount), int(meta.CandidatesTokenCount))
		}
		if response == "" {
			return "", fmt.Errorf("no completion returned")
		}
		c.logger.Debug("gemini completed",
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Int("response_len", len(response)))
		return response, nil
	}

	c.logger.Warn("gemini retries exhausted", zap.Duration("elapsed", time.Since(startTime)), zap.Error(lastErr))
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
