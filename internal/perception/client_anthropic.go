package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mathmine/internal/usage"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements LLMClient for the Anthropic messages API.
type AnthropicClient struct {
	config     ClientConfig
	httpClient *http.Client
	throttle   throttle
	logger     *zap.Logger
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(config ClientConfig, logger *zap.Logger) *AnthropicClient {
	config = config.withDefaults("https://api.anthropic.com/v1", "claude-sonnet-4-5-20250929")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Complete sends a system and a user message. The messages API has no JSON
// response mode, so JSONResponse only adds an instruction to the system
// prompt.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	if c.config.APIKey == "" {
		return "", ErrNoAPIKey
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	if c.config.JSONResponse {
		systemPrompt += "\n\nRespond with a single JSON object and nothing else."
	}

	startTime := time.Now()
	c.logger.Debug("anthropic request",
		zap.String("model", c.config.Model),
		zap.Int("system_len", len(systemPrompt)),
		zap.Int("user_len", len(userPrompt)))

	jsonData, err := json.Marshal(anthropicRequest{
		Model:     c.config.Model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

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

		body, status, err := c.post(ctx, jsonData)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		// 529 is Anthropic's "overloaded".
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("API request failed with status %d: %s", status, string(body))
			continue
		}
		if status != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", status, string(body))
		}

		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if resp.Error != nil {
			return "", fmt.Errorf("API error: %s", resp.Error.Message)
		}

		var result strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				result.WriteString(block.Text)
			}
		}
		if result.Len() == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		response := strings.TrimSpace(result.String())
		usage.FromContext(ctx).Track(ctx, "anthropic", c.config.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
		c.logger.Debug("anthropic completed",
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Int("response_len", len(response)))
		return response, nil
	}

	c.logger.Warn("anthropic retries exhausted", zap.Duration("elapsed", time.Since(startTime)), zap.Error(lastErr))
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *AnthropicClient) post(ctx context.Context, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
