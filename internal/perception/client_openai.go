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

// OpenAIClient implements LLMClient for the OpenAI chat completions API.
type OpenAIClient struct {
	config     ClientConfig
	httpClient *http.Client
	throttle   throttle
	logger     *zap.Logger
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(config ClientConfig, logger *zap.Logger) *OpenAIClient {
	config = config.withDefaults("https://api.openai.com/v1", "o3-mini-2025-01-31")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Complete sends a system and a user message.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	if c.config.APIKey == "" {
		return "", ErrNoAPIKey
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	startTime := time.Now()
	c.logger.Debug("openai request",
		zap.String("model", c.config.Model),
		zap.Int("system_len", len(systemPrompt)),
		zap.Int("user_len", len(userPrompt)))

	reqBody := openAIRequest{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if c.config.JSONResponse {
		reqBody.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	jsonData, err := json.Marshal(reqBody)
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
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("API request failed with status %d: %s", status, string(body))
			continue
		}
		if status != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", status, string(body))
		}

		var resp openAIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if resp.Error != nil {
			return "", fmt.Errorf("API error: %s", resp.Error.Message)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		response := strings.TrimSpace(resp.Choices[0].Message.Content)
		usage.FromContext(ctx).Track(ctx, "openai", c.config.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		c.logger.Debug("openai completed",
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Int("response_len", len(response)))
		return response, nil
	}

	c.logger.Warn("openai retries exhausted", zap.Duration("elapsed", time.Since(startTime)), zap.Error(lastErr))
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *OpenAIClient) post(ctx context.Context, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

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
