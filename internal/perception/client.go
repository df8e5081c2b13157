// Package perception talks to the LLM providers used to judge theorems.
package perception

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LLMClient is the provider-agnostic completion interface.
type LLMClient interface {
	// Complete sends a system and a user message and returns the model's
	// text reply.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrNoAPIKey is returned when a client is used without credentials.
var ErrNoAPIKey = errors.New("API key not configured")

const (
	defaultSystemPrompt = "You are a careful research mathematician."

	// minRequestSpacing is the least time between two requests of a client.
	minRequestSpacing = 100 * time.Millisecond

	defaultMaxRetries = 3
)

// ClientConfig holds the settings shared by all providers.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// JSONResponse asks the provider for a JSON object reply where the API
	// supports it.
	JSONResponse bool

	// MaxRetries bounds retries of 429s and transport failures.
	MaxRetries int

	// RetryBackoff is the first retry delay; later delays double.
	RetryBackoff time.Duration
}

func (c ClientConfig) withDefaults(baseURL, model string) ClientConfig {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return c
}

// throttle enforces minRequestSpacing between requests of one client. The
// zero value is ready to use.
type throttle struct {
	once    sync.Once
	limiter *rate.Limiter
}

// wait blocks until the next request may start or ctx is done.
func (t *throttle) wait(ctx context.Context) error {
	t.once.Do(func() {
		t.limiter = rate.NewLimiter(rate.Every(minRequestSpacing), 1)
	})
	return t.limiter.Wait(ctx)
}

// withTimeout applies the client timeout when ctx carries no deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// backoff sleeps before retry attempt i (1-based), doubling each time.
func backoff(ctx context.Context, base time.Duration, i int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(base * time.Duration(1<<uint(i-1))):
		return nil
	}
}
