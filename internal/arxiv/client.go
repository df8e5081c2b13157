package arxiv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the arXiv query API endpoint.
const DefaultBaseURL = "http://export.arxiv.org/api/query"

var (
	// ErrUnexpectedEmptyPage is returned when a page comes back empty
	// before the reported total has been reached.
	ErrUnexpectedEmptyPage = errors.New("arxiv returned an unexpected empty page")

	// ErrNoSource is returned when a submission has no LaTeX source.
	ErrNoSource = errors.New("submission has no LaTeX source")
)

// ClientConfig configures the API client.
type ClientConfig struct {
	BaseURL string

	// PageSize is the number of entries requested per call (max 2000).
	PageSize int

	// Delay is the minimum spacing between any two requests.
	Delay time.Duration

	// MaxRetries is how often a failed page is retried.
	MaxRetries int

	// Timeout for individual requests.
	Timeout time.Duration

	UserAgent string

	// EprintBaseURL overrides where sources are downloaded from.
	EprintBaseURL string

	// HTTPClient allows injecting a transport for tests.
	HTTPClient *http.Client
}

// DefaultClientConfig mirrors the limits arXiv asks API users to observe.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    DefaultBaseURL,
		PageSize:   100,
		Delay:      3 * time.Second,
		MaxRetries: 5,
		Timeout:    60 * time.Second,
		UserAgent:  "mathmine/1.0",
	}
}

// Client is a rate-limited, retrying arXiv API client. All requests made
// through one Client, including source downloads, share its rate limit.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client. An empty BaseURL, PageSize, Timeout or
// UserAgent takes its default; a zero Delay disables rate limiting.
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	def := DefaultClientConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.PageSize <= 0 {
		config.PageSize = def.PageSize
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.Delay > 0 {
		limit = rate.Every(config.Delay)
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Search streams up to limit results of query, newest submissions first,
// to fn. A limit of zero means all results. Returning false from fn stops
// the search early.
func (c *Client) Search(ctx context.Context, query string, limit int, fn func(Paper) bool) error {
	start := 0
	total := -1

	for limit <= 0 || start < limit {
		size := c.config.PageSize
		if limit > 0 && limit-start < size {
			size = limit - start
		}

		p, err := c.fetchPage(ctx, query, start, size, total)
		if err != nil {
			return err
		}
		if total < 0 {
			total = p.TotalResults
			c.logger.Debug("search started", zap.String("query", query), zap.Int("total", total))
		}
		if len(p.Papers) == 0 {
			return nil
		}

		for _, paper := range p.Papers {
			if !fn(paper) {
				return nil
			}
		}

		start += len(p.Papers)
		if start >= total {
			return nil
		}
	}
	return nil
}

// fetchPage requests one page, retrying transport failures, bad statuses
// and empty pages that should not be empty.
func (c *Client) fetchPage(ctx context.Context, query string, start, size, total int) (*page, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(size))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")
	pageURL := c.config.BaseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying arxiv page",
				zap.Int("attempt", attempt),
				zap.Int("start", start),
				zap.Error(lastErr))
		}

		body, err := c.get(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		p, err := parseFeed(bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}

		reported := total
		if reported < 0 {
			reported = p.TotalResults
		}
		if len(p.Papers) == 0 && start < reported {
			lastErr = fmt.Errorf("%w: start=%d total=%d", ErrUnexpectedEmptyPage, start, reported)
			continue
		}
		return p, nil
	}

	return nil, fmt.Errorf("arxiv page at %d failed after %d attempts: %w", start, c.config.MaxRetries+1, lastErr)
}

// get performs one rate-limited GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
