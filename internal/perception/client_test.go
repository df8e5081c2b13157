package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"mathmine/internal/config"
	"mathmine/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(url string) ClientConfig {
	return ClientConfig{
		APIKey:       "test-key",
		BaseURL:      url,
		Model:        "test-model",
		JSONResponse: true,
		RetryBackoff: time.Millisecond,
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "be strict", req.Messages[0].Content)
		assert.Equal(t, "is it unique?", req.Messages[1].Content)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"  {\"ok\":true}  "}}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL), zaptest.NewLogger(t))
	got, err := client.Complete(context.Background(), "be strict", "is it unique?")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
}

func TestClients_TrackUsage(t *testing.T) {
	openai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"a"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`)
	}))
	defer openai.Close()
	anthropic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content":[{"type":"text","text":"b"}],"usage":{"input_tokens":7,"output_tokens":2}}`)
	}))
	defer anthropic.Close()

	tracker, err := usage.NewTracker("")
	require.NoError(t, err)
	ctx := usage.WithRun(usage.NewContext(context.Background(), tracker), "run-1")

	_, err = NewOpenAIClient(testConfig(openai.URL), nil).Complete(ctx, "", "x")
	require.NoError(t, err)
	_, err = NewAnthropicClient(testConfig(anthropic.URL), nil).Complete(ctx, "", "y")
	require.NoError(t, err)

	stats := tracker.Stats()
	assert.Equal(t, usage.TokenCounts{Calls: 2, Input: 19, Output: 5, Total: 24}, stats.Total)
	assert.Equal(t, int64(15), stats.ByProvider["openai"].Total)
	assert.Equal(t, int64(9), stats.ByProvider["anthropic"].Total)
	assert.Equal(t, int64(24), stats.ByRun["run-1"].Total)
	assert.Equal(t, int64(2), stats.ByModel["test-model"].Calls)
}

func TestOpenAIClient_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"done"}}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL), nil)
	got, err := client.Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `bad key`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL), nil)
	_, err := client.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_MaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 2
	client := NewOpenAIClient(cfg, nil)

	_, err := client.Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_NoAPIKey(t *testing.T) {
	client := NewOpenAIClient(ClientConfig{}, nil)
	_, err := client.Complete(context.Background(), "", "hi")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestOpenAIClient_SpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"x"}}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL), nil)
	begin := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), "", "hi")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(begin), 2*minRequestSpacing)
}

func TestOpenAIClient_ThrottleHonoursCancel(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"x"}}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(testConfig(srv.URL), nil)
	_, err := client.Complete(context.Background(), "", "hi")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	begin := time.Now()
	_, err = client.Complete(ctx, "", "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), minRequestSpacing)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestAnthropicClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, strings.HasPrefix(req.System, "be strict"))
		assert.Contains(t, req.System, "JSON object")
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		fmt.Fprint(w, `{"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}]}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient(testConfig(srv.URL), zaptest.NewLogger(t))
	got, err := client.Complete(context.Background(), "be strict", "question")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestAnthropicClient_RetriesOverload(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(529)
			return
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"ok"}]}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient(testConfig(srv.URL), nil)
	got, err := client.Complete(context.Background(), "", "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestAnthropicClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"bad prompt"}}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient(testConfig(srv.URL), nil)
	_, err := client.Complete(context.Background(), "", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad prompt")
}

func TestGeminiClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "test-model:generateContent"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "is it unique?")
		assert.Contains(t, string(body), "application/json")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"g\":1}"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), "be strict", "is it unique?")
	require.NoError(t, err)
	assert.Equal(t, `{"g":1}`, got)
}

func TestGeminiClient_NoAPIKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), ClientConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestWithTimeout_KeepsExistingDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	ctx, done := withTimeout(parent, time.Second)
	defer done()
	deadline, _ := ctx.Deadline()
	want, _ := parent.Deadline()
	assert.Equal(t, want, deadline)

	ctx2, done2 := withTimeout(context.Background(), time.Second)
	defer done2()
	_, ok := ctx2.Deadline()
	assert.True(t, ok)
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.LLM.APIKey = ""
	_, err := NewClientFromConfig(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg.LLM.APIKey = "k"
	client, err := NewClientFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	openai, ok := client.(*OpenAIClient)
	require.True(t, ok)
	assert.Equal(t, "o3-mini-2025-01-31", openai.config.Model)
	assert.True(t, openai.config.JSONResponse)

	cfg.LLM.Provider = "anthropic"
	client, err = NewClientFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	anthropic, ok := client.(*AnthropicClient)
	require.True(t, ok)
	assert.NotEqual(t, "o3-mini-2025-01-31", anthropic.config.Model)

	cfg.LLM.Provider = "gemini"
	client, err = NewClientFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, client)

	cfg.LLM.Provider = "zai"
	_, err = NewClientFromConfig(context.Background(), cfg, nil)
	assert.Error(t, err)
}
