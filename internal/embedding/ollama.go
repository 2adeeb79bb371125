package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"taskflow/internal/ratelimit"
)

const (
	defaultOllamaURL   = "http://localhost:11434/api/embed"
	defaultOllamaModel = "all-minilm"
	ollamaMaxRetries   = 5
)

// OllamaEmbedder talks to an Ollama-compatible /api/embed endpoint.
type OllamaEmbedder struct {
	url          string
	model        string
	dimensions   int
	initialDelay time.Duration
	timeout      time.Duration
	stats        *ratelimit.Stats
	client       *http.Client
}

// OllamaOption configures an OllamaEmbedder.
type OllamaOption func(*OllamaEmbedder)

// WithOllamaURL sets the embed endpoint URL.
func WithOllamaURL(url string) OllamaOption {
	return func(e *OllamaEmbedder) { e.url = url }
}

// WithOllamaModel sets the model name.
func WithOllamaModel(model string) OllamaOption {
	return func(e *OllamaEmbedder) { e.model = model }
}

// WithOllamaDimensions sets the expected vector length.
func WithOllamaDimensions(n int) OllamaOption {
	return func(e *OllamaEmbedder) { e.dimensions = n }
}

// WithOllamaTimeout sets the per-request HTTP timeout.
func WithOllamaTimeout(d time.Duration) OllamaOption {
	return func(e *OllamaEmbedder) { e.timeout = d }
}

// WithRetryDelay sets the base backoff between retries.
func WithRetryDelay(d time.Duration) OllamaOption {
	return func(e *OllamaEmbedder) { e.initialDelay = d }
}

// WithRateLimitStats records the 429 responses the server sends.
func WithRateLimitStats(stats *ratelimit.Stats) OllamaOption {
	return func(e *OllamaEmbedder) { e.stats = stats }
}

// NewOllama creates an embedder for a local Ollama server. Rate-limited
// responses are retried by the transport, honoring Retry-After.
func NewOllama(opts ...OllamaOption) *OllamaEmbedder {
	e := &OllamaEmbedder{
		url:          defaultOllamaURL,
		model:        defaultOllamaModel,
		dimensions:   DefaultDimensions,
		initialDelay: time.Second,
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.client = &http.Client{
		Timeout: e.timeout,
		Transport: ratelimit.NewTransport(ratelimit.Config{
			MaxRetries: ollamaMaxRetries,
			BaseDelay:  e.initialDelay,
			MaxDelay:   16 * e.initialDelay,
			Stats:      e.stats,
		}),
	}
	return e
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *OllamaEmbedder) Dimensions() int { return e.dimensions }

// Embed retries 5xx responses and transport errors with exponential backoff.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < ollamaMaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * e.initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("ollama request failed: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("ollama error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			if resp.StatusCode >= 500 {
				continue
			}
			return nil, lastErr
		}

		var out ollamaEmbedResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(out.Embeddings) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		return checkDimensions(out.Embeddings[0], e.dimensions)
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", ollamaMaxRetries, lastErr)
}
