// Package client is the HTTP client for the task API. Every failure is
// returned as an *APIError carrying a message fit for display.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"taskflow/backend"
)

// NetworkErrorMessage is reported when the server could not be reached or
// returned no usable error body.
const NetworkErrorMessage = "network error"

// APIError is a normalized request failure.
type APIError struct {
	// StatusCode is 0 when no response was received.
	StatusCode int
	Message    string
	Errors     []string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether no response was received.
func (e *APIError) IsNetwork() bool {
	return e.StatusCode == 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Config holds client settings
type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// Client talks JSON to the task API.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
	inFlight  atomic.Int32
}

// New creates a Client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "taskflow"
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		userAgent: ua,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// InFlight reports whether any request is currently running.
func (c *Client) InFlight() bool {
	return c.inFlight.Load() > 0
}

// Do sends body as JSON and decodes a 2xx response into out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &APIError{Message: "failed to encode request", Err: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &APIError{Message: NetworkErrorMessage, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Message: NetworkErrorMessage, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: NetworkErrorMessage, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "invalid response from server", Err: err}
	}
	return nil
}

// decodeError prefers the server's message, then its error label.
func decodeError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: NetworkErrorMessage}
	var body backend.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Error != "":
			apiErr.Message = body.Error
		}
		apiErr.Errors = body.Errors
	}
	apiErr.Err = fmt.Errorf("HTTP %d: %s", status, http.StatusText(status))
	return apiErr
}

// =============================================================================
// Task Operations
// =============================================================================

// ListTasks returns every task.
func (c *Client) ListTasks(ctx context.Context) ([]backend.Task, error) {
	var out backend.TaskListResponse
	if err := c.Do(ctx, http.MethodGet, "/api/tasks", nil, &out); err != nil {
		return nil, err
	}
	if out.Tasks == nil {
		out.Tasks = []backend.Task{}
	}
	return out.Tasks, nil
}

// GetTask returns one task.
func (c *Client) GetTask(ctx context.Context, id int64) (*backend.Task, error) {
	var out backend.Task
	if err := c.Do(ctx, http.MethodGet, taskPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchTasks runs a semantic search. limit <= 0 uses the server default.
func (c *Client) SearchTasks(ctx context.Context, query string, limit int) ([]backend.ScoredTask, error) {
	q := url.Values{"query": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []backend.ScoredTask
	if err := c.Do(ctx, http.MethodGet, "/api/tasks/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTask creates a task and returns it as stored.
func (c *Client) CreateTask(ctx context.Context, req backend.CreateTaskRequest) (*backend.Task, error) {
	var out backend.TaskResponse
	if err := c.Do(ctx, http.MethodPost, "/api/tasks", req, &out); err != nil {
		return nil, err
	}
	return &out.Task, nil
}

// UpdateTask applies a partial update.
func (c *Client) UpdateTask(ctx context.Context, id int64, patch backend.TaskPatch) (*backend.Task, error) {
	var out backend.TaskResponse
	if err := c.Do(ctx, http.MethodPut, taskPath(id), patch, &out); err != nil {
		return nil, err
	}
	return &out.Task, nil
}

// DeleteTask removes a task and returns it.
func (c *Client) DeleteTask(ctx context.Context, id int64) (*backend.Task, error) {
	var out backend.TaskResponse
	if err := c.Do(ctx, http.MethodDelete, taskPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Task, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.Do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func taskPath(id int64) string {
	return "/api/tasks/" + strconv.FormatInt(id, 10)
}
