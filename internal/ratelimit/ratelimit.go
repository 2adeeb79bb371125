// Package ratelimit provides an HTTP transport that retries rate-limited
// requests with exponential backoff.
package ratelimit

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Config holds configuration for the retrying transport.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after receiving 429.
	// Default: 3
	MaxRetries int

	// BaseDelay is the initial delay before the first retry.
	// Default: 500ms
	BaseDelay time.Duration

	// MaxDelay caps both computed backoff and Retry-After.
	// Default: 8 seconds
	MaxDelay time.Duration

	// DisableJitter turns off the ±20% spread applied to computed delays.
	DisableJitter bool

	// Stats is an optional stats tracker for recording rate limit events.
	Stats *Stats

	// Base is the transport that sends requests. Default: http.DefaultTransport
	Base http.RoundTripper
}

// Transport is an http.RoundTripper that retries 429 responses. When retries
// run out the last 429 response is returned to the caller unchanged.
type Transport struct {
	base       http.RoundTripper
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	jitter     bool
	stats      *Stats
}

// NewTransport creates a retrying transport with the given configuration.
func NewTransport(cfg Config) *Transport {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:       base,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		jitter:     !cfg.DisableJitter,
		stats:      cfg.Stats,
	}
}

// RoundTrip sends req, waiting and resending while the server answers 429.
// Requests with a body are only retried when req.GetBody is set.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		if err != nil || resp.StatusCode != http.StatusTooManyRequests {
			return resp, err
		}
		if t.stats != nil {
			t.stats.RecordRateLimit()
		}
		if attempt >= t.maxRetries || (req.Body != nil && req.Body != http.NoBody && req.GetBody == nil) {
			return resp, nil
		}

		delay := t.backoff(attempt, ParseRetryAfter(resp.Header.Get("Retry-After")))
		_ = resp.Body.Close()

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
}

// CloseIdleConnections forwards to the base transport when it supports it.
func (t *Transport) CloseIdleConnections() {
	if c, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// backoff computes the delay before retry number attempt.
func (t *Transport) backoff(attempt int, retryAfter *time.Duration) time.Duration {
	if retryAfter != nil {
		return min(*retryAfter, t.maxDelay)
	}

	// Exponential backoff: base * 2^attempt
	delay := time.Duration(float64(t.baseDelay) * math.Pow(2, float64(attempt)))
	if delay > t.maxDelay {
		delay = t.maxDelay
	}
	if t.jitter {
		delay = time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))
	}
	return delay
}

// ParseRetryAfter parses the Retry-After header value.
// It supports both seconds format (integer) and HTTP-date format.
// Returns nil if the value is invalid or empty.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	if t, err := http.ParseTime(value); err == nil {
		d := max(time.Until(t), 0)
		return &d
	}

	return nil
}

// Stats counts rate limit responses seen by a transport.
type Stats struct {
	mu              sync.RWMutex
	rateLimitCount  int64
	lastRateLimitAt time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// RecordRateLimit records a rate limit event.
func (s *Stats) RecordRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}
