// Package embedding turns task text into vectors for semantic search.
// Callers depend only on Embedder; the concrete provider is chosen by config.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultDimensions matches all-MiniLM-L6-v2.
const DefaultDimensions = 384

// ErrEmptyText is returned when asked to embed blank input.
var ErrEmptyText = errors.New("embedding: empty text")

// Embedder produces a fixed-length vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Provider names accepted by New.
const (
	ProviderSubprocess = "subprocess"
	ProviderOllama     = "ollama"
	ProviderHash       = "hash"
)

// Options selects and configures a provider.
type Options struct {
	Provider   string
	Command    string
	Args       []string
	URL        string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// New builds the Embedder named by opts.Provider.
func New(opts Options) (Embedder, error) {
	dims := opts.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	switch opts.Provider {
	case ProviderSubprocess, "":
		sopts := []SubprocessOption{WithDimensions(dims)}
		if opts.Command != "" {
			sopts = append(sopts, WithCommand(opts.Command, opts.Args...))
		}
		if opts.Timeout > 0 {
			sopts = append(sopts, WithSubprocessTimeout(opts.Timeout))
		}
		return NewSubprocess(sopts...), nil
	case ProviderOllama:
		oopts := []OllamaOption{WithOllamaDimensions(dims)}
		if opts.URL != "" {
			oopts = append(oopts, WithOllamaURL(opts.URL))
		}
		if opts.Model != "" {
			oopts = append(oopts, WithOllamaModel(opts.Model))
		}
		if opts.Timeout > 0 {
			oopts = append(oopts, WithOllamaTimeout(opts.Timeout))
		}
		return NewOllama(oopts...), nil
	case ProviderHash:
		return NewHash(dims), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q (valid: subprocess, ollama, hash)", opts.Provider)
}

// checkDimensions rejects vectors of the wrong length.
func checkDimensions(v []float32, want int) ([]float32, error) {
	if len(v) == 0 {
		return nil, errors.New("embedding: provider returned an empty vector")
	}
	if want > 0 && len(v) != want {
		return nil, fmt.Errorf("embedding: got %d dimensions, want %d", len(v), want)
	}
	return v, nil
}
