package embedding

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

//go:embed generate_embedding.py
var sentenceTransformerScript string

// SubprocessEmbedder runs an external program per call. The text is passed as
// the final argument and the program must print a JSON array of numbers.
type SubprocessEmbedder struct {
	command    string
	args       []string
	dimensions int
	timeout    time.Duration
}

// SubprocessOption configures a SubprocessEmbedder.
type SubprocessOption func(*SubprocessEmbedder)

// WithCommand replaces the default python3 sentence-transformers invocation.
func WithCommand(command string, args ...string) SubprocessOption {
	return func(e *SubprocessEmbedder) {
		e.command = command
		e.args = args
	}
}

// WithDimensions sets the expected vector length.
func WithDimensions(n int) SubprocessOption {
	return func(e *SubprocessEmbedder) { e.dimensions = n }
}

// WithSubprocessTimeout bounds each invocation.
func WithSubprocessTimeout(d time.Duration) SubprocessOption {
	return func(e *SubprocessEmbedder) { e.timeout = d }
}

// NewSubprocess creates an embedder that shells out to all-MiniLM-L6-v2 by default.
func NewSubprocess(opts ...SubprocessOption) *SubprocessEmbedder {
	e := &SubprocessEmbedder{
		command:    "python3",
		args:       []string{"-c", sentenceTransformerScript},
		dimensions: DefaultDimensions,
		timeout:    60 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *SubprocessEmbedder) Dimensions() int { return e.dimensions }

func (e *SubprocessEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.args...), text)
	cmd := exec.CommandContext(ctx, e.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("embedding command %s failed: %w", e.command, err)
		}
		return nil, fmt.Errorf("embedding command %s failed: %w: %s", e.command, err, lastLine(msg))
	}

	var vec []float32
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding output: %w", err)
	}
	return checkDimensions(vec, e.dimensions)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
