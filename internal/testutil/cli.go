// Package testutil provides shared test utilities for CLI testing across packages.
// Each CLITest runs the real cobra root against an in-process API server with
// isolated config and cache files.
package testutil

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taskflow/backend"
	"taskflow/backend/memory"
	"taskflow/cmd/taskflow/cmd"
	"taskflow/internal/api"
	"taskflow/internal/cache"
	"taskflow/internal/credentials"
	"taskflow/internal/embedding"
)

// defaultTestConfig is the minimal config used by test constructors to ensure isolation.
const defaultTestConfig = `# test config
storage:
  driver: memory
embedding:
  provider: hash
  dimensions: 64
client:
  cache_ttl: 5m
  timeout: 5s
logging:
  level: error
`

// CLITest provides a test helper for running CLI commands in isolation.
type CLITest struct {
	t          *testing.T
	cfg        *cmd.Config
	tmpDir     string
	configPath string
	cachePath  string

	server *httptest.Server
	repo   *memory.Backend
}

// NewCLITest creates a CLI test helper backed by a fresh in-memory API server.
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	tmpDir := t.TempDir()
	cachePath := filepath.Join(tmpDir, "cache", "cache.json")
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(defaultTestConfig), 0644); err != nil {
		t.Fatalf("failed to create config file: %v", err)
	}

	repo := memory.New()
	srv := api.NewServer(repo, embedding.NewHash(64), api.Config{
		Storage:  "memory",
		Embedder: "hash",
		Logger:   zerolog.Nop(),
	})
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	cfg := &cmd.Config{
		NoPrompt:   true,
		ConfigPath: configPath,
		CachePath:  cachePath,
		APIURL:     server.URL,
		Stdin:      strings.NewReader(""),
		Keyring:    credentials.NewMockKeyring(),
	}

	return &CLITest{
		t:          t,
		cfg:        cfg,
		tmpDir:     tmpDir,
		configPath: configPath,
		cachePath:  cachePath,
		server:     server,
		repo:       repo,
	}
}

// Config returns the test configuration.
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// TmpDir returns the temporary directory for the test.
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// ConfigPath returns the path to the config file.
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// CachePath returns the path to the cache file.
func (c *CLITest) CachePath() string {
	return c.cachePath
}

// ServerURL returns the base URL of the in-process API server.
func (c *CLITest) ServerURL() string {
	return c.server.URL
}

// Repo returns the repository behind the API server.
func (c *CLITest) Repo() *memory.Backend {
	return c.repo
}

// StopServer closes the API server so further requests fail with a network error.
func (c *CLITest) StopServer() {
	c.server.Close()
}

// SetStdin replaces the input used by prompts.
func (c *CLITest) SetStdin(input string) {
	c.cfg.Stdin = strings.NewReader(input)
}

// SetFullConfig replaces the entire config file with the given YAML content.
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()
	if err := os.WriteFile(c.configPath, []byte(yamlContent), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// SeedTask stores a task directly in the server's repository.
func (c *CLITest) SeedTask(title, description string, status backend.TaskStatus) *backend.Task {
	c.t.Helper()
	if status == "" {
		status = backend.StatusTodo
	}
	task, err := c.repo.Create(context.Background(), &backend.Task{
		Title:       title,
		Description: description,
		Status:      status,
	}, nil)
	if err != nil {
		c.t.Fatalf("failed to seed task: %v", err)
	}
	return task
}

// AgeCache shifts the cache timestamp back by d, as if the entry was written d ago.
func (c *CLITest) AgeCache(d time.Duration) {
	c.t.Helper()
	storage := cache.NewFileStorage(c.cachePath)
	raw, ok, err := storage.Get(cache.TimestampKey)
	if err != nil || !ok {
		c.t.Fatalf("no cache timestamp to age (err=%v)", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.t.Fatalf("unexpected cache timestamp %q: %v", raw, err)
	}
	aged := strconv.FormatInt(ms-d.Milliseconds(), 10)
	if err := storage.Set(map[string]string{cache.TimestampKey: aged}); err != nil {
		c.t.Fatalf("failed to rewrite cache timestamp: %v", err)
	}
}

// Execute runs a CLI command with the given arguments and returns stdout, stderr, and exit code.
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()

	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode = cmd.Execute(args, &stdoutBuf, &stderrBuf, c.cfg)
	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if exit code is non-zero.
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("expected exit code 0, got %d: stdout=%s stderr=%s", exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if exit code is zero.
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("expected non-zero exit code, got 0: stdout=%s", stdout)
	}
	return stdout, stderr
}

// AssertContains fails the test if output doesn't contain expected string.
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// AssertNotContains fails the test if output contains unexpected string.
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("expected output NOT to contain %q, got:\n%s", unexpected, output)
	}
}

// AssertExitCode fails the test if exit code doesn't match expected.
func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected exit code %d, got %d", want, got)
	}
}

// AssertResultCode verifies that the output ends with the expected result code.
func AssertResultCode(t *testing.T, output, expectedCode string) {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		t.Errorf("expected result code %q but output is empty", expectedCode)
		return
	}
	lastLine := strings.TrimSpace(lines[len(lines)-1])
	if lastLine != expectedCode {
		t.Errorf("expected result code %q, got %q\nFull output:\n%s", expectedCode, lastLine, output)
	}
}

// Result code constants for convenience.
const (
	ResultActionCompleted = cmd.ResultActionCompleted
	ResultInfoOnly        = cmd.ResultInfoOnly
	ResultError           = cmd.ResultError
)
