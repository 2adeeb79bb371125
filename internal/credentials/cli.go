package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// CLIHandler handles the token subcommands
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
}

// NewCLIHandler creates a new CLI handler for token commands
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
	}
}

// Set prompts for a token and stores it
func (h *CLIHandler) Set(ctx context.Context, server string) error {
	token, err := PromptToken(h.stdin, h.stdout, server)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if err := h.manager.Set(ctx, server, token); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return keyringNotAvailableError()
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token stored in system keyring\n")
	return nil
}

func keyringNotAvailableError() error {
	return fmt.Errorf(`system keyring not available.

Alternative: set the token in an environment variable instead:
  export %s="your-api-token"`, EnvToken)
}

// Get reports where the token for server comes from
func (h *CLIHandler) Get(ctx context.Context, server string, jsonOutput bool) error {
	info, err := h.manager.Get(ctx, server)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	if jsonOutput {
		data, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(data))
		return nil
	}

	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "No token found for %s\n", info.Server)
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: Not found\n")
		_, _ = fmt.Fprintf(h.stdout, "  - %s: Not set\n", EnvToken)
		_, _ = fmt.Fprintf(h.stdout, "\nSuggestion: Run 'taskflow token set'\n")
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Server: %s\n", info.Server)
	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Token: ******** (hidden)\n")
	return nil
}

// Delete removes the stored token for server
func (h *CLIHandler) Delete(ctx context.Context, server string) error {
	if err := h.manager.Delete(ctx, server); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	_, _ = fmt.Fprintf(h.stdout, "Token removed from system keyring\n")
	return nil
}
