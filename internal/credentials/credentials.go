// Package credentials stores the API token used by the client, in the OS
// keyring with a fallback to the TASKFLOW_API_TOKEN environment variable.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ServiceName is the keyring service all tokens are stored under.
const ServiceName = "taskflow"

// EnvToken is the environment variable consulted when the keyring has no token.
const EnvToken = "TASKFLOW_API_TOKEN"

// Source indicates where a token was retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// TokenInfo describes a token lookup
type TokenInfo struct {
	Source Source
	Server string // API base URL the token belongs to
	Token  string
	Found  bool
}

// JSON serializes the lookup result without the token itself
func (i *TokenInfo) JSON() ([]byte, error) {
	return json.Marshal(struct {
		Server string `json:"server"`
		Source string `json:"source"`
		Found  bool   `json:"found"`
	}{
		Server: i.Server,
		Source: string(i.Source),
		Found:  i.Found,
	})
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles token operations
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithEnv sets the environment lookup function
func WithEnv(getenv func(string) string) ManagerOption {
	return func(m *Manager) {
		m.getenv = getenv
	}
}

// NewManager creates a token manager backed by the OS keyring
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// account normalizes a server URL into a keyring account name
func account(server string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(server)), "/")
}

// Set stores the token for server in the keyring
func (m *Manager) Set(ctx context.Context, server, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	return m.keyring.Set(ServiceName, account(server), token)
}

// Get retrieves the token for server (keyring first, then environment)
func (m *Manager) Get(ctx context.Context, server string) (*TokenInfo, error) {
	info := &TokenInfo{Server: account(server), Source: SourceNone}

	token, err := m.keyring.Get(ServiceName, info.Server)
	if err == nil && token != "" {
		info.Source, info.Token, info.Found = SourceKeyring, token, true
		return info, nil
	}
	if err != nil && !errors.Is(err, ErrTokenNotFound) && !errors.Is(err, ErrKeyringNotAvailable) {
		return nil, err
	}

	if token := strings.TrimSpace(m.getenv(EnvToken)); token != "" {
		info.Source, info.Token, info.Found = SourceEnvironment, token, true
	}
	return info, nil
}

// Token returns the token for server, or "" when none is configured.
func (m *Manager) Token(ctx context.Context, server string) string {
	info, err := m.Get(ctx, server)
	if err != nil || !info.Found {
		return ""
	}
	return info.Token
}

// Delete removes the token for server from the keyring. Deleting a missing token is not an error.
func (m *Manager) Delete(ctx context.Context, server string) error {
	err := m.keyring.Delete(ServiceName, account(server))
	if errors.Is(err, ErrTokenNotFound) {
		return nil
	}
	return err
}

// PromptToken reads a token from reader. When reader is a terminal the input is hidden.
func PromptToken(reader io.Reader, writer io.Writer, server string) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter API token for %s: ", server)

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}
