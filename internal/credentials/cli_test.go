package credentials

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// TestTokenSetCLI tests 'taskflow token set'
func TestTokenSetCLI(t *testing.T) {
	manager := NewManager(WithKeyring(NewMockKeyring()), WithEnv(envMap(nil)))
	stdout := &bytes.Buffer{}

	handler := NewCLIHandler(manager, strings.NewReader("tok-1\n"), stdout)
	if err := handler.Set(context.Background(), "http://localhost:3001"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Token stored") {
		t.Errorf("expected success message, got: %s", stdout.String())
	}
	if got := manager.Token(context.Background(), "http://localhost:3001"); got != "tok-1" {
		t.Errorf("stored token = %q", got)
	}
}

// TestTokenSetKeyringNotAvailableCLI tests that the env var alternative is suggested
func TestTokenSetKeyringNotAvailableCLI(t *testing.T) {
	manager := NewManager(WithKeyring(brokenKeyring{}))
	handler := NewCLIHandler(manager, strings.NewReader("tok\n"), &bytes.Buffer{})

	err := handler.Set(context.Background(), "http://x")
	if err == nil {
		t.Fatal("expected error when keyring not available")
	}
	if !strings.Contains(err.Error(), EnvToken) {
		t.Errorf("expected error to mention %s, got: %s", EnvToken, err)
	}
}

// TestTokenGetCLI tests 'taskflow token get' in text and JSON modes
func TestTokenGetCLI(t *testing.T) {
	kr := NewMockKeyring()
	_ = kr.Set(ServiceName, "http://x", "secret")
	manager := NewManager(WithKeyring(kr), WithEnv(envMap(nil)))

	stdout := &bytes.Buffer{}
	handler := NewCLIHandler(manager, nil, stdout)
	if err := handler.Get(context.Background(), "http://x", false); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "Source: keyring") {
		t.Errorf("expected keyring source, got: %s", out)
	}
	if strings.Contains(out, "secret") {
		t.Errorf("token leaked: %s", out)
	}

	stdout.Reset()
	if err := handler.Get(context.Background(), "http://x", true); err != nil {
		t.Fatalf("Get --json failed: %v", err)
	}
	if !strings.Contains(stdout.String(), `"found":true`) {
		t.Errorf("unexpected JSON: %s", stdout.String())
	}
}

// TestTokenGetNotFoundCLI tests the suggestion shown when no token exists
func TestTokenGetNotFoundCLI(t *testing.T) {
	manager := NewManager(WithKeyring(NewMockKeyring()), WithEnv(envMap(nil)))
	stdout := &bytes.Buffer{}

	if err := NewCLIHandler(manager, nil, stdout).Get(context.Background(), "http://x", false); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "taskflow token set") {
		t.Errorf("expected suggestion, got: %s", stdout.String())
	}
}

// TestTokenDeleteCLI tests 'taskflow token delete'
func TestTokenDeleteCLI(t *testing.T) {
	kr := NewMockKeyring()
	_ = kr.Set(ServiceName, "http://x", "secret")
	manager := NewManager(WithKeyring(kr), WithEnv(envMap(nil)))
	stdout := &bytes.Buffer{}

	if err := NewCLIHandler(manager, nil, stdout).Delete(context.Background(), "http://x"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Token removed") {
		t.Errorf("unexpected output: %s", stdout.String())
	}
	if _, err := kr.Get(ServiceName, "http://x"); err == nil {
		t.Error("token should be deleted")
	}
}
