package shutdown_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taskflow/internal/shutdown"
)

// =============================================================================
// Shutdown Manager Tests
// =============================================================================

// TestShutdownRunsCleanups tests that cleanups run once shutdown is requested.
func TestShutdownRunsCleanups(t *testing.T) {
	mgr := shutdown.NewManager(zerolog.Nop())

	var called atomic.Bool
	mgr.RegisterCleanup("repo", func(ctx context.Context) error {
		called.Store(true)
		return nil
	})

	mgr.Shutdown("test")
	if err := mgr.Wait(2 * time.Second); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if !called.Load() {
		t.Error("expected cleanup to be called")
	}
	if mgr.Reason() != "test" {
		t.Errorf("Reason = %q, want %q", mgr.Reason(), "test")
	}
}

// TestShutdownOnSignal tests that SIGTERM triggers shutdown.
func TestShutdownOnSignal(t *testing.T) {
	mgr := shutdown.NewManager(zerolog.Nop())
	stop := mgr.ListenForSignals()
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to send signal: %v", err)
	}

	select {
	case <-mgr.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not triggered by SIGTERM")
	}
	if !mgr.IsShutdown() {
		t.Error("IsShutdown should be true")
	}
}

// TestShutdownOrder tests that cleanups run in reverse registration order.
func TestShutdownOrder(t *testing.T) {
	mgr := shutdown.NewManager(zerolog.Nop())

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"repo", "embedder", "http"} {
		mgr.RegisterCleanup(name, func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	mgr.Shutdown("test")
	if err := mgr.Wait(time.Second); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	want := "http,embedder,repo"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

// TestShutdownContinuesAfterFailure tests that a failing cleanup does not stop the others.
func TestShutdownContinuesAfterFailure(t *testing.T) {
	mgr := shutdown.NewManager(zerolog.Nop())
	boom := errors.New("boom")

	var ranFirst atomic.Bool
	mgr.RegisterCleanup("first", func(ctx context.Context) error {
		ranFirst.Store(true)
		return nil
	})
	mgr.RegisterCleanup("failing", func(ctx context.Context) error { return boom })

	mgr.Shutdown("test")
	err := mgr.Wait(time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait error = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "failing") {
		t.Errorf("error should name the cleanup: %v", err)
	}
	if !ranFirst.Load() {
		t.Error("remaining cleanups should still run")
	}
}

// TestShutdownTimeout tests that a slow cleanup is bounded by the timeout.
func TestShutdownTimeout(t *testing.T) {
	mgr := shutdown.NewManager(zerolog.Nop())
	mgr.RegisterCleanup("slow", func(ctx context.Context) error {
		time.Sleep(2 * time.Second)
		return nil
	})

	mgr.Shutdown("test")
	start := time.Now()
	err := mgr.Wait(50 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("Wait should return at the timeout")
	}
}

// TestShutdownConcurrentSafety tests that concurrent Shutdown calls are safe.
func TestShutdownConcurrentSafety(t *testing.T) {
	mgr := shutdown.NewManager(zerolog.Nop())

	var count atomic.Int32
	mgr.RegisterCleanup("counter", func(ctx context.Context) error {
		count.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Shutdown("concurrent")
		}()
	}
	wg.Wait()

	if err := mgr.Wait(time.Second); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if count.Load() != 1 {
		t.Errorf("cleanup ran %d times, want 1", count.Load())
	}
}
