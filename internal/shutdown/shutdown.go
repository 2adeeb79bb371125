// Package shutdown coordinates graceful termination of the API server: it
// waits for SIGINT/SIGTERM and runs registered cleanups in reverse order.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// CleanupFunc releases one resource. ctx is cancelled when the shutdown times out.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager handles graceful shutdown coordination.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanupEntry
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	reason string
}

// NewManager creates a new shutdown manager.
func NewManager(logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterCleanup registers fn to run during shutdown.
// Cleanups run last registered, first called.
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// Shutdown initiates shutdown. Only the first call has effect.
func (m *Manager) Shutdown(reason string) {
	m.once.Do(func() {
		m.mu.Lock()
		m.reason = reason
		m.mu.Unlock()
		m.logger.Info().Str("reason", reason).Msg("shutdown requested")
		m.cancel()
	})
}

// ListenForSignals calls Shutdown on SIGINT or SIGTERM. The returned
// function stops listening.
func (m *Manager) ListenForSignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			m.Shutdown(sig.String())
		case <-stop:
		case <-m.ctx.Done():
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(stop)
	}
}

// Wait runs the cleanups once shutdown has been requested, bounded by timeout.
// Every cleanup runs even if an earlier one fails; failures are joined.
func (m *Manager) Wait(timeout time.Duration) error {
	<-m.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.RunCleanups(ctx)
}

// RunCleanups executes all cleanup functions in reverse registration order.
func (m *Manager) RunCleanups(ctx context.Context) error {
	m.mu.Lock()
	cleanups := make([]cleanupEntry, len(m.cleanups))
	copy(cleanups, m.cleanups)
	m.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			c := cleanups[i]
			start := time.Now()
			if err := c.fn(ctx); err != nil {
				m.logger.Error().Err(err).Str("cleanup", c.name).Msg("cleanup failed")
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
				continue
			}
			m.logger.Debug().Str("cleanup", c.name).Dur("took", time.Since(start)).Msg("cleanup done")
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// IsShutdown reports whether shutdown has been initiated.
func (m *Manager) IsShutdown() bool {
	return m.ctx.Err() != nil
}

// Reason returns what triggered the shutdown.
func (m *Manager) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Context is cancelled when shutdown is initiated.
func (m *Manager) Context() context.Context {
	return m.ctx
}
