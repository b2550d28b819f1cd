// Package shutdown provides graceful shutdown coordination for the optimizer
// service: HTTP server draining followed by cleanup hooks, under one timeout.
package shutdown

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager coordinates graceful shutdown of a server and cleanup hooks
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration
	server  *http.Server
	hooks   []hook
	mu      sync.Mutex
}

// NewManager creates a shutdown manager with the given overall timeout
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{
		logger:  logger.With(zap.String("component", "shutdown")),
		timeout: timeout,
	}
}

// RegisterHook adds a cleanup hook, executed in reverse registration order
// during shutdown
func (m *Manager) RegisterHook(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Serve starts the HTTP server in a goroutine and registers it for graceful
// shutdown. Returns an error only when the server fails immediately on
// startup (e.g. port already in use).
func (m *Manager) Serve(server *http.Server) error {
	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		m.logger.Info("Starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Wait blocks until SIGINT or SIGTERM, then drains the server and runs the
// cleanup hooks in reverse order within the configured timeout.
func (m *Manager) Wait() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	m.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	server := m.server
	hooks := make([]hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			m.logger.Error("Server shutdown error", zap.Error(err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			m.logger.Warn("Shutdown timeout reached, skipping remaining hooks",
				zap.String("skipped", hooks[i].name))
			return
		default:
		}

		if err := hooks[i].fn(ctx); err != nil {
			m.logger.Error("Shutdown hook failed",
				zap.String("hook", hooks[i].name), zap.Error(err))
		}
	}

	m.logger.Info("Graceful shutdown complete")
}
