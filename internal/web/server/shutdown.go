package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// GracefulShutdown runs a server until a signal arrives, then drains it and
// runs the registered hooks
type GracefulShutdown struct {
	server  *Server
	hooks   []ShutdownHook
	timeout time.Duration
	signals []os.Signal
	logger  *zap.Logger

	mu           sync.Mutex
	shutdownOnce sync.Once
	done         chan struct{}
	err          error
}

// ShutdownHook releases a resource once the server has stopped
type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// ShutdownConfig holds graceful shutdown configuration
type ShutdownConfig struct {
	// Timeout bounds draining and hooks together
	Timeout time.Duration

	// Signals that trigger shutdown (default: SIGINT, SIGTERM)
	Signals []os.Signal

	Logger *zap.Logger
}

// DefaultShutdownConfig returns default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Logger:  zap.NewNop(),
	}
}

// NewGracefulShutdown creates a graceful shutdown handler for server
func NewGracefulShutdown(server *Server, config *ShutdownConfig) *GracefulShutdown {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	signals := config.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GracefulShutdown{
		server:  server,
		hooks:   make([]ShutdownHook, 0),
		timeout: timeout,
		signals: signals,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// RegisterHook adds a hook. Hooks run in registration order.
func (gs *GracefulShutdown) RegisterHook(name string, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, ShutdownHook{Name: name, Fn: fn})
}

// Run serves until a shutdown signal arrives or ctx is cancelled, then
// shuts down gracefully
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	if err := gs.server.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		gs.logger.Info("server listening", zap.String("addr", gs.server.Addr()))
		if err := gs.server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, gs.signals...)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		gs.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		gs.logger.Info("context cancelled, shutting down")
	case err := <-errChan:
		return err
	}
	return gs.Shutdown()
}

// Shutdown drains the server, then runs the hooks. A failing hook does not
// stop the others. It is safe to call more than once.
func (gs *GracefulShutdown) Shutdown() error {
	gs.shutdownOnce.Do(func() {
		defer close(gs.done)
		gs.logger.Info("shutting down", zap.Duration("timeout", gs.timeout))

		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		var errs []error
		if err := gs.server.Shutdown(ctx); err != nil {
			gs.logger.Error("server shutdown failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}

		gs.mu.Lock()
		hooks := make([]ShutdownHook, len(gs.hooks))
		copy(hooks, gs.hooks)
		gs.mu.Unlock()

		for _, hook := range hooks {
			if err := hook.Fn(ctx); err != nil {
				gs.logger.Error("shutdown hook failed", zap.String("hook", hook.Name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
			}
		}

		gs.err = errors.Join(errs...)
		if gs.err == nil {
			gs.logger.Info("shutdown complete")
		}
	})

	<-gs.done
	return gs.err
}

// Wait blocks until shutdown is complete
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}
