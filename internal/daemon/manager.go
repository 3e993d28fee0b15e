// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/reelvault/internal/api"
	"github.com/ManuGH/reelvault/internal/log"
)

// ErrAlreadyStarted is returned by a second Run.
var ErrAlreadyStarted = errors.New("manager already started")

// ShutdownHook runs during shutdown, after the server and background loops
// have stopped. Hooks run in reverse registration order.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// ServerConfig bounds the HTTP server.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Manager runs the HTTP server and background loops of a Runtime until its
// context ends.
type Manager struct {
	cfg    ServerConfig
	rt     *Runtime
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
	hooks   []namedHook

	addrOnce sync.Once
	addrCh   chan net.Addr
}

// NewManager returns a manager serving rt. Closing rt is registered as the
// first hook, so it runs last.
func NewManager(cfg ServerConfig, rt *Runtime) *Manager {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	m := &Manager{
		cfg:    cfg,
		rt:     rt,
		logger: log.WithComponent("manager"),
		addrCh: make(chan net.Addr, 1),
	}
	m.RegisterShutdownHook("runtime", func(ctx context.Context) error {
		return errors.Join(rt.close(ctx)...)
	})
	return m
}

// RegisterShutdownHook adds a cleanup step.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Addr blocks until the listener is bound and returns its address.
func (m *Manager) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case a := <-m.addrCh:
		m.addrCh <- a
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run serves until ctx ends or a component fails, then shuts down.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	cfg := m.rt.Config
	handler := api.New(m.rt.Service, api.Config{
		ServiceName:       tracingName(cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName),
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		Ready:             m.rt.Ready,
	}).Handler()

	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		m.runHooks(ctx)
		return fmt.Errorf("listen %s: %w", m.cfg.ListenAddr, err)
	}
	m.addrOnce.Do(func() { m.addrCh <- ln.Addr() })

	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str(log.FieldEvent, "api.server.failed").Msg("API server failed")
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		m.rt.Sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		m.rt.Usage.Run(gctx)
		return nil
	})

	err = g.Wait()
	if err != nil {
		m.logger.Error().Err(err).Msg("component failed, shutting down")
	} else {
		m.logger.Info().Msg("shutdown signal received")
	}
	if hookErr := m.runHooks(ctx); hookErr != nil {
		return errors.Join(err, hookErr)
	}
	return err
}

// runHooks executes the hooks LIFO under a bounded context detached from
// the caller's cancellation.
func (m *Manager) runHooks(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	m.mu.Lock()
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("daemon stopped cleanly")
	return nil
}

func tracingName(enabled bool, name string) string {
	if !enabled {
		return ""
	}
	return name
}
