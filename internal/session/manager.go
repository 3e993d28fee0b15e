// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
)

// ErrShutdown is returned by EnsureSession after Shutdown.
var ErrShutdown = errors.New("session manager shut down")

// Config controls where sessions live and how long they survive.
type Config struct {
	CacheRoot     string
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	// ReadyTimeout bounds the wait for the first variant playlist.
	ReadyTimeout time.Duration
	// StopTimeout bounds the wait for a transcoder to exit on reclaim.
	StopTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
}

// Manager owns the session registry.
type Manager struct {
	cfg    Config
	tx     Transcoder
	logger zerolog.Logger
	now    func() time.Time

	group singleflight.Group

	mu           sync.Mutex
	sessions     map[string]*Session // by normalized source
	provisioning map[string]struct{} // session keys being created
	closed       bool
}

// NewManager creates the sessions directory under cfg.CacheRoot.
func NewManager(cfg Config, tx Transcoder) (*Manager, error) {
	if cfg.CacheRoot == "" {
		return nil, errors.New("session cache root is required")
	}
	cfg.applyDefaults()
	if err := os.MkdirAll(filepath.Join(cfg.CacheRoot, sessionsDirName), 0o750); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Manager{
		cfg:          cfg,
		tx:           tx,
		logger:       log.WithComponent("sessions"),
		now:          time.Now,
		sessions:     make(map[string]*Session),
		provisioning: make(map[string]struct{}),
	}, nil
}

// SessionsDir is the parent of every session directory.
func (m *Manager) SessionsDir() string {
	return filepath.Join(m.cfg.CacheRoot, sessionsDirName)
}

// EnsureSession returns the ready session for src, provisioning it if
// needed. Concurrent callers for the same source share one provisioning.
// A caller whose ctx ends stops waiting; provisioning continues for the
// others.
func (m *Manager) EnsureSession(ctx context.Context, src string) (*Session, error) {
	normalized := NormalizeSource(src)
	if s := m.lookup(normalized); s != nil {
		return s, nil
	}

	ch := m.group.DoChan(normalized, func() (any, error) {
		if s := m.lookup(normalized); s != nil {
			return s, nil
		}
		return m.provision(normalized)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) provision(src string) (*Session, error) {
	key := Key(src)
	dir := filepath.Join(m.SessionsDir(), key)
	logger := m.logger.With().Str(log.FieldSource, src).Str(log.FieldSessionKey, key).Logger()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	m.provisioning[key] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.provisioning, key)
		m.mu.Unlock()
	}()

	fail := func(reason string, err error) (*Session, error) {
		metrics.IncSessionProvisionFailure(reason)
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn().Err(rmErr).Str(log.FieldSessionDir, dir).Msg("remove partial session dir")
		}
		perr := &ProvisionError{Source: src, Reason: reason, Err: err}
		logger.Error().Err(perr).Msg("session provisioning failed")
		return nil, perr
	}

	start := m.now()
	// A previous run may have left partial output behind.
	if err := os.RemoveAll(dir); err != nil {
		return fail("io", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fail("io", err)
	}

	proc, err := m.tx.Start(context.Background(), src, dir)
	if err != nil {
		return fail("start", err)
	}

	s := &Session{
		SourcePath: src,
		Key:        key,
		Dir:        dir,
		proc:       proc,
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), m.cfg.ReadyTimeout)
	defer cancel()
	readyCh := make(chan error, 1)
	go func() { readyCh <- WaitForFile(waitCtx, logger, s.VariantPlaylist()) }()

	select {
	case err := <-readyCh:
		if err != nil {
			m.stop(proc)
			if errors.Is(err, context.DeadlineExceeded) {
				return fail("ready_timeout", err)
			}
			return fail("io", err)
		}
	case <-proc.Done():
		cancel()
		<-readyCh
		// A short input can finish before the watcher reports it.
		if proc.Err() != nil || !ready(s.VariantPlaylist()) {
			exitErr := proc.Err()
			if exitErr == nil {
				exitErr = errors.New("transcoder exited without output")
			}
			return fail("start", exitErr)
		}
	}

	now := m.now()
	s.CreatedAt = now
	s.lastTouched = now

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.stop(proc)
		_ = os.RemoveAll(dir)
		return nil, ErrShutdown
	}
	m.sessions[src] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetSessionsActive(n)
	metrics.ObserveSessionProvision(now.Sub(start))
	logger.Info().Str(log.FieldSessionDir, dir).Dur("took", now.Sub(start)).Msg("session ready")
	return s, nil
}

func (m *Manager) stop(proc *Process) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout)
	defer cancel()
	proc.Stop(ctx)
}

func (m *Manager) lookup(normalized string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[normalized]
}

// Lookup returns the registered session for src, if any.
func (m *Manager) Lookup(src string) (*Session, bool) {
	s := m.lookup(NormalizeSource(src))
	return s, s != nil
}

// GetSessionDir returns the directory of a registered session. It never
// provisions.
func (m *Manager) GetSessionDir(src string) (string, bool) {
	s := m.lookup(NormalizeSource(src))
	if s == nil {
		return "", false
	}
	return s.Dir, true
}

// TouchSession marks the session for src as recently used.
func (m *Manager) TouchSession(src string) bool {
	s := m.lookup(NormalizeSource(src))
	if s == nil {
		return false
	}
	s.touch(m.now())
	return true
}

// Acquire registers a reader on the session for src. The session is not
// reclaimed while any reader holds it. release is idempotent.
func (m *Manager) Acquire(src string) (release func(), ok bool) {
	// The reader is counted before m.mu is released, so a concurrent sweep
	// either removed the session already or sees the reader.
	m.mu.Lock()
	s := m.sessions[NormalizeSource(src)]
	if s == nil {
		m.mu.Unlock()
		return func() {}, false
	}
	s.mu.Lock()
	s.readers++
	s.mu.Unlock()
	m.mu.Unlock()
	s.touch(m.now())

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.readers--
			s.mu.Unlock()
			s.touch(m.now())
		})
	}, true
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every transcoder and removes all session directories.
// Later EnsureSession calls fail with ErrShutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for k, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, k)
	}
	m.mu.Unlock()

	m.logger.Info().Int("count", len(all)).Msg("stopping sessions")
	for _, s := range all {
		m.reclaim(ctx, s, "shutdown")
	}
	metrics.SetSessionsActive(0)
}

func (m *Manager) reclaim(ctx context.Context, s *Session, reason string) {
	if s.proc != nil {
		stopCtx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
		s.proc.Stop(stopCtx)
		cancel()
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		m.logger.Warn().Err(err).Str(log.FieldSessionDir, s.Dir).Msg("remove session dir")
		return
	}
	metrics.IncSessionReclaimed(reason)
	m.logger.Debug().Str(log.FieldSource, s.SourcePath).Str("reason", reason).Msg("session reclaimed")
}
