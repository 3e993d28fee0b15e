// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
)

// Run sweeps on every SweepInterval tick until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.cfg.SweepInterval).Dur("idle_timeout", m.cfg.IdleTimeout).Msg("session sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs exactly one pass: idle sessions without readers are
// reclaimed, then orphan directories older than the idle timeout are
// removed. It returns the number of sessions reclaimed.
func (m *Manager) SweepOnce(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for k, s := range m.sessions {
		if s.reclaimable(now, m.cfg.IdleTimeout) {
			expired = append(expired, s)
			delete(m.sessions, k)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		m.reclaim(ctx, s, "idle")
	}
	if len(expired) > 0 {
		metrics.SetSessionsActive(n)
		m.logger.Info().Int("count", len(expired)).Msg("sweep reclaimed idle sessions")
	}

	m.RemoveOrphans(m.cfg.IdleTimeout)
	return len(expired)
}

// RemoveOrphans deletes session directories that belong to no registered
// or provisioning session and were last modified more than minAge ago.
// Startup calls it with zero to clear leftovers of a previous process.
func (m *Manager) RemoveOrphans(minAge time.Duration) int {
	entries, err := os.ReadDir(m.SessionsDir())
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn().Err(err).Msg("sweep failed to read sessions dir")
		}
		return 0
	}

	m.mu.Lock()
	live := make(map[string]struct{}, len(m.sessions)+len(m.provisioning))
	for _, s := range m.sessions {
		live[s.Key] = struct{}{}
	}
	for k := range m.provisioning {
		live[k] = struct{}{}
	}
	m.mu.Unlock()

	cutoff := m.now().Add(-minAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !IsSessionKey(e.Name()) {
			continue
		}
		if _, ok := live[e.Name()]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(m.SessionsDir(), e.Name())
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn().Err(err).Str(log.FieldSessionDir, dir).Msg("remove orphan session dir")
			continue
		}
		metrics.IncSessionReclaimed("orphan")
		removed++
	}
	if removed > 0 {
		m.logger.Info().Int("count", removed).Msg("sweep removed orphan directories")
	}
	return removed
}
