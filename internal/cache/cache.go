// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache holds derived media documents (metadata JSON, probe
// results) between requests. Values are opaque bytes; entries expire.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/reelvault/internal/metrics"
)

// Cache stores byte values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Stats() Stats
	Close() error
}

// Stats are cumulative counters since creation.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Size      int
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Cache with a background janitor.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	hits, misses, sets, evictions atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemory starts a cache whose janitor runs every cleanupInterval. A
// non-positive interval disables the janitor; expired entries are then
// only dropped on read.
func NewMemory(cleanupInterval time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go m.janitor(cleanupInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.now().After(e.expires) {
		m.misses.Add(1)
		metrics.IncCacheLookup("memory", "miss")
		return nil, false
	}
	m.hits.Add(1)
	metrics.IncCacheLookup("memory", "hit")
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	cp := append([]byte(nil), value...)
	m.mu.Lock()
	m.entries[key] = entry{value: cp, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	m.sets.Add(1)
}

func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory) Stats() Stats {
	m.mu.RLock()
	size := len(m.entries)
	m.mu.RUnlock()
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Sets:      m.sets.Load(),
		Evictions: m.evictions.Load(),
		Size:      size,
	}
}

// Close stops the janitor and waits for it.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

// DeleteExpired drops expired entries and returns how many were removed.
func (m *Memory) DeleteExpired() int {
	now := m.now()
	m.mu.Lock()
	n := 0
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
			n++
		}
	}
	m.mu.Unlock()
	m.evictions.Add(int64(n))
	return n
}

func (m *Memory) janitor(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.DeleteExpired()
		case <-m.stop:
			return
		}
	}
}
