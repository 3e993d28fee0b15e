// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
)

// Badger is a Cache persisted on local disk, so derived documents survive
// restarts of a single daemon.
type Badger struct {
	db     *badger.DB
	logger zerolog.Logger

	hits, misses, sets atomic.Int64
}

// OpenBadger opens (or creates) the store in dir.
func OpenBadger(dir string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	return &Badger{db: db, logger: log.WithComponent("cache")}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, bool) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		b.misses.Add(1)
		metrics.IncCacheLookup("badger", "miss")
		return nil, false
	case err != nil:
		b.misses.Add(1)
		metrics.IncCacheLookup("badger", "error")
		b.logger.Warn().Err(err).Str("key", key).Msg("badger get failed")
		return nil, false
	}
	b.hits.Add(1)
	metrics.IncCacheLookup("badger", "hit")
	return out, true
}

func (b *Badger) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	if err := b.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(e) }); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("badger set failed")
		return
	}
	b.sets.Add(1)
}

func (b *Badger) Delete(_ context.Context, key string) {
	if err := b.db.Update(func(txn *badger.Txn) error { return txn.Delete([]byte(key)) }); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("badger delete failed")
	}
}

// Stats counts live keys with a key-only scan.
func (b *Badger) Stats() Stats {
	size := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			size++
		}
		return nil
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("badger scan failed")
	}
	return Stats{Hits: b.hits.Load(), Misses: b.misses.Load(), Sets: b.sets.Load(), Size: size}
}

func (b *Badger) Close() error { return b.db.Close() }
