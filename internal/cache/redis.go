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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
)

const opTimeout = 2 * time.Second

// Config selects and tunes the cache backend.
type Config struct {
	// RedisAddr enables the Redis backend when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// KeyPrefix namespaces every key in Redis.
	KeyPrefix string
	// StoreDir enables the on-disk Badger backend when Redis is not set.
	StoreDir string
	// JanitorInterval applies to the memory backend.
	JanitorInterval time.Duration
}

// New returns a Redis cache when configured and reachable, then a Badger
// cache when StoreDir is set, otherwise an in-memory cache. Backend
// failures are logged, not fatal.
func New(ctx context.Context, cfg Config) Cache {
	logger := log.WithComponent("cache")
	if cfg.RedisAddr != "" {
		rc, err := NewRedis(ctx, cfg)
		if err == nil {
			return rc
		}
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, falling back")
	}
	if cfg.StoreDir != "" {
		bc, err := OpenBadger(cfg.StoreDir)
		if err == nil {
			return bc
		}
		logger.Warn().Err(err).Str(log.FieldPath, cfg.StoreDir).Msg("disk cache unavailable, using memory cache")
	}
	interval := cfg.JanitorInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return NewMemory(interval)
}

// Redis is a Cache shared across processes.
type Redis struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger

	hits, misses, sets atomic.Int64
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	r := newRedisWithClient(client, cfg.KeyPrefix)
	r.logger.Info().Str("addr", cfg.RedisAddr).Int("db", cfg.RedisDB).Msg("connected to redis cache")
	return r, nil
}

func newRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "reelvault:"
	}
	return &Redis{client: client, prefix: prefix, logger: log.WithComponent("cache")}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		r.misses.Add(1)
		metrics.IncCacheLookup("redis", "miss")
		return nil, false
	case err != nil:
		r.misses.Add(1)
		metrics.IncCacheLookup("redis", "error")
		r.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		return nil, false
	}
	r.hits.Add(1)
	metrics.IncCacheLookup("redis", "hit")
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		return
	}
	r.sets.Add(1)
}

func (r *Redis) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
	}
}

// Stats reports local counters. Size counts keys under the prefix.
func (r *Redis) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	size := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn().Err(err).Msg("redis scan failed")
	}
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load(), Sets: r.sets.Load(), Size: size}
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
