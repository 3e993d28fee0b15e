// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), Config{RedisAddr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return mr, r
}

func TestRedis_SetGetWithPrefix(t *testing.T) {
	mr, r := setupMiniRedis(t)
	ctx := context.Background()

	r.Set(ctx, "meta:/a.mp3", []byte(`{"title":"A"}`), 5*time.Minute)

	v, ok := r.Get(ctx, "meta:/a.mp3")
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"A"}`, string(v))

	raw, err := mr.Get("test:meta:/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, `{"title":"A"}`, raw)

	_, ok = r.Get(ctx, "meta:/missing")
	assert.False(t, ok)

	st := r.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Sets)
	assert.Equal(t, 1, st.Size)
}

func TestRedis_TTLAndDelete(t *testing.T) {
	mr, r := setupMiniRedis(t)
	ctx := context.Background()

	r.Set(ctx, "a", []byte("1"), time.Second)
	r.Set(ctx, "b", []byte("2"), time.Hour)
	mr.FastForward(2 * time.Second)

	_, ok := r.Get(ctx, "a")
	assert.False(t, ok)

	r.Delete(ctx, "b")
	_, ok = r.Get(ctx, "b")
	assert.False(t, ok)
}

func TestRedis_ServerDownDegradesToMiss(t *testing.T) {
	mr, r := setupMiniRedis(t)
	ctx := context.Background()

	r.Set(ctx, "a", []byte("1"), time.Minute)
	mr.Close()

	_, ok := r.Get(ctx, "a")
	assert.False(t, ok)
	assert.Error(t, r.Ping(ctx))
}

func TestNew_FallsBackToMemory(t *testing.T) {
	c := New(context.Background(), Config{RedisAddr: "127.0.0.1:1"})
	defer c.Close()
	_, isMemory := c.(*Memory)
	assert.True(t, isMemory)

	mr := miniredis.RunT(t)
	c2 := New(context.Background(), Config{RedisAddr: mr.Addr()})
	defer c2.Close()
	_, isRedis := c2.(*Redis)
	assert.True(t, isRedis)
}
