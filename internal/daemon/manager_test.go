// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/config"
	"github.com/ManuGH/reelvault/internal/session"
)

type stubTranscoder struct{}

func (stubTranscoder) Start(ctx context.Context, _, dir string) (*session.Process, error) {
	for name, body := range map[string]string{
		session.VariantPlaylistName: "#EXTM3U\n#EXTINF:4,\nseg_00000.ts\n",
		"seg_00000.ts":              "ts",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			return nil, err
		}
	}
	runCtx, cancel := context.WithCancel(ctx)
	p := session.NewProcess(cancel)
	go func() { <-runCtx.Done(); p.Finish(nil) }()
	return p, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, src string, _ func(float64)) (*session.Heatmap, error) {
	return &session.Heatmap{Source: src, Duration: 1, Buckets: []float64{1}}, nil
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.DataDir = dir
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.DBPath = filepath.Join(dir, "reelvault.db")
	cfg.SecretKeyFile = filepath.Join(dir, "secret.key")
	cfg.Listen = "127.0.0.1:0"
	return cfg
}

func get(t *testing.T, base, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(base + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestManager_ServesAndShutsDownCleanly(t *testing.T) {
	cfg := testConfig(t)
	mediaDir := filepath.Join(cfg.DataDir, "media")
	require.NoError(t, os.MkdirAll(mediaDir, 0o755))
	movie := filepath.Join(mediaDir, "movie.mp4")
	require.NoError(t, os.WriteFile(movie, []byte("movie-bytes"), 0o644))
	outside := filepath.Join(cfg.DataDir, "private.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	ctx := context.Background()
	rt, err := Bootstrap(ctx, cfg, Options{Transcoder: stubTranscoder{}, Analyzer: stubAnalyzer{}})
	require.NoError(t, err)
	_, err = rt.Service.AddRoot(ctx, mediaDir, catalog.SourceLocal)
	require.NoError(t, err)

	m := NewManager(ServerConfig{ListenAddr: cfg.Listen, ShutdownTimeout: 5 * time.Second}, rt)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- m.Run(runCtx) }()

	addrCtx, addrCancel := context.WithTimeout(ctx, 5*time.Second)
	defer addrCancel()
	addr, err := m.Addr(addrCtx)
	require.NoError(t, err)
	base := "http://" + addr.String()

	code, _ := get(t, base, "/healthz")
	assert.Equal(t, http.StatusOK, code)

	code, body := get(t, base, "/api/media/static?path="+url.QueryEscape(movie))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "movie-bytes", body)

	code, body = get(t, base, "/api/media/static?path="+url.QueryEscape(outside))
	assert.Equal(t, http.StatusForbidden, code)
	assert.NotContains(t, body, "secret")

	code, body = get(t, base, "/api/hls/master.m3u8?path="+url.QueryEscape(movie))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "seg/seg_00000.ts?path=")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("manager did not stop")
	}
	assert.True(t, rt.Catalog.Channel.Exited())
	assert.ErrorIs(t, m.Run(ctx), ErrAlreadyStarted)

	// Views queued before shutdown were drained into the database.
	cat, err := OpenCatalog(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = cat.Close(ctx) }()
	resolved, err := filepath.EvalSymlinks(movie)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{resolved: 2}, cat.Client.ViewCounts(ctx, []string{resolved}))
	require.Len(t, cat.Client.ListRoots(ctx), 1)
}

func TestManager_HooksRunInReverseOrder(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Bootstrap(context.Background(), cfg, Options{Transcoder: stubTranscoder{}, Analyzer: stubAnalyzer{}})
	require.NoError(t, err)

	m := NewManager(ServerConfig{ListenAddr: cfg.Listen}, rt)
	var order []string
	m.RegisterShutdownHook("first", func(context.Context) error { order = append(order, "first"); return nil })
	m.RegisterShutdownHook("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("flush failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook second: flush failed")
	assert.Equal(t, []string{"second", "first"}, order)
	assert.True(t, rt.Catalog.Channel.Exited(), "runtime hook runs last")
}

func TestManager_ListenFailureReleasesRuntime(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Bootstrap(context.Background(), cfg, Options{Transcoder: stubTranscoder{}, Analyzer: stubAnalyzer{}})
	require.NoError(t, err)

	m := NewManager(ServerConfig{ListenAddr: "256.0.0.1:0"}, rt)
	err = m.Run(context.Background())
	assert.ErrorContains(t, err, "listen")
	assert.True(t, rt.Catalog.Channel.Exited())
}

func TestBootstrap_RemovesOrphanSessions(t *testing.T) {
	cfg := testConfig(t)
	orphan := filepath.Join(cfg.CacheDir, "sessions", "0123456789abcdef0123456789abcdef")
	require.NoError(t, os.MkdirAll(orphan, 0o755))

	rt, err := Bootstrap(context.Background(), cfg, Options{Transcoder: stubTranscoder{}, Analyzer: stubAnalyzer{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = errors.Join(rt.close(context.Background())...) })

	assert.NoDirExists(t, orphan)
	assert.NoError(t, rt.Ready(context.Background()))
}
