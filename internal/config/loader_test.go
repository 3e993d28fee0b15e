// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/reelvault/internal/validate"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsDeriveFromDataDir(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv(EnvDataDir, dataDir)

	cfg, err := NewLoader("", "", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dataDir, "cache"), cfg.CacheDir)
	assert.Equal(t, filepath.Join(dataDir, "reelvault.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(dataDir, "secret.key"), cfg.SecretKeyFile)
	assert.Equal(t, "ffprobe", cfg.FFmpeg.FFprobeBin)
	assert.Equal(t, 10*time.Second, cfg.Worker.OpTimeout)
	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.DirExists(t, cfg.CacheDir)
}

func TestLoad_FileOverridesOnlyNamedKeys(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "kv")
	path := writeFile(t, dir, "config.yml", `
data_dir: `+dir+`
cache:
  store_dir: `+store+`
ffmpeg:
  stall_timeout: 45s
`)

	cfg, err := NewLoader(path, "", "v9").Load()
	require.NoError(t, err)

	want := Defaults()
	want.DataDir = dir
	want.CacheDir = filepath.Join(dir, "cache")
	want.DBPath = filepath.Join(dir, "reelvault.db")
	want.SecretKeyFile = filepath.Join(dir, "secret.key")
	want.FFmpeg.FFprobeBin = "ffprobe"
	want.FFmpeg.StallTimeout = 45 * time.Second
	want.Cache.StoreDir = store
	want.Version = "v9"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.DirExists(t, store)
}

func TestLoad_PrecedenceFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
data_dir: `+dir+`
listen: "127.0.0.1:9000"
worker:
  op_timeout: 3s
sessions:
  idle_timeout: 2m
ffmpeg:
  bin: /opt/ffmpeg/bin/ffmpeg
usage:
  rate: 5
`)
	t.Setenv(EnvWorkerOpTimeout, "7s")
	t.Setenv(EnvUsageRate, "not-a-number")

	cfg, err := NewLoader(path, "", "").Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen, "file overrides default")
	assert.Equal(t, 7*time.Second, cfg.Worker.OpTimeout, "env overrides file")
	assert.Equal(t, 2*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Sessions.SweepInterval, "unset keys keep defaults")
	assert.Equal(t, 5.0, cfg.Usage.Rate, "invalid env keeps file value")
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", cfg.FFmpeg.FFprobeBin)
}

func TestLoad_DotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "REELVAULT_LISTEN=127.0.0.1:7000\nREELVAULT_LOG_LEVEL=debug\n")
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvLogLevel, "warn")
	// godotenv sets variables directly; register them for cleanup.
	t.Setenv(EnvListen, "")
	require.NoError(t, os.Unsetenv(EnvListen))

	cfg, err := NewLoader("", envFile, "").Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Listen)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	_, err := NewLoader("", filepath.Join(dir, "absent.env"), "").Load()
	assert.NoError(t, err)
}

func TestLoad_StrictFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	unknown := writeFile(t, dir, "unknown.yaml", "listen: \":1\"\nworkers: 3\n")
	_, err := NewLoader(unknown, "", "").Load()
	assert.ErrorIs(t, err, ErrUnknownConfigField)

	multi := writeFile(t, dir, "multi.yaml", "listen: \":1\"\n---\nlisten: \":2\"\n")
	_, err = NewLoader(multi, "", "").Load()
	assert.ErrorContains(t, err, "multiple documents")

	toml := writeFile(t, dir, "config.toml", "")
	_, err = NewLoader(toml, "", "").Load()
	assert.ErrorContains(t, err, "only YAML supported")

	empty := writeFile(t, dir, "empty.yaml", "")
	_, err = NewLoader(empty, "", "").Load()
	assert.NoError(t, err)
}

func TestLoad_ValidationReportsEveryField(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `
data_dir: `+dir+`
log_level: loud
worker:
  op_timeout: 0s
ratelimit:
  requests: 0
telemetry:
  enabled: true
  sampling_rate: 2
`)
	_, err := NewLoader(path, "", "").Load()
	require.Error(t, err)

	var ve validate.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.ElementsMatch(t, []string{
		"LogLevel", "Worker.OpTimeout", "RateLimit.Requests", "Telemetry.SamplingRate",
	}, ve.Fields())
}

func TestLoad_RecordsConsumedKeys(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())
	l := NewLoader("", "", "")
	_, err := l.Load()
	require.NoError(t, err)
	for _, k := range []string{EnvDataDir, EnvRedisAddr, EnvSessionIdle, EnvTelemetryEnabled} {
		assert.Contains(t, l.ConsumedEnvKeys, k)
	}
}
