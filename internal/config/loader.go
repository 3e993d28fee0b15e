// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrUnknownConfigField classifies strict YAML failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader resolves an AppConfig.
type Loader struct {
	configPath string
	envFile    string
	version    string
	// ConsumedEnvKeys records every environment key the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader returns a loader for the YAML file at configPath and the
// dotenv file at envFile. Either may be empty.
func NewLoader(configPath, envFile, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		envFile:         envFile,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Load applies defaults, the file, the environment, derives paths and
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if l.envFile != "" {
		// Existing process variables win over the file.
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env file: %w", err)
		}
	}
	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	deriveDefaults(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg, rejecting unknown keys and trailing
// documents.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}
	// #nosec G304 -- the operator chooses the config path
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	str := func(key string, dst *string) {
		l.ConsumedEnvKeys[key] = struct{}{}
		*dst = ParseString(key, *dst)
	}
	str(EnvDataDir, &cfg.DataDir)
	str(EnvCacheDir, &cfg.CacheDir)
	str(EnvDBPath, &cfg.DBPath)
	str(EnvSecretKeyFile, &cfg.SecretKeyFile)
	str(EnvListen, &cfg.Listen)
	str(EnvLogLevel, &cfg.LogLevel)
	str(EnvFFmpegBin, &cfg.FFmpeg.Bin)
	str(EnvFFprobeBin, &cfg.FFmpeg.FFprobeBin)
	str(EnvRedisAddr, &cfg.Cache.RedisAddr)
	str(EnvRedisPassword, &cfg.Cache.RedisPassword)
	str(EnvCacheStoreDir, &cfg.Cache.StoreDir)
	str(EnvTelemetryURL, &cfg.Telemetry.Endpoint)
	str(EnvTelemetryExport, &cfg.Telemetry.Exporter)

	for key, dst := range map[string]*time.Duration{
		EnvWorkerOpTimeout: &cfg.Worker.OpTimeout,
		EnvSessionIdle:     &cfg.Sessions.IdleTimeout,
		EnvSessionSweep:    &cfg.Sessions.SweepInterval,
		EnvSessionReady:    &cfg.Sessions.ReadyTimeout,
		EnvFFmpegStall:     &cfg.FFmpeg.StallTimeout,
		EnvCacheTTL:        &cfg.Cache.TTL,
		EnvRateLimitWindow: &cfg.RateLimit.Window,
	} {
		l.ConsumedEnvKeys[key] = struct{}{}
		*dst = ParseDuration(key, *dst)
	}

	l.ConsumedEnvKeys[EnvUsageRate] = struct{}{}
	cfg.Usage.Rate = ParseFloat(EnvUsageRate, cfg.Usage.Rate)
	l.ConsumedEnvKeys[EnvUsageQueue] = struct{}{}
	cfg.Usage.Queue = ParseInt(EnvUsageQueue, cfg.Usage.Queue)
	l.ConsumedEnvKeys[EnvRateLimitReqs] = struct{}{}
	cfg.RateLimit.Requests = ParseInt(EnvRateLimitReqs, cfg.RateLimit.Requests)
	l.ConsumedEnvKeys[EnvTelemetryEnabled] = struct{}{}
	cfg.Telemetry.Enabled = ParseBool(EnvTelemetryEnabled, cfg.Telemetry.Enabled)
	l.ConsumedEnvKeys[EnvTelemetrySample] = struct{}{}
	cfg.Telemetry.SamplingRate = ParseFloat(EnvTelemetrySample, cfg.Telemetry.SamplingRate)
}

// deriveDefaults places unset paths under DataDir.
func deriveDefaults(cfg *AppConfig) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "reelvault.db")
	}
	if cfg.SecretKeyFile == "" {
		cfg.SecretKeyFile = filepath.Join(cfg.DataDir, "secret.key")
	}
	if cfg.FFmpeg.FFprobeBin == "" {
		cfg.FFmpeg.FFprobeBin = siblingBinary(cfg.FFmpeg.Bin, "ffprobe")
	}
}

// siblingBinary returns name next to an explicitly located ffmpeg, or
// bare name for a PATH lookup.
func siblingBinary(ffmpeg, name string) string {
	if ffmpeg != "" && strings.ContainsRune(ffmpeg, filepath.Separator) {
		return filepath.Join(filepath.Dir(ffmpeg), name)
	}
	return name
}
