// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration. Precedence is defaults,
// then the YAML file, then the environment (optionally seeded from a
// .env file).
package config

import "time"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	DataDir       string `yaml:"data_dir"`
	CacheDir      string `yaml:"cache_dir"`
	DBPath        string `yaml:"db_path"`
	SecretKeyFile string `yaml:"secret_key_file"`
	Listen        string `yaml:"listen"`
	LogLevel      string `yaml:"log_level"`

	Worker    WorkerConfig    `yaml:"worker"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Cache     CacheConfig     `yaml:"cache"`
	Usage     UsageConfig     `yaml:"usage"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is stamped from the binary, never read from input.
	Version string `yaml:"-"`
}

// WorkerConfig bounds calls into the persistence worker.
type WorkerConfig struct {
	OpTimeout        time.Duration `yaml:"op_timeout"`
	LifecycleTimeout time.Duration `yaml:"lifecycle_timeout"`
}

// SessionsConfig tunes transcode session lifetimes.
type SessionsConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"`
	SegmentDuration int           `yaml:"segment_duration"`
}

// FFmpegConfig locates the ffmpeg tools. A transcode that produces no
// progress within StartTimeout, or stops progressing for StallTimeout, is
// killed.
type FFmpegConfig struct {
	Bin          string        `yaml:"bin"`
	FFprobeBin   string        `yaml:"ffprobe_bin"`
	StartTimeout time.Duration `yaml:"start_timeout"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
}

// CacheConfig selects the metadata cache. RedisAddr wins over StoreDir;
// with neither set the cache stays in process.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	StoreDir      string        `yaml:"store_dir"`
	TTL           time.Duration `yaml:"ttl"`
}

type UsageConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
	Queue int     `yaml:"queue"`
}

// RateLimitConfig is the per-client request budget of the HTTP API.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the configuration used when nothing is set. Paths
// derived from DataDir are filled in by the loader.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  "/var/lib/reelvault",
		Listen:   ":8088",
		LogLevel: "info",
		Worker: WorkerConfig{
			OpTimeout:        10 * time.Second,
			LifecycleTimeout: 30 * time.Second,
		},
		Sessions: SessionsConfig{
			IdleTimeout:     10 * time.Minute,
			SweepInterval:   time.Minute,
			ReadyTimeout:    30 * time.Second,
			SegmentDuration: 4,
		},
		FFmpeg: FFmpegConfig{Bin: "ffmpeg", StartTimeout: time.Minute, StallTimeout: 30 * time.Second},
		Cache:  CacheConfig{TTL: time.Hour},
		Usage:  UsageConfig{Rate: 20, Burst: 50, Queue: 256},
		RateLimit: RateLimitConfig{
			Requests: 300,
			Window:   time.Minute,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "http",
			Endpoint:     "http://localhost:4318",
			ServiceName:  "reelvault",
			SamplingRate: 1,
		},
	}
}
