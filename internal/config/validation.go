// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/ManuGH/reelvault/internal/validate"
)

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate reports every invalid field of cfg at once. Directories are
// created when missing.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("DataDir", cfg.DataDir, true)
	v.Directory("CacheDir", cfg.CacheDir, true)
	v.AbsPath("DBPath", cfg.DBPath)
	v.AbsPath("SecretKeyFile", cfg.SecretKeyFile)
	v.ListenAddr("Listen", cfg.Listen)
	v.OneOf("LogLevel", cfg.LogLevel, logLevels)

	v.PositiveDuration("Worker.OpTimeout", cfg.Worker.OpTimeout)
	v.PositiveDuration("Worker.LifecycleTimeout", cfg.Worker.LifecycleTimeout)
	v.PositiveDuration("Sessions.IdleTimeout", cfg.Sessions.IdleTimeout)
	v.PositiveDuration("Sessions.SweepInterval", cfg.Sessions.SweepInterval)
	v.PositiveDuration("Sessions.ReadyTimeout", cfg.Sessions.ReadyTimeout)
	v.Positive("Sessions.SegmentDuration", cfg.Sessions.SegmentDuration)
	v.NotEmpty("FFmpeg.Bin", cfg.FFmpeg.Bin)
	v.PositiveDuration("FFmpeg.StartTimeout", cfg.FFmpeg.StartTimeout)
	v.PositiveDuration("FFmpeg.StallTimeout", cfg.FFmpeg.StallTimeout)

	v.PositiveDuration("Cache.TTL", cfg.Cache.TTL)
	if cfg.Cache.StoreDir != "" {
		v.Directory("Cache.StoreDir", cfg.Cache.StoreDir, true)
	}
	v.PositiveFloat("Usage.Rate", cfg.Usage.Rate)
	v.Positive("Usage.Burst", cfg.Usage.Burst)
	v.Positive("Usage.Queue", cfg.Usage.Queue)
	v.Positive("RateLimit.Requests", cfg.RateLimit.Requests)
	v.PositiveDuration("RateLimit.Window", cfg.RateLimit.Window)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"http", "grpc"})
		v.URL("Telemetry.Endpoint", cfg.Telemetry.Endpoint, []string{"http", "https"})
		v.NotEmpty("Telemetry.ServiceName", cfg.Telemetry.ServiceName)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
