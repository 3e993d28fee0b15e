// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/log"
)

// Environment keys.
const (
	EnvDataDir          = "REELVAULT_DATA_DIR"
	EnvCacheDir         = "REELVAULT_CACHE_DIR"
	EnvDBPath           = "REELVAULT_DB_PATH"
	EnvSecretKeyFile    = "REELVAULT_SECRET_KEY_FILE"
	EnvListen           = "REELVAULT_LISTEN"
	EnvLogLevel         = "REELVAULT_LOG_LEVEL"
	EnvWorkerOpTimeout  = "REELVAULT_WORKER_OP_TIMEOUT"
	EnvSessionIdle      = "REELVAULT_SESSION_IDLE_TIMEOUT"
	EnvSessionSweep     = "REELVAULT_SESSION_SWEEP_INTERVAL"
	EnvSessionReady     = "REELVAULT_SESSION_READY_TIMEOUT"
	EnvFFmpegBin        = "REELVAULT_FFMPEG_BIN"
	EnvFFprobeBin       = "REELVAULT_FFPROBE_BIN"
	EnvFFmpegStall      = "REELVAULT_FFMPEG_STALL_TIMEOUT"
	EnvRedisAddr        = "REELVAULT_REDIS_ADDR"
	EnvRedisPassword    = "REELVAULT_REDIS_PASSWORD"
	EnvCacheTTL         = "REELVAULT_CACHE_TTL"
	EnvCacheStoreDir    = "REELVAULT_CACHE_STORE_DIR"
	EnvUsageRate        = "REELVAULT_USAGE_RATE"
	EnvUsageQueue       = "REELVAULT_USAGE_QUEUE"
	EnvRateLimitReqs    = "REELVAULT_RATELIMIT_REQUESTS"
	EnvRateLimitWindow  = "REELVAULT_RATELIMIT_WINDOW"
	EnvTelemetryEnabled = "REELVAULT_OTEL_ENABLED"
	EnvTelemetryURL     = "REELVAULT_OTEL_ENDPOINT"
	EnvTelemetryExport  = "REELVAULT_OTEL_EXPORTER"
	EnvTelemetrySample  = "REELVAULT_OTEL_SAMPLING"
)

// ParseString reads key from the environment, logging where the value
// came from. Values of sensitive keys are never logged.
func ParseString(key, defaultValue string) string {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(s string) (string, error) { return s, nil })
}

func ParseInt(key string, defaultValue int) int {
	return parseEnv(log.WithComponent("config"), key, defaultValue, strconv.Atoi)
}

func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseDuration accepts Go duration syntax ("5s", "1m30s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(log.WithComponent("config"), key, defaultValue, time.ParseDuration)
}

// ParseBool accepts true/false, 1/0 and yes/no in any case.
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, strconv.ErrSyntax
	})
}

// parseEnv falls back to defaultValue when key is unset, empty or
// unparsable. Only the last case is logged above debug.
func parseEnv[T any](logger zerolog.Logger, key string, defaultValue T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		logger.Debug().Str("key", key).Interface("default", defaultValue).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		ev := logger.Warn().Str("key", key).Interface("default", defaultValue)
		if !sensitive(key) {
			ev = ev.Str("value", raw)
		}
		ev.Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Interface("value", v)
	}
	ev.Msg("using environment variable")
	return v
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "secret") || strings.Contains(k, "token")
}
