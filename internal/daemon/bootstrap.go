// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon assembles the runtime from configuration and owns its
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/reelvault/internal/authz"
	"github.com/ManuGH/reelvault/internal/cache"
	"github.com/ManuGH/reelvault/internal/config"
	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/media"
	"github.com/ManuGH/reelvault/internal/secret"
	"github.com/ManuGH/reelvault/internal/session"
	"github.com/ManuGH/reelvault/internal/telemetry"
	"github.com/ManuGH/reelvault/internal/worker"
)

// Catalog is a running persistence worker behind its channel.
type Catalog struct {
	Worker  *worker.Worker
	Channel *worker.Channel
	Client  *worker.Client
}

// OpenCatalog starts the persistence worker for cfg and initializes it.
func OpenCatalog(ctx context.Context, cfg config.AppConfig) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	w := worker.New(worker.SQLiteOpener(cfg.DBPath))
	w.Start()
	ch := worker.NewChannel(w, worker.Options{
		Timeout:          cfg.Worker.OpTimeout,
		LifecycleTimeout: cfg.Worker.LifecycleTimeout,
	})
	if err := ch.Init(ctx); err != nil {
		_ = ch.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("init persistence worker: %w", err)
	}
	return &Catalog{Worker: w, Channel: ch, Client: worker.NewClient(ch)}, nil
}

// Close stops the worker and waits for it to exit.
func (c *Catalog) Close(ctx context.Context) error {
	err := c.Channel.Close(ctx)
	select {
	case <-c.Worker.Done():
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// Cipher returns the credential cipher configured by cfg.
func Cipher(cfg config.AppConfig) *secret.Cipher {
	return secret.New(secret.KeySource{Getenv: os.Getenv, File: cfg.SecretKeyFile})
}

// Runtime is every long-lived component of a serving daemon.
type Runtime struct {
	Config    config.AppConfig
	Catalog   *Catalog
	Cache     cache.Cache
	Sessions  *session.Manager
	Heatmaps  *session.Heatmaps
	Usage     *media.UsageRecorder
	Service   *media.Service
	Telemetry *telemetry.Provider
}

// Options replace external collaborators, mainly in tests.
type Options struct {
	Transcoder session.Transcoder
	Analyzer   session.Analyzer
	Virtual    media.VirtualResolver
}

// Bootstrap builds a Runtime. On error everything started so far is
// stopped again.
func Bootstrap(ctx context.Context, cfg config.AppConfig, opts Options) (rt *Runtime, err error) {
	logger := log.WithComponent("bootstrap")
	rt = &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			rt.close(context.WithoutCancel(ctx))
		}
	}()

	rt.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return rt, fmt.Errorf("telemetry: %w", err)
	}

	rt.Catalog, err = OpenCatalog(ctx, cfg)
	if err != nil {
		return rt, err
	}

	rt.Cache = cache.New(ctx, cache.Config{
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		StoreDir:      cfg.Cache.StoreDir,
	})

	tx := opts.Transcoder
	if tx == nil {
		ff := session.NewFFmpegTranscoder(cfg.FFmpeg.Bin)
		ff.SegmentDuration = cfg.Sessions.SegmentDuration
		ff.StartTimeout = cfg.FFmpeg.StartTimeout
		ff.StallTimeout = cfg.FFmpeg.StallTimeout
		tx = ff
	}
	rt.Sessions, err = session.NewManager(session.Config{
		CacheRoot:     cfg.CacheDir,
		IdleTimeout:   cfg.Sessions.IdleTimeout,
		SweepInterval: cfg.Sessions.SweepInterval,
		ReadyTimeout:  cfg.Sessions.ReadyTimeout,
	}, tx)
	if err != nil {
		return rt, fmt.Errorf("session manager: %w", err)
	}
	if n := rt.Sessions.RemoveOrphans(0); n > 0 {
		logger.Info().Int("removed", n).Msg("removed orphaned session directories")
	}

	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = session.NewFFmpegAnalyzer(cfg.FFmpeg.Bin, cfg.FFmpeg.FFprobeBin)
	}
	rt.Heatmaps = session.NewHeatmaps(analyzer)

	rt.Usage = media.NewUsageRecorder(rt.Catalog.Client, media.UsageConfig{
		Rate:  cfg.Usage.Rate,
		Burst: cfg.Usage.Burst,
		Queue: cfg.Usage.Queue,
	})

	rt.Service = media.NewService(media.Deps{
		Authorizer:  authz.New(rt.Catalog.Client),
		Sessions:    rt.Sessions,
		Heatmaps:    rt.Heatmaps,
		Catalog:     rt.Catalog.Client,
		Secrets:     Cipher(cfg),
		Usage:       rt.Usage,
		Thumbnails:  media.NewThumbnailer(filepath.Join(cfg.CacheDir, "thumbnails"), cfg.FFmpeg.Bin),
		Cache:       rt.Cache,
		Virtual:     opts.Virtual,
		MetadataTTL: cfg.Cache.TTL,
	})

	logger.Info().
		Str("db", cfg.DBPath).
		Str("cache_dir", cfg.CacheDir).
		Bool("redis", cfg.Cache.RedisAddr != "").
		Bool("disk_cache", cfg.Cache.StoreDir != "").
		Bool("tracing", cfg.Telemetry.Enabled).
		Msg("runtime assembled")
	return rt, nil
}

// close releases what Bootstrap created, in reverse order.
func (rt *Runtime) close(ctx context.Context) []error {
	var errs []error
	if rt.Heatmaps != nil {
		rt.Heatmaps.Shutdown(ctx)
	}
	if rt.Sessions != nil {
		rt.Sessions.Shutdown(ctx)
	}
	if rt.Cache != nil {
		if err := rt.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if rt.Catalog != nil {
		if err := rt.Catalog.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("catalog: %w", err))
		}
	}
	if rt.Telemetry != nil {
		if err := rt.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errs
}

// Ready reports whether the runtime can serve requests.
func (rt *Runtime) Ready(context.Context) error {
	if rt.Catalog == nil || rt.Catalog.Channel.Exited() {
		return worker.ErrWorkerExited
	}
	return nil
}
