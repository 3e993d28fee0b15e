// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
)

// ViewSink persists one view.
type ViewSink interface {
	RecordView(ctx context.Context, path string, at time.Time) error
}

// UsageConfig bounds the recorder.
type UsageConfig struct {
	// Rate is the sustained number of events per second accepted.
	Rate float64
	// Burst is the number of events accepted at once.
	Burst int
	// Queue is the buffer between serving and persisting.
	Queue int
	// WriteTimeout bounds one persist call.
	WriteTimeout time.Duration
}

type usageEvent struct {
	path string
	at   time.Time
}

// UsageRecorder persists views off the serving path. Record never blocks
// and never fails; events beyond the rate or queue capacity are dropped.
type UsageRecorder struct {
	sink    ViewSink
	limiter *rate.Limiter
	queue   chan usageEvent
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	done chan struct{}
}

// NewUsageRecorder returns a recorder writing to sink. Call Run to start
// persisting.
func NewUsageRecorder(sink ViewSink, cfg UsageConfig) *UsageRecorder {
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &UsageRecorder{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		queue:   make(chan usageEvent, cfg.Queue),
		timeout: cfg.WriteTimeout,
		logger:  log.WithComponent("usage"),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Record enqueues a view of path.
func (u *UsageRecorder) Record(path string) bool {
	if !u.limiter.Allow() {
		metrics.IncUsageEvent("dropped_rate")
		return false
	}
	select {
	case u.queue <- usageEvent{path: path, at: u.now()}:
		return true
	default:
		metrics.IncUsageEvent("dropped_full")
		return false
	}
}

// Run persists queued events until ctx ends. Events still queued at that
// point are written with a fresh bounded context. Run must be called once.
func (u *UsageRecorder) Run(ctx context.Context) {
	defer close(u.done)
	for {
		select {
		case ev := <-u.queue:
			u.write(ctx, ev)
		case <-ctx.Done():
			u.drain()
			return
		}
	}
}

func (u *UsageRecorder) drain() {
	for {
		select {
		case ev := <-u.queue:
			u.write(context.Background(), ev)
		default:
			return
		}
	}
}

func (u *UsageRecorder) write(ctx context.Context, ev usageEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.timeout)
	defer cancel()
	if err := u.sink.RecordView(ctx, ev.path, ev.at); err != nil {
		metrics.IncUsageEvent("failed")
		u.logger.Debug().Err(err).Str(log.FieldPath, ev.path).Msg("usage event not persisted")
		return
	}
	metrics.IncUsageEvent("recorded")
}

// Done is closed when Run has returned.
func (u *UsageRecorder) Done() <-chan struct{} {
	return u.done
}
