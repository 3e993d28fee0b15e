// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrStalled reports a transcode that produced no progress in time.
var ErrStalled = errors.New("transcode stalled")

type watchState int

const (
	watchStarting watchState = iota
	watchRunning
	watchCompleted
)

// Watchdog follows ffmpeg -progress output and fails once the start or
// stall window passes without forward movement.
type Watchdog struct {
	mu sync.Mutex

	startTimeout time.Duration
	stallTimeout time.Duration
	now          func() time.Time

	outTimeUs int64
	totalSize int64
	heartbeat time.Time
	state     watchState
}

func NewWatchdog(startTimeout, stallTimeout time.Duration) *Watchdog {
	w := &Watchdog{startTimeout: startTimeout, stallTimeout: stallTimeout, now: time.Now}
	w.heartbeat = w.now()
	return w
}

// Observe consumes one key=value line.
func (w *Watchdog) Observe(line string) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	switch key {
	case "out_time_us", "out_time_ms":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil && v > w.outTimeUs {
			w.outTimeUs = v
			w.beat()
		}
	case "total_size":
		if v, err := strconv.ParseInt(val, 10, 64); err == nil && v > w.totalSize {
			w.totalSize = v
			w.beat()
		}
	case "progress":
		if val == "end" {
			w.state = watchCompleted
		}
	}
}

func (w *Watchdog) beat() {
	w.heartbeat = w.now()
	if w.state == watchStarting {
		w.state = watchRunning
	}
}

// Feed observes every line of r until EOF.
func (w *Watchdog) Feed(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		w.Observe(scanner.Text())
	}
}

// Check returns ErrStalled when the current window has elapsed.
func (w *Watchdog) Check() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idle := w.now().Sub(w.heartbeat)
	switch w.state {
	case watchStarting:
		if w.startTimeout > 0 && idle > w.startTimeout {
			return ErrStalled
		}
	case watchRunning:
		if w.stallTimeout > 0 && idle > w.stallTimeout {
			return ErrStalled
		}
	}
	return nil
}

// Run checks every interval until ctx ends or a stall is detected.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := w.Check(); err != nil {
				return err
			}
		}
	}
}
