// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"sync"
)

// Process is a running background transcode. Done is closed once it has
// exited; Err is valid after that.
type Process struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewProcess returns a handle whose Stop calls cancel. The owner must call
// Finish exactly once when the work has ended.
func NewProcess(cancel context.CancelFunc) *Process {
	return &Process{cancel: cancel, done: make(chan struct{})}
}

// Finish records the exit status and releases waiters.
func (p *Process) Finish(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop cancels the work and waits for it to exit or ctx to end.
func (p *Process) Stop(ctx context.Context) {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-ctx.Done():
	}
}
