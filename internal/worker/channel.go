// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
)

// DefaultTimeout bounds how long a caller waits for any single operation.
const DefaultTimeout = 10 * time.Second

// Endpoint is the message transport to a worker. *Worker implements it.
type Endpoint interface {
	Post(ctx context.Context, req Request) error
	Events() <-chan Event
}

// Options tunes per-operation wait windows.
type Options struct {
	// Timeout applies to every operation without a more specific entry.
	Timeout time.Duration
	// LifecycleTimeout applies to init and close. Zero means Timeout.
	LifecycleTimeout time.Duration
	// OpTimeouts overrides the window for individual operations.
	OpTimeouts map[OpType]time.Duration
}

type outcome struct {
	result Result
	err    error
}

type pending struct {
	id          string
	op          OpType
	submittedAt time.Time
	done        chan outcome // cap 1, written by whoever removed the entry
}

// Channel is the controller side of the worker boundary. It correlates
// responses to requests, applies timeouts and maps failures to the
// degrade-or-reject policy of each operation category.
type Channel struct {
	ep     Endpoint
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pending
	exited  bool
	exitErr error

	dispatchDone chan struct{}
}

// NewChannel attaches a controller to ep and starts consuming its events.
func NewChannel(ep Endpoint, opts Options) *Channel {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.LifecycleTimeout <= 0 {
		opts.LifecycleTimeout = opts.Timeout
	}
	c := &Channel{
		ep:           ep,
		opts:         opts,
		logger:       log.WithComponent("worker-channel"),
		pending:      make(map[string]*pending),
		dispatchDone: make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Init opens the store inside the worker and waits for the acknowledgement.
func (c *Channel) Init(ctx context.Context) error {
	_, err := c.Do(ctx, OpInit, nil)
	return err
}

// Close asks the worker to release its store and exit, then waits until all
// of its events have been consumed.
func (c *Channel) Close(ctx context.Context) error {
	if c.Exited() {
		return nil
	}
	if _, err := c.Do(ctx, OpClose, nil); err != nil && !errors.Is(err, ErrWorkerExited) {
		return err
	}
	select {
	case <-c.dispatchDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exited reports whether the worker has terminated, normally or not.
func (c *Channel) Exited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited
}

// Pending returns the number of operations awaiting a response.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Do sends op with payload and applies the failure policy of its category.
// Read operations never return an error: any failure yields (nil, nil) and
// the caller substitutes its default. Mutations and lifecycle operations
// return the underlying failure.
func (c *Channel) Do(ctx context.Context, op OpType, payload any) (json.RawMessage, error) {
	start := time.Now()
	res, err := c.roundTrip(ctx, op, payload)
	if err == nil && !res.Success {
		err = &RemoteError{Op: op, Message: res.Error}
	}
	metrics.ObserveWorkerOp(string(op), outcomeLabel(err), time.Since(start))
	if err == nil {
		return res.Data, nil
	}

	if op.Category() == CategoryRead {
		metrics.IncWorkerDegraded(string(op), outcomeLabel(err))
		c.logger.Warn().Err(err).Str(log.FieldOpType, string(op)).Msg("read degraded to default")
		return nil, nil
	}
	return nil, err
}

func (c *Channel) roundTrip(ctx context.Context, op OpType, payload any) (Result, error) {
	req := Request{ID: uuid.NewString(), Type: op}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Result{}, fmt.Errorf("encode %s payload: %w", op, err)
		}
		req.Payload = raw
	}

	p := &pending{id: req.ID, op: op, submittedAt: time.Now(), done: make(chan outcome, 1)}
	c.mu.Lock()
	if c.exited {
		err := c.exitErr
		c.mu.Unlock()
		return Result{}, err
	}
	c.pending[p.id] = p
	metrics.SetWorkerPending(len(c.pending))
	c.mu.Unlock()

	if err := c.ep.Post(ctx, req); err != nil {
		if c.take(p.id) == nil {
			// The dispatcher resolved it first (worker died while posting).
			o := <-p.done
			return o.result, o.err
		}
		return Result{}, err
	}

	timer := time.NewTimer(c.timeoutFor(op))
	defer timer.Stop()

	select {
	case o := <-p.done:
		return o.result, o.err
	case <-timer.C:
		if c.take(p.id) != nil {
			c.logger.Warn().Str(log.FieldCorrelationID, p.id).Str(log.FieldOpType, string(op)).
				Dur("waited", time.Since(p.submittedAt)).Msg("worker operation timed out")
			return Result{}, fmt.Errorf("%w: %s", ErrTimeout, op)
		}
	case <-ctx.Done():
		if c.take(p.id) != nil {
			return Result{}, ctx.Err()
		}
	}
	o := <-p.done
	return o.result, o.err
}

// take removes and returns the pending entry for id. Only the caller that
// gets a non-nil entry may resolve it.
func (c *Channel) take(id string) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	metrics.SetWorkerPending(len(c.pending))
	return p
}

func (c *Channel) timeoutFor(op OpType) time.Duration {
	if d, ok := c.opts.OpTimeouts[op]; ok && d > 0 {
		return d
	}
	if op.Category() == CategoryLifecycle {
		return c.opts.LifecycleTimeout
	}
	return c.opts.Timeout
}

func (c *Channel) dispatch() {
	defer close(c.dispatchDone)

	for ev := range c.ep.Events() {
		switch ev.Kind {
		case EventMessage:
			p := c.take(ev.Response.ID)
			if p == nil {
				metrics.IncWorkerLateResponse()
				c.logger.Debug().Str(log.FieldCorrelationID, ev.Response.ID).Msg("dropping response without pending operation")
				continue
			}
			p.done <- outcome{result: ev.Response.Result}
		case EventError:
			metrics.IncWorkerCrash()
			err := &CrashError{Cause: ev.Err}
			c.logger.Error().Err(ev.Err).Msg("persistence worker failed")
			c.terminate(err)
		case EventExit:
			var err error = ErrWorkerExited
			if ev.Err != nil {
				err = &CrashError{Cause: ev.Err}
			}
			c.terminate(err)
			c.logger.Info().Str(log.FieldEvent, "worker.exit").Bool("clean", ev.Err == nil).Msg("persistence worker exited")
		}
	}
	c.terminate(ErrWorkerExited)
}

// terminate marks the channel as exited and fails every pending operation
// once. The first recorded reason wins.
func (c *Channel) terminate(reason error) {
	c.mu.Lock()
	if !c.exited {
		c.exited = true
		c.exitErr = reason
	}
	drained := c.pending
	c.pending = make(map[string]*pending)
	metrics.SetWorkerPending(0)
	c.mu.Unlock()

	for _, p := range drained {
		p.done <- outcome{err: reason}
	}
}

func outcomeLabel(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &remote):
		return "remote_error"
	case errors.Is(err, ErrWorkerExited):
		return "crashed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
