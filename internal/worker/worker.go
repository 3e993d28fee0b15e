// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/persistence/sqlite"
)

// Opener opens the store inside the worker goroutine on init.
type Opener func(ctx context.Context) (*catalog.Store, error)

// handlerFunc executes one business operation against the owned store.
type handlerFunc func(ctx context.Context, s *catalog.Store, payload json.RawMessage) (any, error)

// Worker is the isolated execution context owning the catalog store.
// Requests are processed one at a time, in arrival order, against a single
// storage connection.
type Worker struct {
	open     Opener
	handlers map[OpType]handlerFunc
	logger   zerolog.Logger

	inbox  chan Request
	events chan Event

	stopOnce sync.Once
	stopped  chan struct{}

	// Owned by the loop goroutine only.
	store *catalog.Store
}

// New creates a worker that will open its store with open on init.
func New(open Opener) *Worker {
	return &Worker{
		open:     open,
		handlers: defaultHandlers(),
		logger:   log.WithComponent("persistence-worker"),
		inbox:    make(chan Request, 64),
		events:   make(chan Event, 256),
		stopped:  make(chan struct{}),
	}
}

// SQLiteOpener returns an Opener for a database file at path.
func SQLiteOpener(path string) Opener {
	return func(ctx context.Context) (*catalog.Store, error) {
		db, err := sqlite.Open(path, sqlite.DefaultConfig())
		if err != nil {
			return nil, err
		}
		return catalog.NewStore(db), nil
	}
}

// Start launches the worker loop.
func (w *Worker) Start() {
	go w.loop()
}

// Post queues req for the worker. It fails once the worker has exited.
func (w *Worker) Post(ctx context.Context, req Request) error {
	select {
	case <-w.stopped:
		return ErrWorkerExited
	default:
	}
	select {
	case w.inbox <- req:
		return nil
	case <-w.stopped:
		return ErrWorkerExited
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the stream of responses, error and exit events.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Done is closed when the worker loop has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.stopped
}

func (w *Worker) loop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for req := range w.inbox {
		resp, exit, crash := w.process(ctx, req)
		if crash != nil {
			w.logger.Error().Err(crash).Str(log.FieldCorrelationID, req.ID).Str(log.FieldOpType, string(req.Type)).Msg("worker crashed")
			w.closeStore()
			w.emit(Event{Kind: EventError, Err: crash})
			w.exit(crash)
			return
		}
		w.emit(Event{Kind: EventMessage, Response: resp})
		if exit {
			w.exit(nil)
			return
		}
	}
}

func (w *Worker) exit(reason error) {
	w.stopOnce.Do(func() {
		close(w.stopped)
		w.emit(Event{Kind: EventExit, Err: reason})
		close(w.events)
	})
}

func (w *Worker) emit(ev Event) {
	w.events <- ev
}

// process runs one request. A panic inside a handler is converted into a
// crash: the worker reports it and stops, like a dying thread would.
func (w *Worker) process(ctx context.Context, req Request) (resp Response, exit bool, crash error) {
	defer func() {
		if r := recover(); r != nil {
			crash = fmt.Errorf("panic in %s: %v", req.Type, r)
			w.logger.Debug().Bytes("stack", debug.Stack()).Msg("worker panic stack")
		}
	}()

	resp.ID = req.ID
	switch req.Type {
	case OpInit:
		resp.Result = w.handleInit(ctx)
		return resp, false, nil
	case OpClose:
		w.closeStore()
		resp.Result = Result{Success: true}
		return resp, true, nil
	}

	h, ok := w.handlers[req.Type]
	if !ok {
		resp.Result = failure(fmt.Errorf("%w: %s", ErrUnknownOperation, req.Type))
		return resp, false, nil
	}
	if w.store == nil {
		resp.Result = failure(ErrNotInitialized)
		return resp, false, nil
	}

	data, err := h(ctx, w.store, req.Payload)
	if err != nil {
		w.logger.Debug().Err(err).Str(log.FieldCorrelationID, req.ID).Str(log.FieldOpType, string(req.Type)).Msg("operation failed")
		resp.Result = failure(err)
		return resp, false, nil
	}
	resp.Result = Result{Success: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			resp.Result = failure(fmt.Errorf("encode result: %w", err))
			return resp, false, nil
		}
		resp.Result.Data = raw
	}
	return resp, false, nil
}

func (w *Worker) handleInit(ctx context.Context) Result {
	if w.store != nil {
		return Result{Success: true}
	}
	store, err := w.open(ctx)
	if err != nil {
		return failure(fmt.Errorf("open store: %w", err))
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return failure(fmt.Errorf("migrate: %w", err))
	}
	issues, err := sqlite.QuickCheck(ctx, store.DB())
	if err != nil {
		_ = store.Close()
		return failure(err)
	}
	if len(issues) > 0 {
		_ = store.Close()
		return failure(fmt.Errorf("database integrity check failed: %v", issues))
	}
	w.store = store
	w.logger.Info().Str(log.FieldEvent, "worker.ready").Msg("persistence worker initialized")
	return Result{Success: true}
}

func (w *Worker) closeStore() {
	if w.store == nil {
		return
	}
	if err := w.store.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("close store")
	}
	w.store = nil
}

func failure(err error) Result {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Result{Success: false, Error: err.Error()}
}
