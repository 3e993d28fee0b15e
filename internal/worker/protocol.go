// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package worker isolates every storage operation in a dedicated goroutine.
//
// The Worker owns the catalog store exclusively. The controller side
// (Channel) reaches it only through correlated request/response messages
// whose payloads are JSON documents, so no mutable state crosses the
// boundary. A Channel keeps one pending record per in-flight request and
// resolves each exactly once: on the matching response, on a worker error or
// exit event, on timeout, or on caller cancellation, whichever comes first.
package worker

import (
	"encoding/json"
	"time"

	"github.com/ManuGH/reelvault/internal/catalog"
)

// OpType names a worker operation.
type OpType string

const (
	OpInit  OpType = "init"
	OpClose OpType = "close"

	OpRootsList      OpType = "roots.list"
	OpRootsActive    OpType = "roots.active"
	OpRootsAdd       OpType = "roots.add"
	OpRootsRemove    OpType = "roots.remove"
	OpRootsSetActive OpType = "roots.set_active"

	OpViewsRecord OpType = "views.record"
	OpViewsCounts OpType = "views.counts"

	OpMetadataSave OpType = "metadata.save"
	OpMetadataGet  OpType = "metadata.get"

	OpCredentialsSave OpType = "credentials.save"
	OpCredentialsGet  OpType = "credentials.get"
)

// Category decides how a failed operation is surfaced to its caller.
type Category int

const (
	// CategoryLifecycle operations (init, close) always report failure.
	CategoryLifecycle Category = iota
	// CategoryRead operations degrade to their empty/default value.
	CategoryRead
	// CategoryMutation operations reject with an explicit error.
	CategoryMutation
)

func (c Category) String() string {
	switch c {
	case CategoryLifecycle:
		return "lifecycle"
	case CategoryRead:
		return "read"
	case CategoryMutation:
		return "mutation"
	default:
		return "unknown"
	}
}

var categories = map[OpType]Category{
	OpInit:            CategoryLifecycle,
	OpClose:           CategoryLifecycle,
	OpRootsList:       CategoryRead,
	OpRootsActive:     CategoryRead,
	OpRootsAdd:        CategoryMutation,
	OpRootsRemove:     CategoryMutation,
	OpRootsSetActive:  CategoryMutation,
	OpViewsRecord:     CategoryMutation,
	OpViewsCounts:     CategoryRead,
	OpMetadataSave:    CategoryMutation,
	OpMetadataGet:     CategoryRead,
	OpCredentialsSave: CategoryMutation,
	OpCredentialsGet:  CategoryRead,
}

// Category returns the failure category of t. Unknown operations are
// treated as mutations so that failures are never silently swallowed.
func (t OpType) Category() Category {
	if c, ok := categories[t]; ok {
		return c
	}
	return CategoryMutation
}

// Request is a controller-to-worker message.
type Request struct {
	ID      string          `json:"id"`
	Type    OpType          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Result carries the outcome of one request.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Response is a worker-to-controller message. ID is the sole correlation key.
type Response struct {
	ID     string `json:"id"`
	Result Result `json:"result"`
}

// EventKind classifies what the worker emitted.
type EventKind int

const (
	EventMessage EventKind = iota
	EventError
	EventExit
)

// Event is everything the controller can observe from a worker.
type Event struct {
	Kind     EventKind
	Response Response // EventMessage
	Err      error    // EventError, and EventExit when the exit was abnormal
}

// Payloads.

type AddRootPayload struct {
	Path       string             `json:"path"`
	SourceKind catalog.SourceKind `json:"sourceKind,omitempty"`
}

type RootIDPayload struct {
	ID string `json:"id"`
}

type SetRootActivePayload struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

type RecordViewPayload struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

type ViewCountsPayload struct {
	Paths []string `json:"paths"`
}

type SaveMetadataPayload struct {
	Path string          `json:"path"`
	Doc  json.RawMessage `json:"doc"`
}

type PathPayload struct {
	Path string `json:"path"`
}

type SaveCredentialPayload struct {
	Provider string `json:"provider"`
	Secret   string `json:"secret"`
}

type ProviderPayload struct {
	Provider string `json:"provider"`
}

type MetadataResult struct {
	Doc   json.RawMessage `json:"doc,omitempty"`
	Found bool            `json:"found"`
}

type CredentialResult struct {
	Secret string `json:"secret,omitempty"`
	Found  bool   `json:"found"`
}
