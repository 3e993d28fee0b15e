// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuGH/reelvault/internal/authz"
	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/session"
)

var (
	// ErrVirtualUnsupported is returned when a cloud path needs a resolver
	// and none is configured, or the request kind cannot apply to it.
	ErrVirtualUnsupported = errors.New("virtual paths are not supported for this request")
	// ErrInvalidSegment is returned for segment names outside the session layout.
	ErrInvalidSegment = errors.New("invalid segment name")
	// ErrNotFound is returned when an authorized resource does not exist yet.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredential rejects a malformed provider name or empty secret.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrDenied matches every *DeniedError.
	ErrDenied = errors.New(authz.DeniedMessage)
)

// DeniedError is the only failure a rejected path produces. Its message
// carries no detail about why.
type DeniedError struct {
	Path string
}

func (e *DeniedError) Error() string { return authz.DeniedMessage }

func (e *DeniedError) Is(target error) bool { return target == ErrDenied }

// Kind classifies a request for tracing and metrics.
type Kind string

const (
	KindMetadata        Kind = "metadata"
	KindThumbnail       Kind = "thumbnail"
	KindHeatmap         Kind = "heatmap"
	KindHeatmapProgress Kind = "heatmap-progress"
	KindHLSMaster       Kind = "hls-master"
	KindHLSPlaylist     Kind = "hls-playlist"
	KindHLSSegment      Kind = "hls-segment"
	KindStatic          Kind = "static"
)

// VirtualFile is the descriptor a cloud provider resolves a reference to.
type VirtualFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// VirtualResolver turns cloud references into fetchable descriptors.
type VirtualResolver interface {
	Resolve(ctx context.Context, ref authz.VirtualRef) (VirtualFile, error)
}

// Authorizer is the path gate.
type Authorizer interface {
	Authorize(ctx context.Context, requested string) authz.Decision
	FilterAuthorized(ctx context.Context, paths []string) []string
	AuthorizeAll(ctx context.Context, paths []string) []authz.Decision
}

// Sessions is the transcode session registry.
type Sessions interface {
	EnsureSession(ctx context.Context, src string) (*session.Session, error)
	TouchSession(src string) bool
	Acquire(src string) (release func(), ok bool)
}

// Heatmaps is the heatmap job registry.
type Heatmaps interface {
	Generate(ctx context.Context, src string) (*session.Job, bool)
	Progress(src string) *float64
	Result(src string) (*session.Heatmap, bool)
}

// Catalog is the persistence surface, backed by the worker channel.
type Catalog interface {
	ListRoots(ctx context.Context) []catalog.Root
	AddRoot(ctx context.Context, path string, kind catalog.SourceKind) (catalog.Root, error)
	RemoveRoot(ctx context.Context, id string) error
	SetRootActive(ctx context.Context, id string, active bool) (catalog.Root, error)
	RecordView(ctx context.Context, path string, at time.Time) error
	ViewCounts(ctx context.Context, paths []string) map[string]int64
	SaveMetadata(ctx context.Context, path string, doc json.RawMessage) error
	GetMetadata(ctx context.Context, path string) (json.RawMessage, bool)
	SaveCredential(ctx context.Context, provider, secret string) error
	GetCredential(ctx context.Context, provider string) (string, bool)
}

// SecretSealer encrypts credentials at rest.
type SecretSealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(wire string) string
}

// StaticResult is what a static serve resolves to: a local file or a
// virtual descriptor.
type StaticResult struct {
	Path    string       `json:"path,omitempty"`
	Virtual *VirtualFile `json:"virtual,omitempty"`
}

// HeatmapResult is either a finished heatmap or a pending job.
type HeatmapResult struct {
	Heatmap  *session.Heatmap `json:"heatmap,omitempty"`
	Pending  bool             `json:"pending"`
	Progress *float64         `json:"progress,omitempty"`
}
