// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media is the single entry point for serving library content.
// Every request is authorized first; an approved request is answered from
// the file itself, from a transcode session, or from an analysis job, and
// successful plays are counted without ever delaying the answer.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/reelvault/internal/authz"
	"github.com/ManuGH/reelvault/internal/cache"
	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
	"github.com/ManuGH/reelvault/internal/platform/fs"
	"github.com/ManuGH/reelvault/internal/session"
	"github.com/ManuGH/reelvault/internal/telemetry"
)

var segmentName = regexp.MustCompile(`^seg_[0-9]{5,}\.ts$`)

// Deps are the collaborators of a Service. Virtual and Cache are optional.
type Deps struct {
	Authorizer  Authorizer
	Sessions    Sessions
	Heatmaps    Heatmaps
	Catalog     Catalog
	Secrets     SecretSealer
	Usage       *UsageRecorder
	Thumbnails  *Thumbnailer
	Cache       cache.Cache
	Virtual     VirtualResolver
	MetadataTTL time.Duration
}

// Service implements the media access operations.
type Service struct {
	deps   Deps
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewService wires a Service.
func NewService(deps Deps) *Service {
	if deps.MetadataTTL <= 0 {
		deps.MetadataTTL = time.Hour
	}
	return &Service{
		deps:   deps,
		tracer: telemetry.Tracer("github.com/ManuGH/reelvault/internal/media"),
		logger: log.WithComponent("media"),
	}
}

func (s *Service) start(ctx context.Context, kind Kind, path string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "media."+string(kind), trace.WithAttributes(telemetry.MediaAttributes(string(kind), path)...))
}

func (s *Service) finish(span trace.Span, kind Kind, err error) {
	outcome, errType := "ok", ""
	switch {
	case err == nil:
	case errors.Is(err, ErrDenied):
		outcome, errType = "denied", "denied"
		span.SetStatus(codes.Error, authz.DeniedMessage)
	default:
		outcome, errType = "error", errorType(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(telemetry.OutcomeAttributes(outcome, errType)...)
	metrics.IncMediaRequest(string(kind), outcome)
	span.End()
}

func errorType(err error) string {
	var perr *session.ProvisionError
	switch {
	case errors.As(err, &perr):
		return "provision_" + perr.Reason
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSegment):
		return "invalid_segment"
	case errors.Is(err, ErrVirtualUnsupported):
		return "virtual_unsupported"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "internal"
}

// authorize returns the resolved path or a *DeniedError.
func (s *Service) authorize(ctx context.Context, path string) (string, error) {
	d := s.deps.Authorizer.Authorize(ctx, path)
	if !d.IsAllowed {
		return "", &DeniedError{Path: path}
	}
	return d.RealPath, nil
}

func (s *Service) resolveVirtual(ctx context.Context, path string) (*VirtualFile, error) {
	if s.deps.Virtual == nil {
		return nil, ErrVirtualUnsupported
	}
	ref, err := authz.ParseVirtual(path)
	if err != nil {
		return nil, &DeniedError{Path: path}
	}
	vf, err := s.deps.Virtual.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return &vf, nil
}

func (s *Service) recordUsage(path string) {
	if s.deps.Usage != nil {
		s.deps.Usage.Record(path)
	}
}

// StaticFile resolves path for direct serving.
func (s *Service) StaticFile(ctx context.Context, path string) (res StaticResult, err error) {
	ctx, span := s.start(ctx, KindStatic, path)
	defer func() { s.finish(span, KindStatic, err) }()

	realPath, err := s.authorize(ctx, path)
	if err != nil {
		return StaticResult{}, err
	}
	if authz.IsVirtual(realPath) {
		vf, err := s.resolveVirtual(ctx, realPath)
		if err != nil {
			return StaticResult{}, err
		}
		s.recordUsage(realPath)
		return StaticResult{Virtual: vf}, nil
	}
	if fs.IsRegularFile(realPath) != nil {
		return StaticResult{}, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(realPath))
	}
	s.recordUsage(realPath)
	return StaticResult{Path: realPath}, nil
}

// Metadata returns the description of path. Results are cached and
// persisted; a stale persisted copy (file changed since) is re-extracted.
func (s *Service) Metadata(ctx context.Context, path string) (md *Metadata, err error) {
	ctx, span := s.start(ctx, KindMetadata, path)
	defer func() { s.finish(span, KindMetadata, err) }()

	realPath, err := s.authorize(ctx, path)
	if err != nil {
		return nil, err
	}
	if authz.IsVirtual(realPath) {
		vf, err := s.resolveVirtual(ctx, realPath)
		if err != nil {
			return nil, err
		}
		return &Metadata{Path: realPath, Name: vf.Name, Class: Classify(vf.Name), MIMEType: vf.MIMEType, Size: vf.Size, Virtual: true}, nil
	}

	info, err := os.Stat(realPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(realPath))
	}
	modTime := info.ModTime().UTC().Truncate(time.Second)
	key := "meta:" + realPath

	if s.deps.Cache != nil {
		if raw, ok := s.deps.Cache.Get(ctx, key); ok {
			if cached, ok := decodeFresh(raw, modTime); ok {
				span.SetAttributes(attribute.String(telemetry.MetadataSourceKey, "cache"))
				return cached, nil
			}
		}
	}
	if raw, ok := s.deps.Catalog.GetMetadata(ctx, realPath); ok {
		if stored, ok := decodeFresh(raw, modTime); ok {
			span.SetAttributes(attribute.String(telemetry.MetadataSourceKey, "catalog"))
			s.cacheMetadata(ctx, key, raw)
			return stored, nil
		}
	}

	md, err = ExtractMetadata(realPath)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.MetadataSourceKey, "extract"))
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	s.cacheMetadata(ctx, key, raw)
	if err := s.deps.Catalog.SaveMetadata(ctx, realPath, raw); err != nil {
		log.FromContext(ctx).Warn().Err(err).Str(log.FieldPath, realPath).Msg("metadata not persisted")
	}
	return md, nil
}

func (s *Service) cacheMetadata(ctx context.Context, key string, raw []byte) {
	if s.deps.Cache != nil {
		s.deps.Cache.Set(ctx, key, raw, s.deps.MetadataTTL)
	}
}

func decodeFresh(raw []byte, modTime time.Time) (*Metadata, bool) {
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, false
	}
	if !md.ModTime.Equal(modTime) {
		return nil, false
	}
	return &md, true
}

// Thumbnail returns the path of a preview image for path.
func (s *Service) Thumbnail(ctx context.Context, path string) (thumb string, err error) {
	ctx, span := s.start(ctx, KindThumbnail, path)
	defer func() { s.finish(span, KindThumbnail, err) }()

	realPath, err := s.authorize(ctx, path)
	if err != nil {
		return "", err
	}
	if authz.IsVirtual(realPath) {
		return "", ErrVirtualUnsupported
	}
	if s.deps.Thumbnails == nil {
		return realPath, nil
	}
	return s.deps.Thumbnails.Thumbnail(ctx, realPath)
}

// Heatmap returns the finished heatmap for path or starts computing it.
func (s *Service) Heatmap(ctx context.Context, path string) (res HeatmapResult, err error) {
	ctx, span := s.start(ctx, KindHeatmap, path)
	defer func() { s.finish(span, KindHeatmap, err) }()

	realPath, err := s.authorize(ctx, path)
	if err != nil {
		return HeatmapResult{}, err
	}
	if authz.IsVirtual(realPath) {
		return HeatmapResult{}, ErrVirtualUnsupported
	}
	if hm, ok := s.deps.Heatmaps.Result(realPath); ok {
		return HeatmapResult{Heatmap: hm}, nil
	}
	job, started := s.deps.Heatmaps.Generate(ctx, realPath)
	if job == nil {
		return HeatmapResult{}, ctx.Err()
	}
	span.SetAttributes(attribute.Bool(telemetry.HeatmapStartedKey, started))
	p := job.Progress()
	return HeatmapResult{Pending: true, Progress: &p}, nil
}

// HeatmapProgress reports the running job's percentage, nil when idle.
func (s *Service) HeatmapProgress(ctx context.Context, path string) (p *float64, err error) {
	ctx, span := s.start(ctx, KindHeatmapProgress, path)
	defer func() { s.finish(span, KindHeatmapProgress, err) }()

	realPath, err := s.authorize(ctx, path)
	if err != nil {
		return nil, err
	}
	if authz.IsVirtual(realPath) {
		return nil, ErrVirtualUnsupported
	}
	return s.deps.Heatmaps.Progress(realPath), nil
}

func (s *Service) ensureSession(ctx context.Context, path string) (*session.Session, error) {
	realPath, err := s.authorize(ctx, path)
	if err != nil {
		return nil, err
	}
	if authz.IsVirtual(realPath) {
		return nil, ErrVirtualUnsupported
	}
	sess, err := s.deps.Sessions.EnsureSession(ctx, realPath)
	if err != nil {
		return nil, err
	}
	s.deps.Sessions.TouchSession(realPath)
	trace.SpanFromContext(ctx).SetAttributes(telemetry.SessionAttributes(sess.Key)...)
	return sess, nil
}

// HLSMaster returns the master playlist of the session for path and
// counts a view.
func (s *Service) HLSMaster(ctx context.Context, path string) (file string, err error) {
	ctx, span := s.start(ctx, KindHLSMaster, path)
	defer func() { s.finish(span, KindHLSMaster, err) }()

	sess, err := s.ensureSession(ctx, path)
	if err != nil {
		return "", err
	}
	s.recordUsage(sess.SourcePath)
	if fs.IsRegularFile(sess.MasterPlaylist()) == nil {
		return sess.MasterPlaylist(), nil
	}
	return sess.VariantPlaylist(), nil
}

// HLSPlaylist returns the variant playlist of the session for path.
func (s *Service) HLSPlaylist(ctx context.Context, path string) (file string, err error) {
	ctx, span := s.start(ctx, KindHLSPlaylist, path)
	defer func() { s.finish(span, KindHLSPlaylist, err) }()

	sess, err := s.ensureSession(ctx, path)
	if err != nil {
		return "", err
	}
	return sess.VariantPlaylist(), nil
}

// HLSSegment resolves a segment of the session for path. The session is
// held until release is called, so it cannot be reclaimed mid-transfer.
func (s *Service) HLSSegment(ctx context.Context, path, name string) (file string, release func(), err error) {
	ctx, span := s.start(ctx, KindHLSSegment, path)
	defer func() { s.finish(span, KindHLSSegment, err) }()

	if !segmentName.MatchString(name) {
		return "", nil, ErrInvalidSegment
	}
	sess, err := s.ensureSession(ctx, path)
	if err != nil {
		return "", nil, err
	}
	file, err = fs.ConfineRelPath(sess.Dir, name)
	if err != nil {
		return "", nil, ErrInvalidSegment
	}
	if fs.IsRegularFile(file) != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	release, ok := s.deps.Sessions.Acquire(sess.SourcePath)
	if !ok {
		logger := log.WithContext(log.ContextWithSessionKey(ctx, sess.Key), s.logger)
		logger.Debug().Str("segment", name).Msg("session reclaimed before segment read")
		return "", nil, fmt.Errorf("%w: session reclaimed", ErrNotFound)
	}
	return file, release, nil
}

// FilterAuthorized returns the servable subset of paths in input order.
func (s *Service) FilterAuthorized(ctx context.Context, paths []string) []string {
	return s.deps.Authorizer.FilterAuthorized(ctx, paths)
}

// ViewCounts returns counts for the authorized subset of paths, keyed by
// the requested path. Views are stored under resolved paths.
func (s *Service) ViewCounts(ctx context.Context, paths []string) map[string]int64 {
	decisions := s.deps.Authorizer.AuthorizeAll(ctx, paths)
	resolved := make([]string, 0, len(paths))
	back := make(map[string][]string, len(paths))
	for i, d := range decisions {
		if !d.IsAllowed {
			continue
		}
		if _, seen := back[d.RealPath]; !seen {
			resolved = append(resolved, d.RealPath)
		}
		back[d.RealPath] = append(back[d.RealPath], paths[i])
	}
	out := make(map[string]int64, len(resolved))
	if len(resolved) == 0 {
		return out
	}
	for rp, n := range s.deps.Catalog.ViewCounts(ctx, resolved) {
		for _, p := range back[rp] {
			out[p] = n
		}
	}
	return out
}

// ListRoots returns every configured root.
func (s *Service) ListRoots(ctx context.Context) []catalog.Root {
	return s.deps.Catalog.ListRoots(ctx)
}

// AddRoot registers a root. Local roots must be existing directories.
func (s *Service) AddRoot(ctx context.Context, path string, kind catalog.SourceKind) (catalog.Root, error) {
	if kind == "" {
		kind = catalog.SourceLocal
	}
	if kind == catalog.SourceLocal {
		resolved, err := fs.Resolve(path)
		if err != nil {
			return catalog.Root{}, fmt.Errorf("%w: %v", catalog.ErrInvalidRoot, err)
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.IsDir() {
			return catalog.Root{}, fmt.Errorf("%w: not a directory", catalog.ErrInvalidRoot)
		}
	}
	root, err := s.deps.Catalog.AddRoot(ctx, path, kind)
	if err != nil {
		return catalog.Root{}, err
	}
	s.logger.Info().Str(log.FieldRoot, root.Path).Str(log.FieldKind, string(kind)).Msg("media root added")
	return root, nil
}

func (s *Service) RemoveRoot(ctx context.Context, id string) error {
	return s.deps.Catalog.RemoveRoot(ctx, id)
}

func (s *Service) SetRootActive(ctx context.Context, id string, active bool) (catalog.Root, error) {
	return s.deps.Catalog.SetRootActive(ctx, id, active)
}

// StoreCredential seals secret and persists it for provider.
func (s *Service) StoreCredential(ctx context.Context, provider, secret string) error {
	if !authz.ValidProvider(provider) {
		return fmt.Errorf("%w: provider %q", ErrInvalidCredential, provider)
	}
	if secret == "" {
		return fmt.Errorf("%w: empty secret", ErrInvalidCredential)
	}
	sealed, err := s.deps.Secrets.Encrypt(secret)
	if err != nil {
		return err
	}
	return s.deps.Catalog.SaveCredential(ctx, provider, sealed)
}

// LoadCredential returns the plaintext credential of provider. Values
// stored before encryption was introduced come back unchanged.
func (s *Service) LoadCredential(ctx context.Context, provider string) (string, bool) {
	stored, ok := s.deps.Catalog.GetCredential(ctx, provider)
	if !ok {
		return "", false
	}
	return s.deps.Secrets.Decrypt(stored), true
}
