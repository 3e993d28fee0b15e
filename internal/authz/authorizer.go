// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package authz decides whether a requested path may be served. A local
// path is allowed only when its fully resolved location lies inside the
// resolved location of an active media root. Virtual cloud references are
// allowed by format alone and never touch the filesystem.
package authz

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
	"github.com/ManuGH/reelvault/internal/platform/fs"
)

// DeniedMessage is the only text a denial ever carries.
const DeniedMessage = "Access denied"

// Decision is the outcome of one authorization check.
type Decision struct {
	IsAllowed bool   `json:"isAllowed"`
	RealPath  string `json:"realPath,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RootSource supplies the active media roots. An unavailable source must
// return an empty list, which denies every local path.
type RootSource interface {
	ActiveRoots(ctx context.Context) []catalog.Root
}

// Authorizer validates paths against the active roots.
type Authorizer struct {
	roots  RootSource
	logger zerolog.Logger
}

// New returns an Authorizer backed by roots.
func New(roots RootSource) *Authorizer {
	return &Authorizer{roots: roots, logger: log.WithComponent("authz")}
}

// Authorize never fails; every problem becomes a denial.
func (a *Authorizer) Authorize(ctx context.Context, requested string) Decision {
	if IsVirtual(requested) {
		return a.authorizeVirtual(requested)
	}
	resolved, ok := a.resolve(ctx, requested)
	if !ok {
		return denied()
	}
	return a.check(ctx, requested, resolved, a.resolvedRoots(ctx))
}

// FilterAuthorized returns the allowed subset of paths in input order.
func (a *Authorizer) FilterAuthorized(ctx context.Context, paths []string) []string {
	out := make([]string, 0, len(paths))
	for i, d := range a.AuthorizeAll(ctx, paths) {
		if d.IsAllowed {
			out = append(out, paths[i])
		}
	}
	return out
}

// AuthorizeAll decides every path against one snapshot of the roots. The
// result is index-aligned with paths.
func (a *Authorizer) AuthorizeAll(ctx context.Context, paths []string) []Decision {
	out := make([]Decision, len(paths))
	var roots []string
	loaded := false
	for i, p := range paths {
		if IsVirtual(p) {
			out[i] = a.authorizeVirtual(p)
			continue
		}
		resolved, ok := a.resolve(ctx, p)
		if !ok {
			out[i] = denied()
			continue
		}
		if !loaded {
			roots = a.resolvedRoots(ctx)
			loaded = true
		}
		out[i] = a.check(ctx, p, resolved, roots)
	}
	return out
}

func (a *Authorizer) authorizeVirtual(requested string) Decision {
	if _, err := ParseVirtual(requested); err != nil {
		a.logger.Debug().Err(err).Str(log.FieldPath, requested).Msg("malformed virtual path")
		metrics.IncAuthzDecision("denied_malformed_virtual")
		return denied()
	}
	metrics.IncAuthzDecision("allowed_virtual")
	return Decision{IsAllowed: true, RealPath: requested}
}

func (a *Authorizer) resolve(ctx context.Context, requested string) (string, bool) {
	resolved, err := fs.Resolve(requested)
	if err != nil {
		log.FromContext(ctx).Debug().Err(err).Str(log.FieldComponent, "authz").
			Str(log.FieldPath, requested).Msg("path resolution failed")
		metrics.IncAuthzDecision("denied_unresolved")
		return "", false
	}
	return resolved, true
}

// resolvedRoots returns the canonical paths of active local roots. Roots
// that no longer resolve are skipped.
func (a *Authorizer) resolvedRoots(ctx context.Context) []string {
	roots := a.roots.ActiveRoots(ctx)
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if r.SourceKind == catalog.SourceCloud {
			continue
		}
		resolved, err := fs.Resolve(r.Path)
		if err != nil {
			a.logger.Debug().Err(err).Str(log.FieldRoot, r.Path).Msg("skipping unresolvable root")
			continue
		}
		out = append(out, resolved)
	}
	return out
}

func (a *Authorizer) check(ctx context.Context, requested, resolved string, roots []string) Decision {
	if len(roots) == 0 {
		metrics.IncAuthzDecision("denied_no_roots")
		log.FromContext(ctx).Debug().Str(log.FieldComponent, "authz").Str(log.FieldPath, requested).Msg("no active roots")
		return denied()
	}
	for _, root := range roots {
		if fs.Within(root, resolved) {
			metrics.IncAuthzDecision("allowed")
			return Decision{IsAllowed: true, RealPath: resolved}
		}
	}
	metrics.IncAuthzDecision("denied_outside")
	log.FromContext(ctx).Debug().Str(log.FieldComponent, "authz").
		Str(log.FieldPath, requested).Str(log.FieldRealPath, resolved).Msg("path outside active roots")
	return denied()
}

func denied() Decision {
	return Decision{IsAllowed: false, Message: DeniedMessage}
}
