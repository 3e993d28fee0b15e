// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the media façade over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/media"
)

// MediaService is the façade the handlers call.
type MediaService interface {
	StaticFile(ctx context.Context, path string) (media.StaticResult, error)
	Metadata(ctx context.Context, path string) (*media.Metadata, error)
	Thumbnail(ctx context.Context, path string) (string, error)
	Heatmap(ctx context.Context, path string) (media.HeatmapResult, error)
	HeatmapProgress(ctx context.Context, path string) (*float64, error)
	HLSMaster(ctx context.Context, path string) (string, error)
	HLSPlaylist(ctx context.Context, path string) (string, error)
	HLSSegment(ctx context.Context, path, name string) (string, func(), error)
	FilterAuthorized(ctx context.Context, paths []string) []string
	ViewCounts(ctx context.Context, paths []string) map[string]int64
	ListRoots(ctx context.Context) []catalog.Root
	AddRoot(ctx context.Context, path string, kind catalog.SourceKind) (catalog.Root, error)
	RemoveRoot(ctx context.Context, id string) error
	SetRootActive(ctx context.Context, id string, active bool) (catalog.Root, error)
	StoreCredential(ctx context.Context, provider, secret string) error
	LoadCredential(ctx context.Context, provider string) (string, bool)
}

// Config tunes the router.
type Config struct {
	// ServiceName names server spans; empty disables tracing.
	ServiceName string
	// RateLimitRequests per RateLimitWindow per client IP; zero disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// Ready reports readiness for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server routes HTTP requests to a MediaService.
type Server struct {
	svc MediaService
	cfg Config
}

func New(svc MediaService, cfg Config) *Server {
	return &Server{svc: svc, cfg: cfg}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(securityHeaders)
	r.Use(httpMetrics)
	r.Use(log.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.ServiceName != "" {
			r.Use(tracing(s.cfg.ServiceName))
		}
		if s.cfg.RateLimitRequests > 0 && s.cfg.RateLimitWindow > 0 {
			r.Use(rateLimit(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
		}

		r.Get("/media/{kind}", s.handleMedia)

		r.Get("/hls/master.m3u8", s.handleHLSMaster)
		r.Get("/hls/index.m3u8", s.handleHLSPlaylist)
		r.Get("/hls/seg/{name}", s.handleHLSSegment)

		r.Get("/roots", s.handleListRoots)
		r.Post("/roots", s.handleAddRoot)
		r.Delete("/roots/{id}", s.handleRemoveRoot)
		r.Post("/roots/{id}/activate", s.handleSetRootActive(true))
		r.Post("/roots/{id}/deactivate", s.handleSetRootActive(false))

		r.Get("/credentials/{provider}", s.handleCredentialStatus)
		r.Put("/credentials/{provider}", s.handleStoreCredential)

		r.Post("/views", s.handleViewCounts)
		r.Post("/authorized", s.handleFilterAuthorized)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, Problem{Type: "system/not_found", Title: "Not Found", Status: http.StatusNotFound, Code: "NOT_FOUND"})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		if err := s.cfg.Ready(r.Context()); err != nil {
			writeProblem(w, r, Problem{Type: "system/unavailable", Title: "Service Unavailable", Status: http.StatusServiceUnavailable, Code: "NOT_READY", Detail: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
