// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/reelvault/internal/catalog"
)

const maxBodyBytes = 1 << 20

type addRootRequest struct {
	Path       string             `json:"path"`
	SourceKind catalog.SourceKind `json:"sourceKind,omitempty"`
}

type credentialRequest struct {
	Secret string `json:"secret"`
}

type pathsRequest struct {
	Paths []string `json:"paths"`
}

// decodeBody strictly decodes a JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, r, Problem{Type: "request/too_large", Title: "Payload Too Large", Status: http.StatusRequestEntityTooLarge, Code: "BODY_TOO_LARGE"})
			return false
		}
		badRequest(w, r, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) handleListRoots(w http.ResponseWriter, r *http.Request) {
	roots := s.svc.ListRoots(r.Context())
	if roots == nil {
		roots = []catalog.Root{}
	}
	writeJSON(w, http.StatusOK, map[string][]catalog.Root{"roots": roots})
}

func (s *Server) handleAddRoot(w http.ResponseWriter, r *http.Request) {
	var req addRootRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SourceKind != "" && !req.SourceKind.Valid() {
		badRequest(w, r, fmt.Sprintf("unknown sourceKind %q", req.SourceKind))
		return
	}
	root, err := s.svc.AddRoot(r.Context(), req.Path, req.SourceKind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, root)
}

func (s *Server) handleRemoveRoot(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveRoot(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRootActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		root, err := s.svc.SetRootActive(r.Context(), chi.URLParam(r, "id"), active)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, root)
	}
}

func (s *Server) handleViewCounts(w http.ResponseWriter, r *http.Request) {
	var req pathsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[string]int64{"counts": s.svc.ViewCounts(r.Context(), req.Paths)})
}

func (s *Server) handleFilterAuthorized(w http.ResponseWriter, r *http.Request) {
	var req pathsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	paths := s.svc.FilterAuthorized(r.Context(), req.Paths)
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"paths": paths})
}

// handleStoreCredential seals and stores a provider secret. The plaintext
// is never returned by the API.
func (s *Server) handleStoreCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.svc.StoreCredential(r.Context(), chi.URLParam(r, "provider"), req.Secret); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	_, ok := s.svc.LoadCredential(r.Context(), provider)
	writeJSON(w, http.StatusOK, map[string]any{"provider": provider, "configured": ok})
}
