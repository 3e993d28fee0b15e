// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ManuGH/reelvault/internal/authz"
	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/media"
	"github.com/ManuGH/reelvault/internal/session"
	"github.com/ManuGH/reelvault/internal/worker"
)

// HeaderRequestID carries the request id on every response.
const HeaderRequestID = "X-Request-ID"

// Problem is an RFC 7807 problem details body. Code is a stable
// machine-readable short code.
type Problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, p Problem) {
	p.Instance = r.URL.EscapedPath()
	p.RequestID = middleware.GetReqID(r.Context())
	if p.RequestID != "" {
		w.Header().Set(HeaderRequestID, p.RequestID)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.FromContext(r.Context()).Error().Err(err).Str("type", p.Type).Msg("failed to encode problem response")
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, Problem{Type: "request/invalid", Title: "Bad Request", Status: http.StatusBadRequest, Code: "INVALID_INPUT", Detail: detail})
}

// writeError maps a service error to its problem. Denials carry the fixed
// message only; server-side failures are logged, not echoed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	if p.Status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).Error().Err(err).Str("code", p.Code).Msg("request failed")
	}
	writeProblem(w, r, p)
}

func problemFor(err error) Problem {
	var perr *session.ProvisionError
	switch {
	case errors.Is(err, media.ErrDenied):
		return Problem{Type: "media/denied", Title: "Forbidden", Status: http.StatusForbidden, Code: "ACCESS_DENIED", Detail: authz.DeniedMessage}
	case errors.Is(err, media.ErrInvalidSegment):
		return Problem{Type: "hls/invalid_segment", Title: "Bad Request", Status: http.StatusBadRequest, Code: "INVALID_SEGMENT", Detail: err.Error()}
	case errors.Is(err, media.ErrNotFound), errors.Is(err, catalog.ErrRootNotFound):
		return Problem{Type: "system/not_found", Title: "Not Found", Status: http.StatusNotFound, Code: "NOT_FOUND", Detail: err.Error()}
	case errors.Is(err, media.ErrVirtualUnsupported):
		return Problem{Type: "media/virtual_unsupported", Title: "Unprocessable Entity", Status: http.StatusUnprocessableEntity, Code: "VIRTUAL_UNSUPPORTED", Detail: err.Error()}
	case errors.Is(err, catalog.ErrDuplicateRoot):
		return Problem{Type: "roots/duplicate", Title: "Conflict", Status: http.StatusConflict, Code: "DUPLICATE_ROOT", Detail: err.Error()}
	case errors.Is(err, media.ErrInvalidCredential):
		return Problem{Type: "credentials/invalid", Title: "Bad Request", Status: http.StatusBadRequest, Code: "INVALID_CREDENTIAL", Detail: err.Error()}
	case errors.Is(err, catalog.ErrInvalidRoot):
		return Problem{Type: "roots/invalid", Title: "Bad Request", Status: http.StatusBadRequest, Code: "INVALID_ROOT", Detail: err.Error()}
	case errors.As(err, &perr) && perr.Reason == "ready_timeout":
		return Problem{Type: "hls/not_ready", Title: "Gateway Timeout", Status: http.StatusGatewayTimeout, Code: "TRANSCODE_NOT_READY", Detail: provisionDetail(perr.Reason)}
	case errors.As(err, &perr):
		return Problem{Type: "hls/transcode_failed", Title: "Bad Gateway", Status: http.StatusBadGateway, Code: "TRANSCODE_FAILED", Detail: provisionDetail(perr.Reason)}
	case errors.Is(err, session.ErrShutdown), errors.Is(err, worker.ErrWorkerExited), errors.Is(err, worker.ErrTimeout):
		return Problem{Type: "system/unavailable", Title: "Service Unavailable", Status: http.StatusServiceUnavailable, Code: "UNAVAILABLE"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Problem{Type: "system/canceled", Title: "Service Unavailable", Status: http.StatusServiceUnavailable, Code: "CANCELED"}
	}
	return Problem{Type: "system/internal", Title: "Internal Server Error", Status: http.StatusInternalServerError, Code: "INTERNAL"}
}

// provisionDetail describes a provisioning failure by its reason only; the
// wrapped error may name server paths.
func provisionDetail(reason string) string {
	switch reason {
	case "ready_timeout":
		return "transcoder produced no playlist in time (ready_timeout)"
	case "start":
		return "transcoder could not be started (start)"
	case "io":
		return "session directory could not be prepared (io)"
	case "":
		return "transcoding failed"
	}
	return "transcoding failed (" + reason + ")"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
