// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/reelvault/internal/media"
)

// pathParam returns the required ?path= value.
func pathParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.URL.Query().Get("path")
	if p == "" {
		badRequest(w, r, "query parameter path is required")
		return "", false
	}
	return p, true
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch media.Kind(chi.URLParam(r, "kind")) {
	case media.KindStatic:
		res, err := s.svc.StaticFile(ctx, path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if res.Virtual != nil {
			writeJSON(w, http.StatusOK, res.Virtual)
			return
		}
		http.ServeFile(w, r, res.Path)

	case media.KindMetadata:
		md, err := s.svc.Metadata(ctx, path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, md)

	case media.KindThumbnail:
		thumb, err := s.svc.Thumbnail(ctx, path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeFile(w, r, thumb)

	case media.KindHeatmap:
		res, err := s.svc.Heatmap(ctx, path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if res.Pending {
			status = http.StatusAccepted
		}
		writeJSON(w, status, res)

	case media.KindHeatmapProgress:
		p, err := s.svc.HeatmapProgress(ctx, path)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]*float64{"progress": p})

	default:
		writeProblem(w, r, Problem{Type: "system/not_found", Title: "Not Found", Status: http.StatusNotFound, Code: "UNKNOWN_KIND"})
	}
}
