// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
)

const playlistContentType = "application/vnd.apple.mpegurl"

func (s *Server) handleHLSMaster(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	file, err := s.svc.HLSMaster(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.servePlaylist(w, r, file, path)
}

func (s *Server) handleHLSPlaylist(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	file, err := s.svc.HLSPlaylist(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.servePlaylist(w, r, file, path)
}

func (s *Server) handleHLSSegment(w http.ResponseWriter, r *http.Request) {
	path, ok := pathParam(w, r)
	if !ok {
		return
	}
	file, release, err := s.svc.HLSSegment(r.Context(), path, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer release()
	w.Header().Set("Content-Type", "video/mp2t")
	http.ServeFile(w, r, file)
}

// servePlaylist writes the playlist with every URI rewritten to this API,
// carrying the source path along.
func (s *Server) servePlaylist(w http.ResponseWriter, r *http.Request, file, source string) {
	f, err := os.Open(file) // #nosec G304 -- file comes from the session directory
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	if err := rewritePlaylist(&buf, f, source); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// rewritePlaylist maps URI lines to API routes relative to /api/hls/:
// nested playlists become index.m3u8, segments become seg/<name>.
func rewritePlaylist(dst io.Writer, src io.Reader, source string) error {
	q := "?path=" + url.QueryEscape(source)
	sc := bufio.NewScanner(src)
	bw := bufio.NewWriter(dst)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case strings.HasSuffix(line, ".m3u8"):
			line = "index.m3u8" + q
		default:
			line = "seg/" + url.PathEscape(line[strings.LastIndex(line, "/")+1:]) + q
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return bw.Flush()
}
