// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/media"
	"github.com/ManuGH/reelvault/internal/session"
	"github.com/ManuGH/reelvault/internal/worker"
)

// fakeService allows every path under allowed and denies the rest.
type fakeService struct {
	allowed  string
	dir      string
	heatmap  *session.Heatmap
	roots    []catalog.Root
	released int
	creds    map[string]string
}

func (f *fakeService) check(path string) error {
	if !strings.HasPrefix(path, f.allowed) {
		return &media.DeniedError{Path: path}
	}
	return nil
}

func (f *fakeService) StaticFile(_ context.Context, path string) (media.StaticResult, error) {
	if strings.HasPrefix(path, "cloud://") {
		return media.StaticResult{Virtual: &media.VirtualFile{ID: "abc", Name: "clip.mp4"}}, nil
	}
	if err := f.check(path); err != nil {
		return media.StaticResult{}, err
	}
	return media.StaticResult{Path: filepath.Join(f.dir, "movie.mp4")}, nil
}

func (f *fakeService) Metadata(_ context.Context, path string) (*media.Metadata, error) {
	if err := f.check(path); err != nil {
		return nil, err
	}
	return &media.Metadata{Path: path, Name: filepath.Base(path), Class: media.ClassVideo, Size: 5}, nil
}

func (f *fakeService) Thumbnail(_ context.Context, path string) (string, error) {
	if err := f.check(path); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w: no preview", media.ErrNotFound)
}

func (f *fakeService) Heatmap(_ context.Context, path string) (media.HeatmapResult, error) {
	if err := f.check(path); err != nil {
		return media.HeatmapResult{}, err
	}
	if f.heatmap != nil {
		return media.HeatmapResult{Heatmap: f.heatmap}, nil
	}
	p := 10.0
	return media.HeatmapResult{Pending: true, Progress: &p}, nil
}

func (f *fakeService) HeatmapProgress(_ context.Context, path string) (*float64, error) {
	return nil, f.check(path)
}

func (f *fakeService) HLSMaster(_ context.Context, path string) (string, error) {
	if err := f.check(path); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, session.MasterPlaylistName), nil
}

func (f *fakeService) HLSPlaylist(_ context.Context, path string) (string, error) {
	if err := f.check(path); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, session.VariantPlaylistName), nil
}

func (f *fakeService) HLSSegment(_ context.Context, path, name string) (string, func(), error) {
	if name != "seg_00000.ts" {
		return "", nil, media.ErrInvalidSegment
	}
	if err := f.check(path); err != nil {
		return "", nil, err
	}
	return filepath.Join(f.dir, name), func() { f.released++ }, nil
}

func (f *fakeService) FilterAuthorized(_ context.Context, paths []string) []string {
	var out []string
	for _, p := range paths {
		if f.check(p) == nil {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeService) ViewCounts(_ context.Context, paths []string) map[string]int64 {
	out := map[string]int64{}
	for _, p := range f.FilterAuthorized(context.Background(), paths) {
		out[p] = 2
	}
	return out
}

func (f *fakeService) ListRoots(context.Context) []catalog.Root { return f.roots }

func (f *fakeService) AddRoot(_ context.Context, path string, kind catalog.SourceKind) (catalog.Root, error) {
	for _, r := range f.roots {
		if r.Path == path {
			return catalog.Root{}, fmt.Errorf("%w: %s", catalog.ErrDuplicateRoot, path)
		}
	}
	if kind == "" {
		kind = catalog.SourceLocal
	}
	r := catalog.Root{ID: fmt.Sprint(len(f.roots) + 1), Path: path, IsActive: true, SourceKind: kind}
	f.roots = append(f.roots, r)
	return r, nil
}

func (f *fakeService) RemoveRoot(_ context.Context, id string) error {
	return &worker.RemoteError{Op: worker.OpRootsRemove, Message: catalog.ErrRootNotFound.Error() + ": " + id}
}

func (f *fakeService) SetRootActive(_ context.Context, id string, active bool) (catalog.Root, error) {
	return catalog.Root{ID: id, Path: "/media", IsActive: active, SourceKind: catalog.SourceLocal}, nil
}

func (f *fakeService) StoreCredential(_ context.Context, provider, secret string) error {
	if provider == "" || strings.ContainsAny(provider, " /") || secret == "" {
		return fmt.Errorf("%w: %q", media.ErrInvalidCredential, provider)
	}
	if f.creds == nil {
		f.creds = map[string]string{}
	}
	f.creds[provider] = secret
	return nil
}

func (f *fakeService) LoadCredential(_ context.Context, provider string) (string, bool) {
	v, ok := f.creds[provider]
	return v, ok
}

func newTestServer(t *testing.T, cfg Config) (*fakeService, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"movie.mp4":                 "movie-bytes",
		"seg_00000.ts":              "segment-bytes",
		session.MasterPlaylistName:  "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nindex.m3u8\n",
		session.VariantPlaylistName: "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\nseg_00000.ts\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	svc := &fakeService{allowed: "/media/", dir: dir}
	return svc, New(svc, cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t, Config{})
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	_, h = newTestServer(t, Config{Ready: func(context.Context) error { return errors.New("worker starting") }})
	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_READY", decodeProblem(t, rec).Code)
}

func TestMedia_DeniedLeaksNothing(t *testing.T) {
	_, h := newTestServer(t, Config{})
	for _, kind := range []string{"static", "metadata", "thumbnail", "heatmap", "heatmap-progress"} {
		rec := do(t, h, http.MethodGet, "/api/media/"+kind+"?path=/etc/passwd", "")
		assert.Equal(t, http.StatusForbidden, rec.Code, kind)
		p := decodeProblem(t, rec)
		assert.Equal(t, "Access denied", p.Detail)
		assert.NotContains(t, rec.Body.String(), "passwd")
		assert.NotEmpty(t, p.RequestID)
		assert.Equal(t, p.RequestID, rec.Header().Get(HeaderRequestID))
	}
}

func TestMedia_Kinds(t *testing.T) {
	svc, h := newTestServer(t, Config{})

	rec := do(t, h, http.MethodGet, "/api/media/static", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/media/static?path=/media/movie.mp4", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "movie-bytes", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/media/static?path=cloud://gdrive/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"clip.mp4"`)

	rec = do(t, h, http.MethodGet, "/api/media/metadata?path=/media/movie.mp4", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var md media.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &md))
	assert.Equal(t, media.ClassVideo, md.Class)

	rec = do(t, h, http.MethodGet, "/api/media/thumbnail?path=/media/song.mp3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/media/heatmap?path=/media/movie.mp4", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"pending":true,"progress":10}`, rec.Body.String())

	svc.heatmap = &session.Heatmap{Source: "/media/movie.mp4", Duration: 8, Buckets: []float64{0.5, 1}}
	rec = do(t, h, http.MethodGet, "/api/media/heatmap?path=/media/movie.mp4", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"durationSeconds":8`)

	rec = do(t, h, http.MethodGet, "/api/media/heatmap-progress?path=/media/movie.mp4", "")
	assert.JSONEq(t, `{"progress":null}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/media/bogus?path=/media/movie.mp4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_KIND", decodeProblem(t, rec).Code)
}

func TestHLS(t *testing.T) {
	svc, h := newTestServer(t, Config{})

	rec := do(t, h, http.MethodGet, "/api/hls/master.m3u8?path=/media/a%20b.mp4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, playlistContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "\nindex.m3u8?path=%2Fmedia%2Fa+b.mp4\n")

	rec = do(t, h, http.MethodGet, "/api/hls/index.m3u8?path=/media/a.mp4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\nseg/seg_00000.ts?path=%2Fmedia%2Fa.mp4\n")
	assert.Contains(t, rec.Body.String(), "#EXTINF:4.0,")

	rec = do(t, h, http.MethodGet, "/api/hls/seg/seg_00000.ts?path=/media/a.mp4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "segment-bytes", rec.Body.String())
	assert.Equal(t, "video/mp2t", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, svc.released)

	rec = do(t, h, http.MethodGet, "/api/hls/seg/evil.ts?path=/media/a.mp4", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SEGMENT", decodeProblem(t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/hls/master.m3u8?path=/srv/a.mp4", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRoots(t *testing.T) {
	_, h := newTestServer(t, Config{})

	rec := do(t, h, http.MethodGet, "/api/roots", "")
	assert.JSONEq(t, `{"roots":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/roots", `{"path":"/media","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/roots", `{"path":"/media","sourceKind":"ftp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/roots", `{"path":"/media"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var root catalog.Root
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &root))
	assert.Equal(t, catalog.SourceLocal, root.SourceKind)

	rec = do(t, h, http.MethodPost, "/api/roots", `{"path":"/media"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/roots/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/roots/7/deactivate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isActive":false`)
}

func TestViewsAndFilter(t *testing.T) {
	_, h := newTestServer(t, Config{})

	rec := do(t, h, http.MethodPost, "/api/views", `{"paths":["/media/a.mp4","/etc/passwd"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"counts":{"/media/a.mp4":2}}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/authorized", `{"paths":["/etc/passwd","/media/b.mp4","/media/a.mp4"]}`)
	assert.JSONEq(t, `{"paths":["/media/b.mp4","/media/a.mp4"]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/authorized", `{"paths":["/etc/passwd"]}`)
	assert.JSONEq(t, `{"paths":[]}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	_, h := newTestServer(t, Config{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/roots", "").Code)
	}
	rec := do(t, h, http.MethodGet, "/api/roots", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeProblem(t, rec).Code)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code, "health is not limited")
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, Config{})
	do(t, h, http.MethodGet, "/api/roots", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reelvault_http_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), `route="/api/roots"`)
}

func TestCredentialsRoutes(t *testing.T) {
	svc, h := newTestServer(t, Config{})

	rec := do(t, h, http.MethodGet, "/api/credentials/gdrive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"provider":"gdrive","configured":false}`, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/api/credentials/gdrive", `{"secret":"tok-123"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "tok-123", svc.creds["gdrive"])

	rec = do(t, h, http.MethodGet, "/api/credentials/gdrive", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"provider":"gdrive","configured":true}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "tok-123")

	rec = do(t, h, http.MethodPut, "/api/credentials/gdrive", `{"secret":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIAL", decodeProblem(t, rec).Code)

	rec = do(t, h, http.MethodPut, "/api/credentials/gdrive", `{"secret":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProblemFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&media.DeniedError{Path: "/x"}, http.StatusForbidden},
		{fmt.Errorf("wrap: %w", media.ErrNotFound), http.StatusNotFound},
		{&worker.RemoteError{Message: "media root not found: 9"}, http.StatusNotFound},
		{&session.ProvisionError{Source: "/m", Reason: "ready_timeout"}, http.StatusGatewayTimeout},
		{&session.ProvisionError{Source: "/m", Reason: "start", Err: errors.New("exec")}, http.StatusBadGateway},
		{worker.ErrTimeout, http.StatusServiceUnavailable},
		{&worker.CrashError{Cause: errors.New("boom")}, http.StatusServiceUnavailable},
		{session.ErrShutdown, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, problemFor(tt.err).Status, tt.err.Error())
	}
}

func TestProblemFor_ProvisionFailuresCarryReason(t *testing.T) {
	p := problemFor(&session.ProvisionError{Source: "/srv/media/x.mkv", Reason: "ready_timeout", Err: context.DeadlineExceeded})
	assert.Contains(t, p.Detail, "ready_timeout")

	p = problemFor(fmt.Errorf("hls: %w", &session.ProvisionError{Source: "/srv/media/x.mkv", Reason: "start", Err: errors.New("exec: ffmpeg not found")}))
	assert.Equal(t, "TRANSCODE_FAILED", p.Code)
	assert.Contains(t, p.Detail, "start")
	assert.NotContains(t, p.Detail, "/srv/media", "server paths stay out of responses")
	assert.NotContains(t, p.Detail, "ffmpeg not found")
}

func TestRewritePlaylist(t *testing.T) {
	var out strings.Builder
	in := "#EXTM3U\r\n#EXT-X-VERSION:3\n\nsub/seg_00001.ts\nvariant.m3u8\n#EXT-X-ENDLIST\n"
	require.NoError(t, rewritePlaylist(&out, strings.NewReader(in), "/m/x.mkv"))
	assert.Equal(t,
		"#EXTM3U\n#EXT-X-VERSION:3\n\nseg/seg_00001.ts?path=%2Fm%2Fx.mkv\nindex.m3u8?path=%2Fm%2Fx.mkv\n#EXT-X-ENDLIST\n",
		out.String())
}
