// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"
)

const defaultRenderTimeout = 2 * time.Minute

// Thumbnailer renders and caches JPEG previews.
type Thumbnailer struct {
	Dir       string
	FFmpegBin string
	// Size bounds both edges of the output.
	Size int
	// VideoOffset is the position of the captured video frame in seconds.
	VideoOffset float64
	// RenderTimeout bounds one render; zero means defaultRenderTimeout.
	RenderTimeout time.Duration

	group singleflight.Group
}

// NewThumbnailer stores previews under dir.
func NewThumbnailer(dir, ffmpegBin string) *Thumbnailer {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	return &Thumbnailer{Dir: dir, FFmpegBin: ffmpegBin, Size: 320, VideoOffset: 5}
}

func (t *Thumbnailer) pathFor(src string) string {
	sum := sha256.Sum256([]byte(src))
	return filepath.Join(t.Dir, hex.EncodeToString(sum[:16])+".jpg")
}

// Thumbnail returns the cached preview of src, rendering it when missing
// or older than src. Concurrent requests for one source render once.
func (t *Thumbnailer) Thumbnail(ctx context.Context, src string) (string, error) {
	out := t.pathFor(src)
	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(out); err == nil && !info.ModTime().Before(srcInfo.ModTime()) {
		return out, nil
	}

	// The render outlives any single caller so a canceled first request does
	// not fail the others waiting on the same key.
	ch := t.group.DoChan(out, func() (any, error) {
		renderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.renderTimeout())
		defer cancel()
		return nil, t.render(renderCtx, src, out)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Thumbnailer) renderTimeout() time.Duration {
	if t.RenderTimeout > 0 {
		return t.RenderTimeout
	}
	return defaultRenderTimeout
}

func (t *Thumbnailer) render(ctx context.Context, src, out string) error {
	if err := os.MkdirAll(t.Dir, 0o750); err != nil {
		return err
	}
	tmp := out + ".tmp.jpg"
	defer func() { _ = os.Remove(tmp) }()

	var err error
	switch Classify(src) {
	case ClassImage:
		err = t.renderImage(src, tmp)
	case ClassVideo:
		err = t.renderVideo(ctx, src, tmp)
	default:
		return fmt.Errorf("%w: no preview for %s", ErrNotFound, filepath.Ext(src))
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, out)
}

func (t *Thumbnailer) renderImage(src, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	thumb := imaging.Fit(img, t.Size, t.Size, imaging.Lanczos)
	if err := imaging.Save(thumb, dst, imaging.JPEGQuality(80)); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}
	return nil
}

func (t *Thumbnailer) renderVideo(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, t.FFmpegBin, // #nosec G204
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(t.VideoOffset, 'f', 2, 64),
		"-i", src,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", t.Size, t.Size),
		"-y", dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("extract frame: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
