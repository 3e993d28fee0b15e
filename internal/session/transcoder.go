// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/log"
)

// Transcoder starts producing HLS output for src into dir. The returned
// process must keep running until its context is canceled or the output
// is complete.
type Transcoder interface {
	Start(ctx context.Context, src, dir string) (*Process, error)
}

// FFmpegTranscoder produces an event HLS stream with ffmpeg. A run
// that trips the StartTimeout or StallTimeout window is killed and
// finishes with ErrStalled; zero disables the window.
type FFmpegTranscoder struct {
	Bin             string
	SegmentDuration int
	StartTimeout    time.Duration
	StallTimeout    time.Duration
	Logger          zerolog.Logger
}

// NewFFmpegTranscoder returns a transcoder that runs bin.
func NewFFmpegTranscoder(bin string) *FFmpegTranscoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegTranscoder{Bin: bin, SegmentDuration: 4, Logger: log.WithComponent("transcoder")}
}

// Args builds the ffmpeg command line for one session.
func (t *FFmpegTranscoder) Args(src, dir string) []string {
	seg := t.SegmentDuration
	if seg <= 0 {
		seg = 4
	}
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-progress", "pipe:1", "-nostats",
		"-i", src,
		"-map", "0:v:0?", "-map", "0:a:0?",
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-ac", "2",
		"-f", "hls",
		"-hls_time", fmt.Sprint(seg),
		"-hls_playlist_type", "event",
		"-hls_flags", "independent_segments+temp_file",
		"-hls_segment_filename", filepath.Join(dir, SegmentPattern),
		"-master_pl_name", MasterPlaylistName,
		filepath.Join(dir, VariantPlaylistName),
	}
}

func (t *FFmpegTranscoder) Start(ctx context.Context, src, dir string) (*Process, error) {
	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, t.Bin, t.Args(src, dir)...) // #nosec G204
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	wd := NewWatchdog(t.StartTimeout, t.StallTimeout)
	stalled := make(chan error, 1)
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		wd.Feed(stdout)
	}()
	go func() {
		if err := wd.Run(runCtx, time.Second); err != nil {
			t.Logger.Warn().Str(log.FieldSource, src).Str(log.FieldSessionDir, dir).Msg("ffmpeg stalled, killing")
			stalled <- err
			cancel()
		}
	}()

	proc := NewProcess(cancel)
	go func() {
		<-fed
		err := cmd.Wait()
		if err != nil && runCtx.Err() == nil {
			msg := strings.TrimSpace(stderr.String())
			t.Logger.Warn().Err(err).Str(log.FieldSource, src).Str("stderr", msg).Msg("ffmpeg exited with error")
			if msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
		}
		if runCtx.Err() != nil {
			err = nil
		}
		select {
		case err = <-stalled:
		default:
		}
		cancel()
		proc.Finish(err)
	}()
	return proc, nil
}
