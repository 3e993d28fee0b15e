// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/log"
)

// DefaultHeatmapBuckets is the resolution of generated heatmaps.
const DefaultHeatmapBuckets = 100

// FFmpegAnalyzer derives heatmaps from ffmpeg scene-change scores.
type FFmpegAnalyzer struct {
	FFmpegBin  string
	FFprobeBin string
	Buckets    int
	Logger     zerolog.Logger
}

// NewFFmpegAnalyzer returns an analyzer using the given binaries.
func NewFFmpegAnalyzer(ffmpeg, ffprobe string) *FFmpegAnalyzer {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &FFmpegAnalyzer{
		FFmpegBin:  ffmpeg,
		FFprobeBin: ffprobe,
		Buckets:    DefaultHeatmapBuckets,
		Logger:     log.WithComponent("heatmap-analyzer"),
	}
}

// Probe returns the container duration of src in seconds.
func (a *FFmpegAnalyzer) Probe(ctx context.Context, src string) (float64, error) {
	out, err := exec.CommandContext(ctx, a.FFprobeBin, // #nosec G204
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("ffprobe: unusable duration %q", strings.TrimSpace(string(out)))
	}
	return d, nil
}

func (a *FFmpegAnalyzer) Analyze(ctx context.Context, src string, progress func(float64)) (*Heatmap, error) {
	duration, err := a.Probe(ctx, src)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, a.FFmpegBin, // #nosec G204
		"-nostdin", "-hide_banner",
		"-progress", "pipe:1",
		"-i", src,
		"-an", "-sn",
		"-vf", "scale=160:-2,select='gte(scene,0)',metadata=print",
		"-f", "null", "-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	acc := newSceneAccumulator(duration, a.Buckets)
	var tail bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ParseProgress(stdout, func(outTimeUs int64) {
			if progress != nil {
				progress(float64(outTimeUs) / 1e6 / duration * 100)
			}
		})
	}()
	go func() {
		defer wg.Done()
		ParseSceneScores(io.TeeReader(stderr, &limitedBuffer{buf: &tail, max: 4096}), acc.add)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg scene analysis: %w: %s", err, strings.TrimSpace(tail.String()))
	}
	if acc.samples == 0 {
		return nil, errors.New("no video frames analyzed")
	}
	return &Heatmap{Source: src, Duration: duration, Buckets: acc.normalized()}, nil
}

// ParseProgress reads ffmpeg -progress key=value blocks and reports
// out_time_us at every block boundary.
func ParseProgress(r io.Reader, fn func(outTimeUs int64)) {
	scanner := bufio.NewScanner(r)
	var current int64
	for scanner.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil && v >= 0 {
				current = v
			}
		case "progress":
			fn(current)
		}
	}
}

// ParseSceneScores reads the metadata=print filter output and reports
// (pts_time, scene_score) pairs. The filter prints a "frame:" line with
// pts_time followed by the frame's metadata keys.
func ParseSceneScores(r io.Reader, fn func(at, score float64)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	at := -1.0
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "pts_time:"); i >= 0 {
			field := strings.Fields(line[i+len("pts_time:"):])
			if len(field) > 0 {
				if v, err := strconv.ParseFloat(field[0], 64); err == nil {
					at = v
				}
			}
			continue
		}
		if i := strings.Index(line, "lavfi.scene_score="); i >= 0 && at >= 0 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(line[i+len("lavfi.scene_score="):]), 64); err == nil {
				fn(at, v)
			}
		}
	}
}

type sceneAccumulator struct {
	duration float64
	buckets  []float64
	samples  int
}

func newSceneAccumulator(duration float64, n int) *sceneAccumulator {
	if n <= 0 {
		n = DefaultHeatmapBuckets
	}
	return &sceneAccumulator{duration: duration, buckets: make([]float64, n)}
}

func (a *sceneAccumulator) add(at, score float64) {
	a.samples++
	if a.duration <= 0 || at < 0 {
		return
	}
	i := int(at / a.duration * float64(len(a.buckets)))
	if i >= len(a.buckets) {
		i = len(a.buckets) - 1
	}
	if score > a.buckets[i] {
		a.buckets[i] = score
	}
}

// normalized scales buckets so the strongest one is 1.
func (a *sceneAccumulator) normalized() []float64 {
	peak := 0.0
	for _, v := range a.buckets {
		if v > peak {
			peak = v
		}
	}
	out := make([]float64, len(a.buckets))
	if peak == 0 {
		return out
	}
	for i, v := range a.buckets {
		out[i] = v / peak
	}
	return out
}

// limitedBuffer keeps only the last max bytes written.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	l.buf.Write(p)
	if over := l.buf.Len() - l.max; over > 0 {
		l.buf.Next(over)
	}
	return n, nil
}
