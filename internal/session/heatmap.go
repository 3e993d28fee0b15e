// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/log"
	"github.com/ManuGH/reelvault/internal/metrics"
)

// Heatmap is the per-source activity profile: Buckets[i] is the relative
// visual change (0..1) in the i-th equal slice of the media.
type Heatmap struct {
	Source   string    `json:"source"`
	Duration float64   `json:"durationSeconds"`
	Buckets  []float64 `json:"buckets"`
}

// Analyzer computes a heatmap for src, reporting progress in percent.
type Analyzer interface {
	Analyze(ctx context.Context, src string, progress func(pct float64)) (*Heatmap, error)
}

// Job is a running or finished heatmap analysis.
type Job struct {
	Source    string
	StartedAt time.Time

	done    chan struct{}
	cancel  context.CancelFunc
	version sourceVersion

	mu       sync.Mutex
	progress float64
	result   *Heatmap
	err      error
}

// Done is closed when the analysis ends.
func (j *Job) Done() <-chan struct{} { return j.done }

// Progress returns the last reported percentage.
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Wait blocks until the job ends or ctx is done.
func (j *Job) Wait(ctx context.Context) (*Heatmap, error) {
	select {
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *Job) setProgress(pct float64) {
	if math.IsNaN(pct) {
		return
	}
	pct = math.Max(0, math.Min(100, pct))
	j.mu.Lock()
	if pct > j.progress {
		j.progress = pct
	}
	j.mu.Unlock()
}

// sourceVersion identifies one revision of a source file. A missing file
// has the zero version.
type sourceVersion struct {
	modTime time.Time
	size    int64
}

func versionOf(src string) sourceVersion {
	info, err := os.Stat(src)
	if err != nil {
		return sourceVersion{}
	}
	return sourceVersion{modTime: info.ModTime(), size: info.Size()}
}

type storedHeatmap struct {
	heatmap *Heatmap
	version sourceVersion
}

// Heatmaps runs at most one analysis per source path and keeps the result
// of the file revision it analyzed.
type Heatmaps struct {
	analyzer Analyzer
	logger   zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*Job
	results map[string]storedHeatmap
}

// NewHeatmaps returns a registry backed by analyzer.
func NewHeatmaps(analyzer Analyzer) *Heatmaps {
	return &Heatmaps{
		analyzer: analyzer,
		logger:   log.WithComponent("heatmaps"),
		jobs:     make(map[string]*Job),
		results:  make(map[string]storedHeatmap),
	}
}

// Generate starts an analysis for src unless one is already in flight, in
// which case the existing job is returned. Jobs are keyed by path only.
// The job outlives ctx; use Shutdown to stop it.
func (h *Heatmaps) Generate(ctx context.Context, src string) (*Job, bool) {
	key := NormalizeSource(src)
	if err := ctx.Err(); err != nil {
		return nil, false
	}

	h.mu.Lock()
	if job, ok := h.jobs[key]; ok {
		select {
		case <-job.done:
			delete(h.jobs, key)
		default:
			h.mu.Unlock()
			metrics.IncHeatmapJob("deduplicated")
			return job, false
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &Job{
		Source:    key,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
		cancel:    cancel,
		version:   versionOf(key),
	}
	h.jobs[key] = job
	h.mu.Unlock()

	metrics.IncHeatmapJob("started")
	metrics.AddHeatmapActive(1)
	h.logger.Info().Str(log.FieldSource, key).Msg("heatmap analysis started")
	go h.execute(runCtx, job)
	return job, true
}

func (h *Heatmaps) execute(ctx context.Context, job *Job) {
	var (
		result *Heatmap
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Str(log.FieldSource, job.Source).Interface("panic", r).Msg("heatmap analysis panicked")
			err = fmt.Errorf("panic: %v", r)
			result = nil
		}
		job.cancel()

		job.mu.Lock()
		job.result, job.err = result, err
		if err == nil {
			job.progress = 100
		}
		job.mu.Unlock()

		h.mu.Lock()
		if err == nil && result != nil {
			h.results[job.Source] = storedHeatmap{heatmap: result, version: job.version}
		}
		if h.jobs[job.Source] == job {
			delete(h.jobs, job.Source)
		}
		h.mu.Unlock()
		close(job.done)

		metrics.AddHeatmapActive(-1)
		if err != nil {
			metrics.IncHeatmapJob("failed")
			h.logger.Warn().Err(err).Str(log.FieldSource, job.Source).Msg("heatmap analysis failed")
		} else {
			metrics.IncHeatmapJob("succeeded")
			h.logger.Info().Str(log.FieldSource, job.Source).Dur("took", time.Since(job.StartedAt)).Msg("heatmap analysis complete")
		}
	}()

	result, err = h.analyzer.Analyze(ctx, job.Source, job.setProgress)
	if err == nil && result == nil {
		err = fmt.Errorf("analyzer returned no heatmap")
	}
}

// Progress returns the percentage of the in-flight job for src, or nil
// when no job is running. It never blocks on the job.
func (h *Heatmaps) Progress(src string) *float64 {
	h.mu.Lock()
	job, ok := h.jobs[NormalizeSource(src)]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-job.done:
		return nil
	default:
	}
	p := job.Progress()
	return &p
}

// Result returns the last completed heatmap for src. A result computed
// for an earlier revision of the file is dropped.
func (h *Heatmaps) Result(src string) (*Heatmap, bool) {
	key := NormalizeSource(src)
	current := versionOf(key)

	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.results[key]
	if !ok {
		return nil, false
	}
	if r.version != current {
		delete(h.results, key)
		h.logger.Debug().Str(log.FieldSource, key).Msg("dropping heatmap of a changed source")
		return nil, false
	}
	return r.heatmap, true
}

// Shutdown cancels every in-flight job and waits for them or ctx.
func (h *Heatmaps) Shutdown(ctx context.Context) {
	h.mu.Lock()
	jobs := make([]*Job, 0, len(h.jobs))
	for _, j := range h.jobs {
		jobs = append(jobs, j)
	}
	h.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return
		}
	}
}
