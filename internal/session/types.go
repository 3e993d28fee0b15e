// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session materializes HLS transcodes per source file and keeps
// them on disk while they are in use. One Session exists per normalized
// source path. Provisioning is deduplicated, idle sessions without readers
// are reclaimed by the sweeper.
package session

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

const (
	// MasterPlaylistName is written by the transcoder next to the variant.
	MasterPlaylistName = "master.m3u8"
	// VariantPlaylistName marks a session as ready once it has content.
	VariantPlaylistName = "index.m3u8"
	// SegmentPattern is the ffmpeg segment filename template.
	SegmentPattern = "seg_%05d.ts"

	sessionsDirName = "sessions"
)

// Session is one materialized transcode.
type Session struct {
	SourcePath string
	Key        string
	Dir        string
	CreatedAt  time.Time

	proc *Process

	mu          sync.Mutex
	lastTouched time.Time
	readers     int
}

// LastTouchedAt returns the last access time.
func (s *Session) LastTouchedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

// Readers returns the number of outstanding Acquire handles.
func (s *Session) Readers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readers
}

// MasterPlaylist is the absolute path of the master playlist.
func (s *Session) MasterPlaylist() string { return filepath.Join(s.Dir, MasterPlaylistName) }

// VariantPlaylist is the absolute path of the media playlist.
func (s *Session) VariantPlaylist() string { return filepath.Join(s.Dir, VariantPlaylistName) }

// Transcoding reports whether the transcoder is still producing segments.
func (s *Session) Transcoding() bool {
	if s.proc == nil {
		return false
	}
	select {
	case <-s.proc.Done():
		return false
	default:
		return true
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastTouched) {
		s.lastTouched = now
	}
	s.mu.Unlock()
}

// reclaimable reports whether the session is reclaimable at now.
func (s *Session) reclaimable(now time.Time, idle time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readers == 0 && now.Sub(s.lastTouched) > idle
}

// ProvisionError reports a session that could not be brought up.
type ProvisionError struct {
	Source string
	Reason string
	Err    error
}

func (e *ProvisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provision session for %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("provision session for %s: %s", e.Source, e.Reason)
}

func (e *ProvisionError) Unwrap() error { return e.Err }
