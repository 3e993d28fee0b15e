// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog is the durable storage of the media catalog: media roots,
// view statistics, cached metadata and encrypted provider credentials.
//
// A Store is not safe to share between call sites; it is owned by the
// persistence worker and reached only through worker messages.
package catalog

import (
	"errors"
	"time"
)

// SourceKind distinguishes local directories from cloud-backed roots.
type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceCloud SourceKind = "cloud"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k == SourceLocal || k == SourceCloud
}

// Root is a configured media directory.
type Root struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	IsActive   bool       `json:"isActive"`
	SourceKind SourceKind `json:"sourceKind"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ViewStat is the usage counter of one media path.
type ViewStat struct {
	Path         string    `json:"path"`
	Views        int64     `json:"views"`
	LastViewedAt time.Time `json:"lastViewedAt"`
}

var (
	ErrRootNotFound  = errors.New("media root not found")
	ErrDuplicateRoot = errors.New("media root already exists")
	ErrInvalidRoot   = errors.New("media root path must be absolute and non-empty")
)
