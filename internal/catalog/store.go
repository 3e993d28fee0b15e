// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store provides SQLite persistence for the catalog.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open handle. Call Migrate before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the handle for integrity checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS media_roots (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		source_kind TEXT NOT NULL DEFAULT 'local' CHECK(source_kind IN ('local', 'cloud')),
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS view_stats (
		path TEXT PRIMARY KEY,
		views INTEGER NOT NULL DEFAULT 0,
		last_viewed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS media_metadata (
		path TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS credentials (
		provider TEXT PRIMARY KEY,
		secret TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_media_roots_active ON media_roots(is_active);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// NormalizeRootPath validates and cleans a root path.
func NormalizeRootPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || !filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoot, p)
	}
	return filepath.Clean(p), nil
}

// AddRoot inserts a new active root.
func (s *Store) AddRoot(ctx context.Context, path string, kind SourceKind) (Root, error) {
	clean, err := NormalizeRootPath(path)
	if err != nil {
		return Root{}, err
	}
	if kind == "" {
		kind = SourceLocal
	}
	if !kind.Valid() {
		return Root{}, fmt.Errorf("unknown source kind %q", kind)
	}

	r := Root{
		ID:         uuid.NewString(),
		Path:       clean,
		IsActive:   true,
		SourceKind: kind,
		CreatedAt:  s.now().UTC().Truncate(time.Second),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO media_roots (id, path, is_active, source_kind, created_at) VALUES (?, ?, 1, ?, ?)`,
		r.ID, r.Path, string(r.SourceKind), r.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return Root{}, fmt.Errorf("%w: %s", ErrDuplicateRoot, clean)
		}
		return Root{}, fmt.Errorf("insert root: %w", err)
	}
	return r, nil
}

// RemoveRoot deletes a root by id.
func (s *Store) RemoveRoot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM media_roots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete root: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRootNotFound, id)
	}
	return nil
}

// SetRootActive activates or deactivates a root and returns its new state.
func (s *Store) SetRootActive(ctx context.Context, id string, active bool) (Root, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE media_roots SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return Root{}, fmt.Errorf("update root: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Root{}, fmt.Errorf("%w: %s", ErrRootNotFound, id)
	}
	return s.getRoot(ctx, id)
}

// ListRoots returns every root ordered by path.
func (s *Store) ListRoots(ctx context.Context) ([]Root, error) {
	return s.queryRoots(ctx, `SELECT id, path, is_active, source_kind, created_at FROM media_roots ORDER BY path`)
}

// ActiveRoots returns only the roots currently eligible to authorize access.
func (s *Store) ActiveRoots(ctx context.Context) ([]Root, error) {
	return s.queryRoots(ctx, `SELECT id, path, is_active, source_kind, created_at FROM media_roots WHERE is_active = 1 ORDER BY path`)
}

func (s *Store) getRoot(ctx context.Context, id string) (Root, error) {
	roots, err := s.queryRoots(ctx, `SELECT id, path, is_active, source_kind, created_at FROM media_roots WHERE id = ?`, id)
	if err != nil {
		return Root{}, err
	}
	if len(roots) == 0 {
		return Root{}, fmt.Errorf("%w: %s", ErrRootNotFound, id)
	}
	return roots[0], nil
}

func (s *Store) queryRoots(ctx context.Context, query string, args ...any) ([]Root, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	roots := []Root{}
	for rows.Next() {
		var (
			r         Root
			active    int
			kind      string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Path, &active, &kind, &createdAt); err != nil {
			return nil, err
		}
		r.IsActive = active != 0
		r.SourceKind = SourceKind(kind)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		roots = append(roots, r)
	}
	return roots, rows.Err()
}

// RecordView increments the view counter of path.
func (s *Store) RecordView(ctx context.Context, path string, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO view_stats (path, views, last_viewed_at) VALUES (?, 1, ?)
	ON CONFLICT(path) DO UPDATE SET views = views + 1, last_viewed_at = excluded.last_viewed_at
	`, path, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	return nil
}

// maxInArgs keeps IN (...) lists under SQLite's host parameter limit.
const maxInArgs = 500

// ViewCounts returns the view counter for each known path. Paths never
// viewed are absent from the result.
func (s *Store) ViewCounts(ctx context.Context, paths []string) (map[string]int64, error) {
	out := make(map[string]int64, len(paths))
	for start := 0; start < len(paths); start += maxInArgs {
		end := min(start+maxInArgs, len(paths))
		chunk := paths[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, p := range chunk {
			args[i] = p
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT path, views FROM view_stats WHERE path IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("query view counts: %w", err)
		}
		for rows.Next() {
			var (
				p string
				n int64
			)
			if err := rows.Scan(&p, &n); err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[p] = n
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SaveMetadata stores the JSON metadata document of path.
func (s *Store) SaveMetadata(ctx context.Context, path string, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return errors.New("metadata document is not valid JSON")
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO media_metadata (path, doc, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, path, string(doc), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// GetMetadata loads the metadata document of path.
func (s *Store) GetMetadata(ctx context.Context, path string) (json.RawMessage, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM media_metadata WHERE path = ?`, path).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get metadata: %w", err)
	}
	return json.RawMessage(doc), true, nil
}

// SaveCredential stores an already-encrypted provider secret.
func (s *Store) SaveCredential(ctx context.Context, provider, secret string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO credentials (provider, secret, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(provider) DO UPDATE SET secret = excluded.secret, updated_at = excluded.updated_at
	`, provider, secret, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// GetCredential loads the stored secret of provider as persisted.
func (s *Store) GetCredential(ctx context.Context, provider string) (string, bool, error) {
	var secret string
	err := s.db.QueryRowContext(ctx, `SELECT secret FROM credentials WHERE provider = ?`, provider).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get credential: %w", err)
	}
	return secret, true, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
