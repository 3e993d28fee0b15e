// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/reelvault/internal/persistence/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.sqlite"), sqlite.DefaultConfig())
	require.NoError(t, err)
	s := NewStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RootLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r, err := s.AddRoot(ctx, "/media/movies/", SourceLocal)
	require.NoError(t, err)
	assert.Equal(t, "/media/movies", r.Path)
	assert.True(t, r.IsActive)
	assert.NotEmpty(t, r.ID)

	_, err = s.AddRoot(ctx, "/media/movies", SourceLocal)
	require.ErrorIs(t, err, ErrDuplicateRoot)

	_, err = s.AddRoot(ctx, "relative/dir", SourceLocal)
	require.ErrorIs(t, err, ErrInvalidRoot)

	_, err = s.AddRoot(ctx, "   ", SourceLocal)
	require.ErrorIs(t, err, ErrInvalidRoot)

	other, err := s.AddRoot(ctx, "/media/music", "")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, other.SourceKind)

	updated, err := s.SetRootActive(ctx, r.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	active, err := s.ActiveRoots(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "/media/music", active[0].Path)

	all, err := s.ListRoots(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.RemoveRoot(ctx, r.ID))
	require.ErrorIs(t, s.RemoveRoot(ctx, r.ID), ErrRootNotFound)

	_, err = s.SetRootActive(ctx, "missing", true)
	require.ErrorIs(t, err, ErrRootNotFound)
}

func TestStore_ViewCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.RecordView(ctx, "/media/a.mkv", at))
	require.NoError(t, s.RecordView(ctx, "/media/a.mkv", at))
	require.NoError(t, s.RecordView(ctx, "/media/b.mkv", at))

	counts, err := s.ViewCounts(ctx, []string{"/media/a.mkv", "/media/b.mkv", "/media/never.mkv"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"/media/a.mkv": 2, "/media/b.mkv": 1}, counts)

	empty, err := s.ViewCounts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_ViewCountsChunksLargeInputs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	paths := make([]string, 0, maxInArgs*2+7)
	for i := 0; i < cap(paths); i++ {
		paths = append(paths, fmt.Sprintf("/media/%04d.mkv", i))
	}
	require.NoError(t, s.RecordView(ctx, paths[len(paths)-1], time.Time{}))

	counts, err := s.ViewCounts(ctx, paths)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{paths[len(paths)-1]: 1}, counts)
}

func TestStore_MetadataAndCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetMetadata(ctx, "/media/a.flac")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveMetadata(ctx, "/media/a.flac", json.RawMessage(`{"title":"A"}`)))
	require.NoError(t, s.SaveMetadata(ctx, "/media/a.flac", json.RawMessage(`{"title":"B"}`)))
	doc, ok, err := s.GetMetadata(ctx, "/media/a.flac")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"B"}`, string(doc))

	require.Error(t, s.SaveMetadata(ctx, "/media/x", json.RawMessage(`{broken`)))

	require.NoError(t, s.SaveCredential(ctx, "gdrive", "aa:bb:cc"))
	secret, ok, err := s.GetCredential(ctx, "gdrive")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "aa:bb:cc", secret)

	_, ok, err = s.GetCredential(ctx, "dropbox")
	require.NoError(t, err)
	assert.False(t, ok)
}
