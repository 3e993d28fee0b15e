// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/reelvault/internal/catalog"
)

func startWorker(t *testing.T, w *Worker) (*Client, *Channel) {
	t.Helper()
	w.Start()
	ch := NewChannel(w, Options{Timeout: 5 * time.Second})
	return NewClient(ch), ch
}

func TestWorker_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	w := New(SQLiteOpener(filepath.Join(t.TempDir(), "reelvault.db")))
	client, ch := startWorker(t, w)
	require.NoError(t, ch.Init(ctx))

	root, err := client.AddRoot(ctx, "/media/movies", catalog.SourceLocal)
	require.NoError(t, err)
	assert.True(t, root.IsActive)

	_, err = client.AddRoot(ctx, "/media/movies", catalog.SourceLocal)
	assert.ErrorIs(t, err, catalog.ErrDuplicateRoot)

	off, err := client.SetRootActive(ctx, root.ID, false)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	assert.Len(t, client.ListRoots(ctx), 1)
	assert.Empty(t, client.ActiveRoots(ctx))

	require.NoError(t, client.RecordView(ctx, "/media/movies/a.mp4", time.Now()))
	require.NoError(t, client.RecordView(ctx, "/media/movies/a.mp4", time.Now()))
	counts := client.ViewCounts(ctx, []string{"/media/movies/a.mp4", "/media/movies/b.mp4"})
	assert.Equal(t, int64(2), counts["/media/movies/a.mp4"])

	require.NoError(t, client.SaveMetadata(ctx, "/media/movies/a.mp4", json.RawMessage(`{"title":"A"}`)))
	doc, found := client.GetMetadata(ctx, "/media/movies/a.mp4")
	assert.True(t, found)
	assert.JSONEq(t, `{"title":"A"}`, string(doc))

	require.NoError(t, client.SaveCredential(ctx, "gdrive", "cipher-text"))
	secret, found := client.GetCredential(ctx, "gdrive")
	assert.True(t, found)
	assert.Equal(t, "cipher-text", secret)

	err = client.RemoveRoot(ctx, "missing")
	assert.ErrorIs(t, err, catalog.ErrRootNotFound)
	require.NoError(t, client.RemoveRoot(ctx, root.ID))

	require.NoError(t, ch.Close(ctx))
	<-w.Done()
	assert.True(t, ch.Exited())
}

func TestWorker_RejectsBusinessOpsBeforeInit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	w := New(SQLiteOpener(filepath.Join(t.TempDir(), "reelvault.db")))
	client, ch := startWorker(t, w)

	err := client.RecordView(ctx, "/media/a.mp4", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, client.ListRoots(ctx))

	require.NoError(t, ch.Close(ctx))
}

func TestWorker_InitFailureIsReported(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	w := New(func(context.Context) (*catalog.Store, error) {
		return nil, errors.New("read-only file system")
	})
	_, ch := startWorker(t, w)

	err := ch.Init(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only file system")

	require.NoError(t, ch.Close(ctx))
}

func TestWorker_PanicTerminatesAndFailsPending(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	w := New(SQLiteOpener(filepath.Join(t.TempDir(), "reelvault.db")))
	w.handlers[OpRootsAdd] = func(context.Context, *catalog.Store, json.RawMessage) (any, error) {
		panic("corrupt page")
	}
	client, ch := startWorker(t, w)
	require.NoError(t, ch.Init(ctx))

	_, err := client.AddRoot(ctx, "/media", catalog.SourceLocal)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkerExited)
	assert.Contains(t, err.Error(), "corrupt page")

	<-w.Done()
	require.Eventually(t, ch.Exited, time.Second, 5*time.Millisecond)
	assert.Empty(t, client.ListRoots(ctx))
	assert.ErrorIs(t, client.RecordView(ctx, "/media/a.mp4", time.Now()), ErrWorkerExited)
	assert.NoError(t, ch.Close(ctx))
}

func TestWorker_StorageErrorsCrossTheBoundary(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO media_roots")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, path, is_active, source_kind, created_at FROM media_roots")).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectClose()

	ctx := context.Background()
	w := New(nil)
	w.store = catalog.NewStore(db)
	client, ch := startWorker(t, w)

	_, err = client.AddRoot(ctx, "/media", catalog.SourceLocal)
	require.Error(t, err)
	assert.Equal(t, "insert root: disk I/O error", err.Error())

	assert.Empty(t, client.ListRoots(ctx))

	require.NoError(t, ch.Close(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
