package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every BlobStore must share.
func exerciseStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Open(ctx, "missing.mdbx")
	require.ErrorIs(t, err, ErrNotFound)

	data := []byte("hello world, this is a snapshot blob")
	require.NoError(t, store.Put(ctx, "ws/a.mdbx", data))

	w, err := store.Create(ctx, "ws/b.mdbx")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	blob, err := store.Open(ctx, "ws/a.mdbx")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	long := make([]byte, 10)
	n, err = blob.ReadAt(ctx, long, int64(len(data)-4))
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, io.EOF)

	rc, err := blob.ReadRange(ctx, 13, 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "this", string(got))

	rc, err = blob.ReadRange(ctx, int64(len(data)-4), 100)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "blob", string(got))

	all, err := ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, data, all)
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ws/a.mdbx", "ws/b.mdbx"}, names)

	names, err = store.List(ctx, "ws/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"ws/b.mdbx"}, names)

	assert.ErrorIs(t, PutIfNotExists(ctx, store, "ws/a.mdbx", []byte("x")), ErrExists)
	require.NoError(t, PutIfNotExists(ctx, store, "ws/c.mdbx", []byte("x")))

	require.NoError(t, store.Delete(ctx, "ws/a.mdbx"))
	require.NoError(t, store.Delete(ctx, "ws/a.mdbx"))
	_, err = store.Open(ctx, "ws/a.mdbx")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ws/b.mdbx", "ws/c.mdbx"}, names)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_PutCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "x", data))
	data[0] = 'z'

	b, err := s.Open(ctx, "x")
	require.NoError(t, err)
	got, err := ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	assert.True(t, s.Corrupt("x", 1))
	assert.False(t, s.Corrupt("x", 10))
	assert.False(t, s.Corrupt("nope", 0))

	// Handles opened before corruption keep the old bytes.
	assert.Equal(t, "abc", string(got))
	b2, err := s.Open(ctx, "x")
	require.NoError(t, err)
	got2, err := ReadAll(ctx, b2)
	require.NoError(t, err)
	assert.NotEqual(t, "abc", string(got2))
}

func TestMemoryStore_WriteAfterClose(t *testing.T) {
	w, err := NewMemoryStore().Create(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.ErrorIs(t, w.Close(), io.ErrClosedPipe)
}
