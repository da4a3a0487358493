package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/mdbox/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	exerciseStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_WithFileSystem(t *testing.T) {
	exerciseStore(t, NewLocalStore(t.TempDir(), WithFileSystem(fs.NewFaultyFS(nil))))
}

func TestLocalStore_MappedBlob(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())
	require.NoError(t, store.Put(ctx, "snap.mdbx", []byte("mapped")))

	b, err := store.Open(ctx, "snap.mdbx")
	require.NoError(t, err)

	m, ok := b.(Mappable)
	require.True(t, ok)
	data, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(data))

	require.NoError(t, b.Close())
	_, err = m.Bytes()
	assert.Error(t, err)
}

func TestLocalStore_CreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	w, err := store.Create(ctx, "pending.mdbx")
	require.NoError(t, err)
	_, err = w.Write([]byte("half"))
	require.NoError(t, err)

	_, err = store.Open(ctx, "pending.mdbx")
	assert.ErrorIs(t, err, ErrNotFound)
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, w.Close())
	_, err = os.Stat(filepath.Join(root, "pending.mdbx"))
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStore_FailedWriteLeavesNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("broken", fs.Fault{FailAfterBytes: 3})
	store := NewLocalStore(root, WithFileSystem(ffs))

	err := store.Put(ctx, "broken.mdbx", []byte("too long"))
	require.ErrorIs(t, err, fs.ErrInjected)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = store.PutIfNotExists(ctx, "broken.mdbx", []byte("too long"))
	require.ErrorIs(t, err, fs.ErrInjected)
	_, err = os.Stat(filepath.Join(root, "broken.mdbx"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
