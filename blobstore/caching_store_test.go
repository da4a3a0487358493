package blobstore

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	BlobStore
	reads     atomic.Int64
	readBytes atomic.Int64
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.BlobStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, s: s}, nil
}

type countingBlob struct {
	Blob
	s *countingStore
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := b.Blob.ReadAt(ctx, p, off)
	b.s.reads.Add(1)
	b.s.readBytes.Add(int64(n))
	return n, err
}

func newCounting(t *testing.T, blobs map[string][]byte) *countingStore {
	t.Helper()
	mem := NewMemoryStore()
	for name, data := range blobs {
		require.NoError(t, mem.Put(context.Background(), name, data))
	}
	return &countingStore{BlobStore: mem}
}

func TestCachingStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	inner := newCounting(t, map[string][]byte{"snap": data})
	store := NewCachingStore(inner, 1<<20, 256)

	blob, err := store.Open(ctx, "snap")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 100)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[:100], buf)
	assert.Equal(t, int64(1), inner.reads.Load())
	assert.Equal(t, int64(256), inner.readBytes.Load())

	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.reads.Load())

	// Spans block 0 (cached) and block 1 (missing).
	n, err = blob.ReadAt(ctx, buf, 200)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[200:300], buf)
	assert.Equal(t, int64(2), inner.reads.Load())
	assert.Equal(t, int64(512), inner.readBytes.Load())

	// Blocks 2 and 3 are one contiguous miss.
	big := make([]byte, 512)
	n, err = blob.ReadAt(ctx, big, 512)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, data[512:], big)
	assert.Equal(t, int64(3), inner.reads.Load())
	assert.Equal(t, int64(1024), store.CachedBytes())

	rc, err := blob.ReadRange(ctx, 1000, 100)
	require.NoError(t, err)
	tail, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data[1000:], tail)
	assert.Equal(t, int64(3), inner.reads.Load())

	hits, misses := store.Stats()
	assert.Positive(t, hits)
	assert.Equal(t, int64(4), misses)
}

func TestCachingStore_ShortBlob(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, map[string][]byte{"small": []byte("hello")})
	store := NewCachingStore(inner, 1024, 256)

	blob, err := store.Open(ctx, "small")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := blob.ReadAt(ctx, buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = blob.ReadAt(ctx, buf, 5)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, map[string][]byte{"snap": []byte("version-1")})
	store := NewCachingStore(inner, 1024, 4)

	read := func() string {
		b, err := store.Open(ctx, "snap")
		require.NoError(t, err)
		defer b.Close()
		got, err := ReadAll(ctx, b)
		require.NoError(t, err)
		return string(got)
	}

	assert.Equal(t, "version-1", read())
	assert.Positive(t, store.CachedBytes())

	require.NoError(t, store.Put(ctx, "snap", []byte("version-2")))
	assert.Zero(t, store.CachedBytes())
	assert.Equal(t, "version-2", read())

	require.NoError(t, store.Delete(ctx, "snap"))
	_, err := store.Open(ctx, "snap")
	assert.ErrorIs(t, err, ErrNotFound)
}
