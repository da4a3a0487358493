package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/hupe1980/mdbox/internal/cache"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the caching granularity used when none is given.
const DefaultBlockSize = 64 << 10

type blockKey struct {
	name  string
	block int64
}

// CachingStore wraps a BlobStore with a byte-bounded block cache.
// Blobs are treated as immutable; Put and Delete invalidate the cached blocks
// of the affected name.
type CachingStore struct {
	inner     BlobStore
	cache     *cache.LRU[blockKey, []byte]
	blockSize int64
}

// NewCachingStore caches up to capacityBytes of inner's blocks.
// A non-positive blockSize selects DefaultBlockSize.
func NewCachingStore(inner BlobStore, capacityBytes, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	cost := func(b []byte) int64 { return int64(len(b)) }
	return &CachingStore{
		inner:     inner,
		cache:     cache.NewLRU[blockKey, []byte](capacityBytes, cost, nil),
		blockSize: blockSize,
	}
}

// CachedBytes returns the bytes currently held by the cache.
func (s *CachingStore) CachedBytes() int64 { return s.cache.Size() }

// Stats returns block cache hits and misses.
func (s *CachingStore) Stats() (hits, misses int64) { return s.cache.Stats() }

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{store: s, inner: b, name: name}, nil
}

func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.invalidate(name)
	return s.inner.Create(ctx, name)
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) invalidate(name string) {
	for _, k := range s.cache.Keys() {
		if k.name == name {
			s.cache.Remove(k)
		}
	}
}

type cachingBlob struct {
	store *CachingStore
	inner Blob
	name  string
}

func (b *cachingBlob) Close() error { return b.inner.Close() }

func (b *cachingBlob) Size() int64 { return b.inner.Size() }

func (b *cachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	size := b.Size()
	if off < 0 || off >= size {
		return 0, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	bs := b.store.blockSize
	want := min(int64(len(p)), size-off)
	first := off / bs
	last := (off + want - 1) / bs

	blocks, err := b.blocks(ctx, first, last)
	if err != nil {
		return 0, err
	}

	n := 0
	for i, data := range blocks {
		blkStart := (first + int64(i)) * bs
		src := max(off, blkStart) - blkStart
		if src >= int64(len(data)) {
			break
		}
		n += copy(p[n:want], data[src:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// blocks returns blocks [first, last], fetching contiguous runs of misses
// with one inner read each.
func (b *cachingBlob) blocks(ctx context.Context, first, last int64) ([][]byte, error) {
	out := make([][]byte, last-first+1)

	type run struct{ start, count int64 }
	var misses []run
	for blk := first; blk <= last; blk++ {
		if data, ok := b.store.cache.Get(blockKey{b.name, blk}); ok {
			out[blk-first] = data
			continue
		}
		if n := len(misses); n > 0 && misses[n-1].start+misses[n-1].count == blk {
			misses[n-1].count++
		} else {
			misses = append(misses, run{blk, 1})
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	bs := b.store.blockSize
	size := b.Size()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, r := range misses {
		g.Go(func() error {
			start := r.start * bs
			end := min(start+r.count*bs, size)
			buf := make([]byte, end-start)
			n, err := b.inner.ReadAt(gctx, buf, start)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]

			for i := int64(0); i < r.count; i++ {
				lo := i * bs
				if lo >= int64(len(buf)) {
					break
				}
				hi := min(lo+bs, int64(len(buf)))
				blk := make([]byte, hi-lo)
				copy(blk, buf[lo:hi])
				out[r.start+i-first] = blk
				b.store.cache.Add(blockKey{b.name, r.start + i}, blk)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *cachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	start, end := clampRange(b.Size(), off, length)
	return io.NopCloser(&sectionReader{ctx: ctx, blob: b, off: start, limit: end}), nil
}

type sectionReader struct {
	ctx   context.Context
	blob  Blob
	off   int64
	limit int64
}

func (r *sectionReader) Read(p []byte) (int, error) {
	if r.off >= r.limit {
		return 0, io.EOF
	}
	if rem := r.limit - r.off; int64(len(p)) > rem {
		p = p[:rem]
	}
	n, err := r.blob.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	if errors.Is(err, io.EOF) && n > 0 {
		err = nil
	}
	return n, err
}
