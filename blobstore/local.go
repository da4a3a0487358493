package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hupe1980/mdbox/internal/fs"
	"github.com/hupe1980/mdbox/internal/mmap"
)

const tmpMarker = ".tmp-"

// LocalStore keeps blobs as files below a root directory.
//
// On the real filesystem blobs are memory-mapped for reading. Any other
// fs.FileSystem (fault injection in tests) is read through positional reads.
type LocalStore struct {
	root string
	fsys fs.FileSystem
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithFileSystem replaces the filesystem used for all file operations.
func WithFileSystem(fsys fs.FileSystem) LocalOption {
	return func(s *LocalStore) {
		if fsys != nil {
			s.fsys = fsys
		}
	}
}

// NewLocalStore returns a store rooted at root. The directory is created on
// first write.
func NewLocalStore(root string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{root: root, fsys: fs.Default}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Root returns the store directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	p := s.path(name)

	if _, ok := s.fsys.(fs.LocalFS); ok {
		m, err := mmap.Open(p)
		if err != nil {
			return nil, err
		}
		return &mappedBlob{m: m}, nil
	}

	f, err := s.fsys.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileBlob{f: f, size: fi.Size()}, nil
}

// Create starts writing a blob to a temporary file that is renamed into
// place on Close.
func (s *LocalStore) Create(_ context.Context, name string) (WritableBlob, error) {
	final := s.path(name)
	if err := s.fsys.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, err
	}

	tmp := final + tmpMarker + uuid.NewString()
	f, err := s.fsys.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &localWritableBlob{fsys: s.fsys, f: f, tmp: tmp, final: final}, nil
}

// Put writes data atomically.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.(*localWritableBlob).abort()
		return err
	}
	return w.Close()
}

// PutIfNotExists writes data with an exclusive create.
func (s *LocalStore) PutIfNotExists(_ context.Context, name string, data []byte) error {
	final := s.path(name)
	if err := s.fsys.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}

	f, err := s.fsys.OpenFile(final, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return err
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fsys.Remove(final)
	}
	return err
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := s.fsys.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// List walks the root directory and returns the sorted blob names with the
// given prefix, using '/' as separator. In-flight temporary files are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	if err := s.walk(ctx, "", prefix, &names); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) walk(ctx context.Context, rel, prefix string, out *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := s.fsys.ReadDir(s.path(rel))
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := path.Join(rel, e.Name())
		if e.IsDir() {
			if err := s.walk(ctx, name, prefix, out); err != nil {
				return err
			}
			continue
		}
		if strings.Contains(e.Name(), tmpMarker) || !strings.HasPrefix(name, prefix) {
			continue
		}
		*out = append(*out, name)
	}
	return nil
}

type mappedBlob struct {
	m *mmap.Mapping
}

func (b *mappedBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, mmap.ErrInvalidOffset
	}
	return b.m.ReadAt(p, off)
}

func (b *mappedBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	start, end := clampRange(b.Size(), off, length)
	r, err := b.m.Region(int(start), int(end-start))
	if err != nil {
		return nil, err
	}
	_ = r.Advise(mmap.AccessSequential)
	return io.NopCloser(bytes.NewReader(r.Bytes())), nil
}

func (b *mappedBlob) Bytes() ([]byte, error) {
	data := b.m.Bytes()
	if data == nil && b.m.Size() > 0 {
		return nil, mmap.ErrClosed
	}
	return data, nil
}

func (b *mappedBlob) Close() error { return b.m.Close() }

func (b *mappedBlob) Size() int64 { return int64(b.m.Size()) }

type fileBlob struct {
	f    fs.File
	size int64
}

func (b *fileBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	return b.f.ReadAt(p, off)
}

func (b *fileBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	start, end := clampRange(b.size, off, length)
	return io.NopCloser(io.NewSectionReader(b.f, start, end-start)), nil
}

func (b *fileBlob) Close() error { return b.f.Close() }

func (b *fileBlob) Size() int64 { return b.size }

type localWritableBlob struct {
	fsys   fs.FileSystem
	f      fs.File
	tmp    string
	final  string
	closed atomic.Bool
}

func (w *localWritableBlob) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return w.f.Write(p)
}

func (w *localWritableBlob) Sync() error { return w.f.Sync() }

func (w *localWritableBlob) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = w.fsys.Remove(w.tmp)
		return err
	}
	if err := w.f.Close(); err != nil {
		_ = w.fsys.Remove(w.tmp)
		return err
	}
	return w.fsys.Rename(w.tmp, w.final)
}

func (w *localWritableBlob) abort() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = w.f.Close()
	return w.fsys.Remove(w.tmp)
}
