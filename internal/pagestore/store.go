package pagestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/mdbox/internal/fs"
	"github.com/hupe1980/mdbox/internal/hash"
	"github.com/hupe1980/mdbox/internal/resource"
)

// FileExt is the extension of page files.
const FileExt = ".mdpages"

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("pagestore: closed")
	// ErrShortRead is returned when the page file holds fewer bytes than a Ref covers.
	ErrShortRead = errors.New("pagestore: short read")
	// ErrChecksum is returned when records read back do not match the
	// checksum taken when they were written.
	ErrChecksum = errors.New("pagestore: checksum mismatch")
)

// Ref locates a run of records in the page file.
type Ref struct {
	Offset   uint64 // in records
	Count    uint64
	Checksum uint32 // CRC32C of the records
}

// IsZero reports whether the ref covers no records.
func (r Ref) IsZero() bool { return r.Count == 0 }

// Stats is a snapshot of page file usage.
type Stats struct {
	Path         string
	RecordSize   int
	FileRecords  uint64
	UsedRecords  uint64
	FreeSpans    int
	BytesWritten int64
	BytesRead    int64
	WriteCount   int64
	ReadCount    int64
}

// Store is a page file of fixed-size records.
type Store struct {
	fsys       fs.FileSystem
	path       string
	recordSize int
	alloc      *Allocator
	rc         *resource.Controller

	mu     sync.RWMutex // guards f and closed; I/O holds it shared
	f      fs.File
	closed bool

	statsMu      sync.Mutex
	bytesWritten int64
	bytesRead    int64
	writes       int64
	reads        int64
}

// Create creates a fresh page file with a unique name in dir.
func Create(fsys fs.FileSystem, dir string, recordSize int, rc *resource.Controller) (*Store, error) {
	if recordSize <= 0 {
		return nil, fmt.Errorf("pagestore: invalid record size %d", recordSize)
	}
	if fsys == nil {
		fsys = fs.Default
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pagestore: create dir: %w", err)
	}

	path := filepath.Join(dir, uuid.NewString()+FileExt)
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open %s: %w", path, err)
	}

	return &Store{
		fsys:       fsys,
		path:       path,
		recordSize: recordSize,
		alloc:      NewAllocator(),
		rc:         rc,
		f:          f,
	}, nil
}

// Path returns the page file path.
func (s *Store) Path() string { return s.path }

// RecordSize returns the size of one record in bytes.
func (s *Store) RecordSize() int { return s.recordSize }

// Allocator exposes the record allocator.
func (s *Store) Allocator() *Allocator { return s.alloc }

// Write stores data (a whole number of records) at a freshly allocated run.
func (s *Store) Write(ctx context.Context, data []byte) (Ref, error) {
	if len(data) == 0 || len(data)%s.recordSize != 0 {
		return Ref{}, fmt.Errorf("pagestore: write of %d bytes is not a multiple of record size %d", len(data), s.recordSize)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Ref{}, ErrClosed
	}

	if err := s.rc.AcquirePaging(ctx, len(data)); err != nil {
		return Ref{}, err
	}

	count := uint64(len(data) / s.recordSize)
	off, err := s.alloc.Allocate(count)
	if err != nil {
		return Ref{}, err
	}

	if _, err := s.f.WriteAt(data, int64(off)*int64(s.recordSize)); err != nil {
		_ = s.alloc.Free(off, count)
		return Ref{}, fmt.Errorf("pagestore: write %d records at %d: %w", count, off, err)
	}

	s.statsMu.Lock()
	s.bytesWritten += int64(len(data))
	s.writes++
	s.statsMu.Unlock()

	return Ref{Offset: off, Count: count, Checksum: checksum(data, s.recordSize)}, nil
}

// Read returns the bytes of the records ref covers.
func (s *Store) Read(ctx context.Context, ref Ref) ([]byte, error) {
	if ref.IsZero() {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	size := int(ref.Count) * s.recordSize
	if err := s.rc.AcquirePaging(ctx, size); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	n, err := s.f.ReadAt(buf, int64(ref.Offset)*int64(s.recordSize))
	if n < size {
		if err == nil {
			err = ErrShortRead
		}
		return nil, fmt.Errorf("pagestore: read %d records at %d: %w", ref.Count, ref.Offset, err)
	}
	if got := checksum(buf, s.recordSize); got != ref.Checksum {
		return nil, fmt.Errorf("pagestore: read %d records at %d: %w (got %08x, want %08x)",
			ref.Count, ref.Offset, ErrChecksum, got, ref.Checksum)
	}

	s.statsMu.Lock()
	s.bytesRead += int64(size)
	s.reads++
	s.statsMu.Unlock()

	return buf, nil
}

// checksum hashes data one record at a time.
func checksum(data []byte, recordSize int) uint32 {
	h := hash.NewCRC32C()
	for off := 0; off < len(data); off += recordSize {
		_, _ = h.Write(data[off : off+recordSize])
	}
	return h.Sum32()
}

// Free releases the records ref covers.
func (s *Store) Free(ref Ref) error {
	if ref.IsZero() {
		return nil
	}
	return s.alloc.Free(ref.Offset, ref.Count)
}

// Sync flushes the page file.
func (s *Store) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.f.Sync()
}

// Stats returns a usage snapshot.
func (s *Store) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		Path:         s.path,
		RecordSize:   s.recordSize,
		FileRecords:  s.alloc.End(),
		UsedRecords:  s.alloc.InUse(),
		FreeSpans:    len(s.alloc.FreeSpans()),
		BytesWritten: s.bytesWritten,
		BytesRead:    s.bytesRead,
		WriteCount:   s.writes,
		ReadCount:    s.reads,
	}
}

// Close closes and removes the page file. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.f.Close()
	if rmErr := s.fsys.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
