package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	// It matches os.ErrNotExist under errors.Is.
	ErrNotFound = os.ErrNotExist

	// ErrExists is returned by PutIfNotExists when the name is taken.
	ErrExists = errors.New("blobstore: blob already exists")
)

// BlobStore stores immutable named blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a streaming write. The blob becomes visible on Close.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a whole blob atomically, replacing any previous one.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ConditionalPutter is implemented by stores that can refuse to overwrite.
type ConditionalPutter interface {
	// PutIfNotExists writes data only if name does not exist yet and returns
	// ErrExists otherwise.
	PutIfNotExists(ctx context.Context, name string, data []byte) error
}

// Blob is a read-only handle to a stored blob.
type Blob interface {
	io.Closer
	// Size returns the blob length in bytes.
	Size() int64
	// ReadAt follows io.ReaderAt semantics.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange streams length bytes starting at off, clamped to the blob.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
}

// WritableBlob is a blob being written.
type WritableBlob interface {
	io.Writer
	io.Closer
	Sync() error
}

// Mappable is implemented by blobs whose bytes are already addressable.
type Mappable interface {
	// Bytes returns the blob contents without copying.
	// The slice is valid until the blob is closed.
	Bytes() ([]byte, error)
}

// ReadAll returns the full contents of b. Mappable blobs are returned
// without copying; the result is then only valid until b is closed.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	if m, ok := b.(Mappable); ok {
		return m.Bytes()
	}

	buf := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, buf, 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, fmt.Errorf("blobstore: read %d bytes: %w", len(buf), err)
	}
	return buf[:n], nil
}

// PutIfNotExists writes data under name unless it already exists. Stores
// implementing ConditionalPutter decide atomically; others fall back to an
// Open probe followed by Put.
func PutIfNotExists(ctx context.Context, s BlobStore, name string, data []byte) error {
	if cp, ok := s.(ConditionalPutter); ok {
		return cp.PutIfNotExists(ctx, name, data)
	}

	b, err := s.Open(ctx, name)
	if err == nil {
		_ = b.Close()
		return ErrExists
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.Put(ctx, name, data)
}

func clampRange(size, off, length int64) (int64, int64) {
	if off < 0 {
		off = 0
	}
	if off > size {
		off = size
	}
	end := off + length
	if length < 0 || end > size {
		end = size
	}
	return off, end
}
