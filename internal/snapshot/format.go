package snapshot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/mdbox/blobstore"
	"github.com/hupe1980/mdbox/codec"
	"github.com/hupe1980/mdbox/internal/hash"
)

const (
	// Magic opens every snapshot.
	Magic = "MDBX"
	// Version is the format version written by Encode.
	Version uint16 = 1

	fixedPrefix = 4 + 2 + 1
	maxPrefix   = fixedPrefix + 255 + 1 + 4
	trailerSize = 4
)

// Header is the decoded fixed part of a snapshot.
type Header struct {
	Version      uint16
	Codec        string
	Compression  Compression
	ManifestSize uint32

	// Set by Decode only.
	BlockSize  uint32
	StoredSize uint32
	Checksum   uint32
}

// Snapshot is a fully decoded and verified blob.
type Snapshot struct {
	Header   Header
	Manifest *Manifest
	// Block holds the raw event records referenced by the manifest leaves.
	Block []byte
}

// Encode serializes m and the event block.
func Encode(c codec.Codec, comp Compression, m *Manifest, block []byte) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	if len(c.Name()) > 255 {
		return nil, fmt.Errorf("snapshot: codec name %q too long", c.Name())
	}
	if !comp.valid() {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrIncompatibleFormat, comp)
	}

	mb, err := c.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode manifest with %s: %w", c.Name(), err)
	}

	out := make([]byte, 0, maxPrefix+len(mb)+blockHeaderSize+len(block)+trailerSize)
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint16(out, Version)
	out = append(out, byte(len(c.Name())))
	out = append(out, c.Name()...)
	out = append(out, byte(comp))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(mb)))
	out = append(out, mb...)

	out, err = appendBlock(out, block, comp)
	if err != nil {
		return nil, err
	}
	return binary.LittleEndian.AppendUint32(out, hash.CRC32C(out)), nil
}

// parsePrefix decodes everything up to the manifest bytes and returns the
// header and the offset where the manifest starts.
func parsePrefix(data []byte) (Header, int, error) {
	var h Header
	if len(data) < fixedPrefix {
		return h, 0, fmt.Errorf("%w: %d bytes is too short", ErrIncompatibleFormat, len(data))
	}
	if string(data[:4]) != Magic {
		return h, 0, fmt.Errorf("%w: bad magic %q", ErrIncompatibleFormat, data[:4])
	}
	h.Version = binary.LittleEndian.Uint16(data[4:])
	if h.Version == 0 || h.Version > Version {
		return h, 0, fmt.Errorf("%w: version %d, supported up to %d", ErrIncompatibleFormat, h.Version, Version)
	}

	n := int(data[6])
	off := fixedPrefix
	if len(data) < off+n+1+4 {
		return h, 0, fmt.Errorf("%w: header truncated", ErrCorrupt)
	}
	h.Codec = string(data[off : off+n])
	off += n
	h.Compression = Compression(data[off])
	off++
	h.ManifestSize = binary.LittleEndian.Uint32(data[off:])
	off += 4

	if !h.Compression.valid() {
		return h, 0, fmt.Errorf("%w: unknown compression %d", ErrIncompatibleFormat, h.Compression)
	}
	return h, off, nil
}

func decodeManifest(h Header, data []byte) (*Manifest, error) {
	c, ok := codec.ByName(h.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: unknown manifest codec %q", ErrIncompatibleFormat, h.Codec)
	}
	m := &Manifest{}
	if err := c.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrCorrupt, err)
	}
	return m, nil
}

// Decode verifies the checksum and decodes a whole snapshot. The returned
// block may alias data when it was stored uncompressed.
func Decode(data []byte) (*Snapshot, error) {
	h, off, err := parsePrefix(data)
	if err != nil {
		return nil, err
	}
	if len(data) < off+int(h.ManifestSize)+blockHeaderSize+trailerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrCorrupt, len(data))
	}

	body := data[:len(data)-trailerSize]
	h.Checksum = binary.LittleEndian.Uint32(data[len(body):])
	if got := hash.CRC32C(body); got != h.Checksum {
		return nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorrupt, got, h.Checksum)
	}

	mEnd := off + int(h.ManifestSize)
	m, err := decodeManifest(h, body[off:mEnd])
	if err != nil {
		return nil, err
	}

	h.BlockSize = binary.LittleEndian.Uint32(body[mEnd:])
	h.StoredSize = binary.LittleEndian.Uint32(body[mEnd+4:])
	block, n, err := readBlock(body[mEnd:], h.Compression)
	if err != nil {
		return nil, err
	}
	if mEnd+n != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body)-mEnd-n)
	}

	return &Snapshot{Header: h, Manifest: m, Block: block}, nil
}

// ReadHeader reads the header and manifest of a stored snapshot without
// fetching the event block.
func ReadHeader(ctx context.Context, b blobstore.Blob) (Header, *Manifest, error) {
	size := b.Size()
	prefix := make([]byte, min(int64(maxPrefix), size))
	if _, err := b.ReadAt(ctx, prefix, 0); err != nil && !errors.Is(err, io.EOF) {
		return Header{}, nil, err
	}

	h, off, err := parsePrefix(prefix)
	if err != nil {
		return Header{}, nil, err
	}
	if int64(off)+int64(h.ManifestSize)+blockHeaderSize+trailerSize > size {
		return Header{}, nil, fmt.Errorf("%w: manifest of %d bytes exceeds blob", ErrCorrupt, h.ManifestSize)
	}

	mb := make([]byte, h.ManifestSize+blockHeaderSize)
	if _, err := b.ReadAt(ctx, mb, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return Header{}, nil, err
	}
	h.BlockSize = binary.LittleEndian.Uint32(mb[h.ManifestSize:])
	h.StoredSize = binary.LittleEndian.Uint32(mb[h.ManifestSize+4:])

	m, err := decodeManifest(h, mb[:h.ManifestSize])
	if err != nil {
		return Header{}, nil, err
	}
	return h, m, nil
}
