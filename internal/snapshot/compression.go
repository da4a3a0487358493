package snapshot

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the event block codec.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses the names produced by String.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("%w: unknown compression %q", ErrIncompatibleFormat, s)
}

func (c Compression) valid() bool { return c <= CompressionZstd }

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	return dec
}

const blockHeaderSize = 8

// appendBlock appends the block header and the (possibly compressed) data.
// Data that does not shrink below 90% is stored raw.
func appendBlock(dst, data []byte, c Compression) ([]byte, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("snapshot: event block of %d bytes exceeds 4GiB", len(data))
	}

	var packed []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot: lz4: %w", err)
		}
		packed = buf[:n]
	case CompressionZstd:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	stored := uint32(0)
	payload := data
	if len(packed) > 0 && float64(len(packed)) <= float64(len(data))*0.9 {
		stored = uint32(len(packed))
		payload = packed
	}

	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(data)))
	dst = binary.LittleEndian.AppendUint32(dst, stored)
	return append(dst, payload...), nil
}

// readBlock parses a block written by appendBlock and returns the raw event
// bytes and the number of bytes consumed.
func readBlock(src []byte, c Compression) ([]byte, int, error) {
	if len(src) < blockHeaderSize {
		return nil, 0, fmt.Errorf("%w: block header truncated", ErrCorrupt)
	}
	raw := binary.LittleEndian.Uint32(src[0:])
	stored := binary.LittleEndian.Uint32(src[4:])
	body := src[blockHeaderSize:]

	if stored == 0 {
		if uint64(len(body)) < uint64(raw) {
			return nil, 0, fmt.Errorf("%w: block truncated", ErrCorrupt)
		}
		return body[:raw], blockHeaderSize + int(raw), nil
	}

	if uint64(len(body)) < uint64(stored) {
		return nil, 0, fmt.Errorf("%w: compressed block truncated", ErrCorrupt)
	}
	body = body[:stored]
	out := make([]byte, raw)

	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil || uint32(n) != raw {
			return nil, 0, fmt.Errorf("%w: lz4 block: size %d of %d: %v", ErrCorrupt, n, raw, err)
		}
	case CompressionZstd:
		dec := getZstdDecoder()
		decoded, err := dec.DecodeAll(body, out[:0])
		zstdDecoderPool.Put(dec)
		if err != nil || uint32(len(decoded)) != raw {
			return nil, 0, fmt.Errorf("%w: zstd block: size %d of %d: %v", ErrCorrupt, len(decoded), raw, err)
		}
		out = decoded
	default:
		return nil, 0, fmt.Errorf("%w: compressed block with compression %s", ErrCorrupt, c)
	}
	return out, blockHeaderSize + int(stored), nil
}
