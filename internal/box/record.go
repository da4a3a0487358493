package box

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Record layout, little-endian:
//
//	signal f64 | errorSquared f64 | [runIndex u16 | detectorID i32] | coords f64 x N
const (
	leanHeaderSize = 16
	fullHeaderSize = leanHeaderSize + 6
)

// RecordSize returns the on-disk size of one event.
func RecordSize(kind EventKind, numDims int) int {
	if kind == EventKindFull {
		return fullHeaderSize + 8*numDims
	}
	return leanHeaderSize + 8*numDims
}

// EncodeEvents appends the records of evs to dst.
func EncodeEvents(dst []byte, evs []Event, kind EventKind, numDims int) []byte {
	size := RecordSize(kind, numDims)
	start := len(dst)
	dst = append(dst, make([]byte, size*len(evs))...)
	buf := dst[start:]

	le := binary.LittleEndian
	for i := range evs {
		ev := &evs[i]
		r := buf[i*size : (i+1)*size]
		le.PutUint64(r[0:], math.Float64bits(ev.signal))
		le.PutUint64(r[8:], math.Float64bits(ev.errorSquared))
		off := leanHeaderSize
		if kind == EventKindFull {
			le.PutUint16(r[off:], ev.runIndex)
			le.PutUint32(r[off+2:], uint32(ev.detectorID))
			off = fullHeaderSize
		}
		for d := 0; d < numDims; d++ {
			le.PutUint64(r[off+8*d:], math.Float64bits(ev.coords[d]))
		}
	}
	return dst
}

// DecodeEvents parses records produced by EncodeEvents.
func DecodeEvents(buf []byte, kind EventKind, numDims int) ([]Event, error) {
	size := RecordSize(kind, numDims)
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("box: %d bytes is not a multiple of record size %d", len(buf), size)
	}

	le := binary.LittleEndian
	evs := make([]Event, len(buf)/size)
	for i := range evs {
		r := buf[i*size : (i+1)*size]
		ev := &evs[i]
		ev.nd = uint8(numDims)
		ev.signal = math.Float64frombits(le.Uint64(r[0:]))
		ev.errorSquared = math.Float64frombits(le.Uint64(r[8:]))
		off := leanHeaderSize
		if kind == EventKindFull {
			ev.runIndex = le.Uint16(r[off:])
			ev.detectorID = int32(le.Uint32(r[off+2:]))
			off = fullHeaderSize
		}
		for d := 0; d < numDims; d++ {
			ev.coords[d] = math.Float64frombits(le.Uint64(r[off+8*d:]))
		}
	}
	return evs, nil
}
