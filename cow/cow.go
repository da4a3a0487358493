// Package cow provides a reference-counted copy-on-write array of float64.
//
// Histogram Y/E arrays and bin edges are shared between caches, workspaces and
// callers. An Array handle is cheap to copy with Share; the underlying storage
// is duplicated only when a holder asks for write access while it is shared.
package cow

import (
	"sync/atomic"
)

type buffer struct {
	data []float64
	refs atomic.Int32
}

// Array is a handle to shared float64 storage.
// The zero value is an empty array.
type Array struct {
	buf *buffer
}

// New wraps data without copying. The caller hands over ownership.
func New(data []float64) Array {
	b := &buffer{data: data}
	b.refs.Store(1)
	return Array{buf: b}
}

// Zeros returns a new array of n zeros.
func Zeros(n int) Array {
	return New(make([]float64, n))
}

// FromSlice copies data into a new array.
func FromSlice(data []float64) Array {
	cp := make([]float64, len(data))
	copy(cp, data)
	return New(cp)
}

// Share returns another handle to the same storage.
func (a Array) Share() Array {
	if a.buf != nil {
		a.buf.refs.Add(1)
	}
	return a
}

// Release drops this handle's reference. The handle must not be used afterwards.
func (a *Array) Release() {
	if a.buf != nil {
		a.buf.refs.Add(-1)
		a.buf = nil
	}
}

// Read returns the shared storage. The slice must be treated as read-only.
func (a Array) Read() []float64 {
	if a.buf == nil {
		return nil
	}
	return a.buf.data
}

// Access returns a slice the caller may mutate, copying the storage first if
// any other handle shares it.
func (a *Array) Access() []float64 {
	if a.buf == nil {
		return nil
	}
	if a.buf.refs.Load() > 1 {
		cp := make([]float64, len(a.buf.data))
		copy(cp, a.buf.data)
		a.buf.refs.Add(-1)
		a.buf = &buffer{data: cp}
		a.buf.refs.Store(1)
	}
	return a.buf.data
}

// Len returns the number of elements.
func (a Array) Len() int {
	if a.buf == nil {
		return 0
	}
	return len(a.buf.data)
}

// IsShared reports whether another handle references the same storage.
func (a Array) IsShared() bool {
	return a.buf != nil && a.buf.refs.Load() > 1
}

// SameStorage reports whether both handles reference the same storage.
func (a Array) SameStorage(b Array) bool {
	return a.buf != nil && a.buf == b.buf
}

// Equal compares element-wise.
func (a Array) Equal(b Array) bool {
	x, y := a.Read(), b.Read()
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
