package mdbox

import (
	"context"

	"github.com/hupe1980/mdbox/internal/box"
)

// Iterator walks a contiguous run of leaf boxes.
//
// An Iterator is not safe for concurrent use; CreateIterators returns one per
// worker.
type Iterator struct {
	leaves []*box.MDBox
	pos    int
}

// CreateIterators partitions the leaves of the tree, in depth-first order,
// into at most n contiguous runs of near-equal length and returns one
// Iterator per run. n < 1 is treated as 1. The iterators are invalidated by
// the next split pass.
func (w *Workspace) CreateIterators(n int) []*Iterator {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.readyLocked() != nil {
		return nil
	}
	leaves := box.Leaves(w.root)
	if n < 1 {
		n = 1
	}
	n = min(n, max(len(leaves), 1))

	out := make([]*Iterator, 0, n)
	per, rem := len(leaves)/n, len(leaves)%n
	start := 0
	for i := range n {
		size := per
		if i < rem {
			size++
		}
		out = append(out, &Iterator{leaves: leaves[start : start+size], pos: -1})
		start += size
	}
	return out
}

// Next advances to the next leaf and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.pos < len(it.leaves) {
		it.pos++
	}
	return it.pos < len(it.leaves)
}

// Reset rewinds the iterator to before its first leaf.
func (it *Iterator) Reset() { it.pos = -1 }

// Len returns the number of leaves the iterator covers.
func (it *Iterator) Len() int { return len(it.leaves) }

func (it *Iterator) current() *box.MDBox {
	if it.pos < 0 || it.pos >= len(it.leaves) {
		return nil
	}
	return it.leaves[it.pos]
}

// Box returns the current leaf, or nil when the iterator is not positioned.
func (it *Iterator) Box() *MDBox { return it.current() }

// Signal returns the signal of the current leaf, or NoData if it is masked.
func (it *Iterator) Signal(norm Normalization) float64 {
	return box.Normalize(it.current(), norm)
}

// ErrorSquared returns the squared error of the current leaf.
func (it *Iterator) ErrorSquared() float64 {
	if b := it.current(); b != nil {
		return b.ErrorSquared()
	}
	return 0
}

// NumEvents returns the event count of the current leaf.
func (it *Iterator) NumEvents() uint64 {
	if b := it.current(); b != nil {
		return b.NumEvents()
	}
	return 0
}

// Center returns the center of the current leaf.
func (it *Iterator) Center() []float64 {
	if b := it.current(); b != nil {
		return b.Extents().Center()
	}
	return nil
}

// IsMasked reports whether the current leaf is masked.
func (it *Iterator) IsMasked() bool {
	b := it.current()
	return b != nil && b.IsMasked()
}

// Events returns a copy of the current leaf's events, loading them from the
// page file if needed.
func (it *Iterator) Events(ctx context.Context) ([]Event, error) {
	b := it.current()
	if b == nil {
		return nil, nil
	}
	return b.Events(ctx)
}
