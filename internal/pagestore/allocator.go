package pagestore

import (
	"fmt"
	"sort"
	"sync"
)

// Span is a run of records [Offset, Offset+Count).
type Span struct {
	Offset uint64
	Count  uint64
}

// End returns the first record after the span.
func (s Span) End() uint64 { return s.Offset + s.Count }

// Allocator hands out record runs in the page file.
//
// Freed runs go to a sorted free list and are merged with their neighbours. A
// run freed at the end of the file shrinks the file instead.
type Allocator struct {
	mu    sync.Mutex
	free  []Span // sorted by Offset, never adjacent
	end   uint64
	inUse uint64
}

// NewAllocator creates an allocator for an empty file.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate reserves count records and returns the first record offset.
func (a *Allocator) Allocate(count uint64) (uint64, error) {
	if count == 0 {
		return 0, fmt.Errorf("pagestore: cannot allocate zero records")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, s := range a.free {
		if s.Count < count {
			continue
		}
		off := s.Offset
		if s.Count == count {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = Span{Offset: s.Offset + count, Count: s.Count - count}
		}
		a.inUse += count
		return off, nil
	}

	off := a.end
	a.end += count
	a.inUse += count
	return off, nil
}

// Free returns a run to the allocator.
func (a *Allocator) Free(offset, count uint64) error {
	if count == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	span := Span{Offset: offset, Count: count}
	if span.End() > a.end {
		return fmt.Errorf("pagestore: free of [%d,%d) beyond end %d", span.Offset, span.End(), a.end)
	}

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Offset >= offset })
	if i > 0 && a.free[i-1].End() > offset {
		return fmt.Errorf("pagestore: double free at %d", offset)
	}
	if i < len(a.free) && span.End() > a.free[i].Offset {
		return fmt.Errorf("pagestore: double free at %d", offset)
	}

	a.inUse -= count

	// Merge with the following span.
	if i < len(a.free) && span.End() == a.free[i].Offset {
		span.Count += a.free[i].Count
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	// Merge with the preceding span.
	if i > 0 && a.free[i-1].End() == span.Offset {
		span.Offset = a.free[i-1].Offset
		span.Count += a.free[i-1].Count
		a.free = append(a.free[:i-1], a.free[i:]...)
		i--
	}

	if span.End() == a.end {
		a.end = span.Offset
		return nil
	}

	a.free = append(a.free, Span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span
	return nil
}

// End returns the number of records the file must hold.
func (a *Allocator) End() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.end
}

// InUse returns the number of allocated records.
func (a *Allocator) InUse() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// FreeSpans returns a copy of the free list.
func (a *Allocator) FreeSpans() []Span {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Span, len(a.free))
	copy(out, a.free)
	return out
}

// Validate checks that the free list is sorted, disjoint and inside the file.
func (a *Allocator) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var free uint64
	for i, s := range a.free {
		if s.Count == 0 {
			return fmt.Errorf("pagestore: empty free span at %d", s.Offset)
		}
		if i > 0 && a.free[i-1].End() >= s.Offset {
			return fmt.Errorf("pagestore: free spans %d and %d overlap or touch", a.free[i-1].Offset, s.Offset)
		}
		free += s.Count
	}
	if len(a.free) > 0 && a.free[len(a.free)-1].End() >= a.end {
		return fmt.Errorf("pagestore: free span reaches end of file")
	}
	if free+a.inUse != a.end {
		return fmt.Errorf("pagestore: accounting mismatch: free %d + used %d != end %d", free, a.inUse, a.end)
	}
	return nil
}
