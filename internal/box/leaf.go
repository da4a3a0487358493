package box

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/mdbox/internal/pagestore"
)

// MDBox is a leaf box holding events.
//
// When the tree is file-backed the events may live partly on disk: fileBacked
// marks an unloaded run of records at ref, and events holds whatever was added
// since. Any access to the full event set loads the disk run first.
type MDBox struct {
	ctrl    *Controller
	id      uint64
	depth   int
	extents Extents

	mu         sync.Mutex
	events     []Event
	fileBacked bool
	ref        pagestore.Ref
	numEvents  uint64
	signal     float64
	errSq      float64

	memBytes atomic.Int64
	masked   atomic.Bool
}

// NewLeaf creates an empty leaf and counts it in the controller.
func NewLeaf(ctrl *Controller, extents Extents, depth int) *MDBox {
	b := newLeaf(ctrl, extents, depth)
	ctrl.trackLeaf(depth)
	return b
}

func newLeaf(ctrl *Controller, extents Extents, depth int) *MDBox {
	return &MDBox{
		ctrl:    ctrl,
		id:      ctrl.IssueID(),
		depth:   depth,
		extents: extents,
	}
}

func (b *MDBox) ID() uint64              { return b.id }
func (b *MDBox) Depth() int              { return b.depth }
func (b *MDBox) Extents() Extents        { return b.extents }
func (b *MDBox) Controller() *Controller { return b.ctrl }
func (b *MDBox) IsMasked() bool          { return b.masked.Load() }

// SetMasked sets the mask flag directly.
func (b *MDBox) SetMasked(m bool) { b.masked.Store(m) }

func (b *MDBox) NumEvents() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.numEvents
}

func (b *MDBox) Signal() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signal
}

func (b *MDBox) ErrorSquared() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errSq
}

// IsFileBacked reports whether part of the events is only on disk.
func (b *MDBox) IsFileBacked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fileBacked
}

// DiskRef returns the page file run of the unloaded events.
func (b *MDBox) DiskRef() pagestore.Ref {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ref
}

// InMemoryEvents returns the number of events held in memory.
func (b *MDBox) InMemoryEvents() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *MDBox) AddEvent(ev Event) bool {
	if !b.extents.ContainsEvent(ev) {
		return false
	}
	b.addEvent(ev)
	return true
}

func (b *MDBox) AddEvents(evs []Event) int {
	in := make([]Event, 0, len(evs))
	for _, ev := range evs {
		if b.extents.ContainsEvent(ev) {
			in = append(in, ev)
		}
	}
	b.addEvents(in)
	return len(in)
}

func (b *MDBox) addEvent(ev Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.numEvents++
	b.signal += ev.signal
	b.errSq += ev.errorSquared
	b.updateMemLocked()
	b.mu.Unlock()

	b.ctrl.touch(context.Background(), b)
}

func (b *MDBox) addEvents(evs []Event) {
	if len(evs) == 0 {
		return
	}
	var s, e float64
	for i := range evs {
		s += evs[i].signal
		e += evs[i].errorSquared
	}

	b.mu.Lock()
	b.events = append(b.events, evs...)
	b.numEvents += uint64(len(evs))
	b.signal += s
	b.errSq += e
	b.updateMemLocked()
	b.mu.Unlock()

	b.ctrl.touch(context.Background(), b)
}

// Events returns a copy of all events, loading file-backed data first.
func (b *MDBox) Events(ctx context.Context) ([]Event, error) {
	b.mu.Lock()
	if err := b.loadLocked(ctx); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	b.mu.Unlock()

	b.ctrl.touch(ctx, b)
	return out, nil
}

// SetEvents replaces the events and recomputes the aggregates. The box
// takes ownership of evs.
func (b *MDBox) SetEvents(evs []Event) {
	b.mu.Lock()
	b.dropDiskLocked()
	b.events = evs
	b.recomputeLocked()
	b.updateMemLocked()
	b.mu.Unlock()

	b.ctrl.touch(context.Background(), b)
}

func (b *MDBox) RefreshCache(ctx context.Context) error {
	b.mu.Lock()
	if err := b.loadLocked(ctx); err != nil {
		b.mu.Unlock()
		return err
	}
	b.recomputeLocked()
	b.mu.Unlock()

	b.ctrl.touch(ctx, b)
	return nil
}

// Load brings file-backed events into memory.
func (b *MDBox) Load(ctx context.Context) error {
	b.mu.Lock()
	wasBacked := b.fileBacked
	err := b.loadLocked(ctx)
	b.mu.Unlock()

	if err == nil && wasBacked {
		b.ctrl.touch(ctx, b)
	}
	return err
}

// PageKey implements pagestore.Pageable.
func (b *MDBox) PageKey() uint64 { return b.id }

// InMemoryBytes implements pagestore.Pageable.
func (b *MDBox) InMemoryBytes() int64 { return b.memBytes.Load() }

// PageOut writes the in-memory events to the page file and releases them.
// Events already on disk are rewritten together with them into one run.
func (b *MDBox) PageOut(ctx context.Context) (int64, error) {
	buf := b.ctrl.buffer
	if buf == nil {
		return 0, nil
	}
	store := buf.Store()

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return 0, nil
	}

	kind, nd := b.ctrl.EventKind(), b.ctrl.NumDims()
	var data []byte
	if b.fileBacked {
		old, err := store.Read(ctx, b.ref)
		if err != nil {
			return 0, fmt.Errorf("%w: box %d: %w", ErrPageIO, b.id, err)
		}
		data = old
	}
	data = EncodeEvents(data, b.events, kind, nd)

	ref, err := store.Write(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("%w: box %d: %w", ErrPageIO, b.id, err)
	}
	if b.fileBacked {
		if err := store.Free(b.ref); err != nil {
			b.ctrl.logger.Warn("free page run failed", "box", b.id, "error", err)
		}
	}

	released := b.memBytes.Load()
	b.events = nil
	b.fileBacked = true
	b.ref = ref
	b.memBytes.Store(0)

	b.ctrl.logger.Debug("paged out box", "box", b.id, "events", ref.Count)
	return released, nil
}

// ClearFileBacked detaches the box from the page file. With loadData the disk
// events are loaded first; otherwise they are discarded and their number is
// returned.
func (b *MDBox) ClearFileBacked(ctx context.Context, loadData bool) (uint64, error) {
	if loadData {
		return 0, b.Load(ctx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.fileBacked {
		return 0, nil
	}
	lost := b.ref.Count
	b.dropDiskLocked()
	b.recomputeLocked()
	return lost, nil
}

// loadLocked prepends the disk run to the in-memory events. On failure the
// box is left untouched.
func (b *MDBox) loadLocked(ctx context.Context) error {
	if !b.fileBacked {
		return nil
	}
	buf := b.ctrl.buffer
	if buf == nil {
		return fmt.Errorf("%w: box %d is file-backed but the tree has no page file", ErrPageIO, b.id)
	}
	store := buf.Store()

	data, err := store.Read(ctx, b.ref)
	if err != nil {
		return fmt.Errorf("%w: box %d: %w", ErrPageIO, b.id, err)
	}
	disk, err := DecodeEvents(data, b.ctrl.EventKind(), b.ctrl.NumDims())
	if err != nil {
		return fmt.Errorf("%w: box %d: %w", ErrPageIO, b.id, err)
	}

	if err := store.Free(b.ref); err != nil {
		b.ctrl.logger.Warn("free page run failed", "box", b.id, "error", err)
	}
	b.events = append(disk, b.events...)
	b.fileBacked = false
	b.ref = pagestore.Ref{}
	b.updateMemLocked()
	return nil
}

func (b *MDBox) dropDiskLocked() {
	if !b.fileBacked {
		return
	}
	if buf := b.ctrl.buffer; buf != nil {
		_ = buf.Store().Free(b.ref)
	}
	b.fileBacked = false
	b.ref = pagestore.Ref{}
}

func (b *MDBox) recomputeLocked() {
	var s, e float64
	for i := range b.events {
		s += b.events[i].signal
		e += b.events[i].errorSquared
	}
	b.numEvents = uint64(len(b.events))
	b.signal = s
	b.errSq = e
}

func (b *MDBox) updateMemLocked() {
	b.memBytes.Store(int64(len(b.events) * b.ctrl.RecordSize()))
}

func (b *MDBox) setMasking(region Extents) {
	if b.extents.Overlaps(region) {
		b.masked.Store(true)
	}
}

func (b *MDBox) clearMasking() { b.masked.Store(false) }

func (b *MDBox) collect(dst []Box, maxDepth int, _ bool) []Box {
	if b.depth > maxDepth {
		return dst
	}
	return append(dst, b)
}

func (b *MDBox) integrate(ctx context.Context, region Extents) (float64, float64, error) {
	if b.IsMasked() {
		return 0, 0, nil
	}
	if b.extents.Within(region) {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.signal, b.errSq, nil
	}

	evs, err := b.Events(ctx)
	if err != nil {
		return 0, 0, err
	}
	var s, e float64
	for i := range evs {
		if region.ContainsEvent(evs[i]) {
			s += evs[i].signal
			e += evs[i].errorSquared
		}
	}
	return s, e, nil
}

// split replaces the leaf by a grid box holding its events. On error the leaf
// is unchanged.
func (b *MDBox) split(ctx context.Context) (*MDGridBox, error) {
	// Stop tracking first so redistribution cannot select this box for paging.
	b.ctrl.forget(b.id)

	b.mu.Lock()
	if err := b.loadLocked(ctx); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	evs := b.events
	b.events = nil
	b.numEvents, b.signal, b.errSq = 0, 0, 0
	b.memBytes.Store(0)
	b.mu.Unlock()

	g := newGrid(b.ctrl, b.id, b.extents, b.depth)
	g.addEvents(evs)

	b.ctrl.trackSplit(b.depth, len(g.children))
	return g, nil
}
