package mdbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/mdbox/internal/box"
	"github.com/hupe1980/mdbox/internal/pagestore"
	"github.com/hupe1980/mdbox/internal/resource"
	"github.com/hupe1980/mdbox/internal/task"
)

// Workspace is a multidimensional event workspace: a box tree over declared
// extents that splits as events accumulate.
//
// AddEvents and the query methods may be called concurrently. Split passes,
// Open and Close take the workspace exclusively, so no traversal observes a
// subtree being split. Boxes returned by GetBoxes or CreateIterators must not
// be used across a split pass.
type Workspace struct {
	mu sync.RWMutex

	id      uuid.UUID
	opts    options
	logger  *Logger
	metrics MetricsCollector
	rc      *resource.Controller
	sched   task.Scheduler

	ctrl    *box.Controller
	root    box.Box
	dims    []Dimension
	extents box.Extents
	masks   []box.Extents
	pages   *pagestore.Store
	closed  bool
}

// AddResult reports the outcome of AddEventsReport.
type AddResult struct {
	Added   int
	Dropped int
}

// Stats is a snapshot of the workspace state.
type Stats struct {
	NumDims             int
	NumEvents           uint64
	TotalNumMDBoxes     int64
	TotalNumMDGridBoxes int64
	MaxDepthReached     int64
	BoxesPerDepth       []int64
	MaskRegions         int

	FileBacked       bool
	FileBackedLeaves int
	InMemoryBytes    int64
	PageFileRecords  uint64
	PageFileUsed     uint64
	PagedOutBytes    int64
	PagedInBytes     int64
}

// New returns an empty workspace. Call Initialize before adding events.
func New(opts ...Option) *Workspace {
	o := applyOptions(opts)
	rc := resource.NewController(resource.Config{
		MaxWorkers:        int64(o.workers),
		PagingBytesPerSec: o.pagingRate,
	})

	var sched task.Scheduler = task.Sequential{}
	if o.workers > 1 {
		sched = task.NewPool(rc)
	}

	id := uuid.New()
	return &Workspace{
		id:      id,
		opts:    o,
		logger:  o.logger.WithWorkspace(id.String()),
		metrics: o.metricsCollector,
		rc:      rc,
		sched:   sched,
	}
}

// Initialize creates the root box over dims with the given split policy.
// It fails with ErrInvalidArgument when called twice or when any dimension
// has min >= max, and with ErrInvalidConfiguration for a policy that cannot
// make progress.
func (w *Workspace) Initialize(dims []Dimension, cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.root != nil {
		return fmt.Errorf("%w: workspace already initialized", ErrInvalidArgument)
	}
	if err := validateDimensions(dims); err != nil {
		return err
	}
	bc, err := cfg.boxConfig(len(dims))
	if err != nil {
		return err
	}
	if err := w.setup(dims, bc); err != nil {
		return err
	}
	w.root = box.NewLeaf(w.ctrl, w.extents, 0)

	w.logger.Debug("workspace initialized",
		"dims", len(dims),
		"split_into", bc.SplitInto,
		"split_threshold", bc.SplitThreshold,
		"max_depth", bc.MaxDepth,
		"file_backed", w.pages != nil,
	)
	return nil
}

// setup creates the controller and, when configured, the page file.
func (w *Workspace) setup(dims []Dimension, bc box.Config) error {
	if err := bc.Validate(); err != nil {
		return err
	}

	ctrlOpts := []box.ControllerOption{
		box.WithResourceController(w.rc),
		box.WithLogger(w.logger.Logger),
	}
	var pages *pagestore.Store
	if w.opts.fileBackingDir != "" {
		var err error
		pages, err = pagestore.Create(w.opts.fsys, w.opts.fileBackingDir, box.RecordSize(bc.EventKind, bc.NumDims), w.rc)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPageIO, err)
		}
		buf := pagestore.NewDiskBuffer(pages, w.opts.memoryLimit, w.rc, w.logger.Logger)
		ctrlOpts = append(ctrlOpts, box.WithDiskBuffer(buf))
	}

	ctrl, err := box.NewController(bc, ctrlOpts...)
	if err != nil {
		if pages != nil {
			_ = pages.Close()
		}
		return err
	}

	extents := make(box.Extents, len(dims))
	for i, d := range dims {
		extents[i] = box.Extent{Min: d.Min, Max: d.Max}
	}

	w.ctrl = ctrl
	w.pages = pages
	w.dims = append([]Dimension(nil), dims...)
	w.extents = extents
	w.logger = w.logger.WithDimensions(len(dims))
	return nil
}

// readyLocked returns the error that prevents using the tree, if any.
func (w *Workspace) readyLocked() error {
	if w.closed {
		return ErrClosed
	}
	if w.root == nil {
		return ErrNotInitialized
	}
	return nil
}

// ID returns the workspace identifier. It survives Save and Open.
func (w *Workspace) ID() string { return w.id.String() }

// Dimensions returns the declared dimensions.
func (w *Workspace) Dimensions() []Dimension {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Dimension(nil), w.dims...)
}

// NumDims returns the dimensionality, or 0 before Initialize.
func (w *Workspace) NumDims() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.dims)
}

// Extents returns the root extents.
func (w *Workspace) Extents() Extents {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.extents.Clone()
}

// Config returns the split policy.
func (w *Workspace) Config() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.ctrl == nil {
		return Config{}
	}
	c := w.ctrl.Config()
	return Config{
		SplitInto:      c.SplitInto,
		SplitThreshold: c.SplitThreshold,
		MaxDepth:       c.MaxDepth,
		EventKind:      c.EventKind.String(),
	}
}

// AddEvents adds the events lying inside the workspace extents and returns
// how many were added. Events outside the extents are dropped silently; use
// AddEventsReport to see how many. An event with the wrong number of
// coordinates fails the whole call with *ErrDimensionMismatch before anything
// is added.
func (w *Workspace) AddEvents(evs []Event) (int, error) {
	r, err := w.AddEventsReport(evs)
	return r.Added, err
}

// AddEventsReport is AddEvents reporting both added and dropped counts.
func (w *Workspace) AddEventsReport(evs []Event) (AddResult, error) {
	ctx := context.Background()
	start := time.Now()

	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.readyLocked(); err != nil {
		w.metrics.RecordAddEvents(0, 0, time.Since(start), err)
		return AddResult{}, err
	}

	nd := len(w.dims)
	for i := range evs {
		if evs[i].NumDims() != nd {
			err := &ErrDimensionMismatch{Expected: nd, Actual: evs[i].NumDims()}
			w.metrics.RecordAddEvents(0, 0, time.Since(start), err)
			w.logger.LogAddEvents(ctx, 0, 0, err)
			return AddResult{}, err
		}
	}

	before := w.pageStats()
	added := w.root.AddEvents(evs)
	res := AddResult{Added: added, Dropped: len(evs) - added}
	w.recordPaging(ctx, before, nil)

	w.metrics.RecordAddEvents(res.Added, res.Dropped, time.Since(start), nil)
	w.logger.LogAddEvents(ctx, res.Added, res.Dropped, nil)
	return res, nil
}

// AddEvent adds a single event and reports whether it was inside the extents.
func (w *Workspace) AddEvent(ev Event) (bool, error) {
	n, err := w.AddEvents([]Event{ev})
	return n == 1, err
}

// SplitAllIfNeeded splits every leaf holding more than the split threshold,
// recursively, until no leaf below the maximum depth is overfull. Independent
// subtrees are handed to sched; a nil sched uses the workspace workers.
// Cancellation is observed between work items. Mask regions set with
// SetMDMasking are applied to the boxes the pass creates.
func (w *Workspace) SplitAllIfNeeded(ctx context.Context, sched Scheduler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.readyLocked(); err != nil {
		return err
	}
	if sched == nil {
		sched = w.sched
	}

	start := time.Now()
	before := w.ctrl.Stats()
	pagesBefore := w.pageStats()

	root, err := box.SplitAllIfNeeded(ctx, w.root, sched)
	// The root may have been replaced even if a later work item failed.
	w.root = root
	for _, region := range w.masks {
		box.SetMasking(w.root, region)
	}

	after := w.ctrl.Stats()
	w.recordPaging(ctx, pagesBefore, nil)
	w.metrics.RecordSplit(after.TotalNumMDGridBoxes-before.TotalNumMDGridBoxes, time.Since(start), err)
	w.logger.LogSplit(ctx, after.TotalNumMDBoxes, after.TotalNumMDGridBoxes, after.MaxDepthReached, err)
	return err
}

// RefreshCache recomputes every box aggregate from the stored events,
// loading file-backed leaves.
func (w *Workspace) RefreshCache(ctx context.Context) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.readyLocked(); err != nil {
		return err
	}
	before := w.pageStats()
	err := w.root.RefreshCache(ctx)
	w.recordPaging(ctx, before, err)
	return err
}

// GetBoxes returns the boxes depth-first, each exactly once, none deeper than
// maxDepth. A negative maxDepth or an uninitialized workspace yields nil.
func (w *Workspace) GetBoxes(maxDepth int, leafOnly bool) []Box {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.readyLocked() != nil {
		return nil
	}
	return box.GetBoxes(w.root, maxDepth, leafOnly)
}

// Root returns the root box, or nil before Initialize.
func (w *Workspace) Root() Box {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root
}

// NumEvents returns the number of events stored in the workspace.
func (w *Workspace) NumEvents() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.root == nil {
		return 0
	}
	return w.root.NumEvents()
}

// SetMDMasking masks every leaf overlapping region. Masked leaves answer
// signal queries with NoData; their events and aggregates are kept.
func (w *Workspace) SetMDMasking(region Extents) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.readyLocked(); err != nil {
		return err
	}
	if len(region) != len(w.dims) {
		return &ErrDimensionMismatch{Expected: len(w.dims), Actual: len(region)}
	}
	if err := region.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	w.masks = append(w.masks, region.Clone())
	box.SetMasking(w.root, region)
	return nil
}

// ClearMDMasking removes every mask.
func (w *Workspace) ClearMDMasking() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.readyLocked(); err != nil {
		return err
	}
	w.masks = nil
	box.ClearMasking(w.root)
	return nil
}

// MaskRegions returns the regions passed to SetMDMasking since the last
// ClearMDMasking.
func (w *Workspace) MaskRegions() []Extents {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Extents, len(w.masks))
	for i, r := range w.masks {
		out[i] = r.Clone()
	}
	return out
}

// GetSignalAtCoord returns the normalized signal of the leaf containing
// coords. It returns NoData outside the extents, in a masked leaf, for a
// coordinate count that does not match, and before Initialize.
func (w *Workspace) GetSignalAtCoord(coords []float64, norm Normalization) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.readyLocked() != nil || len(coords) != len(w.dims) {
		return NoData
	}
	return box.SignalAt(w.root, coords, norm)
}

// IntegrateBox sums signal and squared error of the unmasked events inside
// region.
func (w *Workspace) IntegrateBox(ctx context.Context, region Extents) (signal, errorSquared float64, err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.readyLocked(); err != nil {
		return 0, 0, err
	}
	if len(region) != len(w.dims) {
		return 0, 0, &ErrDimensionMismatch{Expected: len(w.dims), Actual: len(region)}
	}
	before := w.pageStats()
	signal, errorSquared, err = box.IntegrateBox(ctx, w.root, region)
	w.recordPaging(ctx, before, err)
	return signal, errorSquared, err
}

// Stats returns a snapshot of the workspace state.
func (w *Workspace) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st := Stats{
		NumDims:     len(w.dims),
		MaskRegions: len(w.masks),
	}
	if w.root == nil {
		return st
	}
	cs := w.ctrl.Stats()
	st.NumEvents = w.root.NumEvents()
	st.TotalNumMDBoxes = cs.TotalNumMDBoxes
	st.TotalNumMDGridBoxes = cs.TotalNumMDGridBoxes
	st.MaxDepthReached = cs.MaxDepthReached
	st.BoxesPerDepth = cs.BoxesPerDepth

	if buf := w.ctrl.DiskBuffer(); buf != nil && w.pages != nil {
		ps := w.pages.Stats()
		st.FileBacked = true
		st.FileBackedLeaves = box.CountFileBacked(w.root)
		st.InMemoryBytes = buf.InMemoryBytes()
		st.PageFileRecords = ps.FileRecords
		st.PageFileUsed = ps.UsedRecords
		st.PagedOutBytes = ps.BytesWritten
		st.PagedInBytes = ps.BytesRead
	}
	return st
}

// PageOut writes least recently used leaves to the page file until at most
// maxBytes of event data remain in memory. It returns the bytes released.
// Without file backing it does nothing.
func (w *Workspace) PageOut(ctx context.Context, maxBytes int64) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := w.readyLocked(); err != nil {
		return 0, err
	}
	buf := w.ctrl.DiskBuffer()
	if buf == nil {
		return 0, nil
	}
	before := w.pageStats()
	released, err := buf.Shrink(ctx, maxBytes)
	w.recordPaging(ctx, before, err)
	return released, err
}

// ClearFileBacked detaches every leaf from the page file and removes it.
//
// With loadData every paged-out event is loaded back into memory first. Without
// it, events that exist only in the page file are discarded: they are lost
// and the aggregates are recomputed without them. The number of discarded
// events is returned. On error the page file is kept.
func (w *Workspace) ClearFileBacked(ctx context.Context, loadData bool) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.readyLocked(); err != nil {
		return 0, err
	}
	if w.pages == nil {
		return 0, nil
	}

	before := w.pageStats()
	lost, err := box.ClearFileBacked(ctx, w.root, loadData)
	w.recordPaging(ctx, before, err)
	if err != nil {
		w.ctrl.ResumePaging()
		return lost, err
	}

	w.ctrl.SetDiskBuffer(nil)
	closeErr := w.pages.Close()
	w.pages = nil
	if lost > 0 {
		w.logger.Warn("file-backed events discarded", "events", lost)
	}
	return lost, closeErr
}

// IsFileBacked reports whether the workspace pages events to disk.
func (w *Workspace) IsFileBacked() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pages != nil
}

// Close releases the page file. Events still on disk are lost. Close is
// idempotent; other methods return ErrClosed afterwards.
func (w *Workspace) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if w.pages != nil {
		if w.ctrl != nil {
			w.ctrl.SuspendPaging()
			if buf := w.ctrl.DiskBuffer(); buf != nil {
				buf.Clear()
			}
		}
		if err := w.pages.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.pages = nil
	}
	return firstErr
}

func (w *Workspace) pageStats() pagestore.Stats {
	if w.pages == nil {
		return pagestore.Stats{}
	}
	return w.pages.Stats()
}

// recordPaging reports page file traffic since before.
func (w *Workspace) recordPaging(ctx context.Context, before pagestore.Stats, err error) {
	if w.pages == nil {
		return
	}
	after := w.pages.Stats()
	if in := after.BytesRead - before.BytesRead; in > 0 || err != nil {
		w.metrics.RecordPageIn(in, err)
		w.logger.LogPageIn(ctx, in, err)
	}
	if out := after.BytesWritten - before.BytesWritten; out > 0 {
		w.metrics.RecordPageOut(out, nil)
		w.logger.LogPageOut(ctx, out, nil)
	}
}
