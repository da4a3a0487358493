package events

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mdbox"
	"github.com/hupe1980/mdbox/cow"
	"github.com/hupe1980/mdbox/internal/cache"
)

// EventWorkspace is a set of spectra, each an EventList, histogrammed against
// common bin edges X.
//
// All methods are safe for concurrent use. Histograms returned by DataY and
// DataE are shared with the cache; call Access on the handle to get a private
// copy before writing.
type EventWorkspace struct {
	mu sync.RWMutex

	id      uuid.UUID
	logger  *mdbox.Logger
	metrics mdbox.MetricsCollector

	x             cow.Array
	lists         []*EventList
	bySpecNo      map[int32]int
	maskedBins    map[int]*roaring.Bitmap
	maskedSpectra *roaring.Bitmap
	closed        bool

	mru        *cache.MRU
	histograms atomic.Int64
}

// Stats is a snapshot of an EventWorkspace.
type Stats struct {
	NumSpectra    int
	NumEvents     int
	NumBins       int
	MaskedSpectra int
	CachedY       int
	CachedE       int
	CacheHits     int64
	CacheMisses   int64
	// Histograms counts histogram computations, that is cache misses that
	// binned events.
	Histograms int64
}

// New returns a workspace with numSpectra empty spectra sharing the bin edges
// x. Spectrum numbers start at 1. x must hold at least two strictly increasing
// finite edges.
func New(numSpectra int, x cow.Array, opts ...Option) (*EventWorkspace, error) {
	if numSpectra < 0 {
		return nil, fmt.Errorf("%w: negative spectrum count %d", mdbox.ErrInvalidArgument, numSpectra)
	}
	if err := validateEdges(x.Read()); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	id := uuid.New()
	ws := &EventWorkspace{
		id:            id,
		logger:        o.logger.WithWorkspace(id.String()),
		metrics:       o.metricsCollector,
		x:             x.Share(),
		lists:         make([]*EventList, numSpectra),
		bySpecNo:      make(map[int32]int, numSpectra),
		maskedBins:    make(map[int]*roaring.Bitmap),
		maskedSpectra: roaring.New(),
		mru:           cache.NewMRU(o.mruCapacity),
	}
	for i := range ws.lists {
		specNo := int32(i + 1)
		ws.lists[i] = newEventList(uint64(i+1), specNo)
		ws.bySpecNo[specNo] = i
	}
	ws.mru.EnsureEnoughBuffersY(1)
	ws.mru.EnsureEnoughBuffersE(1)

	ws.logger.Debug("event workspace created",
		"spectra", numSpectra,
		"bins", x.Len()-1,
		"mru_capacity", ws.mru.Capacity(),
	)
	return ws, nil
}

func validateEdges(x []float64) error {
	if len(x) < 2 {
		return fmt.Errorf("%w: %d bin edges, need at least 2", mdbox.ErrInvalidArgument, len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bin edge %d is %g", mdbox.ErrInvalidArgument, i, v)
		}
		if i > 0 && v <= x[i-1] {
			return fmt.Errorf("%w: bin edges not strictly increasing at %d", mdbox.ErrInvalidArgument, i)
		}
	}
	return nil
}

// ID returns the workspace ID.
func (ws *EventWorkspace) ID() string { return ws.id.String() }

// NumSpectra returns the number of spectra.
func (ws *EventWorkspace) NumSpectra() int { return len(ws.lists) }

// Spectrum returns the event list of spectrum i, or nil if i is out of range.
func (ws *EventWorkspace) Spectrum(i int) *EventList {
	if i < 0 || i >= len(ws.lists) {
		return nil
	}
	return ws.lists[i]
}

func (ws *EventWorkspace) listLocked(i int) (*EventList, error) {
	if ws.closed {
		return nil, mdbox.ErrClosed
	}
	if i < 0 || i >= len(ws.lists) {
		return nil, fmt.Errorf("%w: spectrum index %d out of range [0, %d)", mdbox.ErrInvalidArgument, i, len(ws.lists))
	}
	return ws.lists[i], nil
}

// AddEvent appends ev to spectrum i.
func (ws *EventWorkspace) AddEvent(i int, ev TofEvent) error {
	return ws.AddEvents(i, []TofEvent{ev})
}

// AddEvents appends evs to spectrum i and drops its cached histograms.
// Events with a NaN time of flight are rejected.
func (ws *EventWorkspace) AddEvents(i int, evs []TofEvent) error {
	for k := range evs {
		if math.IsNaN(evs[k].Tof) {
			return fmt.Errorf("%w: event %d has NaN time of flight", mdbox.ErrInvalidArgument, k)
		}
	}

	ws.mu.RLock()
	defer ws.mu.RUnlock()

	l, err := ws.listLocked(i)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.appendLocked(evs)
	ws.mru.DeleteIndex(l.handle)
	l.mu.Unlock()
	return nil
}

// ClearEvents removes every event of spectrum i.
func (ws *EventWorkspace) ClearEvents(i int) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	l, err := ws.listLocked(i)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.clearLocked()
	ws.mru.DeleteIndex(l.handle)
	l.mu.Unlock()
	return nil
}

// MaskSpectrum discards the events of spectrum i and flags it masked.
func (ws *EventWorkspace) MaskSpectrum(i int) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	l, err := ws.listLocked(i)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.clearLocked()
	l.masked = true
	ws.mru.DeleteIndex(l.handle)
	l.mu.Unlock()

	ws.maskedSpectra.Add(uint32(i))
	return nil
}

// MaskedSpectra returns the indices of masked spectra in ascending order.
func (ws *EventWorkspace) MaskedSpectra() []int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return toInts(ws.maskedSpectra)
}

// ReadX returns the bin edges of spectrum i, or nil if i is out of range.
// The slice is shared and must not be modified.
func (ws *EventWorkspace) ReadX(i int) []float64 {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if _, err := ws.listLocked(i); err != nil {
		return nil
	}
	return ws.x.Read()
}

// X returns a handle to the bin edges.
func (ws *EventWorkspace) X() cow.Array {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.x.Share()
}

// SetX replaces the bin edges of every spectrum. All cached histograms and
// masked-bin flags are dropped.
func (ws *EventWorkspace) SetX(x cow.Array) error {
	if err := validateEdges(x.Read()); err != nil {
		return err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return mdbox.ErrClosed
	}
	ws.x.Release()
	ws.x = x.Share()
	ws.mru.Clear()
	clear(ws.maskedBins)
	return nil
}

// DataY returns the histogram of spectrum i using cache slot 0.
func (ws *EventWorkspace) DataY(i int) (cow.Array, error) { return ws.data(0, i, kindY) }

// DataE returns the errors of spectrum i using worker slot 0.
func (ws *EventWorkspace) DataE(i int) (cow.Array, error) { return ws.data(0, i, kindE) }

// ReadY returns the histogram of spectrum i as a read-only slice, or nil if i
// is out of range.
func (ws *EventWorkspace) ReadY(i int) []float64 { return ws.read(0, i, kindY) }

// ReadE returns the errors of spectrum i as a read-only slice.
func (ws *EventWorkspace) ReadE(i int) []float64 { return ws.read(0, i, kindE) }

// ClearMRU drops every cached histogram.
func (ws *EventWorkspace) ClearMRU() { ws.mru.Clear() }

type dataKind int

const (
	kindY dataKind = iota
	kindE
)

func (k dataKind) String() string {
	if k == kindE {
		return "e"
	}
	return "y"
}

func (ws *EventWorkspace) read(thread, i int, kind dataKind) []float64 {
	a, err := ws.data(thread, i, kind)
	if err != nil {
		return nil
	}
	defer a.Release()
	return a.Read()
}

func (ws *EventWorkspace) data(thread, i int, kind dataKind) (cow.Array, error) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	l, err := ws.listLocked(i)
	if err != nil {
		return cow.Array{}, err
	}

	find := ws.mru.FindY
	if kind == kindE {
		find = ws.mru.FindE
	}

	l.mu.RLock()
	a, ok := find(thread, l.handle)
	l.mu.RUnlock()
	ws.metrics.RecordCacheLookup(kind.String(), ok)
	if ok {
		return a, nil
	}

	// Binning may sort the events, and the insert must not race a mutation
	// of the same list.
	l.mu.Lock()
	defer l.mu.Unlock()

	y, e := l.histogramLocked(ws.x.Read())
	ws.histograms.Add(1)

	ya, ea := cow.New(y), cow.New(e)
	ws.mru.InsertY(thread, l.handle, ya)
	ws.mru.InsertE(thread, l.handle, ea)
	if kind == kindE {
		ya.Release()
		return ea, nil
	}
	ea.Release()
	return ya, nil
}

// Worker returns a view whose histogram accessors use cache slot t.
// Concurrent workers should use distinct slots.
func (ws *EventWorkspace) Worker(t int) *Worker {
	if t < 0 {
		t = 0
	}
	ws.mru.EnsureEnoughBuffersY(t + 1)
	ws.mru.EnsureEnoughBuffersE(t + 1)
	return &Worker{ws: ws, thread: t}
}

// Worker is a per-goroutine view of an EventWorkspace.
type Worker struct {
	ws     *EventWorkspace
	thread int
}

// Index returns the worker's cache slot.
func (w *Worker) Index() int { return w.thread }

// DataY returns the histogram of spectrum i.
func (w *Worker) DataY(i int) (cow.Array, error) { return w.ws.data(w.thread, i, kindY) }

// DataE returns the errors of spectrum i.
func (w *Worker) DataE(i int) (cow.Array, error) { return w.ws.data(w.thread, i, kindE) }

// ReadY returns the histogram of spectrum i as a read-only slice.
func (w *Worker) ReadY(i int) []float64 { return w.ws.read(w.thread, i, kindY) }

// ReadE returns the errors of spectrum i as a read-only slice.
func (w *Worker) ReadE(i int) []float64 { return w.ws.read(w.thread, i, kindE) }

// ReadX returns the bin edges of spectrum i.
func (w *Worker) ReadX(i int) []float64 { return w.ws.ReadX(i) }

// ForEachSpectrum calls fn for every spectrum index, spreading contiguous
// ranges of spectra over up to workers goroutines. Each goroutine has its own
// Worker. The first error cancels the remaining calls and is returned.
func (ws *EventWorkspace) ForEachSpectrum(ctx context.Context, workers int, fn func(w *Worker, i int) error) error {
	n := len(ws.lists)
	if n == 0 {
		return nil
	}
	workers = max(1, min(workers, n))

	g, ctx := errgroup.WithContext(ctx)
	for t := range workers {
		lo, hi := t*n/workers, (t+1)*n/workers
		w := ws.Worker(t)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(w, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// MaskBins flags bins of spectrum i as masked. Flags are metadata only and
// never change Y or E. Bin indices must lie in [0, len(X)-1).
func (ws *EventWorkspace) MaskBins(i int, bins ...int) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if _, err := ws.listLocked(i); err != nil {
		return err
	}
	nbins := ws.x.Len() - 1
	for _, b := range bins {
		if b < 0 || b >= nbins {
			return fmt.Errorf("%w: bin %d out of range [0, %d)", mdbox.ErrInvalidArgument, b, nbins)
		}
	}
	if len(bins) == 0 {
		return nil
	}

	bm, ok := ws.maskedBins[i]
	if !ok {
		bm = roaring.New()
		ws.maskedBins[i] = bm
	}
	for _, b := range bins {
		bm.Add(uint32(b))
	}
	return nil
}

// MaskedBins returns the masked bin indices of spectrum i in ascending order.
func (ws *EventWorkspace) MaskedBins(i int) []int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	bm, ok := ws.maskedBins[i]
	if !ok {
		return nil
	}
	return toInts(bm)
}

// HasMaskedBins reports whether spectrum i has any masked bin.
func (ws *EventWorkspace) HasMaskedBins(i int) bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	bm, ok := ws.maskedBins[i]
	return ok && !bm.IsEmpty()
}

// ClearMaskedBins removes the masked-bin flags of spectrum i.
func (ws *EventWorkspace) ClearMaskedBins(i int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.maskedBins, i)
}

// SetSpectrumNumber assigns spectrum number n to spectrum i. Spectrum numbers
// are unique within a workspace.
func (ws *EventWorkspace) SetSpectrumNumber(i int, n int32) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	l, err := ws.listLocked(i)
	if err != nil {
		return err
	}
	if j, ok := ws.bySpecNo[n]; ok {
		if j == i {
			return nil
		}
		return fmt.Errorf("%w: spectrum number %d already used by spectrum %d", mdbox.ErrInvalidArgument, n, j)
	}

	l.mu.Lock()
	delete(ws.bySpecNo, l.specNo)
	l.specNo = n
	l.mu.Unlock()
	ws.bySpecNo[n] = i
	return nil
}

// IndexOfSpectrumNumber returns the index of the spectrum numbered n.
func (ws *EventWorkspace) IndexOfSpectrumNumber(n int32) (int, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	i, ok := ws.bySpecNo[n]
	return i, ok
}

// AddDetectorIDs records that the detectors ids contribute to spectrum i.
func (ws *EventWorkspace) AddDetectorIDs(i int, ids ...uint32) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	l, err := ws.listLocked(i)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.detectors.AddMany(ids)
	l.mu.Unlock()
	return nil
}

// DetectorIDs returns the detector IDs of spectrum i in ascending order.
func (ws *EventWorkspace) DetectorIDs(i int) []uint32 {
	l := ws.Spectrum(i)
	if l == nil {
		return nil
	}
	return l.DetectorIDs()
}

// IndicesOfDetector returns the indices of the spectra detector id
// contributes to, in ascending order.
func (ws *EventWorkspace) IndicesOfDetector(id uint32) []int {
	var out []int
	for i, l := range ws.lists {
		if l.HasDetector(id) {
			out = append(out, i)
		}
	}
	return out
}

// Stats returns a snapshot of the workspace state.
func (ws *EventWorkspace) Stats() Stats {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	st := Stats{
		NumSpectra:    len(ws.lists),
		NumBins:       max(0, ws.x.Len()-1),
		MaskedSpectra: int(ws.maskedSpectra.GetCardinality()),
		Histograms:    ws.histograms.Load(),
	}
	for _, l := range ws.lists {
		st.NumEvents += l.NumEvents()
	}
	st.CachedY, st.CachedE = ws.mru.Len()
	st.CacheHits, st.CacheMisses = ws.mru.Stats()
	return st
}

// Close drops the cached histograms of every spectrum. Close is idempotent;
// other methods return ErrClosed afterwards.
func (ws *EventWorkspace) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return nil
	}
	ws.closed = true
	for _, l := range ws.lists {
		ws.mru.DeleteIndex(l.handle)
	}
	ws.x.Release()
	return nil
}

func toInts(bm *roaring.Bitmap) []int {
	out := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}
