package events

import (
	"cmp"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TofEvent is a single neutron event of a spectrum.
type TofEvent struct {
	// Tof is the time of flight in microseconds.
	Tof          float64
	Weight       float64
	ErrorSquared float64
	// PulseTime is the absolute pulse time in nanoseconds.
	PulseTime int64
}

// NewTofEvent returns an unweighted event.
func NewTofEvent(tof float64, pulseTime int64) TofEvent {
	return TofEvent{Tof: tof, Weight: 1, ErrorSquared: 1, PulseTime: pulseTime}
}

// EventList holds the raw events and detector IDs of one spectrum.
//
// Lists are owned by an EventWorkspace. Their accessors are safe for
// concurrent use; mutation goes through the workspace so cached histograms
// stay consistent.
type EventList struct {
	mu        sync.RWMutex
	handle    uint64
	specNo    int32
	detectors *roaring.Bitmap
	events    []TofEvent
	sorted    bool
	masked    bool
}

func newEventList(handle uint64, specNo int32) *EventList {
	return &EventList{
		handle:    handle,
		specNo:    specNo,
		detectors: roaring.New(),
		sorted:    true,
	}
}

// Handle returns the cache key of the list. It is unique within the owning
// workspace and stable for the lifetime of the list.
func (l *EventList) Handle() uint64 { return l.handle }

// SpectrumNumber returns the spectrum number.
func (l *EventList) SpectrumNumber() int32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.specNo
}

// NumEvents returns the number of events.
func (l *EventList) NumEvents() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Events returns a copy of the events.
func (l *EventList) Events() []TofEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events)
}

// TotalWeight returns the sum of event weights.
func (l *EventList) TotalWeight() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w := make([]float64, len(l.events))
	for i := range l.events {
		w[i] = l.events[i].Weight
	}
	return floats.Sum(w)
}

// DetectorIDs returns the detector IDs in ascending order.
func (l *EventList) DetectorIDs() []uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.detectors.ToArray()
}

// HasDetector reports whether id contributes to the spectrum.
func (l *EventList) HasDetector(id uint32) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.detectors.Contains(id)
}

// IsMasked reports whether the spectrum has been masked.
func (l *EventList) IsMasked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.masked
}

// IsSortedByTof reports whether the events are in time-of-flight order.
func (l *EventList) IsSortedByTof() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sorted
}

// The methods below require l.mu held for writing.

func (l *EventList) appendLocked(evs []TofEvent) {
	if len(evs) == 0 {
		return
	}
	if l.sorted {
		last := math.Inf(-1)
		if n := len(l.events); n > 0 {
			last = l.events[n-1].Tof
		}
		l.sorted = last <= evs[0].Tof && slices.IsSortedFunc(evs, byTof)
	}
	l.events = append(l.events, evs...)
}

func (l *EventList) sortLocked() {
	if l.sorted {
		return
	}
	slices.SortStableFunc(l.events, byTof)
	l.sorted = true
}

func (l *EventList) clearLocked() {
	l.events = nil
	l.sorted = true
}

// histogramLocked bins the events against the edges x. Events outside
// [x[0], x[len(x)-1]) are ignored. E is the square root of the summed
// squared errors per bin.
func (l *EventList) histogramLocked(x []float64) (y, e []float64) {
	l.sortLocked()

	nbins := len(x) - 1
	lo := sort.Search(len(l.events), func(i int) bool { return l.events[i].Tof >= x[0] })
	hi := sort.Search(len(l.events), func(i int) bool { return l.events[i].Tof >= x[nbins] })

	in := l.events[lo:hi]
	if len(in) == 0 {
		return make([]float64, nbins), make([]float64, nbins)
	}

	tofs := make([]float64, len(in))
	weights := make([]float64, len(in))
	errs := make([]float64, len(in))
	for i := range in {
		tofs[i] = in[i].Tof
		weights[i] = in[i].Weight
		errs[i] = in[i].ErrorSquared
	}

	y = stat.Histogram(nil, x, tofs, weights)
	e = stat.Histogram(nil, x, tofs, errs)
	for i := range e {
		e[i] = math.Sqrt(e[i])
	}
	return y, e
}

func byTof(a, b TofEvent) int { return cmp.Compare(a.Tof, b.Tof) }
