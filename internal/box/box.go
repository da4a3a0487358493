package box

import (
	"context"
	"math"
)

// Box is a node of the box tree: either a leaf *MDBox or an interior
// *MDGridBox. The set of variants is closed.
type Box interface {
	ID() uint64
	Depth() int
	Extents() Extents
	Controller() *Controller

	// NumEvents, Signal and ErrorSquared return cached aggregates.
	NumEvents() uint64
	Signal() float64
	ErrorSquared() float64

	// AddEvent adds ev if it lies inside the box extents.
	AddEvent(ev Event) bool
	// AddEvents adds the events inside the box extents and returns how many.
	AddEvents(evs []Event) int

	// RefreshCache recomputes the aggregates from the stored events.
	RefreshCache(ctx context.Context) error

	IsMasked() bool

	addEvent(ev Event)
	addEvents(evs []Event)
	setMasking(region Extents)
	clearMasking()
	collect(dst []Box, maxDepth int, leafOnly bool) []Box
	integrate(ctx context.Context, region Extents) (signal, errSq float64, err error)
}

// Normalization selects how GetSignalAtCoord scales a box signal.
type Normalization uint8

const (
	NoNormalization Normalization = iota
	VolumeNormalization
	NumEventsNormalization
)

func (n Normalization) String() string {
	switch n {
	case VolumeNormalization:
		return "volume"
	case NumEventsNormalization:
		return "num-events"
	default:
		return "none"
	}
}

// NoData is returned by signal queries that have no answer.
var NoData = math.NaN()

// IsNoData reports whether v is the NoData sentinel.
func IsNoData(v float64) bool { return math.IsNaN(v) }

// GetBoxes returns the boxes of the tree depth-first, each exactly once, none
// deeper than maxDepth. With leafOnly, interior boxes are skipped except at
// maxDepth, where they stand for their subtree.
func GetBoxes(root Box, maxDepth int, leafOnly bool) []Box {
	if root == nil || maxDepth < 0 {
		return nil
	}
	return root.collect(nil, maxDepth, leafOnly)
}

// Leaves returns all leaf boxes depth-first.
func Leaves(root Box) []*MDBox {
	if root == nil {
		return nil
	}
	var out []*MDBox
	walkLeaves(root, func(l *MDBox) { out = append(out, l) })
	return out
}

func walkLeaves(b Box, fn func(*MDBox)) {
	switch v := b.(type) {
	case *MDBox:
		fn(v)
	case *MDGridBox:
		for _, c := range v.Children() {
			walkLeaves(c, fn)
		}
	}
}

// SetMasking masks every leaf whose extents overlap region.
func SetMasking(root Box, region Extents) {
	if root != nil && root.Extents().Overlaps(region) {
		root.setMasking(region)
	}
}

// ClearMasking unmasks every box.
func ClearMasking(root Box) {
	if root != nil {
		root.clearMasking()
	}
}

// LeafAt returns the leaf containing coords, or nil if coords lie outside root.
func LeafAt(root Box, coords []float64) *MDBox {
	if root == nil || !root.Extents().Contains(coords) {
		return nil
	}
	b := root
	for {
		switch v := b.(type) {
		case *MDBox:
			return v
		case *MDGridBox:
			b = v.childAt(coords)
		default:
			return nil
		}
	}
}

// SignalAt returns the normalized signal of the leaf containing coords, or
// NoData if there is none, it is masked, or the normalization is undefined.
func SignalAt(root Box, coords []float64, norm Normalization) float64 {
	return Normalize(LeafAt(root, coords), norm)
}

// Normalize returns the signal of leaf scaled by norm. A nil or masked leaf
// yields NoData, and so does an empty leaf under NumEventsNormalization.
func Normalize(leaf *MDBox, norm Normalization) float64 {
	if leaf == nil || leaf.IsMasked() {
		return NoData
	}

	s := leaf.Signal()
	switch norm {
	case VolumeNormalization:
		return s / leaf.Extents().Volume()
	case NumEventsNormalization:
		n := leaf.NumEvents()
		if n == 0 {
			return NoData
		}
		return s / float64(n)
	default:
		return s
	}
}

// IntegrateBox sums signal and squared error of unmasked events inside region.
func IntegrateBox(ctx context.Context, root Box, region Extents) (signal, errSq float64, err error) {
	if root == nil || !root.Extents().Overlaps(region) {
		return 0, 0, nil
	}
	return root.integrate(ctx, region)
}
