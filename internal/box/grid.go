package box

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/hupe1980/mdbox/internal/task"
)

// MDGridBox is an interior box whose splitInto^N children tile its extents.
// Child index i decomposes into per-dimension indices with dimension 0
// varying fastest.
type MDGridBox struct {
	ctrl       *Controller
	id         uint64
	depth      int
	extents    Extents
	splitInto  int
	childWidth []float64

	mu        sync.Mutex
	children  []Box
	numEvents uint64
	signal    float64
	errSq     float64
}

func newGrid(ctrl *Controller, id uint64, extents Extents, depth int) *MDGridBox {
	nd := len(extents)
	si := ctrl.SplitInto()

	g := &MDGridBox{
		ctrl:       ctrl,
		id:         id,
		depth:      depth,
		extents:    extents,
		splitInto:  si,
		childWidth: make([]float64, nd),
		children:   make([]Box, ctrl.NumChildren()),
	}
	for d, e := range extents {
		g.childWidth[d] = e.Width() / float64(si)
	}

	idx := make([]int, nd)
	for i := range g.children {
		ext := make(Extents, nd)
		for d := range nd {
			lo := extents[d].Min + float64(idx[d])*g.childWidth[d]
			hi := extents[d].Max
			if idx[d] < si-1 {
				hi = extents[d].Min + float64(idx[d]+1)*g.childWidth[d]
			}
			ext[d] = Extent{Min: lo, Max: hi}
		}
		g.children[i] = newLeaf(ctrl, ext, depth+1)

		for d := range nd {
			idx[d]++
			if idx[d] < si {
				break
			}
			idx[d] = 0
		}
	}
	return g
}

// NewGrid assembles a grid box from existing children, as when rebuilding a
// tree. The children must be ordered by child index and tile extents.
func NewGrid(ctrl *Controller, extents Extents, depth int, children []Box) (*MDGridBox, error) {
	if len(children) != ctrl.NumChildren() {
		return nil, fmt.Errorf("%w: grid box needs %d children, got %d", ErrInvalidConfiguration, ctrl.NumChildren(), len(children))
	}
	g := &MDGridBox{
		ctrl:       ctrl,
		id:         ctrl.IssueID(),
		depth:      depth,
		extents:    extents,
		splitInto:  ctrl.SplitInto(),
		childWidth: make([]float64, len(extents)),
		children:   children,
	}
	for d, e := range extents {
		g.childWidth[d] = e.Width() / float64(g.splitInto)
	}
	for _, c := range children {
		if c.Depth() != depth+1 || c.Controller() != ctrl {
			return nil, fmt.Errorf("%w: child %d does not belong under box at depth %d", ErrInvalidConfiguration, c.ID(), depth)
		}
		g.numEvents += c.NumEvents()
		g.signal += c.Signal()
		g.errSq += c.ErrorSquared()
	}
	ctrl.trackGrid(depth)
	return g, nil
}

func (g *MDGridBox) ID() uint64              { return g.id }
func (g *MDGridBox) Depth() int              { return g.depth }
func (g *MDGridBox) Extents() Extents        { return g.extents }
func (g *MDGridBox) Controller() *Controller { return g.ctrl }

// SplitInto returns the number of children per dimension.
func (g *MDGridBox) SplitInto() int { return g.splitInto }

// ChildWidth returns the child width along dimension d.
func (g *MDGridBox) ChildWidth(d int) float64 { return g.childWidth[d] }

// Children returns a snapshot of the child slots.
func (g *MDGridBox) Children() []Box {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Box, len(g.children))
	copy(out, g.children)
	return out
}

// Child returns child slot i.
func (g *MDGridBox) Child(i int) Box {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.children[i]
}

func (g *MDGridBox) setChild(i int, b Box) {
	g.mu.Lock()
	g.children[i] = b
	g.mu.Unlock()
}

func (g *MDGridBox) NumEvents() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.numEvents
}

func (g *MDGridBox) Signal() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.signal
}

func (g *MDGridBox) ErrorSquared() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errSq
}

// IsMasked reports whether every child is masked.
func (g *MDGridBox) IsMasked() bool {
	for _, c := range g.Children() {
		if !c.IsMasked() {
			return false
		}
	}
	return true
}

// ChildIndex returns the slot an event at coords routes to.
func (g *MDGridBox) ChildIndex(coords []float64) int {
	idx, stride := 0, 1
	for d := range g.childWidth {
		idx += g.bucket(d, coords[d]) * stride
		stride *= g.splitInto
	}
	return idx
}

func (g *MDGridBox) eventIndex(ev *Event) int {
	idx, stride := 0, 1
	for d := range g.childWidth {
		idx += g.bucket(d, ev.coords[d]) * stride
		stride *= g.splitInto
	}
	return idx
}

// bucket clamps so that events on the upper boundary, or nudged past a
// child edge by rounding, still land in a valid child.
func (g *MDGridBox) bucket(d int, x float64) int {
	i := int(math.Floor((x - g.extents[d].Min) / g.childWidth[d]))
	if i < 0 {
		return 0
	}
	if i >= g.splitInto {
		return g.splitInto - 1
	}
	return i
}

func (g *MDGridBox) childAt(coords []float64) Box {
	return g.Child(g.ChildIndex(coords))
}

func (g *MDGridBox) AddEvent(ev Event) bool {
	if !g.extents.ContainsEvent(ev) {
		return false
	}
	g.addEvent(ev)
	return true
}

func (g *MDGridBox) AddEvents(evs []Event) int {
	in := make([]Event, 0, len(evs))
	for _, ev := range evs {
		if g.extents.ContainsEvent(ev) {
			in = append(in, ev)
		}
	}
	g.addEvents(in)
	return len(in)
}

func (g *MDGridBox) addEvent(ev Event) {
	g.mu.Lock()
	g.numEvents++
	g.signal += ev.signal
	g.errSq += ev.errorSquared
	child := g.children[g.eventIndex(&ev)]
	g.mu.Unlock()

	child.addEvent(ev)
}

// addEvents buckets evs by child and hands each child its share in one call.
func (g *MDGridBox) addEvents(evs []Event) {
	if len(evs) == 0 {
		return
	}

	buckets := make(map[int][]Event)
	var s, e float64
	for i := range evs {
		ev := &evs[i]
		idx := g.eventIndex(ev)
		buckets[idx] = append(buckets[idx], *ev)
		s += ev.signal
		e += ev.errorSquared
	}

	g.mu.Lock()
	g.numEvents += uint64(len(evs))
	g.signal += s
	g.errSq += e
	children := make(map[int]Box, len(buckets))
	for idx := range buckets {
		children[idx] = g.children[idx]
	}
	g.mu.Unlock()

	for idx, bucket := range buckets {
		children[idx].addEvents(bucket)
	}
}

func (g *MDGridBox) RefreshCache(ctx context.Context) error {
	var n uint64
	var s, e float64
	for _, c := range g.Children() {
		if err := c.RefreshCache(ctx); err != nil {
			return err
		}
		n += c.NumEvents()
		s += c.Signal()
		e += c.ErrorSquared()
	}

	g.mu.Lock()
	g.numEvents, g.signal, g.errSq = n, s, e
	g.mu.Unlock()
	return nil
}

func (g *MDGridBox) setMasking(region Extents) {
	for _, c := range g.Children() {
		if c.Extents().Overlaps(region) {
			c.setMasking(region)
		}
	}
}

func (g *MDGridBox) clearMasking() {
	for _, c := range g.Children() {
		c.clearMasking()
	}
}

func (g *MDGridBox) collect(dst []Box, maxDepth int, leafOnly bool) []Box {
	if g.depth > maxDepth {
		return dst
	}
	if g.depth == maxDepth {
		return append(dst, g)
	}
	if !leafOnly {
		dst = append(dst, g)
	}
	for _, c := range g.Children() {
		dst = c.collect(dst, maxDepth, leafOnly)
	}
	return dst
}

func (g *MDGridBox) integrate(ctx context.Context, region Extents) (float64, float64, error) {
	var s, e float64
	for _, c := range g.Children() {
		if !c.Extents().Overlaps(region) {
			continue
		}
		cs, ce, err := c.integrate(ctx, region)
		if err != nil {
			return 0, 0, err
		}
		s += cs
		e += ce
	}
	return s, e, nil
}

// splitChildren queues a split check for every child slot.
func (g *MDGridBox) splitChildren(grp task.Group) {
	children := g.Children()
	for i, c := range children {
		switch v := c.(type) {
		case *MDBox:
			if !g.ctrl.WillSplit(v.NumEvents(), v.depth) {
				continue
			}
			grp.Go(func(ctx context.Context) error {
				ng, err := v.split(ctx)
				if err != nil {
					return err
				}
				g.setChild(i, ng)
				ng.splitChildren(grp)
				return nil
			})
		case *MDGridBox:
			grp.Go(func(ctx context.Context) error {
				v.splitChildren(grp)
				return nil
			})
		}
	}
}
