package box

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/mdbox/internal/pagestore"
	"github.com/hupe1980/mdbox/internal/resource"
)

// MaxChildren bounds splitInto^numDims.
const MaxChildren = 1 << 20

// Config is the split policy of one box tree.
type Config struct {
	NumDims        int
	SplitInto      int
	SplitThreshold int
	MaxDepth       int
	EventKind      EventKind
}

// Validate checks the policy.
func (c Config) Validate() error {
	if c.NumDims < 1 || c.NumDims > MaxDims {
		return fmt.Errorf("%w: NumDims %d out of range [1, %d]", ErrInvalidConfiguration, c.NumDims, MaxDims)
	}
	if c.SplitThreshold <= 0 {
		return fmt.Errorf("%w: SplitThreshold must be positive, got %d", ErrInvalidConfiguration, c.SplitThreshold)
	}
	if c.SplitInto < 2 {
		return fmt.Errorf("%w: SplitInto must be at least 2, got %d", ErrInvalidConfiguration, c.SplitInto)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("%w: MaxDepth must be positive, got %d", ErrInvalidConfiguration, c.MaxDepth)
	}
	if c.EventKind != EventKindLean && c.EventKind != EventKindFull {
		return fmt.Errorf("%w: unknown event kind %d", ErrInvalidConfiguration, c.EventKind)
	}
	n := 1
	for range c.NumDims {
		n *= c.SplitInto
		if n > MaxChildren {
			return fmt.Errorf("%w: SplitInto^NumDims exceeds %d children", ErrInvalidConfiguration, MaxChildren)
		}
	}
	return nil
}

// Stats is a snapshot of the controller counters.
type Stats struct {
	TotalNumMDBoxes     int64
	TotalNumMDGridBoxes int64
	MaxDepthReached     int64
	BoxesPerDepth       []int64
}

// Controller holds the split policy and the shared counters of one box tree.
// Every box of the tree points to the same Controller.
type Controller struct {
	cfg         Config
	numChildren int

	numBoxes        atomic.Int64
	numGridBoxes    atomic.Int64
	maxDepthReached atomic.Int64
	perDepth        []atomic.Int64
	nextID          atomic.Uint64

	buffer    *pagestore.DiskBuffer
	pagingOff atomic.Bool
	rc        *resource.Controller
	logger    *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithDiskBuffer makes the tree file-backed.
func WithDiskBuffer(b *pagestore.DiskBuffer) ControllerOption {
	return func(c *Controller) { c.buffer = b }
}

// WithResourceController sets the resource governor.
func WithResourceController(rc *resource.Controller) ControllerOption {
	return func(c *Controller) { c.rc = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController validates cfg and returns a controller with zeroed counters.
func NewController(cfg Config, opts ...ControllerOption) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := 1
	for range cfg.NumDims {
		n *= cfg.SplitInto
	}

	c := &Controller{
		cfg:         cfg,
		numChildren: n,
		perDepth:    make([]atomic.Int64, cfg.MaxDepth+1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

func (c *Controller) Config() Config                 { return c.cfg }
func (c *Controller) NumDims() int                   { return c.cfg.NumDims }
func (c *Controller) SplitInto() int                 { return c.cfg.SplitInto }
func (c *Controller) SplitThreshold() int            { return c.cfg.SplitThreshold }
func (c *Controller) MaxDepth() int                  { return c.cfg.MaxDepth }
func (c *Controller) EventKind() EventKind           { return c.cfg.EventKind }
func (c *Controller) NumChildren() int               { return c.numChildren }
func (c *Controller) RecordSize() int                { return RecordSize(c.cfg.EventKind, c.cfg.NumDims) }
func (c *Controller) Logger() *slog.Logger           { return c.logger }
func (c *Controller) Resource() *resource.Controller { return c.rc }

// DiskBuffer returns the disk buffer, or nil if the tree is memory-only.
func (c *Controller) DiskBuffer() *pagestore.DiskBuffer { return c.buffer }

// IsFileBacked reports whether boxes may be paged to disk.
func (c *Controller) IsFileBacked() bool { return c.buffer != nil }

// SetDiskBuffer attaches or detaches (nil) the disk buffer.
// Callers must ensure no box is file-backed when detaching.
func (c *Controller) SetDiskBuffer(b *pagestore.DiskBuffer) { c.buffer = b }

// WillSplit reports whether a leaf with numEvents events at depth must split.
func (c *Controller) WillSplit(numEvents uint64, depth int) bool {
	return numEvents > uint64(c.cfg.SplitThreshold) && depth < c.cfg.MaxDepth
}

// IssueID returns a tree-unique box ID.
func (c *Controller) IssueID() uint64 {
	return c.nextID.Add(1)
}

func (c *Controller) trackLeaf(depth int) {
	c.numBoxes.Add(1)
	c.trackDepth(depth, 1)
}

func (c *Controller) trackGrid(depth int) {
	c.numGridBoxes.Add(1)
	c.trackDepth(depth, 1)
}

// trackSplit accounts for a leaf at depth replaced by a grid box with n children.
func (c *Controller) trackSplit(depth, n int) {
	c.numGridBoxes.Add(1)
	c.numBoxes.Add(int64(n - 1))
	c.trackDepth(depth+1, int64(n))
}

func (c *Controller) trackDepth(depth int, n int64) {
	if depth < len(c.perDepth) {
		c.perDepth[depth].Add(n)
	}
	d := int64(depth)
	for {
		cur := c.maxDepthReached.Load()
		if d <= cur || c.maxDepthReached.CompareAndSwap(cur, d) {
			return
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	s := Stats{
		TotalNumMDBoxes:     c.numBoxes.Load(),
		TotalNumMDGridBoxes: c.numGridBoxes.Load(),
		MaxDepthReached:     c.maxDepthReached.Load(),
		BoxesPerDepth:       make([]int64, len(c.perDepth)),
	}
	for i := range c.perDepth {
		s.BoxesPerDepth[i] = c.perDepth[i].Load()
	}
	return s
}

// ResetCounters zeroes the box counters. ID issuing is unaffected.
func (c *Controller) ResetCounters() {
	c.numBoxes.Store(0)
	c.numGridBoxes.Store(0)
	c.maxDepthReached.Store(0)
	for i := range c.perDepth {
		c.perDepth[i].Store(0)
	}
}

// SuspendPaging stops boxes from announcing themselves to the disk buffer, so
// nothing is paged out until ResumePaging.
func (c *Controller) SuspendPaging() { c.pagingOff.Store(true) }

// ResumePaging undoes SuspendPaging.
func (c *Controller) ResumePaging() { c.pagingOff.Store(false) }

func (c *Controller) touch(ctx context.Context, p pagestore.Pageable) {
	if c.buffer != nil && !c.pagingOff.Load() {
		c.buffer.Touch(ctx, p)
	}
}

func (c *Controller) forget(key uint64) {
	if c.buffer != nil {
		c.buffer.Forget(key)
	}
}
