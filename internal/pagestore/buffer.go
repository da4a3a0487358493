package pagestore

import (
	"context"
	"log/slog"
	"math"

	"github.com/hupe1980/mdbox/internal/cache"
	"github.com/hupe1980/mdbox/internal/resource"
)

// Pageable is a unit of memory the buffer can push to the page file.
type Pageable interface {
	// PageKey identifies the unit; it must be stable for its lifetime.
	PageKey() uint64
	// InMemoryBytes returns the bytes of event data currently held in memory.
	InMemoryBytes() int64
	// PageOut writes the in-memory data to the page file and releases it.
	PageOut(ctx context.Context) (int64, error)
}

// DiskBuffer keeps the in-memory footprint of pageable units under a budget.
//
// Units announce themselves with Touch after they load or grow. When the
// tracked total exceeds the budget, the least recently touched units are paged
// out. Touch must not be called while holding a lock PageOut takes.
type DiskBuffer struct {
	store  *Store
	lru    *cache.LRU[uint64, Pageable]
	logger *slog.Logger
}

// NewDiskBuffer creates a buffer paging to store. A budget <= 0 means unlimited.
func NewDiskBuffer(store *Store, budget int64, rc *resource.Controller, logger *slog.Logger) *DiskBuffer {
	if budget <= 0 {
		budget = math.MaxInt64
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DiskBuffer{
		store:  store,
		lru:    cache.NewLRU[uint64, Pageable](budget, func(p Pageable) int64 { return p.InMemoryBytes() }, rc),
		logger: logger,
	}
}

// Store returns the page file.
func (b *DiskBuffer) Store() *Store { return b.store }

// Budget returns the memory budget in bytes.
func (b *DiskBuffer) Budget() int64 { return b.lru.Capacity() }

// InMemoryBytes returns the tracked in-memory total.
func (b *DiskBuffer) InMemoryBytes() int64 { return b.lru.Size() }

// Tracked returns the number of units currently tracked.
func (b *DiskBuffer) Tracked() int { return b.lru.Len() }

// Touch marks p as most recently used and pages out others to respect the budget.
func (b *DiskBuffer) Touch(ctx context.Context, p Pageable) {
	if p.InMemoryBytes() == 0 {
		b.lru.Remove(p.PageKey())
		return
	}

	key := p.PageKey()
	for _, ev := range b.lru.Add(key, p) {
		// Replaced or oversized entry of p itself.
		if ev.Key == key {
			continue
		}
		b.pageOut(ctx, ev.Value)
	}
}

// Forget stops tracking the unit with key.
func (b *DiskBuffer) Forget(key uint64) {
	b.lru.Remove(key)
}

// Shrink pages out least recently used units until at most maxBytes remain
// tracked in memory. It returns the bytes released and the first error.
func (b *DiskBuffer) Shrink(ctx context.Context, maxBytes int64) (int64, error) {
	var released int64
	var firstErr error

	keys := b.lru.Keys()
	for i := len(keys) - 1; i >= 0 && b.lru.Size() > maxBytes; i-- {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		p, ok := b.lru.Remove(keys[i])
		if !ok {
			continue
		}
		n, err := b.pageOut(ctx, p)
		released += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return released, firstErr
}

// Clear stops tracking every unit without paging anything out.
func (b *DiskBuffer) Clear() {
	b.lru.Clear()
}

func (b *DiskBuffer) pageOut(ctx context.Context, p Pageable) (int64, error) {
	n, err := p.PageOut(ctx)
	if err != nil {
		// The unit keeps its data in memory; it is tracked again on its next Touch.
		b.logger.Warn("page out failed", slog.Uint64("key", p.PageKey()), slog.String("error", err.Error()))
		return 0, err
	}
	// A concurrent Touch may have re-added p while it was being paged out.
	b.lru.Remove(p.PageKey())
	return n, nil
}
