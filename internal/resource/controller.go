package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would exceed the memory budget.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes bounds the event bytes held in memory by file-backed boxes.
	// If 0, usage is tracked but not limited.
	MemoryLimitBytes int64

	// MaxWorkers is the maximum number of concurrently running worker tasks.
	// If 0, defaults to 1.
	MaxWorkers int64

	// PagingBytesPerSec caps the page file throughput.
	// If 0, unlimited.
	PagingBytesPerSec int64
}

// Controller governs the memory, worker and paging resources of one workspace.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	workers     *semaphore.Weighted
	peakWorkers atomic.Int64
	busyWorkers atomic.Int64

	pagingLimiter *rate.Limiter
	pagedBytes    atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.PagingBytesPerSec > 0 {
		c.pagingLimiter = rate.NewLimiter(rate.Limit(cfg.PagingBytesPerSec), int(cfg.PagingBytesPerSec))
	}

	return c
}

// Config returns the limits the controller was created with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory reserves bytes of the memory budget.
// It never blocks; callers decide what to evict on ErrMemoryLimitExceeded.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns bytes to the memory budget.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireWorker blocks until a worker slot is free or ctx is done.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return err
	}
	c.markBusy()
	return nil
}

// TryAcquireWorker reserves a worker slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	if c == nil {
		return true
	}
	if !c.workers.TryAcquire(1) {
		return false
	}
	c.markBusy()
	return true
}

// ReleaseWorker frees a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.busyWorkers.Add(-1)
	c.workers.Release(1)
}

// PeakWorkers reports the highest number of simultaneously held worker slots.
func (c *Controller) PeakWorkers() int64 {
	if c == nil {
		return 0
	}
	return c.peakWorkers.Load()
}

func (c *Controller) markBusy() {
	n := c.busyWorkers.Add(1)
	for {
		peak := c.peakWorkers.Load()
		if n <= peak || c.peakWorkers.CompareAndSwap(peak, n) {
			return
		}
	}
}

// AcquirePaging waits until the paging limit allows bytes to be transferred.
func (c *Controller) AcquirePaging(ctx context.Context, bytes int) error {
	if c == nil {
		return nil
	}
	if c.pagingLimiter != nil {
		// WaitN rejects requests above the burst; split them.
		burst := c.pagingLimiter.Burst()
		for remaining := bytes; remaining > 0; remaining -= burst {
			if err := c.pagingLimiter.WaitN(ctx, min(remaining, burst)); err != nil {
				return err
			}
		}
	}
	c.pagedBytes.Add(int64(bytes))
	return nil
}

// TryAcquirePaging reports whether bytes may be transferred right now.
func (c *Controller) TryAcquirePaging(bytes int) bool {
	if c == nil || c.pagingLimiter == nil {
		return true
	}
	return c.pagingLimiter.AllowN(time.Now(), bytes)
}

// PagedBytes returns the total bytes that passed through AcquirePaging.
func (c *Controller) PagedBytes() int64 {
	if c == nil {
		return 0
	}
	return c.pagedBytes.Load()
}
