package task

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mdbox/internal/resource"
)

// Func is a unit of work. It should return promptly once ctx is done.
type Func func(ctx context.Context) error

// Group collects jobs started by one Scheduler.Start call.
type Group interface {
	// Go schedules fn. It may run fn before returning.
	Go(fn Func)
	// Wait blocks until every scheduled job has finished and returns the
	// first error any of them produced.
	Wait() error
}

// Scheduler starts job groups.
type Scheduler interface {
	Start(ctx context.Context) Group
}

// Sequential runs every job inline on the calling goroutine.
type Sequential struct{}

// Start implements Scheduler.
func (Sequential) Start(ctx context.Context) Group {
	return &sequentialGroup{ctx: ctx}
}

type sequentialGroup struct {
	ctx context.Context
	err error
}

func (g *sequentialGroup) Go(fn Func) {
	if g.err != nil {
		return
	}
	if err := g.ctx.Err(); err != nil {
		g.err = err
		return
	}
	if err := fn(g.ctx); err != nil {
		g.err = err
	}
}

func (g *sequentialGroup) Wait() error { return g.err }

// Pool runs jobs on at most rc's MaxWorkers goroutines.
type Pool struct {
	rc *resource.Controller
}

// NewPool returns a Pool bounded by rc. A nil rc allows a single worker.
func NewPool(rc *resource.Controller) *Pool {
	if rc == nil {
		rc = resource.NewController(resource.Config{MaxWorkers: 1})
	}
	return &Pool{rc: rc}
}

// Workers returns the worker bound.
func (p *Pool) Workers() int64 {
	return p.rc.Config().MaxWorkers
}

// Start implements Scheduler.
func (p *Pool) Start(ctx context.Context) Group {
	eg, gctx := errgroup.WithContext(ctx)
	return &poolGroup{rc: p.rc, eg: eg, ctx: gctx}
}

type poolGroup struct {
	rc  *resource.Controller
	eg  *errgroup.Group
	ctx context.Context

	mu       sync.Mutex
	firstErr error
}

func (g *poolGroup) Go(fn Func) {
	if g.failed() {
		return
	}

	if g.rc.TryAcquireWorker() {
		g.eg.Go(func() error {
			defer g.rc.ReleaseWorker()
			return g.run(fn)
		})
		return
	}

	// Saturated: run on the caller's goroutine.
	if err := g.run(fn); err != nil {
		// Route the error through the errgroup so Wait reports it and the
		// group context is canceled.
		g.eg.Go(func() error { return err })
	}
}

func (g *poolGroup) run(fn Func) error {
	if err := g.ctx.Err(); err != nil {
		g.record(err)
		return err
	}
	err := fn(g.ctx)
	if err != nil {
		g.record(err)
	}
	return err
}

func (g *poolGroup) record(err error) {
	g.mu.Lock()
	if g.firstErr == nil {
		g.firstErr = err
	}
	g.mu.Unlock()
}

func (g *poolGroup) failed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstErr != nil
}

func (g *poolGroup) Wait() error {
	err := g.eg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.firstErr != nil {
		return g.firstErr
	}
	return err
}
