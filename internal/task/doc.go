// Package task runs groups of box-tree jobs either inline or on a bounded
// worker pool.
//
// Jobs may spawn further jobs into the same group (a split of one box queues
// the splits of its children). A Pool never blocks a spawning job waiting for
// a free worker: when all workers are busy the new job runs inline on the
// caller's goroutine, so nested spawning cannot deadlock.
package task
