// Package pagestore implements the page file that backs file-backed boxes.
//
// A page file holds fixed-size event records. Runs of records are placed by
// an [Allocator] (first fit over a coalescing free list) and addressed by a
// [Ref]. The [Store] reads and writes runs with positional I/O, so boxes can
// page concurrently without sharing a file offset. Every transfer passes the
// paging rate limiter of the resource controller.
//
// [DiskBuffer] tracks which boxes currently hold their events in memory and
// pages the least recently used ones out when the memory budget is exceeded.
package pagestore
