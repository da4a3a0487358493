package mdbox

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; see
// metrics/prom for a Prometheus implementation.
type MetricsCollector interface {
	// RecordAddEvents is called after each AddEvents call.
	// dropped counts events outside the workspace extents.
	RecordAddEvents(added, dropped int, duration time.Duration, err error)

	// RecordSplit is called after each split pass with the number of grid
	// boxes it created.
	RecordSplit(newGridBoxes int64, duration time.Duration, err error)

	// RecordPageIn is called when events were loaded back from the page file.
	RecordPageIn(bytes int64, err error)

	// RecordPageOut is called after events were written to the page file.
	RecordPageOut(bytes int64, err error)

	// RecordCacheLookup is called for every histogram cache lookup.
	// kind is "y" or "e".
	RecordCacheLookup(kind string, hit bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAddEvents(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSplit(int64, time.Duration, error)        {}
func (NoopMetricsCollector) RecordPageIn(int64, error)                      {}
func (NoopMetricsCollector) RecordPageOut(int64, error)                     {}
func (NoopMetricsCollector) RecordCacheLookup(string, bool)                 {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddEventsCalls  atomic.Int64
	EventsAdded     atomic.Int64
	EventsDropped   atomic.Int64
	AddEventsErrors atomic.Int64
	AddTotalNanos   atomic.Int64
	SplitCount      atomic.Int64
	SplitErrors     atomic.Int64
	GridBoxesMade   atomic.Int64
	SplitTotalNanos atomic.Int64
	PageInBytes     atomic.Int64
	PageInErrors    atomic.Int64
	PageOutBytes    atomic.Int64
	PageOutErrors   atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
}

// RecordAddEvents implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAddEvents(added, dropped int, duration time.Duration, err error) {
	b.AddEventsCalls.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddEventsErrors.Add(1)
		return
	}
	b.EventsAdded.Add(int64(added))
	b.EventsDropped.Add(int64(dropped))
}

// RecordSplit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSplit(newGridBoxes int64, duration time.Duration, err error) {
	b.SplitCount.Add(1)
	b.SplitTotalNanos.Add(duration.Nanoseconds())
	b.GridBoxesMade.Add(newGridBoxes)
	if err != nil {
		b.SplitErrors.Add(1)
	}
}

// RecordPageIn implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPageIn(bytes int64, err error) {
	b.PageInBytes.Add(bytes)
	if err != nil {
		b.PageInErrors.Add(1)
	}
}

// RecordPageOut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPageOut(bytes int64, err error) {
	b.PageOutBytes.Add(bytes)
	if err != nil {
		b.PageOutErrors.Add(1)
	}
}

// RecordCacheLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheLookup(_ string, hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddEventsCalls:  b.AddEventsCalls.Load(),
		EventsAdded:     b.EventsAdded.Load(),
		EventsDropped:   b.EventsDropped.Load(),
		AddEventsErrors: b.AddEventsErrors.Load(),
		AddAvgNanos:     avg(b.AddTotalNanos.Load(), b.AddEventsCalls.Load()),
		SplitCount:      b.SplitCount.Load(),
		SplitErrors:     b.SplitErrors.Load(),
		GridBoxesMade:   b.GridBoxesMade.Load(),
		SplitAvgNanos:   avg(b.SplitTotalNanos.Load(), b.SplitCount.Load()),
		PageInBytes:     b.PageInBytes.Load(),
		PageInErrors:    b.PageInErrors.Load(),
		PageOutBytes:    b.PageOutBytes.Load(),
		PageOutErrors:   b.PageOutErrors.Load(),
		CacheHits:       b.CacheHits.Load(),
		CacheMisses:     b.CacheMisses.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddEventsCalls  int64
	EventsAdded     int64
	EventsDropped   int64
	AddEventsErrors int64
	AddAvgNanos     int64
	SplitCount      int64
	SplitErrors     int64
	GridBoxesMade   int64
	SplitAvgNanos   int64
	PageInBytes     int64
	PageInErrors    int64
	PageOutBytes    int64
	PageOutErrors   int64
	CacheHits       int64
	CacheMisses     int64
}
