// Package prom exports workspace metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/mdbox"
)

const namespace = "mdbox"

// Collector implements mdbox.MetricsCollector on Prometheus counters and
// histograms.
type Collector struct {
	addEvents    *prometheus.CounterVec
	addLatency   prometheus.Histogram
	splits       *prometheus.CounterVec
	splitLatency prometheus.Histogram
	gridBoxes    prometheus.Counter
	pagedBytes   *prometheus.CounterVec
	pagingErrors *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

var _ mdbox.MetricsCollector = (*Collector)(nil)

// New registers the workspace metrics with reg and returns the collector.
// A nil reg selects prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		// Labels: result (added, dropped, error)
		addEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "events_total",
			Help:      "Events passed to AddEvents by result",
		}, []string{"result"}),
		addLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "add_events_duration_seconds",
			Help:      "AddEvents call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		// Labels: status (success, error)
		splits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "splits_total",
			Help:      "Split passes by status",
		}, []string{"status"}),
		splitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "split_duration_seconds",
			Help:      "Split pass latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}),
		gridBoxes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "grid_boxes_created_total",
			Help:      "Leaves converted to grid boxes",
		}),
		// Labels: direction (in, out)
		pagedBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "bytes_total",
			Help:      "Event bytes moved between memory and the page file",
		}, []string{"direction"}),
		pagingErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paging",
			Name:      "errors_total",
			Help:      "Failed page file transfers",
		}, []string{"direction"}),
		// Labels: kind (y, e), result (hit, miss)
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "histogram_cache",
			Name:      "lookups_total",
			Help:      "Histogram cache lookups by kind and result",
		}, []string{"kind", "result"}),
	}
}

// RecordAddEvents implements mdbox.MetricsCollector.
func (c *Collector) RecordAddEvents(added, dropped int, duration time.Duration, err error) {
	c.addLatency.Observe(duration.Seconds())
	if err != nil {
		c.addEvents.WithLabelValues("error").Inc()
		return
	}
	c.addEvents.WithLabelValues("added").Add(float64(added))
	c.addEvents.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordSplit implements mdbox.MetricsCollector.
func (c *Collector) RecordSplit(newGridBoxes int64, duration time.Duration, err error) {
	c.splitLatency.Observe(duration.Seconds())
	c.gridBoxes.Add(float64(newGridBoxes))
	if err != nil {
		c.splits.WithLabelValues("error").Inc()
		return
	}
	c.splits.WithLabelValues("success").Inc()
}

// RecordPageIn implements mdbox.MetricsCollector.
func (c *Collector) RecordPageIn(bytes int64, err error) {
	c.record("in", bytes, err)
}

// RecordPageOut implements mdbox.MetricsCollector.
func (c *Collector) RecordPageOut(bytes int64, err error) {
	c.record("out", bytes, err)
}

func (c *Collector) record(direction string, bytes int64, err error) {
	if bytes > 0 {
		c.pagedBytes.WithLabelValues(direction).Add(float64(bytes))
	}
	if err != nil {
		c.pagingErrors.WithLabelValues(direction).Inc()
	}
}

// RecordCacheLookup implements mdbox.MetricsCollector.
func (c *Collector) RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(kind, result).Inc()
}
