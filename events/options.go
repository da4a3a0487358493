package events

import (
	"github.com/hupe1980/mdbox"
	"github.com/hupe1980/mdbox/internal/cache"
)

type options struct {
	mruCapacity      int
	metricsCollector mdbox.MetricsCollector
	logger           *mdbox.Logger
}

// Option configures an EventWorkspace.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		mruCapacity: cache.DefaultMRUCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = mdbox.NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = mdbox.NoopMetricsCollector{}
	}
	return o
}

// WithMRUCapacity sets the number of histograms each worker keeps cached per
// data kind. Non-positive values select the default of 50.
func WithMRUCapacity(n int) Option {
	return func(o *options) {
		o.mruCapacity = n
	}
}

// WithMetricsCollector reports cache lookups to mc.
func WithMetricsCollector(mc mdbox.MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *mdbox.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
