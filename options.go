package mdbox

import (
	"log/slog"

	"github.com/hupe1980/mdbox/codec"
	"github.com/hupe1980/mdbox/internal/fs"
	"github.com/hupe1980/mdbox/internal/snapshot"
)

type options struct {
	codec            codec.Codec
	compression      snapshot.Compression
	metricsCollector MetricsCollector
	logger           *Logger
	fileBackingDir   string
	fsys             fs.FileSystem
	memoryLimit      int64
	workers          int
	pagingRate       int64
}

// Option configures a Workspace.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		codec:       codec.Default,
		compression: snapshot.CompressionZstd,
		workers:     1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.fsys == nil {
		o.fsys = fs.Default
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// WithCodec configures the codec used for the snapshot manifest.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression configures how Save compresses the event block.
// The default is zstd.
func WithCompression(c snapshot.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mdbox.BasicMetricsCollector{}
//	ws := mdbox.New(mdbox.WithMetricsCollector(metrics))
//	// ... use ws ...
//	stats := metrics.GetStats()
//	fmt.Printf("added: %d, dropped: %d\n", stats.EventsAdded, stats.EventsDropped)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := mdbox.NewJSONLogger(slog.LevelInfo)
//	ws := mdbox.New(mdbox.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithFileBacking enables paging of leaf events to a page file created in dir.
// The page file is removed by ClearFileBacked(true) and Close.
func WithFileBacking(dir string) Option {
	return func(o *options) {
		o.fileBackingDir = dir
	}
}

// WithFileSystem sets the file system holding the page file.
// Mostly useful for fault injection in tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

// WithMemoryLimit bounds the bytes of event data file-backed leaves keep in
// memory. Least recently used leaves are paged out beyond it. Zero means
// unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithWorkers sets the number of concurrent split and histogram workers.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithPagingRateLimit caps page file throughput in bytes per second.
// Zero means unlimited.
func WithPagingRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.pagingRate = bytesPerSec
	}
}
