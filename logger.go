package mdbox

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with workspace-specific field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithWorkspace adds the workspace ID to the logger.
func (l *Logger) WithWorkspace(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("workspace", id),
	}
}

// WithDimensions adds a dimension count field to the logger.
func (l *Logger) WithDimensions(nd int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dims", nd),
	}
}

// LogAddEvents logs an insertion.
func (l *Logger) LogAddEvents(ctx context.Context, added, dropped int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "add events failed",
			"error", err,
		)
	case dropped > 0:
		l.DebugContext(ctx, "add events dropped events outside extents",
			"added", added,
			"dropped", dropped,
		)
	default:
		l.DebugContext(ctx, "add events completed",
			"added", added,
		)
	}
}

// LogSplit logs a split pass.
func (l *Logger) LogSplit(ctx context.Context, boxes, gridBoxes, maxDepth int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "split failed",
			"boxes", boxes,
			"grid_boxes", gridBoxes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "split completed",
			"boxes", boxes,
			"grid_boxes", gridBoxes,
			"max_depth", maxDepth,
		)
	}
}

// LogPageIn logs events loaded back from the page file.
func (l *Logger) LogPageIn(ctx context.Context, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "page in failed",
			"error", err,
		)
	} else if bytes > 0 {
		l.DebugContext(ctx, "page in completed",
			"bytes", bytes,
		)
	}
}

// LogPageOut logs a page out pass.
func (l *Logger) LogPageOut(ctx context.Context, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "page out failed",
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "page out completed",
			"bytes", bytes,
		)
	}
}

// LogSave logs a snapshot save.
func (l *Logger) LogSave(ctx context.Context, name string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "workspace saved",
			"name", name,
			"bytes", size,
		)
	}
}

// LogLoad logs a snapshot load.
func (l *Logger) LogLoad(ctx context.Context, name string, events uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "workspace loaded",
			"name", name,
			"events", events,
		)
	}
}
