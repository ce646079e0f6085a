package log

import (
	"context"
	"io"
	"log/slog"
)

type contextKey struct{}

// Log configuration constants
const (
	LevelDebug = int(slog.LevelDebug) // debug level
	LevelInfo  = int(slog.LevelInfo)  // info level
	LevelWarn  = int(slog.LevelWarn)  // warning level
	LevelErr   = int(slog.LevelError) // error level

	OutputJSON = 1 // Log output will be json format
	OutputText = 2 // log output will be text format
)

// NewContext returns a context with an injected logger.
func NewContext(ctx context.Context, level, format int, w io.Writer) context.Context {
	l := slog.LevelVar{}
	l.Set(slog.Level(level))

	opts := &slog.HandlerOptions{
		AddSource: false,
		Level:     &l,
	}
	if format == OutputJSON {
		return newContext(ctx, slog.New(slog.NewJSONHandler(w, opts)))
	}
	return newContext(ctx, slog.New(slog.NewTextHandler(w, opts)))
}

// CopyFromContext returns dest with the logger found in orig.
// Used when a background goroutine outlives the request context that spawned it.
func CopyFromContext(orig, dest context.Context) context.Context {
	return newContext(dest, fromContext(orig))
}

// With changes the context logger with a new logger that will include the extra attributes
// from args parameters.
func With(ctx context.Context, args ...any) context.Context {
	return newContext(ctx, fromContext(ctx).With(args...))
}

// Debug logs a debug message using context logger
func Debug(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).DebugContext(ctx, msg, args...)
}

// Info logs an info using context logger
func Info(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).InfoContext(ctx, msg, args...)
}

// Warn logs a warning using context logger
func Warn(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).WarnContext(ctx, msg, args...)
}

// Error logs an error using context logger. The error itself is expected as a
// key value pair in args, e.g. log.Error(ctx, "msg", "err", err)
func Error(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).ErrorContext(ctx, msg, args...)
}

// Log logs at an arbitrary level. Useful when the severity is computed, like retry loops
// that escalate after a number of attempts.
func Log(ctx context.Context, level int, msg string, args ...any) {
	fromContext(ctx).Log(ctx, slog.Level(level), msg, args...)
}

func newContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

func fromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
