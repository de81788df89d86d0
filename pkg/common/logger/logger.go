// Package logger provides a context-aware structured logger built on log/slog.
// Every logging method takes a context so trace identifiers from an active span
// are attached to the record without callers threading them through by hand.
package logger

import (
	"context"
	"io"
	"log/slog"
)

// Level represents different logging levels.
type Level slog.Level

// A set of possible logging levels.
const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// TraceIDFn represents a function that can return the trace id from
// the specified context.
type TraceIDFn func(ctx context.Context) string

// Logger represents a logger for logging information.
type Logger struct {
	handler   slog.Handler
	traceIDFn TraceIDFn
}

// New constructs a new JSON logger that writes to w.
func New(w io.Writer, minLevel Level, serviceName string, traceIDFn TraceIDFn) *Logger {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.Level(minLevel)})
	if serviceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", serviceName)})
	}
	return &Logger{handler: h, traceIDFn: traceIDFn}
}

// NewWithHandler returns a new logger backed by the provided handler.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{handler: h}
}

// NewWithTraceID returns a logger backed by h that stamps records with the
// trace id returned by traceIDFn.
func NewWithTraceID(h slog.Handler, traceIDFn TraceIDFn) *Logger {
	return &Logger{handler: h, traceIDFn: traceIDFn}
}

// Noop returns a logger that discards everything.
func Noop() *Logger {
	return NewWithHandler(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// With returns a new Logger that always includes the given key/value pairs.
func (log *Logger) With(args ...any) *Logger {
	l := slog.New(log.handler).With(args...)
	return &Logger{handler: l.Handler(), traceIDFn: log.traceIDFn}
}

// Debug logs at LevelDebug with the given context.
func (log *Logger) Debug(ctx context.Context, msg string, args ...any) {
	log.write(ctx, LevelDebug, msg, args...)
}

// Info logs at LevelInfo with the given context.
func (log *Logger) Info(ctx context.Context, msg string, args ...any) {
	log.write(ctx, LevelInfo, msg, args...)
}

// Warn logs at LevelWarn with the given context.
func (log *Logger) Warn(ctx context.Context, msg string, args ...any) {
	log.write(ctx, LevelWarn, msg, args...)
}

// Error logs at LevelError with the given context.
func (log *Logger) Error(ctx context.Context, msg string, args ...any) {
	log.write(ctx, LevelError, msg, args...)
}

// Enabled reports whether records at level would be emitted.
func (log *Logger) Enabled(ctx context.Context, level Level) bool {
	return log.handler.Enabled(ctx, slog.Level(level))
}

func (log *Logger) write(ctx context.Context, level Level, msg string, args ...any) {
	slogLevel := slog.Level(level)
	if !log.handler.Enabled(ctx, slogLevel) {
		return
	}

	l := slog.New(log.handler)
	if log.traceIDFn != nil {
		if id := log.traceIDFn(ctx); id != "" && id != zeroTraceID {
			args = append(args, "trace_id", id)
		}
	}
	l.Log(ctx, slogLevel, msg, args...)
}

const zeroTraceID = "00000000000000000000000000000000"
