// Package logging configures slog output for lorecore commands and
// carries request ids through context for the web layer.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// LevelTrace sits below slog.LevelDebug for very verbose output.
const LevelTrace = slog.LevelDebug - 4

// LevelForVerbosity maps a -v count to a slog level.
func LevelForVerbosity(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelInfo
	case verbosity == 1:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// New builds a logger writing to w. Compact console format by default,
// JSON when jsonOutput is set. A nil writer falls back to stdout.
func New(w io.Writer, level slog.Level, jsonOutput bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewCompactHandler(w, opts))
}

// WithRequestID adds a request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request id from context, or "".
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
