// Package observability configures structured logging for the survey bot.
//
// It wraps log/slog with trace ID propagation and a process-wide redactor so
// that configured secrets never reach the log output.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/money626/epidemic-servey-chatbot/common/redact"
	"github.com/money626/epidemic-servey-chatbot/common/trace"
)

var redactor atomic.Pointer[redact.Redactor]

// Setup configures the global slog logger (level: debug|info|warn|error,
// format: json|text).
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: redactAttr}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// RegisterSecrets masks the given values in every string and error attribute
// logged afterwards.
func RegisterSecrets(secrets ...string) {
	redactor.Store(redact.New(secrets...))
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	r := redactor.Load()
	if r == nil {
		return a
	}
	switch v := a.Value.Any().(type) {
	case string:
		return slog.String(a.Key, r.String(v))
	case error:
		return slog.String(a.Key, r.String(v.Error()))
	}
	return a
}

// WithTrace returns a logger that includes the trace_id carried by ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.With("trace_id", traceID)
}
