package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// New builds a JSON logger whose records carry the active trace and span ids.
func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(HandlerWithSpanContext(handler))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func HandlerWithSpanContext(handler slog.Handler) *SpanContextLogHandler {
	return &SpanContextLogHandler{Handler: handler}
}

type SpanContextLogHandler struct {
	slog.Handler
}

func (t *SpanContextLogHandler) Handle(ctx context.Context, record slog.Record) error {
	if s := trace.SpanContextFromContext(ctx); s.IsValid() {
		record.AddAttrs(
			slog.String("traceId", s.TraceID().String()),
			slog.String("spanId", s.SpanID().String()),
			slog.Bool("trace_sampled", s.TraceFlags().IsSampled()),
		)
	}
	return t.Handler.Handle(ctx, record)
}

func (t *SpanContextLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SpanContextLogHandler{Handler: t.Handler.WithAttrs(attrs)}
}

func (t *SpanContextLogHandler) WithGroup(name string) slog.Handler {
	return &SpanContextLogHandler{Handler: t.Handler.WithGroup(name)}
}
