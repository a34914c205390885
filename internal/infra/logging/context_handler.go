package logging

import (
	"context"
	"log/slog"

	context_ "github.com/jortega/taskdesk/internal/infra/context"
)

// ContextHandler wraps another slog.Handler to enrich all log records with
// request-scoped values from the context: the trace ID and the acting user.
type ContextHandler struct {
	h slog.Handler
}

var _ slog.Handler = (*ContextHandler)(nil)

// NewContextHandler creates a new ContextHandler wrapping the given handler.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{h: h}
}

// Handle implements slog.Handler by adding trace ID and actor information if
// available in the context before delegating to the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		r.AddAttrs(slog.Group("trace",
			slog.String("id", traceID),
		))
	}

	if actor, ok := context_.ActorFromContext(ctx); ok {
		r.AddAttrs(slog.Group("actor",
			slog.String("name", actor.Name),
			slog.String("role", actor.Role),
		))
	}

	//nolint:wrapcheck
	return h.h.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) Handler {
	return NewContextHandler(h.h.WithAttrs(attrs))
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ContextHandler) WithGroup(name string) Handler {
	return NewContextHandler(h.h.WithGroup(name))
}

// Enabled implements slog.Handler.Enabled.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}
