package logging

import (
	"context"
	"log/slog"
)

// levelOverrideHandler enforces a per-routine minimum level while delegating
// output to the wrapped handler. The wrapped handler still applies its own
// level, so an override can only raise verbosity as far as the base allows.
type levelOverrideHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.level {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithAttrs(attrs), level: h.level}
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	return &levelOverrideHandler{next: h.next.WithGroup(name), level: h.level}
}

// WithLevelOverride returns a logger that drops records below level while
// keeping existing attributes and handler wiring. Stacked overrides replace
// each other rather than nesting.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	next := logger.Handler()
	if existing, ok := next.(*levelOverrideHandler); ok {
		next = existing.next
	}
	return slog.New(&levelOverrideHandler{next: next, level: level})
}
