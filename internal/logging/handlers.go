package logging

import (
	"context"
	"log/slog"
)

// runAttrsHandler stamps session and run identifiers onto every record.
type runAttrsHandler struct {
	base      slog.Handler
	sessionID string
	runID     string
}

func newRunAttrsHandler(base slog.Handler, sessionID, runID string) slog.Handler {
	if base == nil {
		return NoopHandler{}
	}
	if sessionID == "" && runID == "" {
		return base
	}
	return &runAttrsHandler{base: base, sessionID: sessionID, runID: runID}
}

func (h *runAttrsHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *runAttrsHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.sessionID != "" {
		record.AddAttrs(slog.String(FieldSessionID, h.sessionID))
	}
	if h.runID != "" {
		record.AddAttrs(slog.String(FieldRunID, h.runID))
	}
	return h.base.Handle(ctx, record)
}

func (h *runAttrsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &runAttrsHandler{base: h.base.WithAttrs(attrs), sessionID: h.sessionID, runID: h.runID}
}

func (h *runAttrsHandler) WithGroup(name string) slog.Handler {
	return &runAttrsHandler{base: h.base.WithGroup(name), sessionID: h.sessionID, runID: h.runID}
}

type fanoutHandler []slog.Handler

// TeeLogger duplicates output from base into the provided handlers. Each
// handler applies its own level filter.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	all := make([]slog.Handler, 0, len(handlers)+1)
	if base != nil {
		all = append(all, base.Handler())
	}
	for _, h := range handlers {
		if h != nil {
			all = append(all, h)
		}
	}
	switch len(all) {
	case 0:
		return NewNop()
	case 1:
		return slog.New(all[0])
	default:
		return slog.New(fanoutHandler(all))
	}
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
