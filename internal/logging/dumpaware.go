package logging

import (
	"context"
	"log/slog"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
)

// DumpAwareHandler drops records while a goroutine other than the caller
// prints a crash report. Log lines written to stderr during a dump would
// interleave with the report. The goroutine driving the dump still logs.
type DumpAwareHandler struct {
	handler    slog.Handler
	suppressed func() bool
}

// NewDumpAwareHandler wraps handler, consulting the process-wide reporter.
func NewDumpAwareHandler(handler slog.Handler) *DumpAwareHandler {
	return &DumpAwareHandler{handler: handler, suppressed: diagnostics.IsInProgressElsewhere}
}

// Enabled reports false while a dump is driven elsewhere.
func (h *DumpAwareHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.suppressed() {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

// Handle drops r if a dump started after Enabled was checked.
func (h *DumpAwareHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.suppressed() {
		return nil
	}
	return h.handler.Handle(ctx, r)
}

func (h *DumpAwareHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DumpAwareHandler{handler: h.handler.WithAttrs(attrs), suppressed: h.suppressed}
}

func (h *DumpAwareHandler) WithGroup(name string) slog.Handler {
	return &DumpAwareHandler{handler: h.handler.WithGroup(name), suppressed: h.suppressed}
}
