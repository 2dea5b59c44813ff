package crashdump

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"unsafe"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/eventlog"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/monitor"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/sink"
)

// Options configures a Handler.
type Options struct {
	// Reporter drives the dump. Nil means diagnostics.Default().
	Reporter *diagnostics.Reporter
	// Store receives report files when Output includes OutputFile.
	Store  *Store
	Output Output
	// Stderr receives reports when Output includes OutputStderr. Nil means
	// os.Stderr.
	Stderr io.Writer

	// PanicOnFault turns memory faults inside Run and Go into recoverable
	// panics carrying the fault address.
	PanicOnFault bool
	// Traceback is passed to debug.SetTraceback by Install when set.
	Traceback string

	// OnReport is called after a report this handler owned is finished.
	OnReport func(Result)

	Logger   *slog.Logger
	Events   *eventlog.Log
	Counters *eventlog.Counters
	Monitor  *monitor.Monitor
}

// Result describes one handled crash.
type Result struct {
	// Path is the report file, empty when none was written.
	Path string
	// Owned is false when another goroutine was already reporting.
	Owned bool
	// Invocations counts the Report calls made, including re-entries.
	Invocations int
}

// Handler turns panics and signals into crash reports.
type Handler struct {
	opts     Options
	reporter *diagnostics.Reporter

	panics  *eventlog.Counter
	reports *eventlog.Counter
}

// NewHandler validates opts and returns a handler.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Output == "" {
		opts.Output = OutputBoth
	}
	if _, err := ParseOutput(string(opts.Output)); err != nil {
		return nil, err
	}
	if opts.Output != OutputStderr && opts.Store == nil {
		return nil, fmt.Errorf("report output %q needs a store", opts.Output)
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &Handler{opts: opts, reporter: opts.Reporter}
	if h.reporter == nil {
		h.reporter = diagnostics.Default()
	}
	if opts.Counters != nil {
		h.panics = opts.Counters.Get("panics_recovered")
		h.reports = opts.Counters.Get("reports_written")
	}
	return h, nil
}

// Install applies the process-wide runtime settings.
func (h *Handler) Install() {
	if h.opts.Traceback != "" {
		debug.SetTraceback(h.opts.Traceback)
	}
}

// Reporter returns the reporter the handler drives.
func (h *Handler) Reporter() *diagnostics.Reporter {
	return h.reporter
}

// Recover writes a crash report for a panic and then re-panics with the same
// value. It must be deferred directly:
//
//	defer h.Recover()
func (h *Handler) Recover() {
	v := recover()
	if v == nil {
		return
	}
	var anchor uintptr
	sp := uintptr(unsafe.Pointer(&anchor))
	h.Handle(v, snapshot(sp, panicSite(1), v))
	panic(v)
}

// RecoverInto writes a crash report for a panic and stores an error in
// *errp instead of re-panicking. It must be deferred directly:
//
//	defer h.RecoverInto(&err)
//
//nolint:gocritic // ptrToRefParam: errp must point at the caller's named result
func (h *Handler) RecoverInto(errp *error) {
	v := recover()
	if v == nil {
		return
	}
	var anchor uintptr
	sp := uintptr(unsafe.Pointer(&anchor))
	res := h.Handle(v, snapshot(sp, panicSite(1), v))
	*errp = &PanicError{Value: v, Report: res.Path}
}

// Run calls fn with panic-on-fault applied and converts a panic into a
// *PanicError after reporting it.
func (h *Handler) Run(fn func() error) (err error) {
	defer h.RecoverInto(&err)
	defer h.track()()
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(h.opts.PanicOnFault))
	return fn()
}

// Go runs fn on a new goroutine with panic-on-fault applied. A panic is
// reported and then re-raised, which ends the process.
func (h *Handler) Go(fn func()) {
	go func() {
		defer h.Recover()
		defer h.track()()
		debug.SetPanicOnFault(h.opts.PanicOnFault)
		fn()
	}()
}

func (h *Handler) track() func() {
	m := h.opts.Monitor
	if m == nil {
		return func() {}
	}
	m.TaskStarted()
	return m.TaskFinished
}

// Handle writes a report for the failure v with the fault context snap.
//
// An unrecoverable fault inside a section escapes Report; Handle calls Report
// again on the same goroutine so the dump resumes at the next attempt. Each
// call either finishes the dump or uses up an attempt, so MaxInvocations+1
// calls always suffice.
func (h *Handler) Handle(v any, snap diagnostics.Snapshot) Result {
	if h.panics != nil {
		h.panics.Inc()
	}
	reason := describe(v)
	if h.opts.Events != nil {
		h.opts.Events.Record(eventlog.KindPanic, reason)
	}
	return h.write(reason, snap)
}

func (h *Handler) write(reason string, snap diagnostics.Snapshot) Result {
	// Sections read raw memory; a bad address must surface as a fault the
	// driver can resume from, not kill the process.
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))

	var res Result
	var report *Report
	var targets []io.Writer

	if h.opts.Output != OutputStderr {
		r, err := h.opts.Store.Create(reason)
		if err != nil {
			h.opts.Logger.Error("failed to create crash report", "error", err)
		} else {
			report = r
			targets = append(targets, r)
		}
	}
	if h.opts.Output != OutputFile || report == nil {
		targets = append(targets, h.opts.Stderr)
	}

	w := sink.New(newFanout(targets...))
	w.String("reason: ")
	w.Line(reason)

	limit := h.reporter.MaxInvocations() + 1
	for res.Invocations < limit {
		res.Invocations++
		owned, fault := h.invoke(w, snap)
		res.Owned = owned
		if fault == nil {
			break
		}
		h.opts.Logger.Debug("crash report resumed after fault", "fault", diagnostics.KindOf(fault))
	}

	if report != nil {
		if err := h.opts.Store.Commit(report); err != nil {
			h.opts.Logger.Error("failed to finish crash report", "path", report.Path, "error", err)
		} else {
			res.Path = report.Path
		}
	}
	if !res.Owned {
		h.opts.Logger.Warn("crash report skipped, another report is in progress", "reason", reason)
	} else {
		if h.reports != nil {
			h.reports.Inc()
		}
		if h.opts.Events != nil {
			h.opts.Events.Record(eventlog.KindReport, "crash report written")
		}
		h.opts.Logger.Error("crash report written", "path", res.Path, "reason", reason, "invocations", res.Invocations)
		if h.opts.OnReport != nil {
			h.opts.OnReport(res)
		}
	}
	if err := w.Err(); err != nil {
		h.opts.Logger.Error("crash report output failed", "error", err)
	}
	return res
}

// invoke calls Report once and returns the unrecoverable fault that escaped
// it, if any.
func (h *Handler) invoke(w diagnostics.Sink, snap diagnostics.Snapshot) (owned bool, fault any) {
	defer func() {
		if v := recover(); v != nil {
			owned, fault = true, v
		}
	}()
	owned = h.reporter.Report(w, snap.StackPointer, snap.InstructionPointer, snap.Registers)
	return owned, nil
}

// Notify writes a report every time one of sigs arrives, until ctx is done.
// The returned function stops delivery and waits for the watcher to exit.
func (h *Handler) Notify(ctx context.Context, sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				h.signaled(sig)
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		cancel()
		<-done
	}
}

func (h *Handler) signaled(sig os.Signal) {
	reason := "signal: " + sig.String()
	if h.opts.Events != nil {
		h.opts.Events.Record(eventlog.KindSignal, reason)
	}
	var anchor uintptr
	h.write(reason, diagnostics.Snapshot{StackPointer: uintptr(unsafe.Pointer(&anchor))})
}

// PanicError is returned by Run when fn panicked.
type PanicError struct {
	Value  any
	Report string
}

func (e *PanicError) Error() string {
	if e.Report == "" {
		return "panic: " + describe(e.Value)
	}
	return "panic: " + describe(e.Value) + " (report: " + e.Report + ")"
}

// Unwrap exposes an error panic value.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// describe formats a panic value as "<type>: <value>". fmt contains panics
// raised by String and Error methods.
func describe(v any) string {
	return diagnostics.KindOf(v) + ": " + fmt.Sprint(v)
}
