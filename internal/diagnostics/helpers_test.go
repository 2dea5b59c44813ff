package diagnostics

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	testTimeout = 5 * time.Second
	testTick    = 5 * time.Millisecond
)

// recordSink is a Sink that keeps everything in memory.
type recordSink struct {
	mu     sync.Mutex
	b      strings.Builder
	indent int
	resets int
	bol    bool
}

func newRecordSink() *recordSink {
	return &recordSink{bol: true}
}

func (s *recordSink) write(str string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bol && str != "\n" {
		s.b.WriteString(strings.Repeat("  ", s.indent))
	}
	s.b.WriteString(str)
	s.bol = strings.HasSuffix(str, "\n")
}

func (s *recordSink) String(str string) { s.write(str) }
func (s *recordSink) Line(str string) { s.write(str); s.write("\n") }
func (s *recordSink) Newline() { s.write("\n") }
func (s *recordSink) Signed(v int64) { s.write(strconv.FormatInt(v, 10)) }
func (s *recordSink) Unsigned(v uint64) { s.write(strconv.FormatUint(v, 10)) }
func (s *recordSink) Hex(v uint64) { s.write("0x" + strconv.FormatUint(v, 16)) }
func (s *recordSink) HexDump(uintptr, int, int) {}

func (s *recordSink) Indent(add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.indent++
	} else if s.indent > 0 {
		s.indent--
	}
}

func (s *recordSink) ResetIndentation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indent = 0
	s.resets++
}

func (s *recordSink) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// call is one recorded section invocation.
type call struct {
	section string
	attempt int
	snap    Snapshot
}

// tracer records section invocations across goroutines.
type tracer struct {
	mu    sync.Mutex
	calls []call
}

func (t *tracer) record(name string, snap Snapshot, attempt int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call{section: name, attempt: attempt, snap: snap})
}

func (t *tracer) Calls() []call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]call, len(t.calls))
	copy(out, t.calls)
	return out
}

func (t *tracer) names() []string {
	var out []string
	for _, c := range t.Calls() {
		out = append(out, c.section+"#"+strconv.Itoa(c.attempt))
	}
	return out
}

// section returns a section that records each call and then runs behave.
func (t *tracer) section(name string, maxAttempts int, behave func(attempt int) error) Section {
	return NewSection(name, maxAttempts, func(sink Sink, snap Snapshot, attempt int) error {
		t.record(name, snap, attempt)
		sink.Line(name + " attempt " + strconv.Itoa(attempt))
		if behave == nil {
			return nil
		}
		return behave(attempt)
	})
}

// reportCatchingFaults plays the role of the external fault handler: it calls
// Report and hands back whatever unrecoverable fault escaped.
func reportCatchingFaults(r *Reporter, sink Sink, sp, ip uintptr, regs RegisterContext) (ok bool, fault any) {
	defer func() {
		fault = recover()
	}()
	return r.Report(sink, sp, ip, regs), nil
}

// addrFault mimics the runtime error raised for a bad memory access.
type addrFault struct{ addr uintptr }

func (f addrFault) Error() string { return "unexpected fault address" }
func (f addrFault) Addr() uintptr { return f.addr }
func (f addrFault) RuntimeError() {}
