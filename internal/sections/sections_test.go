package sections

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/eventlog"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/monitor"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/sink"
)

// Raw memory targets live in the data segment so the hex dumps can read them.
var (
	codeArea  [128]byte
	stackArea [topOfStackBytes]byte
)

func codeIP() uintptr {
	return uintptr(unsafe.Pointer(&codeArea[64]))
}

func stackSP() uintptr {
	return uintptr(unsafe.Pointer(&stackArea[0]))
}

// run executes one attempt of s and returns the printed text.
func run(t *testing.T, s diagnostics.Section, snap diagnostics.Snapshot, attempt int) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	w := sink.New(&buf)
	err := s.Run(w, snap, attempt)
	require.NoError(t, w.Err())
	return buf.String(), err
}

// countRows counts hex dump rows, which start with an address column.
func countRows(out string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "0x") {
			n++
		}
	}
	return n
}

func sectionNames(list []diagnostics.Section) []string {
	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name())
	}
	return names
}

func TestDefault_Order(t *testing.T) {
	t.Parallel()
	all := Default(Options{IncludeEnv: true, GoroutineBuffer: 4096})
	assert.Equal(t, Names(), sectionNames(all))

	without := Default(Options{GoroutineBuffer: 4096})
	assert.Equal(t, Names()[:len(Names())-1], sectionNames(without))
}

func TestDefault_Budgets(t *testing.T) {
	t.Parallel()
	want := map[string]int{
		NameRegisters:        1,
		NameInstructions:     3,
		NameTopOfStack:       1,
		NameTopFrame:         1,
		NameGoroutines:       2,
		NameCurrentGoroutine: 2,
		NameBuildInfo:        2,
		NameMemory:           2,
		NameEventLog:         2,
		NameResourceHistory:  2,
		NameCounters:         1,
		NameRawStack:         1,
		NameDecodedStack:     1,
		NameSystem:           2,
		NameEnvironment:      1,
	}
	for _, s := range Default(Options{IncludeEnv: true, GoroutineBuffer: 4096}) {
		assert.Equal(t, want[s.Name()], s.MaxAttempts(), s.Name())
	}
}

func TestDefault_Disabled(t *testing.T) {
	t.Parallel()
	list := Default(Options{
		Disabled:        []string{"system", " Goroutines ", "unknown"},
		GoroutineBuffer: 4096,
	})
	names := sectionNames(list)
	assert.NotContains(t, names, NameSystem)
	assert.NotContains(t, names, NameGoroutines)
	assert.Len(t, names, len(Names())-3)
}

func TestRegisters(t *testing.T) {
	t.Parallel()
	out, err := run(t, Registers(), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Registers: unavailable (no register context)\n", out)

	snap := diagnostics.Snapshot{Registers: diagnostics.RegisterContext{
		{Name: "rax", Value: 0x10},
		{Name: "rip", Value: 0xdead},
	}}
	out, err = run(t, Registers(), snap, 1)
	require.NoError(t, err)
	assert.Equal(t, "Registers:\n  rax: 0x0000000000000010\n  rip: 0x000000000000dead\n", out)
}

func TestInstructions_ShrinksPerAttempt(t *testing.T) {
	t.Parallel()
	snap := diagnostics.Snapshot{InstructionPointer: codeIP()}
	s := Instructions()

	tests := []struct {
		attempt int
		rows    int
	}{
		{1, 4},
		{2, 2},
		{3, 1},
	}
	for _, tt := range tests {
		out, err := run(t, s, snap, tt.attempt)
		require.NoError(t, err)
		assert.Equal(t, tt.rows, countRows(out), "attempt %d", tt.attempt)
	}

	out, err := run(t, s, diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "unavailable")
}

func TestTopOfStackAndRawStack(t *testing.T) {
	t.Parallel()
	snap := diagnostics.Snapshot{StackPointer: stackSP()}

	out, err := run(t, TopOfStack(), snap, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Top of stack:\n"))
	assert.Equal(t, topOfStackBytes/16, countRows(out))

	out, err = run(t, RawStack(), snap, 1)
	require.NoError(t, err)
	assert.Equal(t, rawStackWords*wordSize/16, countRows(out))

	out, err = run(t, RawStack(), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "unavailable")
}

func TestTopFrame(t *testing.T) {
	t.Parallel()
	pc, _, _, ok := runtime.Caller(0)
	require.True(t, ok)

	out, err := run(t, TopFrame(), diagnostics.Snapshot{InstructionPointer: pc}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "TestTopFrame")
	assert.Contains(t, out, "sections_test.go:")
}

func TestGoroutines(t *testing.T) {
	t.Parallel()
	s := Goroutines(256 << 10)

	out, err := run(t, s, diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "  count: ")
	assert.Contains(t, out, "goroutine ")

	out, err = run(t, s, diagnostics.Snapshot{}, 2)
	require.NoError(t, err)
	assert.NotContains(t, out, "goroutine ")

	out, err = run(t, Goroutines(64), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "(truncated)")
}

func TestCurrentGoroutine(t *testing.T) {
	t.Parallel()
	s := CurrentGoroutine()

	out, err := run(t, s, diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "  id: ")
	assert.Contains(t, out, "GOMAXPROCS")
	assert.Contains(t, out, "TestCurrentGoroutine")

	out, err = run(t, s, diagnostics.Snapshot{}, 2)
	require.NoError(t, err)
	assert.NotContains(t, out, "GOMAXPROCS")
}

func TestBuildInfo(t *testing.T) {
	t.Parallel()
	out, err := run(t, BuildInfo(), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, runtime.Version())
	assert.Contains(t, out, "dependencies: ")

	out, err = run(t, BuildInfo(), diagnostics.Snapshot{}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestMemory(t *testing.T) {
	t.Parallel()
	s := Memory()

	out, err := run(t, s, diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "heap alloc: ")
	assert.Contains(t, out, "/sched/goroutines:goroutines: ")

	out, err = run(t, s, diagnostics.Snapshot{}, 2)
	require.NoError(t, err)
	assert.NotContains(t, out, "heap alloc: ")
	assert.Contains(t, out, "/gc/heap/live:bytes: ")
}

func TestEventLog(t *testing.T) {
	t.Parallel()
	log := eventlog.New(4)
	log.Record(eventlog.KindInfo, "service started")
	log.Record(eventlog.KindWarning, "fd usage high")
	s := EventLog(log)

	out, err := run(t, s, diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "#1 ")
	assert.Contains(t, out, "info service started")
	assert.Contains(t, out, "warning fd usage high")

	out, err = run(t, s, diagnostics.Snapshot{}, 2)
	require.NoError(t, err)
	assert.Contains(t, out, "warning\n")
	assert.NotContains(t, out, "fd usage high")

	out, err = run(t, EventLog(nil), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "unavailable")
}

type fakeHistory struct {
	busy    bool
	history []monitor.Snapshot
}

func (f *fakeHistory) TryHistory(dst []monitor.Snapshot) ([]monitor.Snapshot, bool) {
	if f.busy {
		return dst, false
	}
	return append(dst, f.history...), true
}

func (f *fakeHistory) Latest() (monitor.Snapshot, bool) {
	if len(f.history) == 0 {
		return monitor.Snapshot{}, false
	}
	return f.history[len(f.history)-1], true
}

func TestResourceHistory(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src := &fakeHistory{history: []monitor.Snapshot{
		{Timestamp: base, Goroutines: 4, HeapAllocMB: 1.25, OpenFDs: 9, MaxFDs: 1024},
		{Timestamp: base.Add(time.Minute), Goroutines: 7, HeapAllocMB: 2.5},
	}}
	s := ResourceHistory(src)

	out, err := run(t, s, diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "2026-01-02T03:04:05Z goroutines=4 heap_mb=1.2 fds=9/1024")
	assert.Contains(t, out, "goroutines=7")

	out, err = run(t, s, diagnostics.Snapshot{}, 2)
	require.NoError(t, err)
	assert.NotContains(t, out, "goroutines=4")
	assert.Contains(t, out, "goroutines=7")

	src.busy = true
	_, err = run(t, s, diagnostics.Snapshot{}, 1)
	assert.ErrorIs(t, err, ErrHistoryBusy)
}

func TestCounters(t *testing.T) {
	t.Parallel()
	c := eventlog.NewCounters()
	out, err := run(t, Counters(c), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Counters:\n  (none)\n", out)

	c.Get("requests").Add(41)
	c.Get("errors").Set(-1)
	out, err = run(t, Counters(c), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Counters:\n  requests = 41\n  errors = -1\n", out)
}

func TestDecodedStack(t *testing.T) {
	t.Parallel()
	out, err := run(t, DecodedStack(), diagnostics.Snapshot{InstructionPointer: 0x1234}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "program counters:")
	assert.Contains(t, out, "fault ip: 0x0000000000001234")
	assert.Contains(t, out, "symbolized frames:")
	assert.Contains(t, out, "TestDecodedStack")
}

func TestStage_IsolatesRecoverablePanics(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := sink.New(&buf)

	stage(w, "first", func() { panic("boom") })
	stage(w, "second", func() { w.Line("ran") })

	out := buf.String()
	assert.Contains(t, out, "[!!! Exception in stage first: string]")
	assert.Contains(t, out, "second:\n  ran\n")
	assert.Equal(t, 0, w.Level())
}

func TestStage_PropagatesUnrecoverableFaults(t *testing.T) {
	t.Parallel()
	w := sink.New(nil)
	assert.Panics(t, func() {
		stage(w, "fatal", func() { diagnostics.Crash("corrupt") })
	})
}

func TestSystem(t *testing.T) {
	t.Parallel()
	c := NewSystemCollector()
	s := System(c)

	out, err := run(t, s, diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "System: unavailable (not collected yet)\n", out)

	c.Refresh()
	out, err = run(t, s, diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "collected: ")
	assert.Contains(t, out, "cpu: ")
	assert.Contains(t, out, "memory: ")
	assert.Contains(t, out, "load: ")

	out, err = run(t, s, diagnostics.Snapshot{}, 2)
	require.NoError(t, err)
	assert.NotContains(t, out, "cpu: ")
	assert.NotContains(t, out, "disk: ")
	assert.Contains(t, out, "memory: ")
}

func TestSystem_PrintsPublishedSnapshot(t *testing.T) {
	t.Parallel()
	c := NewSystemCollector()
	c.latest.Store(&SystemInfo{
		CPUModel:    "Test CPU",
		CPUCores:    4,
		CPUThreads:  8,
		CPUPercent:  12.34,
		MemTotalMB:  2048,
		MemUsedMB:   512.25,
		MemPercent:  25,
		DiskTotalGB: 100,
		DiskUsedGB:  40,
		DiskPercent: 40,
		LoadAvg1:    0.5,
		LoadAvg5:    0.25,
		LoadAvg15:   1,
		GPUs:        []string{"Test GPU"},
		Collected:   time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC),
	})

	out, err := run(t, System(c), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "System:\n"+
		"  collected: 2026-05-06T07:08:09Z\n"+
		"  cpu: Test CPU (4 cores, 8 threads) 12.3%\n"+
		"  memory: 512.2 / 2048.0 MB 25.0%\n"+
		"  disk: 40.0 / 100.0 GB 40.0%\n"+
		"  load: 0.50 0.25 1.00\n"+
		"  gpu: Test GPU\n", out)
}

func TestSystem_NoCollector(t *testing.T) {
	t.Parallel()
	out, err := run(t, System(nil), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "System: unavailable (no collector)\n", out)
}

func TestEnvironment(t *testing.T) {
	t.Parallel()
	env := func() []string {
		return []string{"PATH=/bin", "GITHUB_TOKEN=abc", "broken", "=x", "HOME=/root"}
	}
	out, err := run(t, Environment(env), diagnostics.Snapshot{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Environment:\n  GITHUB_TOKEN=[REDACTED]\n  HOME=/root\n  PATH=/bin\n", out)
}

func TestIsSensitiveKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key  string
		want bool
	}{
		{"AWS_SECRET_ACCESS_KEY", true},
		{"db_password", true},
		{"SESSION_ID", true},
		{"HOME", false},
		{"LANG", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSensitiveKey(tt.key), tt.key)
	}
}

func TestDefault_FullReport(t *testing.T) {
	t.Parallel()
	events := eventlog.New(8)
	events.Record(eventlog.KindPanic, "about to fail")

	r, err := diagnostics.NewReporter(Default(Options{
		Events:          events,
		Counters:        eventlog.NewCounters(),
		GoroutineBuffer: 64 << 10,
		Disabled:        []string{NameSystem},
	})...)
	require.NoError(t, err)

	var buf bytes.Buffer
	ok := r.Report(sink.New(&buf), stackSP(), codeIP(), diagnostics.RegisterContext{{Name: "pc", Value: 1}})
	require.True(t, ok)
	assert.False(t, r.IsInProgress())

	out := buf.String()
	for _, title := range []string{
		"Registers:", "Instructions:", "Top of stack:", "Top frame:", "Goroutines:",
		"Current goroutine:", "Build info:", "Memory:", "Event log:",
		"Resource history: unavailable", "Counters:", "Raw stack:", "Decoded stack:",
	} {
		assert.Contains(t, out, title)
	}
	assert.NotContains(t, out, "[!!! Exception")
	assert.Contains(t, out, "about to fail")
}

// plainDiscard has no WriteString method, like most report targets.
type plainDiscard struct{}

func (plainDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestSections_DoNotAllocate(t *testing.T) {
	// Measures process-wide allocations; not parallel.
	events := eventlog.New(8)
	events.Record(eventlog.KindInfo, "service started")
	events.Record(eventlog.KindWarning, "fd usage high")
	counters := eventlog.NewCounters()
	counters.Get("requests").Add(3)
	history := &fakeHistory{history: []monitor.Snapshot{
		{Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Goroutines: 4, HeapAllocMB: 1.5},
	}}
	system := NewSystemCollector()
	system.latest.Store(&SystemInfo{CPUModel: "cpu", MemTotalMB: 1024, GPUs: []string{"gpu"}})

	r, err := diagnostics.NewReporter(
		Registers(),
		Instructions(),
		TopOfStack(),
		TopFrame(),
		Goroutines(64<<10),
		CurrentGoroutine(),
		BuildInfo(),
		Memory(),
		EventLog(events),
		ResourceHistory(history),
		Counters(counters),
		RawStack(),
		System(system),
		Environment(func() []string { return []string{"HOME=/root", "API_TOKEN=x"} }),
	)
	require.NoError(t, err)

	w := sink.New(plainDiscard{})
	regs := diagnostics.RegisterContext{{Name: "pc", Value: 1}}
	allocs := testing.AllocsPerRun(20, func() {
		if !r.Report(w, stackSP(), codeIP(), regs) {
			t.Fatal("report was not owned")
		}
	})
	assert.Zero(t, allocs)
	assert.NoError(t, w.Err())
}

func TestScratch_ConcurrentUserFallsBack(t *testing.T) {
	t.Parallel()
	sc := &scratch{}
	sc.busy.Store(true)
	var buf bytes.Buffer
	sc.float(sink.New(&buf), 2.5, 2)
	assert.Equal(t, "2.50", buf.String())
	assert.True(t, sc.busy.Load())
}
