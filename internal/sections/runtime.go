package sections

import (
	"runtime"
	"runtime/debug"
	"runtime/metrics"

	"github.com/petermattis/goid"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
)

// DefaultGoroutineBuffer is the trace buffer size used when none is given.
const DefaultGoroutineBuffer = 1 << 20

// Goroutines prints the stacks of all goroutines. The buffer is allocated up
// front; a trace that does not fit is truncated. The second attempt prints
// only the goroutine count.
func Goroutines(bufSize int) diagnostics.Section {
	if bufSize <= 0 {
		bufSize = DefaultGoroutineBuffer
	}
	buf := make([]byte, bufSize)

	return diagnostics.NewSection(NameGoroutines, 2, func(sink diagnostics.Sink, _ diagnostics.Snapshot, attempt int) error {
		begin(sink, "Goroutines")
		defer end(sink)

		field(sink, "count")
		sink.Signed(int64(runtime.NumGoroutine()))
		sink.Newline()
		if attempt > 1 {
			return nil
		}

		n := runtime.Stack(buf, true)
		lines(sink, view(buf[:n]))
		if n == len(buf) {
			sink.Line("... (truncated)")
		}
		return nil
	})
}

// CurrentGoroutine prints the reporting goroutine's id and stack. The second
// attempt prints the id only.
func CurrentGoroutine() diagnostics.Section {
	buf := make([]byte, 64<<10)

	return diagnostics.NewSection(NameCurrentGoroutine, 2, func(sink diagnostics.Sink, _ diagnostics.Snapshot, attempt int) error {
		begin(sink, "Current goroutine")
		defer end(sink)

		field(sink, "id")
		sink.Signed(goid.Get())
		sink.Newline()
		if attempt > 1 {
			return nil
		}

		field(sink, "GOMAXPROCS")
		sink.Signed(int64(runtime.GOMAXPROCS(0)))
		sink.Newline()
		field(sink, "cgo calls")
		sink.Signed(runtime.NumCgoCall())
		sink.Newline()

		n := runtime.Stack(buf, false)
		lines(sink, view(buf[:n]))
		return nil
	})
}

// BuildInfo prints the module and VCS information embedded in the binary. It
// is read when the section is built.
func BuildInfo() diagnostics.Section {
	info, ok := debug.ReadBuildInfo()
	return diagnostics.NewSection(NameBuildInfo, 2, func(sink diagnostics.Sink, _ diagnostics.Snapshot, attempt int) error {
		begin(sink, "Build info")
		defer end(sink)

		field(sink, "go")
		sink.String(runtime.Version())
		sink.String(" ")
		sink.String(runtime.GOOS)
		sink.String("/")
		sink.String(runtime.GOARCH)
		sink.Newline()
		if attempt > 1 {
			return nil
		}

		if !ok {
			sink.Line("module: unavailable")
			return nil
		}
		field(sink, "path")
		sink.Line(info.Path)
		field(sink, "module")
		sink.String(info.Main.Path)
		if info.Main.Version != "" {
			sink.String("@")
			sink.String(info.Main.Version)
		}
		sink.Newline()
		for _, s := range info.Settings {
			field(sink, s.Key)
			sink.Line(s.Value)
		}
		field(sink, "dependencies")
		sink.Signed(int64(len(info.Deps)))
		sink.Newline()
		return nil
	})
}

// runtimeMetrics are read on every attempt of Memory.
var runtimeMetrics = []string{
	"/gc/heap/live:bytes",
	"/gc/heap/objects:objects",
	"/gc/cycles/total:gc-cycles",
	"/memory/classes/total:bytes",
	"/memory/classes/heap/objects:bytes",
	"/sched/goroutines:goroutines",
	"/sched/gomaxprocs:threads",
}

// Memory prints runtime memory statistics. The first attempt includes
// runtime.ReadMemStats, which stops the world; both include a small
// runtime/metrics subset.
func Memory() diagnostics.Section {
	samples := make([]metrics.Sample, len(runtimeMetrics))
	for i, name := range runtimeMetrics {
		samples[i].Name = name
	}
	var ms runtime.MemStats

	return diagnostics.NewSection(NameMemory, 2, func(sink diagnostics.Sink, _ diagnostics.Snapshot, attempt int) error {
		begin(sink, "Memory")
		defer end(sink)

		if attempt == 1 {
			runtime.ReadMemStats(&ms)
			stats := [...]struct {
				name  string
				value uint64
			}{
				{"heap alloc", ms.HeapAlloc},
				{"heap sys", ms.HeapSys},
				{"heap in use", ms.HeapInuse},
				{"heap objects", ms.HeapObjects},
				{"stack in use", ms.StackInuse},
				{"sys", ms.Sys},
				{"gc cycles", uint64(ms.NumGC)},
				{"gc pause total ns", ms.PauseTotalNs},
			}
			for _, s := range stats {
				field(sink, s.name)
				sink.Unsigned(s.value)
				sink.Newline()
			}
		}

		metrics.Read(samples)
		for _, s := range samples {
			switch s.Value.Kind() {
			case metrics.KindUint64:
				field(sink, s.Name)
				sink.Unsigned(s.Value.Uint64())
				sink.Newline()
			case metrics.KindFloat64:
				field(sink, s.Name)
				sink.Unsigned(uint64(s.Value.Float64()))
				sink.Newline()
			}
		}
		return nil
	})
}

const maxDecodedFrames = 64

// DecodedStack walks the reporting goroutine's stack in two stages: raw
// program counters, then symbolized frames. A failing stage is noted and the
// next one still runs.
func DecodedStack() diagnostics.Section {
	return diagnostics.NewSection(NameDecodedStack, 1, func(sink diagnostics.Sink, snap diagnostics.Snapshot, _ int) error {
		begin(sink, "Decoded stack")
		defer end(sink)

		var pcs [maxDecodedFrames]uintptr
		var n int

		stage(sink, "program counters", func() {
			n = runtime.Callers(1, pcs[:])
			if snap.InstructionPointer != 0 {
				field(sink, "fault ip")
				sink.Hex(uint64(snap.InstructionPointer))
				sink.Newline()
			}
			for _, pc := range pcs[:n] {
				sink.Hex(uint64(pc))
				sink.Newline()
			}
		})

		stage(sink, "symbolized frames", func() {
			if n == 0 {
				return
			}
			frames := runtime.CallersFrames(pcs[:n])
			for {
				f, more := frames.Next()
				sink.String(f.Function)
				sink.Newline()
				sink.Indent(true)
				sink.String(f.File)
				sink.String(":")
				sink.Signed(int64(f.Line))
				sink.Newline()
				sink.Indent(false)
				if !more {
					break
				}
			}
		})
		return nil
	})
}

// stage runs fn and turns a recoverable panic into a one-line notice.
// Unrecoverable faults still propagate to the driver.
func stage(sink diagnostics.Sink, name string, fn func()) {
	sink.String(name)
	sink.Line(":")
	sink.Indent(true)
	defer func() {
		sink.Indent(false)
		v := recover()
		if v == nil {
			return
		}
		if diagnostics.IsUnrecoverable(v) {
			panic(v)
		}
		sink.String("[!!! Exception in stage ")
		sink.String(name)
		sink.String(": ")
		sink.String(diagnostics.KindOf(v))
		sink.String("]")
		sink.Newline()
	}()
	fn()
}
