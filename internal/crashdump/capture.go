package crashdump

import (
	"runtime"
	"strings"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
)

const maxCaptureFrames = 48

// panicSite returns the program counter of the frame that panicked, found by
// skipping the runtime frames above the recovering function. It falls back to
// the caller of the recovering function.
func panicSite(skip int) uintptr {
	var pcs [maxCaptureFrames]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return 0
	}

	frames := runtime.CallersFrames(pcs[:n])
	inPanic := false
	for {
		f, more := frames.Next()
		switch {
		case f.Function == "runtime.gopanic" || f.Function == "runtime.sigpanic":
			inPanic = true
		case inPanic && !strings.HasPrefix(f.Function, "runtime."):
			return f.PC
		}
		if !more {
			break
		}
	}
	return pcs[0]
}

// faultAddr is implemented by the runtime errors raised for bad memory
// accesses while debug.SetPanicOnFault is on.
type faultAddr interface {
	Addr() uintptr
}

// snapshot builds the fault context from a stack address in the recovering
// frame and the panic site. Go exposes no register file to user code; for a
// memory fault the context holds what the trap reported.
func snapshot(sp, ip uintptr, v any) diagnostics.Snapshot {
	snap := diagnostics.Snapshot{StackPointer: sp, InstructionPointer: ip}
	if f, ok := v.(faultAddr); ok {
		snap.Registers = diagnostics.RegisterContext{
			{Name: "pc", Value: uint64(ip)},
			{Name: "sp", Value: uint64(sp)},
			{Name: "addr", Value: uint64(f.Addr())},
		}
	}
	return snap
}
