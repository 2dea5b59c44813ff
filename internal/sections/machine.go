package sections

import (
	"runtime"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
)

const (
	wordSize = 8
	// topOfStackBytes bounds the TopOfStack dump. Go does not expose the
	// goroutine stack bounds, so the length is fixed.
	topOfStackBytes = 512
	rawStackWords   = 16
)

// Registers prints the captured register file.
func Registers() diagnostics.Section {
	return diagnostics.NewSection(NameRegisters, 1, func(sink diagnostics.Sink, snap diagnostics.Snapshot, _ int) error {
		if !snap.HasRegisters() {
			unavailable(sink, "Registers", "no register context")
			return nil
		}
		begin(sink, "Registers")
		defer end(sink)
		for _, r := range snap.Registers {
			field(sink, r.Name)
			sink.Hex(r.Value)
			sink.Newline()
		}
		return nil
	})
}

// Instructions dumps the code bytes around the instruction pointer: 32 bytes
// on each side first, then 16, then the single word at ip.
func Instructions() diagnostics.Section {
	return diagnostics.NewSection(NameInstructions, 3, func(sink diagnostics.Sink, snap diagnostics.Snapshot, attempt int) error {
		ip := snap.InstructionPointer
		if ip == 0 {
			unavailable(sink, "Instructions", "no instruction pointer")
			return nil
		}
		begin(sink, "Instructions")
		defer end(sink)

		switch attempt {
		case 1:
			dumpAround(sink, ip, 32)
		case 2:
			dumpAround(sink, ip, 16)
		default:
			sink.HexDump(ip, wordSize, 1)
		}
		return nil
	})
}

func dumpAround(sink diagnostics.Sink, ip uintptr, radius uintptr) {
	start := ip - min(ip, radius)
	sink.HexDump(start, 1, int(ip-start+radius))
}

// TopOfStack dumps the words just above the stack pointer.
func TopOfStack() diagnostics.Section {
	return diagnostics.NewSection(NameTopOfStack, 1, func(sink diagnostics.Sink, snap diagnostics.Snapshot, _ int) error {
		if snap.StackPointer == 0 {
			unavailable(sink, "Top of stack", "no stack pointer")
			return nil
		}
		begin(sink, "Top of stack")
		defer end(sink)
		sink.HexDump(snap.StackPointer, wordSize, topOfStackBytes/wordSize)
		return nil
	})
}

// RawStack dumps 16 words at the stack pointer.
func RawStack() diagnostics.Section {
	return diagnostics.NewSection(NameRawStack, 1, func(sink diagnostics.Sink, snap diagnostics.Snapshot, _ int) error {
		if snap.StackPointer == 0 {
			unavailable(sink, "Raw stack", "no stack pointer")
			return nil
		}
		begin(sink, "Raw stack")
		defer end(sink)
		sink.HexDump(snap.StackPointer, wordSize, rawStackWords)
		return nil
	})
}

// TopFrame symbolizes the instruction pointer.
func TopFrame() diagnostics.Section {
	return diagnostics.NewSection(NameTopFrame, 1, func(sink diagnostics.Sink, snap diagnostics.Snapshot, _ int) error {
		ip := snap.InstructionPointer
		if ip == 0 {
			unavailable(sink, "Top frame", "no instruction pointer")
			return nil
		}
		begin(sink, "Top frame")
		defer end(sink)

		fn := runtime.FuncForPC(ip)
		if fn == nil {
			sink.String("unknown function at ")
			sink.Hex(uint64(ip))
			sink.Newline()
			return nil
		}
		file, line := fn.FileLine(ip)
		sink.String(fn.Name())
		sink.String(" +")
		sink.Hex(uint64(ip - fn.Entry()))
		sink.Newline()
		sink.String(file)
		sink.String(":")
		sink.Signed(int64(line))
		sink.Newline()
		return nil
	})
}
