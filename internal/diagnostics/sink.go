package diagnostics

// Sink is the structured writer used by the driver and every section.
//
// Implementations must not allocate on the write path and must not panic for
// normal conditions such as a closed or failing underlying writer. Only a real
// fault (for example an unmapped address passed to HexDump) may escape.
// Strings passed in may be views of reused buffers and must not be retained
// after the call returns.
type Sink interface {
	// String writes s without a line terminator.
	String(s string)
	// Line writes s followed by a newline.
	Line(s string)
	// Newline terminates the current line.
	Newline()
	// Signed writes v in decimal.
	Signed(v int64)
	// Unsigned writes v in decimal.
	Unsigned(v uint64)
	// Hex writes v as a zero-padded, 0x-prefixed 64-bit value.
	Hex(v uint64)
	// HexDump writes count elements of width bytes starting at addr.
	HexDump(addr uintptr, width, count int)
	// Indent increases (true) or decreases (false) the prefix applied to
	// subsequent lines.
	Indent(add bool)
	// ResetIndentation drops all indentation.
	ResetIndentation()
}
