// Package sink implements the text writer that crash reports are printed
// through.
//
// Writer never buffers: every call reaches the underlying io.Writer before it
// returns, so a report that dies halfway keeps everything printed so far.
// Numbers are formatted into a scratch array owned by the Writer, and strings
// reach writers without io.StringWriter as a borrowed byte view, so the write
// path never allocates.
package sink

import (
	"io"
	"strconv"
	"unsafe"
)

const (
	indentWidth = 2
	maxIndent   = 32
	// rowBytes is the number of bytes shown per hex dump row.
	rowBytes = 16
)

// spaces backs the indentation prefix.
const spaces = "                                                                "

const hexDigits = "0123456789abcdef"

// Writer is a line-oriented text sink.
//
// A write error is latched: after the first failure every later call is a
// no-op and Err reports the failure.
type Writer struct {
	w       io.Writer
	indent  int
	bol     bool
	err     error
	scratch [96]byte
}

// New returns a Writer over w.
func New(w io.Writer) *Writer {
	if w == nil {
		w = io.Discard
	}
	return &Writer{w: w, bol: true}
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	return w.err
}

// Level returns the current indentation level.
func (w *Writer) Level() int {
	return w.indent
}

// String writes s without a line terminator.
func (w *Writer) String(s string) {
	if s == "" {
		return
	}
	w.prefix()
	w.writeString(s)
}

// Line writes s followed by a newline.
func (w *Writer) Line(s string) {
	w.String(s)
	w.Newline()
}

// Newline terminates the current line.
func (w *Writer) Newline() {
	w.writeString("\n")
	w.bol = true
}

// Signed writes v in decimal.
func (w *Writer) Signed(v int64) {
	w.prefix()
	w.write(strconv.AppendInt(w.scratch[:0], v, 10))
}

// Unsigned writes v in decimal.
func (w *Writer) Unsigned(v uint64) {
	w.prefix()
	w.write(strconv.AppendUint(w.scratch[:0], v, 10))
}

// Hex writes v as 0x followed by 16 hex digits.
func (w *Writer) Hex(v uint64) {
	w.prefix()
	w.write(appendHex(w.scratch[:0], v, 8))
}

// Indent increases or decreases the indentation of subsequent lines.
func (w *Writer) Indent(add bool) {
	switch {
	case add && w.indent < maxIndent:
		w.indent++
	case !add && w.indent > 0:
		w.indent--
	}
}

// ResetIndentation drops all indentation.
func (w *Writer) ResetIndentation() {
	w.indent = 0
}

// HexDump writes count elements of width bytes read from raw memory at addr,
// 16 bytes per row. Width must be 1, 2, 4 or 8; anything else is treated as 1.
//
// The memory is read directly. An unmapped address faults, which with
// debug.SetPanicOnFault enabled surfaces as a runtime error carrying the
// fault address.
func (w *Writer) HexDump(addr uintptr, width, count int) {
	w.dump(addr, nil, width, count)
}

// HexDumpBytes writes data in the HexDump format, labelling the first byte
// with base. It never touches memory outside data.
func (w *Writer) HexDumpBytes(base uintptr, data []byte, width int) {
	width = normalizeWidth(width)
	w.dump(base, data, width, len(data)/width)
}

func (w *Writer) dump(addr uintptr, data []byte, width, count int) {
	width = normalizeWidth(width)
	if count <= 0 {
		return
	}
	perRow := rowBytes / width
	for i := 0; i < count; i++ {
		offset := uintptr(i * width)
		if i%perRow == 0 {
			if i > 0 {
				w.Newline()
			}
			w.prefix()
			buf := appendHex(w.scratch[:0], uint64(addr+offset), 8)
			buf = append(buf, ':')
			w.write(buf)
		}

		var v uint64
		if data != nil {
			v = load(data[offset:], width)
		} else {
			v = peek(addr+offset, width)
		}
		buf := append(w.scratch[:0], ' ')
		buf = appendHex(buf, v, width)
		w.write(buf)
	}
	w.Newline()
}

func (w *Writer) prefix() {
	if !w.bol {
		return
	}
	w.bol = false
	if n := w.indent * indentWidth; n > 0 {
		w.writeString(spaces[:n])
	}
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.w.Write(p); err != nil {
		w.err = err
	}
}

func (w *Writer) writeString(s string) {
	if w.err != nil || s == "" {
		return
	}
	var err error
	if sw, ok := w.w.(io.StringWriter); ok {
		_, err = sw.WriteString(s)
	} else {
		_, err = w.w.Write(Bytes(s))
	}
	if err != nil {
		w.err = err
	}
}

// Bytes returns the bytes of s without copying. io.Writer implementations
// must neither modify nor retain their argument, which makes the view safe to
// pass to Write.
func Bytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// appendHex appends v as 0x followed by 2*size zero-padded hex digits.
func appendHex(dst []byte, v uint64, size int) []byte {
	dst = append(dst, '0', 'x')
	for shift := size*8 - 4; shift >= 0; shift -= 4 {
		dst = append(dst, hexDigits[(v>>uint(shift))&0xf])
	}
	return dst
}

func normalizeWidth(width int) int {
	switch width {
	case 1, 2, 4, 8:
		return width
	default:
		return 1
	}
}
