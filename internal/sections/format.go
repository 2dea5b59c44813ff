package sections

import (
	"strconv"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
)

// scratch is a formatting buffer owned by one section. A dump drives a
// section from a single goroutine; a concurrent user falls back to a fresh
// buffer instead of waiting.
type scratch struct {
	busy atomic.Bool
	buf  [64]byte
}

// emit formats with appendTo and writes the result to sink.
func (s *scratch) emit(sink diagnostics.Sink, appendTo func(dst []byte) []byte) {
	if !s.busy.CompareAndSwap(false, true) {
		sink.String(string(appendTo(nil)))
		return
	}
	defer s.busy.Store(false)
	sink.String(view(appendTo(s.buf[:0])))
}

func (s *scratch) time(sink diagnostics.Sink, t time.Time, layout string) {
	s.emit(sink, func(dst []byte) []byte {
		return t.UTC().AppendFormat(dst, layout)
	})
}

// float writes v with prec decimals.
func (s *scratch) float(sink diagnostics.Sink, v float64, prec int) {
	s.emit(sink, func(dst []byte) []byte {
		return strconv.AppendFloat(dst, v, 'f', prec, 64)
	})
}

// percent writes v with one decimal and a percent sign.
func (s *scratch) percent(sink diagnostics.Sink, v float64) {
	s.emit(sink, func(dst []byte) []byte {
		return append(strconv.AppendFloat(dst, v, 'f', 1, 64), '%')
	})
}

// view returns b as a string without copying. The caller must not modify b
// while the string is in use; sinks do not retain what they are given.
func view(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
