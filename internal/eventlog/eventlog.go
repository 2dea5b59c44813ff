// Package eventlog keeps a fixed-size history of recent process events and a
// set of named counters, both readable from a crash report.
//
// Recording never allocates: messages are truncated into a fixed array in a
// preallocated ring. Readers on the crash path use TryLock and fall back to an
// unsynchronized read, because a goroutine may have died holding the lock.
package eventlog

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
)

// MaxMessage is the number of message bytes kept per event.
const MaxMessage = 120

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 256

// ErrBusy is returned by TryEach when the log is locked by a writer.
var ErrBusy = errors.New("event log is locked by a writer")

// Kind classifies an event.
type Kind uint8

const (
	KindInfo Kind = iota
	KindWarning
	KindError
	KindPanic
	KindSignal
	KindReport
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	case KindPanic:
		return "panic"
	case KindSignal:
		return "signal"
	case KindReport:
		return "report"
	default:
		return "unknown"
	}
}

// Event is one recorded entry.
type Event struct {
	Seq    uint64
	UnixNs int64
	Kind   Kind
	n      uint8
	msg    [MaxMessage]byte
}

// MessageBytes returns the (possibly truncated) message without copying.
func (e *Event) MessageBytes() []byte {
	return e.msg[:e.n]
}

// Time returns the event timestamp.
func (e *Event) Time() time.Time {
	return time.Unix(0, e.UnixNs)
}

// Log is a ring buffer of the most recent events.
type Log struct {
	mu    sync.Mutex
	ring  []Event
	next  uint64
	clock func() time.Time

	// paused reports whether Record should drop events. Events from other
	// goroutines are dropped while a crash report is printed.
	paused  func() bool
	dropped atomic.Uint64
}

// New returns a log holding up to capacity events.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		ring:   make([]Event, capacity),
		clock:  time.Now,
		paused: diagnostics.IsInProgressElsewhere,
	}
}

// Capacity returns the ring size.
func (l *Log) Capacity() int {
	return len(l.ring)
}

// Record appends an event, overwriting the oldest one when full.
func (l *Log) Record(kind Kind, msg string) {
	if l.paused() {
		l.dropped.Add(1)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	ev := &l.ring[(l.next-1)%uint64(len(l.ring))]
	ev.Seq = l.next
	ev.UnixNs = l.clock().UnixNano()
	ev.Kind = kind
	ev.n = uint8(truncate(ev.msg[:], msg))
}

// truncate copies msg into dst and returns the number of bytes kept. A
// message that does not fit is cut at a rune boundary.
func truncate(dst []byte, msg string) int {
	n := copy(dst, msg)
	if n < len(msg) {
		for n > 0 && !utf8.RuneStart(msg[n]) {
			n--
		}
	}
	return n
}

// Dropped returns the number of events discarded during crash reports.
func (l *Log) Dropped() uint64 {
	return l.dropped.Load()
}

// Len returns the number of events currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held()
}

// Events returns a copy of the held events, oldest first.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, l.held())
	l.each(func(ev *Event) {
		out = append(out, *ev)
	})
	return out
}

// TryEach calls fn for every held event, oldest first, while holding the lock.
// It returns ErrBusy instead of waiting when a writer holds the lock.
func (l *Log) TryEach(fn func(ev *Event)) error {
	if !l.mu.TryLock() {
		return ErrBusy
	}
	defer l.mu.Unlock()
	l.each(fn)
	return nil
}

// UnsafeEach calls fn for every held event without locking. Concurrent writers
// may tear individual events; use it only when TryEach failed on the crash
// path.
func (l *Log) UnsafeEach(fn func(ev *Event)) {
	l.each(fn)
}

func (l *Log) held() int {
	if l.next < uint64(len(l.ring)) {
		return int(l.next)
	}
	return len(l.ring)
}

func (l *Log) each(fn func(ev *Event)) {
	size := uint64(len(l.ring))
	start := uint64(0)
	if l.next > size {
		start = l.next - size
	}
	for seq := start; seq < l.next; seq++ {
		fn(&l.ring[seq%size])
	}
}
