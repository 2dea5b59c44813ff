package diagnostics

import (
	"runtime"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// noOwner is the owner value of an idle report state. Goroutine IDs start at 1.
const noOwner int64 = 0

// reportState is the continuation record of one dump. It must survive the
// unwinding of the goroutine that drives it, so it never lives on the stack.
//
// Only owner is shared. Every other field is written by the owning goroutine
// alone, between a successful tryAcquire and release.
type reportState struct {
	owner atomic.Int64

	sectionIndex int
	attemptCount int

	sections []Section
	sink     Sink
	snap     Snapshot
}

// tryAcquire claims the state for gid and captures the fault context. It
// fails without side effects when any goroutine, gid included, owns it, and
// when gid is not a valid goroutine ID.
func (s *reportState) tryAcquire(gid int64, sink Sink, snap Snapshot, sections []Section) bool {
	if gid == noOwner || !s.owner.CompareAndSwap(noOwner, gid) {
		return false
	}
	s.sink = sink
	s.snap = snap
	s.sections = sections
	s.sectionIndex = 0
	s.attemptCount = 0
	return true
}

// ownedBy reports whether gid drives the current dump.
func (s *reportState) ownedBy(gid int64) bool {
	return gid != noOwner && s.owner.Load() == gid
}

func (s *reportState) inProgress() bool {
	return s.owner.Load() != noOwner
}

// release returns the state to idle once every section has been handled.
func (s *reportState) release() {
	s.sink = nil
	s.snap = Snapshot{}
	s.sections = nil
	s.sectionIndex = 0
	s.attemptCount = 0
	s.owner.Store(noOwner)
}

// currentGoroutine returns the ID of the calling goroutine. goid reads it from
// the runtime's g struct; when it cannot (an unknown runtime layout yields 0)
// the ID is parsed from the stack header instead.
func currentGoroutine() int64 {
	if id := goid.Get(); id != noOwner {
		return id
	}
	return stackGoroutineID()
}

// stackGoroutineID parses "goroutine N [" from the current stack trace. It
// returns noOwner when the header cannot be parsed.
func stackGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	const prefix = "goroutine "
	if n <= len(prefix) || string(buf[:len(prefix)]) != prefix {
		return noOwner
	}
	var id int64
	for _, c := range buf[len(prefix):n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
