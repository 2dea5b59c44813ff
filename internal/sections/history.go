package sections

import (
	"errors"
	"time"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/eventlog"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/monitor"
)

// ErrHistoryBusy is returned when the resource history is locked by a sampler.
var ErrHistoryBusy = errors.New("resource history is locked")

// HistorySource is the read side of the resource monitor. Neither method may
// block.
type HistorySource interface {
	// TryHistory appends the held snapshots to dst, oldest first. It returns
	// false when a writer holds the history.
	TryHistory(dst []monitor.Snapshot) ([]monitor.Snapshot, bool)
	// Latest returns the most recent snapshot.
	Latest() (monitor.Snapshot, bool)
}

// historyBuffer is the number of snapshots ResourceHistory can print without
// growing its buffer.
const historyBuffer = 256

// EventLog prints the recent events ring. The first attempt takes the log's
// lock without waiting and fails if a writer holds it; the second reads the
// ring unlocked and prints kinds and timestamps only, since messages may be
// torn.
func EventLog(log *eventlog.Log) diagnostics.Section {
	sc := &scratch{}
	return diagnostics.NewSection(NameEventLog, 2, func(sink diagnostics.Sink, _ diagnostics.Snapshot, attempt int) error {
		if log == nil {
			unavailable(sink, "Event log", "not configured")
			return nil
		}
		begin(sink, "Event log")
		defer end(sink)

		if attempt == 1 {
			return log.TryEach(func(ev *eventlog.Event) {
				writeEvent(sink, sc, ev, true)
			})
		}
		log.UnsafeEach(func(ev *eventlog.Event) {
			writeEvent(sink, sc, ev, false)
		})
		return nil
	})
}

func writeEvent(sink diagnostics.Sink, sc *scratch, ev *eventlog.Event, withMessage bool) {
	sink.String("#")
	sink.Unsigned(ev.Seq)
	sink.String(" ")
	sc.time(sink, ev.Time(), time.RFC3339Nano)
	sink.String(" ")
	sink.String(ev.Kind.String())
	if withMessage {
		sink.String(" ")
		// The log is locked, so the message bytes stay put while printed.
		sink.String(view(ev.MessageBytes()))
	}
	sink.Newline()
}

// ResourceHistory prints the resource monitor's snapshots. The second attempt
// prints the latest snapshot only.
func ResourceHistory(src HistorySource) diagnostics.Section {
	sc := &scratch{}
	buf := make([]monitor.Snapshot, 0, historyBuffer)
	return diagnostics.NewSection(NameResourceHistory, 2, func(sink diagnostics.Sink, _ diagnostics.Snapshot, attempt int) error {
		if src == nil {
			unavailable(sink, "Resource history", "no monitor")
			return nil
		}
		begin(sink, "Resource history")
		defer end(sink)

		if attempt == 1 {
			history, ok := src.TryHistory(buf[:0])
			if !ok {
				return ErrHistoryBusy
			}
			if len(history) == 0 {
				sink.Line("(no samples)")
			}
			for i := range history {
				writeResourceSnapshot(sink, sc, &history[i])
			}
			return nil
		}

		latest, ok := src.Latest()
		if !ok {
			sink.Line("(no samples)")
			return nil
		}
		writeResourceSnapshot(sink, sc, &latest)
		return nil
	})
}

func writeResourceSnapshot(sink diagnostics.Sink, sc *scratch, s *monitor.Snapshot) {
	sc.time(sink, s.Timestamp, time.RFC3339)
	sink.String(" goroutines=")
	sink.Signed(int64(s.Goroutines))
	sink.String(" heap_mb=")
	sc.float(sink, s.HeapAllocMB, 1)
	sink.String(" fds=")
	sink.Signed(int64(s.OpenFDs))
	sink.String("/")
	sink.Signed(int64(s.MaxFDs))
	sink.String(" gc=")
	sink.Unsigned(uint64(s.NumGC))
	sink.String(" tasks=")
	sink.Signed(int64(s.TasksActive))
	sink.Newline()
}

// Counters prints every registered counter.
func Counters(c *eventlog.Counters) diagnostics.Section {
	return diagnostics.NewSection(NameCounters, 1, func(sink diagnostics.Sink, _ diagnostics.Snapshot, _ int) error {
		if c == nil {
			unavailable(sink, "Counters", "not configured")
			return nil
		}
		begin(sink, "Counters")
		defer end(sink)

		all := c.All()
		if len(all) == 0 {
			sink.Line("(none)")
		}
		for _, ctr := range all {
			sink.String(ctr.Name())
			sink.String(" = ")
			sink.Signed(ctr.Value())
			sink.Newline()
		}
		return nil
	})
}
