package eventlog

import (
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func TestLog_RecordAndEvents(t *testing.T) {
	t.Parallel()
	l := New(4)
	l.clock = fixedClock(time.Unix(100, 0))

	l.Record(KindInfo, "started")
	l.Record(KindWarning, "fd usage high")

	events := l.Events()
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, "started", string(events[0].MessageBytes()))
	assert.Equal(t, KindWarning, events[1].Kind)
	assert.Equal(t, time.Unix(102, 0), events[1].Time())
	assert.Equal(t, 2, l.Len())
}

func TestLog_WrapsAround(t *testing.T) {
	t.Parallel()
	l := New(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		l.Record(KindInfo, msg)
	}

	var got []string
	for _, ev := range l.Events() {
		got = append(got, string(ev.MessageBytes()))
	}
	assert.Equal(t, []string{"c", "d", "e"}, got)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, uint64(5), l.Events()[2].Seq)
}

func TestLog_TruncatesMessages(t *testing.T) {
	t.Parallel()
	l := New(1)
	l.Record(KindError, strings.Repeat("x", MaxMessage+50))
	ev := l.Events()[0]
	assert.Len(t, ev.MessageBytes(), MaxMessage)
}

func TestLog_TruncatesAtRuneBoundary(t *testing.T) {
	t.Parallel()
	l := New(1)
	// 119 ASCII bytes leave one byte for a two-byte rune, which must not be
	// split.
	msg := strings.Repeat("x", MaxMessage-1) + "é" + "tail"
	l.Record(KindInfo, msg)

	got := string(l.Events()[0].MessageBytes())
	assert.Equal(t, strings.Repeat("x", MaxMessage-1), got)
	assert.True(t, utf8.ValidString(got))

	l.Record(KindInfo, strings.Repeat("日", MaxMessage))
	got = string(l.Events()[0].MessageBytes())
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, MaxMessage)
}

func TestLog_TryEachBusy(t *testing.T) {
	t.Parallel()
	l := New(2)
	l.Record(KindInfo, "one")

	l.mu.Lock()
	err := l.TryEach(func(*Event) { t.Fatal("must not iterate while locked") })
	assert.ErrorIs(t, err, ErrBusy)

	var seen int
	l.UnsafeEach(func(*Event) { seen++ })
	l.mu.Unlock()
	assert.Equal(t, 1, seen)

	require.NoError(t, l.TryEach(func(*Event) { seen++ }))
	assert.Equal(t, 2, seen)
}

func TestLog_DefaultCapacity(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
}

func TestLog_ConcurrentRecord(t *testing.T) {
	t.Parallel()
	l := New(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Record(KindInfo, "tick")
			}
		}()
	}
	wg.Wait()

	events := l.Events()
	require.Len(t, events, 64)
	assert.Equal(t, uint64(800), events[63].Seq)
}

func TestKind_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "panic", KindPanic.String())
	assert.Equal(t, "signal", KindSignal.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestCounters(t *testing.T) {
	t.Parallel()
	c := NewCounters()
	reports := c.Get("reports")
	reports.Inc()
	reports.Add(2)
	c.Get("goroutines").Set(12)

	assert.Same(t, reports, c.Get("reports"))
	assert.Equal(t, int64(3), reports.Value())

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, "reports", all[0].Name())
	assert.Equal(t, int64(12), all[1].Value())
}

func TestCounters_ConcurrentGet(t *testing.T) {
	t.Parallel()
	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get("shared").Inc()
		}()
	}
	wg.Wait()
	require.Len(t, c.All(), 1)
	assert.Equal(t, int64(16), c.Get("shared").Value())
}

func TestLog_PausedDropsEvents(t *testing.T) {
	t.Parallel()
	l := New(4)
	paused := true
	l.paused = func() bool { return paused }

	l.Record(KindInfo, "dropped")
	paused = false
	l.Record(KindInfo, "kept")

	events := l.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "kept", string(events[0].MessageBytes()))
	assert.Equal(t, uint64(1), l.Dropped())
}
