package monitor

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/eventlog"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func notPaused() bool { return false }

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	m := New(Options{})
	assert.Equal(t, 30*time.Second, m.opts.Interval)
	assert.Equal(t, 120, m.opts.HistorySize)
	require.NotNil(t, m.opts.Paused)
}

func TestMonitor_TakeSnapshot(t *testing.T) {
	t.Parallel()
	m := New(Options{Paused: notPaused})
	m.TaskStarted()

	s := m.TakeSnapshot()
	assert.False(t, s.Timestamp.IsZero())
	assert.Positive(t, s.Goroutines)
	assert.Positive(t, s.HeapAllocMB)
	assert.Equal(t, int64(1), s.TasksRun)
	assert.Equal(t, 1, s.TasksActive)

	m.TaskFinished()
	assert.Equal(t, 0, m.TakeSnapshot().TasksActive)
}

func TestMonitor_HistoryIsBounded(t *testing.T) {
	t.Parallel()
	m := New(Options{HistorySize: 3, Paused: notPaused})
	for i := 0; i < 5; i++ {
		require.True(t, m.Sample())
	}
	assert.Len(t, m.History(), 3)

	history, ok := m.TryHistory(nil)
	require.True(t, ok)
	assert.Len(t, history, 3)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, history[2].Timestamp, latest.Timestamp)
}

func TestMonitor_TryHistoryBusy(t *testing.T) {
	t.Parallel()
	m := New(Options{Paused: notPaused})
	m.Sample()

	m.mu.Lock()
	_, ok := m.TryHistory(nil)
	latest, latestOK := m.Latest()
	m.mu.Unlock()
	assert.False(t, ok)
	// Latest never waits for the history lock.
	assert.True(t, latestOK)
	assert.False(t, latest.Timestamp.IsZero())
}

func TestMonitor_TryHistoryAppendsToBuffer(t *testing.T) {
	t.Parallel()
	m := New(Options{Paused: notPaused})
	m.Sample()
	m.Sample()

	buf := make([]Snapshot, 0, 8)
	history, ok := m.TryHistory(buf)
	require.True(t, ok)
	assert.Len(t, history, 2)
	assert.Same(t, &buf[:1][0], &history[0])
}

func TestMonitor_LatestEmpty(t *testing.T) {
	t.Parallel()
	_, ok := New(Options{Paused: notPaused}).Latest()
	assert.False(t, ok)
}

func TestMonitor_SkipsWhilePaused(t *testing.T) {
	t.Parallel()
	var paused atomic.Bool
	paused.Store(true)
	m := New(Options{Paused: paused.Load})

	assert.False(t, m.Sample())
	assert.Empty(t, m.History())
	assert.Equal(t, int64(1), m.Skipped())

	paused.Store(false)
	assert.True(t, m.Sample())
	assert.Len(t, m.History(), 1)
}

func TestMonitor_StartStop(t *testing.T) {
	t.Parallel()
	m := New(Options{Interval: 10 * time.Millisecond, Logger: quietLogger(), Paused: notPaused})
	m.Start(t.Context())

	require.Eventually(t, func() bool {
		return len(m.History()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
}

func TestMonitor_Trend(t *testing.T) {
	t.Parallel()
	m := New(Options{Paused: notPaused})
	assert.True(t, m.Trend().IsHealthy)

	base := time.Unix(0, 0)
	m.record(Snapshot{Timestamp: base, OpenFDs: 10, Goroutines: 10, HeapAllocMB: 10})
	m.record(Snapshot{Timestamp: base.Add(time.Hour), OpenFDs: 50, Goroutines: 500, HeapAllocMB: 400})

	trend := m.Trend()
	assert.False(t, trend.IsHealthy)
	assert.InDelta(t, 40, trend.FDGrowthRate, 0.001)
	assert.InDelta(t, 490, trend.GoroutineGrowthRate, 0.001)
	assert.InDelta(t, 390, trend.MemoryGrowthRate, 0.001)
	assert.Len(t, trend.Warnings, 3)
}

func TestMonitor_TrendNeedsSpan(t *testing.T) {
	t.Parallel()
	m := New(Options{Paused: notPaused})
	base := time.Unix(0, 0)
	m.record(Snapshot{Timestamp: base, OpenFDs: 1})
	m.record(Snapshot{Timestamp: base.Add(time.Second), OpenFDs: 1000})
	assert.True(t, m.Trend().IsHealthy)
}

func TestMonitor_CheckThresholds(t *testing.T) {
	t.Parallel()
	m := New(Options{
		FDThresholdPercent: 50,
		GoroutineThreshold: 10,
		MemoryThresholdMB:  100,
		Paused:             notPaused,
	})

	warnings := m.check(Snapshot{FDUsagePercent: 95, Goroutines: 15, HeapAllocMB: 200})
	require.Len(t, warnings, 3)

	byType := map[string]Warning{}
	for _, w := range warnings {
		byType[w.Type] = w
	}
	assert.Equal(t, "critical", byType["fd"].Level)
	assert.Equal(t, "warning", byType["goroutine"].Level)
	assert.Equal(t, "critical", byType["memory"].Level)
	assert.InDelta(t, 100, byType["memory"].Limit, 0.001)

	assert.Empty(t, m.check(Snapshot{FDUsagePercent: 10, Goroutines: 5, HeapAllocMB: 1}))
}

func TestMonitor_ZeroThresholdsDisableChecks(t *testing.T) {
	t.Parallel()
	m := New(Options{Paused: notPaused})
	assert.Empty(t, m.check(Snapshot{FDUsagePercent: 99, Goroutines: 1 << 20, HeapAllocMB: 1 << 20}))
}

func TestMonitor_ReportRecordsEvents(t *testing.T) {
	t.Parallel()
	events := eventlog.New(8)
	m := New(Options{Logger: quietLogger(), Events: events, Paused: notPaused})

	m.report([]Warning{
		{Level: "warning", Type: "fd", Message: "fd high"},
		{Level: "critical", Type: "memory", Message: "heap high"},
	})

	got := events.Events()
	require.Len(t, got, 2)
	assert.Equal(t, eventlog.KindWarning, got[0].Kind)
	assert.Equal(t, "fd high", string(got[0].MessageBytes()))
	assert.Equal(t, eventlog.KindError, got[1].Kind)
}

func TestCountFDs(t *testing.T) {
	t.Parallel()
	open, limit := CountFDs()
	assert.GreaterOrEqual(t, open, 0)
	assert.GreaterOrEqual(t, limit, 0)
}

func TestMonitor_OnSample(t *testing.T) {
	t.Parallel()
	var got []Snapshot
	m := New(Options{
		Paused:   notPaused,
		OnSample: func(s Snapshot) { got = append(got, s) },
	})
	require.True(t, m.Sample())
	require.Len(t, got, 1)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, latest.Timestamp, got[0].Timestamp)

	paused := New(Options{
		Paused:   func() bool { return true },
		OnSample: func(Snapshot) { t.Error("called while paused") },
	})
	assert.False(t, paused.Sample())
}
