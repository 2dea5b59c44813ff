// Package monitor samples process resource usage on an interval and keeps a
// bounded history that crash reports print.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/eventlog"
)

// Snapshot captures process resource state at a point in time.
type Snapshot struct {
	Timestamp      time.Time     `json:"timestamp" yaml:"timestamp"`
	OpenFDs        int           `json:"open_fds" yaml:"open_fds"`
	MaxFDs         int           `json:"max_fds" yaml:"max_fds"`
	FDUsagePercent float64       `json:"fd_usage_percent" yaml:"fd_usage_percent"`
	Goroutines     int           `json:"goroutines" yaml:"goroutines"`
	HeapAllocMB    float64       `json:"heap_alloc_mb" yaml:"heap_alloc_mb"`
	HeapInUseMB    float64       `json:"heap_in_use_mb" yaml:"heap_in_use_mb"`
	StackInUseMB   float64       `json:"stack_in_use_mb" yaml:"stack_in_use_mb"`
	GCPauseNS      uint64        `json:"gc_pause_ns" yaml:"gc_pause_ns"`
	NumGC          uint32        `json:"num_gc" yaml:"num_gc"`
	Uptime         time.Duration `json:"uptime" yaml:"uptime"`
	TasksRun       int64         `json:"tasks_run" yaml:"tasks_run"`
	TasksActive    int           `json:"tasks_active" yaml:"tasks_active"`
}

// Trend summarizes growth across the held history.
type Trend struct {
	FDGrowthRate        float64 // per hour
	GoroutineGrowthRate float64 // per hour
	MemoryGrowthRate    float64 // MB per hour
	IsHealthy           bool
	Warnings            []string
}

// Warning is a single threshold violation.
type Warning struct {
	Level   string // "warning" or "critical"
	Type    string // "fd", "goroutine", "memory"
	Message string
	Value   float64
	Limit   float64
}

// Options configures a Monitor. Zero thresholds disable the matching check.
type Options struct {
	Interval           time.Duration
	FDThresholdPercent int
	GoroutineThreshold int
	MemoryThresholdMB  int
	HistorySize        int
	Logger             *slog.Logger
	Events             *eventlog.Log
	// Paused reports whether sampling should be skipped. It defaults to
	// diagnostics.IsInProgress so the monitor stays quiet during a dump.
	Paused func() bool
	// OnSample, when set, is called after every recorded snapshot.
	OnSample func(Snapshot)
}

// Monitor tracks process resource usage over time.
type Monitor struct {
	opts Options

	mu      sync.RWMutex
	history []Snapshot
	// latest is published after every record so readers never lock.
	latest atomic.Pointer[Snapshot]

	tasksRun    atomic.Int64
	tasksActive atomic.Int32
	skipped     atomic.Int64

	stopCh  chan struct{}
	stopped atomic.Bool
	started time.Time
	now     func() time.Time
}

// New creates a monitor. It does not start sampling until Start is called.
func New(opts Options) *Monitor {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 120
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Paused == nil {
		opts.Paused = diagnostics.IsInProgress
	}
	return &Monitor{
		opts:    opts,
		history: make([]Snapshot, 0, opts.HistorySize),
		stopCh:  make(chan struct{}),
		started: time.Now(),
		now:     time.Now,
	}
}

// Start samples immediately and then every interval until ctx is done or Stop
// is called.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.Sample()

		ticker := time.NewTicker(m.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				if m.Sample() {
					m.report(m.CheckHealth())
				}
			}
		}
	}()
}

// Stop halts the sampling loop. It is safe to call more than once.
func (m *Monitor) Stop() {
	if m.stopped.CompareAndSwap(false, true) {
		close(m.stopCh)
	}
}

// Sample takes and records one snapshot unless sampling is paused. It reports
// whether a snapshot was recorded.
func (m *Monitor) Sample() bool {
	if m.opts.Paused() {
		m.skipped.Add(1)
		return false
	}
	snap := m.TakeSnapshot()
	m.record(snap)
	if m.opts.OnSample != nil {
		m.opts.OnSample(snap)
	}
	return true
}

// Skipped returns how many samples were skipped while paused.
func (m *Monitor) Skipped() int64 {
	return m.skipped.Load()
}

// TakeSnapshot captures current resource state without recording it.
func (m *Monitor) TakeSnapshot() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	openFDs, maxFDs := CountFDs()
	fdPercent := 0.0
	if maxFDs > 0 {
		fdPercent = float64(openFDs) / float64(maxFDs) * 100
	}

	return Snapshot{
		Timestamp:      m.now(),
		OpenFDs:        openFDs,
		MaxFDs:         maxFDs,
		FDUsagePercent: fdPercent,
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocMB:    float64(ms.HeapAlloc) / 1024 / 1024,
		HeapInUseMB:    float64(ms.HeapInuse) / 1024 / 1024,
		StackInUseMB:   float64(ms.StackInuse) / 1024 / 1024,
		GCPauseNS:      ms.PauseNs[(ms.NumGC+255)%256],
		NumGC:          ms.NumGC,
		Uptime:         time.Since(m.started),
		TasksRun:       m.tasksRun.Load(),
		TasksActive:    int(m.tasksActive.Load()),
	}
}

func (m *Monitor) record(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, s)
	if len(m.history) > m.opts.HistorySize {
		m.history = m.history[len(m.history)-m.opts.HistorySize:]
	}
	m.latest.Store(&s)
}

// History returns a copy of the held snapshots, oldest first.
func (m *Monitor) History() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

// TryHistory is History for the crash path: it appends the held snapshots to
// dst and returns false instead of blocking when a writer holds the lock.
func (m *Monitor) TryHistory(dst []Snapshot) ([]Snapshot, bool) {
	if !m.mu.TryRLock() {
		return dst, false
	}
	defer m.mu.RUnlock()
	return append(dst, m.history...), true
}

// Latest returns the most recent snapshot without locking.
func (m *Monitor) Latest() (Snapshot, bool) {
	p := m.latest.Load()
	if p == nil {
		return Snapshot{}, false
	}
	return *p, true
}

// Trend analyzes the held history for sustained growth.
func (m *Monitor) Trend() Trend {
	history := m.History()
	if len(history) < 2 {
		return Trend{IsHealthy: true}
	}

	first := history[0]
	last := history[len(history)-1]
	hours := last.Timestamp.Sub(first.Timestamp).Hours()
	if hours < 0.01 {
		return Trend{IsHealthy: true}
	}

	t := Trend{
		FDGrowthRate:        float64(last.OpenFDs-first.OpenFDs) / hours,
		GoroutineGrowthRate: float64(last.Goroutines-first.Goroutines) / hours,
		MemoryGrowthRate:    (last.HeapAllocMB - first.HeapAllocMB) / hours,
		IsHealthy:           true,
	}
	if t.FDGrowthRate > 10 {
		t.IsHealthy = false
		t.Warnings = append(t.Warnings,
			fmt.Sprintf("FD count growing at %.1f/hour (potential leak)", t.FDGrowthRate))
	}
	if t.GoroutineGrowthRate > 100 {
		t.IsHealthy = false
		t.Warnings = append(t.Warnings,
			fmt.Sprintf("Goroutine count growing at %.1f/hour (potential leak)", t.GoroutineGrowthRate))
	}
	if t.MemoryGrowthRate > 100 {
		t.IsHealthy = false
		t.Warnings = append(t.Warnings,
			fmt.Sprintf("Memory growing at %.1f MB/hour", t.MemoryGrowthRate))
	}
	return t
}

// TaskStarted counts a supervised task as running.
func (m *Monitor) TaskStarted() {
	m.tasksRun.Add(1)
	m.tasksActive.Add(1)
}

// TaskFinished marks a supervised task as done.
func (m *Monitor) TaskFinished() {
	m.tasksActive.Add(-1)
}

// CheckHealth returns the thresholds exceeded by the latest snapshot.
func (m *Monitor) CheckHealth() []Warning {
	s, ok := m.Latest()
	if !ok {
		s = m.TakeSnapshot()
	}
	return m.check(s)
}

func (m *Monitor) check(s Snapshot) []Warning {
	var warnings []Warning

	if limit := m.opts.FDThresholdPercent; limit > 0 && s.FDUsagePercent > float64(limit) {
		level := "warning"
		if s.FDUsagePercent > 90 {
			level = "critical"
		}
		warnings = append(warnings, Warning{
			Level:   level,
			Type:    "fd",
			Message: fmt.Sprintf("FD usage at %.1f%% (threshold: %d%%)", s.FDUsagePercent, limit),
			Value:   s.FDUsagePercent,
			Limit:   float64(limit),
		})
	}

	if limit := m.opts.GoroutineThreshold; limit > 0 && s.Goroutines > limit {
		level := "warning"
		if s.Goroutines > limit*2 {
			level = "critical"
		}
		warnings = append(warnings, Warning{
			Level:   level,
			Type:    "goroutine",
			Message: fmt.Sprintf("Goroutine count at %d (threshold: %d)", s.Goroutines, limit),
			Value:   float64(s.Goroutines),
			Limit:   float64(limit),
		})
	}

	if limit := m.opts.MemoryThresholdMB; limit > 0 && s.HeapAllocMB > float64(limit) {
		level := "warning"
		if s.HeapAllocMB > float64(limit)*1.5 {
			level = "critical"
		}
		warnings = append(warnings, Warning{
			Level:   level,
			Type:    "memory",
			Message: fmt.Sprintf("Heap usage at %.1f MB (threshold: %d MB)", s.HeapAllocMB, limit),
			Value:   s.HeapAllocMB,
			Limit:   float64(limit),
		})
	}

	return warnings
}

// report logs warnings and copies them into the event log.
func (m *Monitor) report(warnings []Warning) {
	for _, w := range warnings {
		if m.opts.Logger != nil {
			m.opts.Logger.Warn("resource warning",
				"type", w.Type,
				"level", w.Level,
				"value", w.Value,
				"limit", w.Limit,
				"message", w.Message,
			)
		}
		if m.opts.Events != nil {
			kind := eventlog.KindWarning
			if w.Level == "critical" {
				kind = eventlog.KindError
			}
			m.opts.Events.Record(kind, w.Message)
		}
	}
}

// Uptime returns the time since the monitor was created.
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.started)
}
