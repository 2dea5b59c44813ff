package cmd

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/config"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/crashdump"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/eventlog"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/logging"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/monitor"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/sections"
)

// app holds the components wired from the configuration.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	events   *eventlog.Log
	counters *eventlog.Counters
	monitor  *monitor.Monitor
	system   *sections.SystemCollector
	store    *crashdump.Store
	handler  *crashdump.Handler
}

var (
	registerOnce sync.Once
	registerErr  error
)

// newApp wires the components for cfg. Reports go to stderr and the store.
// Built-in sections are registered once on the process-wide reporter; extra
// sections get a private reporter so they never leak into later reports.
func newApp(cfg *config.Config, stderr io.Writer, extra ...diagnostics.Section) (*app, error) {
	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
	})

	a := &app{
		cfg:      cfg,
		logger:   logger,
		events:   eventlog.New(cfg.Diagnostics.EventLogSize),
		counters: eventlog.NewCounters(),
	}
	a.store = crashdump.NewStore(cfg.Diagnostics.Dir, cfg.Diagnostics.MaxFiles, logger.WithComponent("store").Logger)

	opts := sections.Options{
		Events:     a.events,
		Counters:   a.counters,
		IncludeEnv: cfg.Diagnostics.IncludeEnv,
		Disabled:   cfg.Diagnostics.DisabledSections,
	}
	if !isDisabled(sections.NameSystem, cfg.Diagnostics.DisabledSections) {
		a.system = sections.NewSystemCollector()
		a.system.Refresh()
		opts.System = a.system
	}
	if cfg.Monitor.Enabled {
		monOpts := monitor.Options{
			Interval:           cfg.Monitor.IntervalDuration(),
			FDThresholdPercent: cfg.Monitor.FDThresholdPercent,
			GoroutineThreshold: cfg.Monitor.GoroutineThreshold,
			MemoryThresholdMB:  cfg.Monitor.MemoryThresholdMB,
			HistorySize:        cfg.Monitor.HistorySize,
			Logger:             logger.WithComponent("monitor").Logger,
			Events:             a.events,
		}
		if a.system != nil {
			// Host statistics in a report are as fresh as the last sample.
			monOpts.OnSample = func(monitor.Snapshot) { a.system.Refresh() }
		}
		a.monitor = monitor.New(monOpts)
		opts.History = a.monitor
	}

	reporter, err := reporterFor(opts, extra)
	if err != nil {
		return nil, err
	}

	output, err := crashdump.ParseOutput(cfg.Diagnostics.Output)
	if err != nil {
		return nil, err
	}
	handlerOpts := crashdump.Options{
		Reporter:     reporter,
		Store:        a.store,
		Output:       output,
		Stderr:       stderr,
		PanicOnFault: cfg.Diagnostics.PanicOnFault,
		Traceback:    cfg.Diagnostics.Traceback,
		Logger:       logger.WithComponent("crashdump").Logger,
		Events:       a.events,
		Counters:     a.counters,
		Monitor:      a.monitor,
	}
	if cfg.Diagnostics.Compress {
		handlerOpts.OnReport = a.archive
	}
	if a.handler, err = crashdump.NewHandler(handlerOpts); err != nil {
		return nil, err
	}
	a.handler.Install()
	a.events.Record(eventlog.KindInfo, "crashdiag started")
	return a, nil
}

func reporterFor(opts sections.Options, extra []diagnostics.Section) (*diagnostics.Reporter, error) {
	if len(extra) > 0 {
		return diagnostics.NewReporter(append(sections.Default(opts), extra...)...)
	}
	registerOnce.Do(func() {
		for _, s := range sections.Default(opts) {
			if registerErr = diagnostics.RegisterSection(s); registerErr != nil {
				return
			}
		}
	})
	return diagnostics.Default(), registerErr
}

// sample records one monitor snapshot so a report has history to show.
func (a *app) sample() {
	if a.monitor != nil {
		a.monitor.Sample()
	}
}

// start runs the monitor and signal-triggered reports until ctx is done.
func (a *app) start(ctx context.Context) (stop func(), err error) {
	sigs, err := crashdump.ParseSignals(a.cfg.Diagnostics.Signals)
	if err != nil {
		return nil, err
	}
	if a.monitor != nil {
		a.monitor.Start(ctx)
	}
	stopSignals := func() {}
	if len(sigs) > 0 {
		stopSignals = a.handler.Notify(ctx, sigs...)
	}
	return func() {
		stopSignals()
		if a.monitor != nil {
			a.monitor.Stop()
		}
	}, nil
}

func (a *app) archive(crashdump.Result) {
	n, err := a.store.Compact()
	if err != nil {
		a.logger.Warn("archiving crash reports failed", "error", err)
		return
	}
	if n > 0 {
		a.logger.Debug("archived crash reports", "count", n)
	}
}

func isDisabled(name string, disabled []string) bool {
	for _, d := range disabled {
		if strings.EqualFold(strings.TrimSpace(d), name) {
			return true
		}
	}
	return false
}
