package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/crashdump"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/sink"
)

// unmappedAddr lies above the zero page and below any Go mapping, so reading
// it faults with the address attached.
const unmappedAddr = 0xdead0000

type scenario struct {
	summary string
	// extra sections are appended to the built-ins for this scenario.
	extra func() []diagnostics.Section
	run   func(ctx context.Context, a *app, out io.Writer) error
}

var scenarios = map[string]scenario{
	"panic": {
		summary: "panic with a string value",
		run: func(_ context.Context, a *app, out io.Writer) error {
			return outcome(out, a.handler.Run(func() error {
				panic("simulated panic")
			}))
		},
	},
	"error": {
		summary: "panic with a wrapped error value",
		run: func(_ context.Context, a *app, out io.Writer) error {
			return outcome(out, a.handler.Run(func() error {
				panic(fmt.Errorf("simulated failure: %w", io.ErrUnexpectedEOF))
			}))
		},
	},
	"fault": {
		summary: "nil pointer dereference",
		run: func(_ context.Context, a *app, out io.Writer) error {
			return outcome(out, a.handler.Run(func() error {
				w := lookupWorker("missing")
				w.jobs++
				return nil
			}))
		},
	},
	"segv": {
		summary: "read from an unmapped address",
		run: func(_ context.Context, a *app, out io.Writer) error {
			if !a.cfg.Diagnostics.PanicOnFault {
				return errors.New("segv needs diagnostics.panic_on_fault, the process would die")
			}
			return outcome(out, a.handler.Run(func() error {
				sink.New(io.Discard).HexDump(unmappedAddr, 8, 1)
				return nil
			}))
		},
	},
	"reentry": {
		summary: "panic while a section faults during the report",
		extra: func() []diagnostics.Section {
			return []diagnostics.Section{faultingSection()}
		},
		run: func(_ context.Context, a *app, out io.Writer) error {
			return outcome(out, a.handler.Run(func() error {
				panic("simulated panic with a faulting section")
			}))
		},
	},
	"concurrent": {
		summary: "several goroutines panic at once",
		run:     runConcurrent,
	},
}

var simulateWorkers int

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario>",
	Short: "Crash a workload under the handler and write a report",
	Long: `Run a workload that fails under the crash handler and write a report.

Scenarios:
` + scenarioHelp(),
	Args:      cobra.ExactArgs(1),
	ValidArgs: scenarioNames(),
	RunE:      runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simulateWorkers, "workers", 4, "goroutines for the concurrent scenario")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sc, ok := scenarios[args[0]]
	if !ok {
		return fmt.Errorf("unknown scenario %q (want one of: %s)", args[0], strings.Join(scenarioNames(), ", "))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var extra []diagnostics.Section
	if sc.extra != nil {
		extra = sc.extra()
	}
	a, err := newApp(cfg, cmd.ErrOrStderr(), extra...)
	if err != nil {
		return err
	}
	a.sample()

	return sc.run(cmd.Context(), a, cmd.OutOrStdout())
}

// outcome prints a recovered panic. Any other error is returned.
func outcome(out io.Writer, err error) error {
	var pe *crashdump.PanicError
	if !errors.As(err, &pe) {
		return err
	}
	fmt.Fprintf(out, "recovered %s\n", pe.Error())
	return nil
}

func runConcurrent(ctx context.Context, a *app, out io.Writer) error {
	if simulateWorkers < 1 {
		return fmt.Errorf("--workers must be positive, got %d", simulateWorkers)
	}

	var (
		mu      sync.Mutex
		results []string
	)
	start := make(chan struct{})
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < simulateWorkers; i++ {
		g.Go(func() error {
			<-start
			err := a.handler.Run(func() error {
				panic(fmt.Sprintf("simulated panic in worker %d", i))
			})
			var pe *crashdump.PanicError
			if !errors.As(err, &pe) {
				return err
			}
			mu.Lock()
			results = append(results, pe.Error())
			mu.Unlock()
			return nil
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Strings(results)
	for _, r := range results {
		fmt.Fprintf(out, "recovered %s\n", r)
	}
	return nil
}

// faultingSection reads unmapped memory on its first attempt, which escapes
// the report and makes the handler resume it.
func faultingSection() diagnostics.Section {
	return diagnostics.NewSection("Simulated fault", 2, func(s diagnostics.Sink, _ diagnostics.Snapshot, attempt int) error {
		if attempt == 1 {
			s.Line("reading unmapped memory:")
			s.HexDump(unmappedAddr, 8, 1)
		}
		s.Line("Simulated fault: recovered on attempt 2")
		return nil
	})
}

type worker struct {
	jobs int
}

var workers = map[string]*worker{}

func lookupWorker(name string) *worker {
	return workers[name]
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scenarioHelp() string {
	var b strings.Builder
	for _, name := range scenarioNames() {
		fmt.Fprintf(&b, "  %-11s %s\n", name, scenarios[name].summary)
	}
	return b.String()
}
