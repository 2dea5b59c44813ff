package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var watchDuration time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sample resources and print a report on each configured signal",
	Long: `Run the resource monitor and wait. Each signal listed in
diagnostics.signals prints a report without stopping the process; an
interrupt or the --duration timeout ends the command.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDuration, "duration", 0, "stop after this long (0 waits for an interrupt)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()
	if watchDuration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, watchDuration)
		defer cancelTimeout()
	}

	stop, err := a.start(ctx)
	if err != nil {
		return err
	}
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "watching pid %d, signals %v\n", os.Getpid(), cfg.Diagnostics.Signals)
	<-ctx.Done()

	if a.monitor != nil {
		trend := a.monitor.Trend()
		fmt.Fprintf(cmd.OutOrStdout(), "samples: %d, goroutines: %+.1f/h, memory: %+.1f MB/h, healthy: %t\n",
			len(a.monitor.History()), trend.GoroutineGrowthRate, trend.MemoryGrowthRate, trend.IsHealthy)
	}
	return nil
}
