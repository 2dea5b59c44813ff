package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/crashdump"
)

var (
	showPathOnly bool
)

var showCmd = &cobra.Command{
	Use:   "show [report-file]",
	Short: "Print the latest crash report, or the given one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored crash reports, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Compress every report except the newest with zstd",
	Args:  cobra.NoArgs,
	RunE:  runArchive,
}

func init() {
	rootCmd.AddCommand(showCmd, listCmd, archiveCmd)
	showCmd.Flags().BoolVar(&showPathOnly, "path", false, "print only the report path")
}

func openStore() (*crashdump.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return crashdump.NewStore(cfg.Diagnostics.Dir, cfg.Diagnostics.MaxFiles, nil), nil
}

func runShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		if showPathOnly {
			fmt.Fprintln(out, args[0])
			return nil
		}
		data, err := crashdump.Read(args[0])
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	entry, data, err := store.LoadLatest()
	if errors.Is(err, crashdump.ErrNoReports) {
		return fmt.Errorf("no crash reports in %s", store.Dir())
	}
	if err != nil {
		return err
	}
	if showPathOnly {
		fmt.Fprintln(out, entry.Path)
		return nil
	}
	_, err = out.Write(data)
	return err
}

func runList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	entries, err := store.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "no crash reports in %s\n", store.Dir())
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REPORT\tCREATED\tSIZE\tARCHIVED")
	for _, e := range entries {
		archived := "no"
		if e.Compressed {
			archived = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.Name, e.Created.Local().Format(time.DateTime), e.Size, archived)
	}
	return tw.Flush()
}

func runArchive(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	n, err := store.Compact()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "archived %d report(s) in %s\n", n, store.Dir())
	return nil
}
