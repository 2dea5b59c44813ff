package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/sections"
)

var sectionsFilter string

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List the report sections in order with their attempt budgets",
	Args:  cobra.NoArgs,
	RunE:  runSections,
}

func init() {
	rootCmd.AddCommand(sectionsCmd)
	sectionsCmd.Flags().StringVarP(&sectionsFilter, "filter", "f", "", "fuzzy filter on section names")
}

func runSections(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	list := sections.Default(sections.Options{
		IncludeEnv: cfg.Diagnostics.IncludeEnv,
		Disabled:   cfg.Diagnostics.DisabledSections,
	})
	reporter, err := diagnostics.NewReporter(list...)
	if err != nil {
		return err
	}

	indexes := make([]int, len(list))
	for i := range list {
		indexes[i] = i
	}
	if sectionsFilter != "" {
		names := make([]string, len(list))
		for i, s := range list {
			names[i] = s.Name()
		}
		indexes = indexes[:0]
		for _, m := range fuzzy.Find(sectionsFilter, names) {
			indexes = append(indexes, m.Index)
		}
		sort.Ints(indexes)
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSECTION\tATTEMPTS")
	for _, i := range indexes {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", i+1, list[i].Name(), list[i].MaxAttempts())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nmax invocations: %d\n", reporter.MaxInvocations())
	return nil
}
