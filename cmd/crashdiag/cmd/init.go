package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/config"
)

var (
	initForce bool
	initPath  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
	initCmd.Flags().StringVar(&initPath, "output", config.FileName+".yaml", "Path of the configuration file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	err := config.WriteDefault(initPath, initForce)
	if errors.Is(err, config.ErrConfigExists) {
		return fmt.Errorf("configuration already exists at %s, use --force to overwrite", initPath)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", initPath)
	return nil
}
