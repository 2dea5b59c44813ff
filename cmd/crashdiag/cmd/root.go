package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/config"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "crashdiag",
	Short: "Crash-safe diagnostic reports for Go processes",
	Long: `crashdiag prints ordered diagnostic sections when a process panics,
faults or receives a signal. Sections that fail are retried in a degraded
form, and a fault inside the report resumes it at the next attempt.

Use 'crashdiag simulate' to exercise the reporter and 'crashdiag show' to
read the reports it wrote.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./.crashdiag.yaml or ~/.config/crashdiag/.crashdiag.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// loadConfig reads and validates the configuration through the global viper
// instance, so bound flags take precedence.
func loadConfig() (*config.Config, error) {
	cfg, _, err := loadConfigWithSource()
	return cfg, err
}

// loadConfigWithSource is loadConfig that also returns the config file used,
// empty when only defaults, environment and flags applied.
func loadConfigWithSource() (*config.Config, string, error) {
	loader := config.NewLoaderWithViper(viper.GetViper()).WithConfigFile(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, loader.ConfigFile(), nil
}
