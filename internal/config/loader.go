package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. CRASHDIAG_LOG_LEVEL.
	EnvPrefix = "CRASHDIAG"
	// FileName is the config file name without extension.
	FileName = ".crashdiag"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance so
// CLI flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (CRASHDIAG_*)
// 3. Project config (.crashdiag.yaml in the current directory)
// 4. User config (~/.config/crashdiag/.crashdiag.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(FileName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "crashdiag"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("diagnostics.dir", filepath.Join(".crashdiag", "reports"))
	l.v.SetDefault("diagnostics.max_files", 10)
	l.v.SetDefault("diagnostics.compress", true)
	l.v.SetDefault("diagnostics.output", "both")
	l.v.SetDefault("diagnostics.panic_on_fault", true)
	l.v.SetDefault("diagnostics.traceback", "all")
	l.v.SetDefault("diagnostics.signals", []string{"SIGQUIT", "SIGUSR1"})
	l.v.SetDefault("diagnostics.include_env", false)
	l.v.SetDefault("diagnostics.disabled_sections", []string{})
	l.v.SetDefault("diagnostics.event_log_size", 256)

	l.v.SetDefault("monitor.enabled", true)
	l.v.SetDefault("monitor.interval", "30s")
	l.v.SetDefault("monitor.history_size", 120)
	l.v.SetDefault("monitor.fd_threshold_percent", 80)
	l.v.SetDefault("monitor.goroutine_threshold", 10000)
	l.v.SetDefault("monitor.memory_threshold_mb", 4096)
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
