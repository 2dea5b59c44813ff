package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
	Monitor     MonitorConfig     `mapstructure:"monitor" yaml:"monitor"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DiagnosticsConfig configures crash reports.
type DiagnosticsConfig struct {
	// Dir holds report files.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxFiles bounds the number of kept reports.
	MaxFiles int `mapstructure:"max_files" yaml:"max_files"`
	// Compress archives all but the newest report with zstd after a report
	// is written.
	Compress bool `mapstructure:"compress" yaml:"compress"`
	// Output is one of stderr, file, both.
	Output       string `mapstructure:"output" yaml:"output"`
	PanicOnFault bool   `mapstructure:"panic_on_fault" yaml:"panic_on_fault"`
	// Traceback is passed to debug.SetTraceback; empty leaves the default.
	Traceback string `mapstructure:"traceback" yaml:"traceback"`
	// Signals trigger a report without stopping the process.
	Signals          []string `mapstructure:"signals" yaml:"signals"`
	IncludeEnv       bool     `mapstructure:"include_env" yaml:"include_env"`
	DisabledSections []string `mapstructure:"disabled_sections" yaml:"disabled_sections"`
	EventLogSize     int      `mapstructure:"event_log_size" yaml:"event_log_size"`
}

// MonitorConfig configures the background resource monitor.
type MonitorConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	Interval           string `mapstructure:"interval" yaml:"interval"`
	HistorySize        int    `mapstructure:"history_size" yaml:"history_size"`
	FDThresholdPercent int    `mapstructure:"fd_threshold_percent" yaml:"fd_threshold_percent"`
	GoroutineThreshold int    `mapstructure:"goroutine_threshold" yaml:"goroutine_threshold"`
	MemoryThresholdMB  int    `mapstructure:"memory_threshold_mb" yaml:"memory_threshold_mb"`
}

// IntervalDuration parses Interval. Callers validate first; an unparsable
// value yields zero.
func (m MonitorConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(m.Interval)
	return d
}
