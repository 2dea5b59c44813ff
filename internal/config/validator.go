package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/crashdiag/internal/crashdump"
	"github.com/hugo-lorenzo-mato/crashdiag/internal/sections"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateDiagnostics(&cfg.Diagnostics)
	v.validateMonitor(&cfg.Monitor)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value any, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateDiagnostics(cfg *DiagnosticsConfig) {
	output, err := crashdump.ParseOutput(cfg.Output)
	if err != nil {
		v.addError("diagnostics.output", cfg.Output, "must be one of: stderr, file, both")
	}

	if output != crashdump.OutputStderr {
		if cfg.Dir == "" {
			v.addError("diagnostics.dir", cfg.Dir, "directory required when reports are written to files")
		} else if strings.ContainsRune(cfg.Dir, 0) {
			v.addError("diagnostics.dir", cfg.Dir, "invalid directory path")
		}
	}

	if cfg.MaxFiles <= 0 {
		v.addError("diagnostics.max_files", cfg.MaxFiles, "must be positive")
	}

	validTracebacks := map[string]bool{
		"": true, "none": true, "single": true, "all": true, "system": true, "crash": true,
	}
	if !validTracebacks[cfg.Traceback] {
		v.addError("diagnostics.traceback", cfg.Traceback, "must be one of: none, single, all, system, crash")
	}

	for _, name := range cfg.Signals {
		if _, err := crashdump.ParseSignals([]string{name}); err != nil {
			v.addError("diagnostics.signals", name, "unknown or unsupported signal")
		}
	}

	known := make(map[string]bool)
	for _, name := range sections.Names() {
		known[strings.ToLower(name)] = true
	}
	for _, name := range cfg.DisabledSections {
		if !known[strings.ToLower(strings.TrimSpace(name))] {
			v.addError("diagnostics.disabled_sections", name, "unknown section")
		}
	}

	if cfg.EventLogSize <= 0 || cfg.EventLogSize > 65536 {
		v.addError("diagnostics.event_log_size", cfg.EventLogSize, "must be between 1 and 65536")
	}
}

func (v *Validator) validateMonitor(cfg *MonitorConfig) {
	if !cfg.Enabled {
		return
	}

	if d, err := time.ParseDuration(cfg.Interval); err != nil {
		v.addError("monitor.interval", cfg.Interval, "invalid duration format")
	} else if d < time.Second {
		v.addError("monitor.interval", cfg.Interval, "must be at least 1s")
	}

	if cfg.HistorySize <= 0 {
		v.addError("monitor.history_size", cfg.HistorySize, "must be positive")
	}

	if cfg.FDThresholdPercent < 0 || cfg.FDThresholdPercent > 100 {
		v.addError("monitor.fd_threshold_percent", cfg.FDThresholdPercent, "must be between 0 and 100")
	}

	if cfg.GoroutineThreshold < 0 {
		v.addError("monitor.goroutine_threshold", cfg.GoroutineThreshold, "must not be negative")
	}

	if cfg.MemoryThresholdMB < 0 {
		v.addError("monitor.memory_threshold_mb", cfg.MemoryThresholdMB, "must not be negative")
	}
}

// Validate is a convenience wrapper around NewValidator().Validate.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
