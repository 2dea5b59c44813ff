package config

// DefaultConfigYAML is written by `crashdiag init`. It mirrors the loader
// defaults.
const DefaultConfigYAML = `# crashdiag configuration
#
# Every key can be overridden with an environment variable, for example
# CRASHDIAG_DIAGNOSTICS_OUTPUT=stderr.

log:
  level: info        # debug, info, warn, error
  format: auto       # auto, text, json

diagnostics:
  # Where crash reports go: stderr, file or both.
  output: both
  dir: .crashdiag/reports
  max_files: 10
  # Archive all but the newest report with zstd.
  compress: true
  # Turn memory faults in guarded code into recoverable panics.
  panic_on_fault: true
  traceback: all
  # Signals that print a report without stopping the process.
  signals:
    - SIGQUIT
    - SIGUSR1
  # Environment variables are printed with secrets redacted.
  include_env: false
  disabled_sections: []
  event_log_size: 256

monitor:
  enabled: true
  interval: 30s
  history_size: 120
  fd_threshold_percent: 80
  goroutine_threshold: 10000
  memory_threshold_mb: 4096
`
