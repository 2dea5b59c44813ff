// Package diagnostics drives crash-time diagnostic reports.
//
// A report is a fixed, ordered list of sections. Each section declares how many
// attempts it may use and receives the attempt number, so that later attempts
// can print less risky output. The driver:
//
//   - Reporter: owns the single report state for a process (or a test), runs
//     every registered section in order, isolates recoverable failures per
//     attempt and resumes, rather than restarts, when the owning goroutine
//     re-enters after an unrecoverable fault.
//
//   - Registry: the append-only section list. It is frozen by the first dump.
//
//   - Sink: the minimal structured writer that sections print through. The
//     sink package provides the text implementation.
//
// Ownership is a compare-and-swap on the goroutine ID. A second goroutine that
// reaches Report while a dump is underway gets a one-line contention notice
// and a false return. It never blocks.
//
// The package-level functions operate on a process-wide default Reporter,
// which is the only shared mutable state in this package. IsInProgress and
// IsInProgressByCurrentGoroutine are safe to call from any goroutine and are
// used by the logging and monitoring packages to stay quiet during a dump.
package diagnostics
