package diagnostics

// std is the process-wide reporter used by the package-level functions.
var std = &Reporter{registry: &Registry{}}

// Default returns the process-wide reporter.
func Default() *Reporter {
	return std
}

// Report runs a dump on the process-wide reporter. See Reporter.Report.
func Report(sink Sink, sp, ip uintptr, regs RegisterContext) bool {
	return std.Report(sink, sp, ip, regs)
}

// RegisterSection appends a section to the process-wide registry.
func RegisterSection(s Section) error {
	return std.Register(s)
}

// IsInProgress reports whether a process-wide dump is underway.
func IsInProgress() bool {
	return std.IsInProgress()
}

// IsInProgressByCurrentGoroutine reports whether the calling goroutine drives
// the process-wide dump.
func IsInProgressByCurrentGoroutine() bool {
	return std.IsInProgressByCurrentGoroutine()
}

// IsInProgressElsewhere reports whether a process-wide dump is driven by a
// goroutine other than the caller. Loggers use it to stay out of the way.
func IsInProgressElsewhere() bool {
	return std.IsInProgress() && !std.IsInProgressByCurrentGoroutine()
}

// MaxInvocations returns the re-entry bound of the process-wide reporter.
func MaxInvocations() int {
	return std.MaxInvocations()
}
