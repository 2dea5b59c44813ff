package diagnostics

// Section is one bounded-retry unit of diagnostic output.
//
// Run may be invoked up to MaxAttempts times within a single dump: again after
// it returns an error or panics recoverably, and again after an unrecoverable
// fault when the owning goroutine re-enters Report. The first invocation gets
// attempt 1. Implementations usually switch to a cheaper strategy on later
// attempts.
type Section interface {
	Name() string
	MaxAttempts() int
	Run(sink Sink, snap Snapshot, attempt int) error
}

// RunFunc is the signature of a section body.
type RunFunc func(sink Sink, snap Snapshot, attempt int) error

// SectionFunc adapts a plain function to the Section interface.
type SectionFunc struct {
	name        string
	maxAttempts int
	run         RunFunc
}

// NewSection returns a Section named name that runs fn at most maxAttempts
// times per dump.
func NewSection(name string, maxAttempts int, fn RunFunc) *SectionFunc {
	return &SectionFunc{
		name:        name,
		maxAttempts: maxAttempts,
		run:         fn,
	}
}

// Name returns the section name.
func (s *SectionFunc) Name() string {
	return s.name
}

// MaxAttempts returns the attempt budget.
func (s *SectionFunc) MaxAttempts() int {
	return s.maxAttempts
}

// Run invokes the wrapped function.
func (s *SectionFunc) Run(sink Sink, snap Snapshot, attempt int) error {
	if s.run == nil {
		return nil
	}
	return s.run(sink, snap, attempt)
}
