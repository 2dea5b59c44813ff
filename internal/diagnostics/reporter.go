package diagnostics

const (
	contentionNotice = "Error: diagnostics already in progress by another goroutine."
	resumeNotice     = "An error occurred while printing diagnostics. The remaining part of this section will be skipped."
)

// Reporter drives dumps over its registry. The zero value is not usable; use
// NewReporter.
type Reporter struct {
	registry *Registry
	state    reportState
}

// NewReporter creates a reporter with the given sections in output order.
func NewReporter(sections ...Section) (*Reporter, error) {
	reg, err := NewRegistry(sections...)
	if err != nil {
		return nil, err
	}
	return &Reporter{registry: reg}, nil
}

// Register appends a section. It fails once any dump has started.
func (r *Reporter) Register(s Section) error {
	return r.registry.Register(s)
}

// Registry returns the section registry.
func (r *Reporter) Registry() *Registry {
	return r.registry
}

// IsInProgress reports whether any goroutine is driving a dump.
func (r *Reporter) IsInProgress() bool {
	return r.state.inProgress()
}

// IsInProgressByCurrentGoroutine reports whether the calling goroutine owns
// the current dump.
func (r *Reporter) IsInProgressByCurrentGoroutine() bool {
	return r.state.ownedBy(currentGoroutine())
}

// MaxInvocations bounds how many times a fault handler needs to call Report
// for one dump: every call either finishes the dump or consumes at least one
// attempt.
func (r *Reporter) MaxInvocations() int {
	return r.registry.MaxInvocations()
}

// Report prints every registered section to sink.
//
// The first call captures sp, ip and regs and owns the dump until it
// finishes. A later call from the same goroutine, typically made by a fault
// handler after a section faulted unrecoverably, resumes where the previous
// call stopped and ignores its own arguments. A call from any other goroutine
// writes a contention notice to its sink and returns false.
//
// Report returns true whenever the calling goroutine drove the dump, even if
// sections failed. Failures are reported through the sink.
func (r *Reporter) Report(sink Sink, sp, ip uintptr, regs RegisterContext) bool {
	if sink == nil {
		sink = discard{}
	}
	gid := currentGoroutine()

	sink.Newline()
	snap := Snapshot{StackPointer: sp, InstructionPointer: ip, Registers: regs}
	if !r.tryAcquire(gid, sink, snap) && !r.state.ownedBy(gid) {
		sink.Line(contentionNotice)
		sink.Newline()
		return false
	}

	r.resume()
	return true
}

func (r *Reporter) tryAcquire(gid int64, sink Sink, snap Snapshot) bool {
	if r.state.inProgress() {
		return false
	}
	// The registry is frozen before ownership is taken so a racing Register
	// either lands in this dump's list or fails.
	sections := r.registry.freeze()
	return r.state.tryAcquire(gid, sink, snap, sections)
}

// resume runs the remaining attempts of the current dump. An unrecoverable
// fault unwinds out of it and leaves the state owned, so the next Report call
// on this goroutine continues at the faulted attempt.
func (r *Reporter) resume() {
	st := &r.state
	sink := st.sink

	if st.attemptCount > 0 {
		sink.Newline()
		sink.Line(resumeNotice)
		sink.ResetIndentation()
	}

	for st.sectionIndex < len(st.sections) {
		section := st.sections[st.sectionIndex]
		for st.attemptCount < section.MaxAttempts() {
			st.attemptCount++
			if r.attempt(section) {
				break
			}
		}
		st.sectionIndex++
		st.attemptCount = 0
	}

	st.release()
}

// attempt runs one attempt of section and reports whether it completed.
func (r *Reporter) attempt(section Section) (ok bool) {
	st := &r.state
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if IsUnrecoverable(v) {
			panic(v)
		}
		writeFailure(st.sink, section, st.sectionIndex, v)
		ok = false
	}()

	if err := section.Run(st.sink, st.snap, st.attemptCount); err != nil {
		writeFailure(st.sink, section, st.sectionIndex, err)
		return false
	}
	return true
}

func writeFailure(sink Sink, section Section, index int, failure any) {
	sink.Newline()
	sink.String("[!!! Exception while executing ")
	sink.String(section.Name())
	sink.String(" (section ")
	sink.Signed(int64(index))
	sink.String("): ")
	sink.String(KindOf(failure))
	sink.String("]")
	sink.Newline()
}

type discard struct{}

func (discard) String(string) {}
func (discard) Line(string) {}
func (discard) Newline() {}
func (discard) Signed(int64) {}
func (discard) Unsigned(uint64) {}
func (discard) Hex(uint64) {}
func (discard) HexDump(uintptr, int, int) {}
func (discard) Indent(bool) {}
func (discard) ResetIndentation() {}
