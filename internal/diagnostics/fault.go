package diagnostics

import "reflect"

// Fault is a panic value for conditions a section must not survive in-line,
// such as corrupted runtime structures. The driver lets it escape Report so
// that the fault handler re-enters and the dump resumes with the next attempt.
type Fault struct {
	Reason string
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return "unrecoverable fault: " + f.Reason
}

// Unrecoverable marks the fault as escaping the per-attempt boundary.
func (f *Fault) Unrecoverable() bool {
	return true
}

// Crash panics with a Fault.
func Crash(reason string) {
	panic(&Fault{Reason: reason})
}

// unrecoverable is implemented by panic values that opt out of the
// per-attempt boundary.
type unrecoverable interface {
	Unrecoverable() bool
}

// memoryFault matches the runtime errors raised for bad memory accesses when
// debug.SetPanicOnFault is enabled.
type memoryFault interface {
	error
	Addr() uintptr
}

// IsUnrecoverable reports whether a recovered panic value must be propagated
// instead of being treated as a failed attempt.
func IsUnrecoverable(v any) bool {
	switch f := v.(type) {
	case unrecoverable:
		return f.Unrecoverable()
	case memoryFault:
		return true
	default:
		return false
	}
}

// KindOf names a failure by its dynamic type. Reports print it instead of the
// failure message, which may be unsafe to format during a crash.
func KindOf(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
