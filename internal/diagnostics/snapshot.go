package diagnostics

// Register is one named machine register value.
type Register struct {
	Name  string
	Value uint64
}

// RegisterContext is the register file captured at the fault. A nil context
// means the fatal condition was detected in software without a trap frame.
type RegisterContext []Register

// Snapshot is the fault context captured by the first acquiring Report call.
// It stays fixed for the whole dump, including re-entrant resumes.
type Snapshot struct {
	StackPointer       uintptr
	InstructionPointer uintptr
	Registers          RegisterContext
}

// HasRegisters reports whether a register context was supplied.
func (s Snapshot) HasRegisters() bool {
	return s.Registers != nil
}
