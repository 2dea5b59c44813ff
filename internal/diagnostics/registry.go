package diagnostics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrRegistryFrozen is returned when a section is registered after the
	// first dump has started.
	ErrRegistryFrozen = errors.New("section registry is frozen: a dump has already started")
	// ErrNilSection is returned for a nil section.
	ErrNilSection = errors.New("section is nil")
	// ErrNegativeAttempts is returned for a section with MaxAttempts < 0.
	ErrNegativeAttempts = errors.New("section attempt budget is negative")
)

// Registry is the ordered list of sections printed by a dump.
//
// Registration copies the list, so a dump can hold on to the slice it started
// with without locking. Once frozen the registry rejects new sections.
type Registry struct {
	mu       sync.Mutex // serializes Register and the first freeze
	sections atomic.Pointer[[]Section]
	frozen   atomic.Bool
}

// NewRegistry creates a registry holding sections in the given order.
func NewRegistry(sections ...Section) (*Registry, error) {
	r := &Registry{}
	empty := []Section{}
	r.sections.Store(&empty)
	for _, s := range sections {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a section. Registration order is output order.
func (r *Registry) Register(s Section) error {
	if s == nil {
		return ErrNilSection
	}
	if s.MaxAttempts() < 0 {
		return fmt.Errorf("registering %q: %w", s.Name(), ErrNegativeAttempts)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("registering %q: %w", s.Name(), ErrRegistryFrozen)
	}

	old := r.load()
	next := make([]Section, len(old), len(old)+1)
	copy(next, old)
	next = append(next, s)
	r.sections.Store(&next)
	return nil
}

// Len returns the number of registered sections.
func (r *Registry) Len() int {
	return len(r.load())
}

// Sections returns a copy of the registered sections in order.
func (r *Registry) Sections() []Section {
	cur := r.load()
	out := make([]Section, len(cur))
	copy(out, cur)
	return out
}

// Frozen reports whether a dump has started.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// MaxInvocations is the sum of all attempt budgets. A fault handler uses it to
// bound how often it re-enters Report for a single dump.
func (r *Registry) MaxInvocations() int {
	total := 0
	for _, s := range r.load() {
		total += s.MaxAttempts()
	}
	return total
}

// freeze stops further registration and returns the list the dump runs.
func (r *Registry) freeze() []Section {
	if r.frozen.Load() {
		return r.load()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
	return r.load()
}

func (r *Registry) load() []Section {
	p := r.sections.Load()
	if p == nil {
		return nil
	}
	return *p
}
