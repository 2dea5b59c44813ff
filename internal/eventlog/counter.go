package eventlog

import (
	"sync"
	"sync/atomic"
)

// Counter is a named monotonic or gauge value printed in crash reports.
type Counter struct {
	name  string
	value atomic.Int64
}

// Name returns the counter name.
func (c *Counter) Name() string {
	return c.name
}

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return c.value.Add(delta)
}

// Inc adds one.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Set stores v.
func (c *Counter) Set(v int64) {
	c.value.Store(v)
}

// Value returns the current value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Counters is a registry of counters. Lookups on the crash path are lock-free.
type Counters struct {
	mu   sync.Mutex
	list atomic.Pointer[[]*Counter]
}

// NewCounters returns an empty counter registry.
func NewCounters() *Counters {
	return &Counters{}
}

// Get returns the counter called name, creating it on first use.
func (c *Counters) Get(name string) *Counter {
	for _, ctr := range c.All() {
		if ctr.name == name {
			return ctr
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.All()
	for _, ctr := range cur {
		if ctr.name == name {
			return ctr
		}
	}
	ctr := &Counter{name: name}
	next := make([]*Counter, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, ctr)
	c.list.Store(&next)
	return ctr
}

// All returns the registered counters in registration order. The returned
// slice must not be modified.
func (c *Counters) All() []*Counter {
	p := c.list.Load()
	if p == nil {
		return nil
	}
	return *p
}
