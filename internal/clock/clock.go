package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so timestamping works with both real and virtual time.
type Clock interface {
	Now() time.Time
}

// RealClock delegates to the standard time package.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Monotonic wraps a Clock so that successive Now calls return strictly
// increasing instants, bumping by one nanosecond when the underlying clock
// stalls or steps backwards. Audit timestamps come from here, so no two
// events produced by one process share a ts.
//
// Thread-safe for concurrent use.
type Monotonic struct {
	base Clock
	mu   sync.Mutex
	last time.Time
}

// NewMonotonic wraps base. A nil base uses the real clock.
func NewMonotonic(base Clock) *Monotonic {
	if base == nil {
		base = NewRealClock()
	}
	return &Monotonic{base: base}
}

// Now returns an instant strictly after every instant previously returned.
func (m *Monotonic) Now() time.Time {
	now := m.base.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !now.After(m.last) {
		now = m.last.Add(time.Nanosecond)
	}
	m.last = now
	return now
}
