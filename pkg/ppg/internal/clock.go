// Package internal provides internal utilities for the ppg package.
package internal

import (
	"sync"
	"time"
)

// Clock is an interface for obtaining monotonic time.
// Sessions use it to track activity for idle teardown; estimation itself
// runs on sensor timestamps and never reads the clock.
type Clock interface {
	// Now returns the current time. Implementations must return
	// monotonically increasing time values.
	Now() time.Time
}

// MonotonicClock is a Clock implementation that uses the system's monotonic clock.
type MonotonicClock struct{}

// Now returns the current system time with monotonic clock reading.
func (MonotonicClock) Now() time.Time {
	return time.Now()
}

// MockClock is a Clock for tests that only moves when told to.
// It is safe for concurrent use, since sessions are read from transport
// callbacks while tests advance time.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMockClock creates a new MockClock initialized to the given time.
// If t is zero, it initializes to a fixed default start time.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Unix(1000000000, 0) // 2001-09-09
	}
	return &MockClock{current: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by the given duration.
// Panics if d is negative to maintain monotonicity.
func (m *MockClock) Advance(d time.Duration) {
	if d < 0 {
		panic("MockClock.Advance: duration must be non-negative")
	}
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}
