// Package internal provides internal utilities for the bench packages.
package internal

import (
	"context"
	"time"
)

// Clock is an interface for obtaining time. The abstraction allows
// deterministic testing of freshness checks and retry schedules.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Sleeper abstracts blocking delays so retry backoff can be tested without
// real waiting.
type Sleeper interface {
	// Sleep blocks for the given duration or until the context is done,
	// whichever comes first. Returns the context error on early wakeup.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock uses the system clock and real sleeps.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks on a timer, interruptible by the context.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MockClock is a Clock and Sleeper for testing that records sleeps and
// advances manually. It is not safe for concurrent use.
type MockClock struct {
	current time.Time
	slept   []time.Duration
}

// NewMockClock creates a MockClock initialized to the given time. A zero
// time is replaced with a fixed non-zero default to avoid zero-time edge
// cases.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Unix(1_700_000_000, 0)
	}
	return &MockClock{current: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time { return m.current }

// Sleep records the requested delay and advances the clock by it. A done
// context wakes it immediately without recording, matching the real sleeper.
func (m *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.slept = append(m.slept, d)
	m.Advance(d)
	return nil
}

// Slept returns every delay passed to Sleep, in order.
func (m *MockClock) Slept() []time.Duration { return m.slept }

// Advance moves the clock forward by the given duration. Panics if d is
// negative to maintain monotonicity.
func (m *MockClock) Advance(d time.Duration) {
	if d < 0 {
		panic("MockClock.Advance: duration must be non-negative")
	}
	m.current = m.current.Add(d)
}
