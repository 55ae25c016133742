package internal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSystemClock_Now(t *testing.T) {
	c := SystemClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before.Add(-time.Second)) || got.After(after.Add(time.Second)) {
		t.Errorf("SystemClock.Now() = %v, outside [%v, %v]", got, before, after)
	}
}

func TestMockClock_ZeroTimeDefault(t *testing.T) {
	c := NewMockClock(time.Time{})
	if c.Now().IsZero() {
		t.Error("NewMockClock(zero) should initialize to a non-zero time")
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewMockClock(start)

	c.Advance(5 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(5*time.Second))
	}
}

func TestMockClock_AdvanceNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Advance(-1) should panic")
		}
	}()
	NewMockClock(time.Time{}).Advance(-time.Second)
}

func TestMockClock_SleepRecordsAndAdvances(t *testing.T) {
	c := NewMockClock(time.Time{})
	start := c.Now()
	ctx := context.Background()

	if err := c.Sleep(ctx, 500*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if err := c.Sleep(ctx, time.Second); err != nil {
		t.Fatalf("Sleep: %v", err)
	}

	slept := c.Slept()
	if len(slept) != 2 || slept[0] != 500*time.Millisecond || slept[1] != time.Second {
		t.Errorf("Slept() = %v, want [500ms 1s]", slept)
	}
	if got := c.Now(); !got.Equal(start.Add(1500 * time.Millisecond)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(1500*time.Millisecond))
	}
}

func TestMockClock_SleepCancelledContext(t *testing.T) {
	c := NewMockClock(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Sleep(ctx, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep on cancelled context = %v, want context.Canceled", err)
	}
	if len(c.Slept()) != 0 {
		t.Errorf("cancelled sleep should not be recorded, got %v", c.Slept())
	}
}

func TestSystemClock_SleepCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SystemClock{}.Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep on cancelled context = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled sleep blocked for %v", elapsed)
	}
}
