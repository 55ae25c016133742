package bench

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCombos(t *testing.T, n int) []Combination {
	t.Helper()
	combos := make([]Combination, 0, n)
	for i := 0; i < n; i++ {
		combos = append(combos, Combination{
			App:      fmt.Sprintf("app%d", i),
			Scenario: "smoke",
			URL:      "http://agent.test",
			Steps:    compileOrDie(t, StepSpec{Action: "wait", Duration: time.Millisecond}),
		})
	}
	return combos
}

func TestScheduler_EachRunExactlyOnce(t *testing.T) {
	for _, concurrency := range []int{1, 3, 15, 100} {
		t.Run(fmt.Sprintf("K=%d", concurrency), func(t *testing.T) {
			launcher := &fakeLauncher{}
			sink := NewMemorySink()
			s := NewScheduler(launcher, sink, nil, nil, SchedulerConfig{
				Repeat:      3,
				Concurrency: concurrency,
			})

			summary := s.Run(context.Background(), testCombos(t, 5))

			assert.Equal(t, 15, summary.Total)
			assert.Equal(t, 15, summary.Succeeded)
			assert.Equal(t, 0, summary.Failed)
			assert.Len(t, launcher.Sessions(), 15, "one fresh session per run")

			// Every (app, scenario, repetition) triple appears exactly once.
			seen := make(map[RunKey]int)
			for _, key := range sink.Began() {
				seen[key]++
			}
			assert.Len(t, seen, 15)
			for key, count := range seen {
				assert.Equal(t, 1, count, "run %s executed %d times", key, count)
			}
		})
	}
}

func TestScheduler_WorkerPoolNeverExceedsRuns(t *testing.T) {
	launcher := &fakeLauncher{}
	s := NewScheduler(launcher, nil, nil, nil, SchedulerConfig{
		Repeat:      3,
		Concurrency: 100,
	})

	assert.Equal(t, 15, s.Workers(15), "K=100 with 15 runs spawns exactly 15 workers")
	assert.Equal(t, 3, NewScheduler(launcher, nil, nil, nil, SchedulerConfig{Concurrency: 3}).Workers(15))

	summary := s.Run(context.Background(), testCombos(t, 5))
	assert.Equal(t, 15, summary.Total)
	assert.LessOrEqual(t, launcher.MaxLive(), 15)
}

func TestScheduler_DeterministicQueueOrder(t *testing.T) {
	s := NewScheduler(&fakeLauncher{}, nil, nil, nil, SchedulerConfig{Repeat: 2})

	queue := s.BuildQueue([]Combination{
		{App: "a", Scenario: "x"},
		{App: "b", Scenario: "y"},
	})

	want := []RunKey{
		{App: "a", Scenario: "x", Repetition: 0},
		{App: "a", Scenario: "x", Repetition: 1},
		{App: "b", Scenario: "y", Repetition: 0},
		{App: "b", Scenario: "y", Repetition: 1},
	}
	require.Len(t, queue, len(want))
	for i, run := range queue {
		assert.Equal(t, want[i], run.Key)
	}
}

func TestScheduler_FailureDoesNotCancelSiblings(t *testing.T) {
	// The second combination's only step always fails.
	launcher := &fakeLauncher{configure: func(s *fakeSession) {
		s.failOn = "click:#broken"
	}}
	combos := []Combination{
		{App: "good", Scenario: "smoke", URL: "http://agent.test",
			Steps: compileOrDie(t, StepSpec{Action: "wait", Duration: time.Millisecond})},
		{App: "bad", Scenario: "smoke", URL: "http://agent.test",
			Steps: compileOrDie(t, StepSpec{Action: "click", Selector: "#broken"})},
		{App: "alsoGood", Scenario: "smoke", URL: "http://agent.test",
			Steps: compileOrDie(t, StepSpec{Action: "wait", Duration: time.Millisecond})},
	}

	s := NewScheduler(launcher, NewMemorySink(), nil, nil, SchedulerConfig{
		Repeat:      2,
		Concurrency: 3,
	})
	summary := s.Run(context.Background(), combos)

	assert.Equal(t, 6, summary.Total)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)

	failures := summary.Failures()
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, "bad", f.Key.App)
		require.Error(t, f.Err)
	}
}

func TestScheduler_ResultsKeepQueueOrder(t *testing.T) {
	launcher := &fakeLauncher{}
	s := NewScheduler(launcher, nil, nil, nil, SchedulerConfig{
		Repeat:      2,
		Concurrency: 4,
	})

	summary := s.Run(context.Background(), testCombos(t, 3))

	require.Len(t, summary.Results, 6)
	queue := s.BuildQueue(testCombos(t, 3))
	for i, r := range summary.Results {
		assert.Equal(t, queue[i].Key, r.Key)
	}
}

func TestScheduler_AllSessionsClosed(t *testing.T) {
	launcher := &fakeLauncher{}
	s := NewScheduler(launcher, nil, nil, nil, SchedulerConfig{
		Repeat:      1,
		Concurrency: 4,
	})

	s.Run(context.Background(), testCombos(t, 8))

	for i, session := range launcher.Sessions() {
		assert.True(t, session.Closed(), "session %d leaked", i)
	}
}
