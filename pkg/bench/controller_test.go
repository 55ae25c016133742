package bench

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOrDie(t *testing.T, specs ...StepSpec) []Step {
	t.Helper()
	steps, err := CompileSteps(specs)
	require.NoError(t, err)
	return steps
}

func TestController_SuccessfulRun(t *testing.T) {
	launcher := &fakeLauncher{}
	sink := NewMemorySink()
	ctrl := NewController(launcher, sink, nil, nil, ControllerConfig{})

	run := ScenarioRun{
		Key:   RunKey{App: "demo", Scenario: "smoke", Repetition: 0},
		URL:   "http://agent.test/page",
		Steps: compileOrDie(t, StepSpec{Action: "click", Selector: "#go"}),
	}

	result := ctrl.Execute(context.Background(), run)

	assert.True(t, result.Success)
	assert.NoError(t, result.Err)
	assert.Equal(t, run.Key, result.Key)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, StateSucceeded, ctrl.State())

	sessions := launcher.Sessions()
	require.Len(t, sessions, 1)
	calls := sessions[0].Calls()
	assert.Equal(t, "navigate:http://agent.test/page", calls[0])
	assert.Equal(t, "waitIdle", calls[1])
	assert.Contains(t, calls, "click:#go")
	assert.True(t, sessions[0].Closed(), "closing must release the session")

	assert.Equal(t, []RunKey{run.Key}, sink.Began())
	assert.Equal(t, []RunKey{run.Key}, sink.Ended())
}

func TestController_StepFailureStillCloses(t *testing.T) {
	launcher := &fakeLauncher{configure: func(s *fakeSession) {
		s.failOn = "click:#broken"
	}}
	ctrl := NewController(launcher, nil, nil, nil, ControllerConfig{})

	run := ScenarioRun{
		Key:   RunKey{App: "demo", Scenario: "smoke", Repetition: 1},
		URL:   "http://agent.test/page",
		Steps: compileOrDie(t, StepSpec{Action: "click", Selector: "#broken"}),
	}

	result := ctrl.Execute(context.Background(), run)

	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.Equal(t, StateFailed, ctrl.State())

	sessions := launcher.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Closed(), "closing must run on the failure path")
	// The recorder is stopped as part of closing, before the session goes.
	assert.Contains(t, sessions[0].Calls(), "stopRecording")
}

func TestController_LaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{launchErr: errors.New("no browser available")}
	ctrl := NewController(launcher, nil, nil, nil, ControllerConfig{})

	result := ctrl.Execute(context.Background(), ScenarioRun{
		Key: RunKey{App: "demo", Scenario: "smoke"},
		URL: "http://agent.test",
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Err.Error(), "launching session")
	assert.Equal(t, StateFailed, ctrl.State())
}

// The speak property from the event contract: a run whose only step is speak
// succeeds iff speech-end is published before the timeout.
func TestController_SpeakRunSucceedsOnSpeechEnd(t *testing.T) {
	launcher := &fakeLauncher{configure: func(s *fakeSession) {
		s.onPlayAudio = func(emit EventFunc) {
			time.Sleep(20 * time.Millisecond)
			emit(EventSpeechEnd, nil)
		}
	}}
	ctrl := NewController(launcher, nil, nil, nil, ControllerConfig{})

	result := ctrl.Execute(context.Background(), ScenarioRun{
		Key:   RunKey{App: "demo", Scenario: "speak-only"},
		URL:   "http://agent.test",
		Steps: compileOrDie(t, StepSpec{Action: "speak", File: "hi.wav"}),
	})
	assert.True(t, result.Success)
}

func TestController_SpeakRunFailsOnTimeout(t *testing.T) {
	launcher := &fakeLauncher{}
	ctrl := NewController(launcher, nil, nil, nil, ControllerConfig{})

	result := ctrl.Execute(context.Background(), ScenarioRun{
		Key: RunKey{App: "demo", Scenario: "speak-only"},
		URL: "http://agent.test",
		Steps: compileOrDie(t, StepSpec{
			Action: "speak", File: "hi.wav", Timeout: 50 * time.Millisecond,
		}),
	})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrTimeout)

	sessions := launcher.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Closed())
}

func TestController_DebugTimeoutCarriesSnapshot(t *testing.T) {
	launcher := &fakeLauncher{}
	ctrl := NewController(launcher, nil, nil, nil, ControllerConfig{
		Debug:          true,
		SampleInterval: 10 * time.Millisecond,
	})

	result := ctrl.Execute(context.Background(), ScenarioRun{
		Key: RunKey{App: "demo", Scenario: "speak-only"},
		URL: "http://agent.test",
		Steps: compileOrDie(t, StepSpec{
			Action: "speak", File: "hi.wav", Timeout: 60 * time.Millisecond,
		}),
	})

	require.False(t, result.Success)
	var terr *TimeoutError
	require.ErrorAs(t, result.Err, &terr)
	assert.Contains(t, terr.Snapshot, "monitored",
		"debug timeouts embed the instrumentation snapshot")
}

func TestRunState_String(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "Launching", StateLaunching.String())
	assert.Equal(t, "Ready", StateReady.String())
	assert.Equal(t, "Executing", StateExecuting.String())
	assert.Equal(t, "Closing", StateClosing.String())
	assert.Equal(t, "Succeeded", StateSucceeded.String())
	assert.Equal(t, "Failed", StateFailed.String())
	assert.Equal(t, "Unknown", RunState(42).String())
}
