package bench

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunState tracks the controller's position in a run's lifecycle.
type RunState int

const (
	StateIdle RunState = iota
	StateLaunching
	StateReady
	StateExecuting
	StateClosing
	StateSucceeded
	StateFailed
)

// String returns the lifecycle state name.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLaunching:
		return "Launching"
	case StateReady:
		return "Ready"
	case StateExecuting:
		return "Executing"
	case StateClosing:
		return "Closing"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ScenarioRun is the ordered concatenation of an application's preamble and
// one scenario's steps, scoped to a single (app, scenario, repetition)
// triple. Created by the scheduler, executed by exactly one controller,
// never auto-retried.
type ScenarioRun struct {
	Key   RunKey
	URL   string
	Steps []Step
}

// RunResult is the immutable outcome of one run.
type RunResult struct {
	Key      RunKey
	RunID    string
	Success  bool
	Err      error
	Duration time.Duration
}

// ControllerConfig configures one run controller.
type ControllerConfig struct {
	// Debug enables the broker's periodic instrumentation sampler.
	Debug bool
	// SampleInterval overrides the debug sampler cadence when positive.
	SampleInterval time.Duration
}

// Controller owns one browser session's lifecycle end to end:
// Idle → Launching → Ready → Executing → Closing → {Succeeded, Failed}.
// Closing always runs, on every exit path, and releases the session.
type Controller struct {
	launcher Launcher
	sink     MetricsSink
	eval     Evaluator
	log      *slog.Logger
	cfg      ControllerConfig
	state    RunState
}

// NewController creates an idle controller. One controller executes exactly
// one run.
func NewController(launcher Launcher, sink MetricsSink, eval Evaluator, log *slog.Logger, cfg ControllerConfig) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		launcher: launcher,
		sink:     sink,
		eval:     eval,
		log:      log,
		cfg:      cfg,
		state:    StateIdle,
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() RunState { return c.state }

// Execute drives the run to completion and reports exactly one result.
func (c *Controller) Execute(ctx context.Context, run ScenarioRun) RunResult {
	runID := uuid.NewString()
	log := c.log.With("run", run.Key.String(), "id", runID)
	start := time.Now()

	if c.sink != nil {
		c.sink.BeginRun(run.Key, runID)
	}

	err := c.execute(ctx, run, log)

	result := RunResult{
		Key:      run.Key,
		RunID:    runID,
		Success:  err == nil,
		Err:      err,
		Duration: time.Since(start),
	}

	if err == nil {
		c.state = StateSucceeded
		log.Info("run succeeded", "elapsed", result.Duration)
	} else {
		c.state = StateFailed
		log.Warn("run failed", "elapsed", result.Duration, "error", err)
	}

	if c.sink != nil {
		c.sink.EndRun(run.Key, runID, result.Success)
	}
	return result
}

func (c *Controller) execute(ctx context.Context, run ScenarioRun, log *slog.Logger) error {
	brokerCfg := DefaultBrokerConfig()
	brokerCfg.Debug = c.cfg.Debug
	brokerCfg.Logger = log
	if c.cfg.SampleInterval > 0 {
		brokerCfg.SampleInterval = c.cfg.SampleInterval
	}
	broker := NewBroker(brokerCfg)

	// Launching: one isolated session per run, never reused.
	c.state = StateLaunching
	session, err := c.launcher.NewSession(ctx, func(eventType EventType, payload map[string]any) {
		broker.Publish(eventType, payload)
	})
	if err != nil {
		return fmt.Errorf("launching session: %w", err)
	}

	// Closing runs on every exit path: fail outstanding waiters first, stop
	// any active recording, then release the session.
	defer func() {
		c.state = StateClosing
		broker.CancelAll()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := session.StopRecording(stopCtx); err != nil {
			log.Debug("stopping recorder during close", "error", err)
		}
		cancel()
		if err := session.Close(); err != nil {
			log.Warn("closing session", "error", err)
		}
	}()

	broker.SetSnapshotter(session)

	// Ready: navigate and wait for the page to settle so the first step
	// never races the load.
	c.state = StateReady
	if err := session.Navigate(ctx, run.URL); err != nil {
		return fmt.Errorf("navigating to %s: %w", run.URL, err)
	}
	if err := session.WaitIdle(ctx); err != nil {
		return fmt.Errorf("waiting for page idle: %w", err)
	}

	c.state = StateExecuting
	executor := NewExecutor(session, broker, c.sink, c.eval, log, run.Key)
	return executor.Run(ctx, run.Steps)
}
