package bench

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StepError reports a failed step. Error() stays short so callers can print
// it once per run without duplicating the diagnostics already logged at the
// failure point.
type StepError struct {
	Index  int
	Action string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Executor interprets one run's step list strictly sequentially: no step
// begins before the previous one fully resolves, since steps are stateful
// relative to page and audio state. An Executor belongs to exactly one run.
type Executor struct {
	auto   Automation
	broker *Broker
	sink   MetricsSink
	eval   Evaluator
	log    *slog.Logger
	key    RunKey
}

// NewExecutor creates an executor bound to one run's session and broker.
func NewExecutor(auto Automation, broker *Broker, sink MetricsSink, eval Evaluator, log *slog.Logger, key RunKey) *Executor {
	if eval == nil {
		eval = NoopEvaluator{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		auto:   auto,
		broker: broker,
		sink:   sink,
		eval:   eval,
		log:    log,
		key:    key,
	}
}

// Run executes the steps in declared order. The first handler failure aborts
// the remaining steps; full detail is logged here and a short StepError
// propagates upward.
func (e *Executor) Run(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		start := time.Now()
		named, err := e.dispatch(ctx, step)
		elapsed := time.Since(start)

		if err != nil {
			e.log.Error("step failed",
				"step", i,
				"action", step.Action(),
				"elapsed", elapsed,
				"error", err)
			return &StepError{Index: i, Action: step.Action(), Err: err}
		}

		e.log.Debug("step done", "step", i, "action", step.Action(), "elapsed", elapsed)

		if len(step.Metrics()) > 0 && e.sink != nil {
			e.sink.RecordStepMetric(e.key, i, step.Action(), "duration_ms",
				float64(elapsed.Milliseconds()))
			for name, value := range named {
				e.sink.RecordStepMetric(e.key, i, step.Action(), name, value)
			}
		}
	}
	return nil
}

// dispatch runs one step and returns any named metrics the handler produced.
func (e *Executor) dispatch(ctx context.Context, step Step) (map[string]float64, error) {
	switch s := step.(type) {
	case ClickStep:
		return nil, e.auto.Click(ctx, s.Selector)
	case FillStep:
		return nil, e.auto.Fill(ctx, s.Selector, s.Text)
	case TypeStep:
		return nil, e.auto.Type(ctx, s.Selector, s.Text)
	case SelectStep:
		return nil, e.auto.Select(ctx, s.Selector, s.Value)
	case ScreenshotStep:
		return nil, e.auto.Screenshot(ctx, s.Name)
	case WaitStep:
		return nil, sleep(ctx, s.Duration)
	case WaitEventStep:
		_, err := e.broker.WaitFor(ctx, s.Event, s.Timeout)
		return nil, err
	case SpeakStep:
		return nil, e.speak(ctx, s)
	case ListenStep:
		return e.listen(ctx, s)
	case UnknownStep:
		e.log.Warn("ignoring unknown step action", "action", s.Tag)
		return nil, nil
	default:
		return nil, fmt.Errorf("unhandled step type %T", step)
	}
}

// speak triggers utterance playback, then blocks until the page reports the
// synthesized speech finished. The step is not complete until that event
// resolves or times out.
func (e *Executor) speak(ctx context.Context, s SpeakStep) error {
	if err := e.auto.PlayAudio(ctx, s.File); err != nil {
		return fmt.Errorf("starting playback of %s: %w", s.File, err)
	}
	if _, err := e.broker.WaitFor(ctx, EventSpeechEnd, s.Timeout); err != nil {
		return err
	}
	return nil
}

// listen records the agent's spoken reply: start the recorder, observe the
// recording and audio lifecycle events in order, stop the recorder, then
// forward the captured audio to the evaluator.
func (e *Executor) listen(ctx context.Context, s ListenStep) (map[string]float64, error) {
	if err := e.auto.StartRecording(ctx); err != nil {
		return nil, fmt.Errorf("starting recorder: %w", err)
	}
	if _, err := e.broker.WaitFor(ctx, EventRecordingStart, s.Timeout); err != nil {
		return nil, err
	}
	if _, err := e.broker.WaitFor(ctx, EventAudioStart, s.Timeout); err != nil {
		return nil, err
	}
	if _, err := e.broker.WaitFor(ctx, EventAudioStop, s.Timeout); err != nil {
		return nil, err
	}
	if err := e.auto.StopRecording(ctx); err != nil {
		return nil, fmt.Errorf("stopping recorder: %w", err)
	}
	ev, err := e.broker.WaitFor(ctx, EventRecordingComplete, s.Timeout)
	if err != nil {
		return nil, err
	}

	audio := ev.PayloadString("audio")
	format := ev.PayloadString("format")
	if audio == "" {
		return nil, fmt.Errorf("recording-complete event carried no audio")
	}

	score, err := e.eval.Score(ctx, audio, format)
	if err != nil {
		return nil, fmt.Errorf("scoring reply: %w", err)
	}
	return map[string]float64{"score": score}, nil
}

// sleep waits for d, returning early if the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
