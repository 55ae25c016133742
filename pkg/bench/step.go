package bench

import (
	"fmt"
	"time"
)

// Step action tags as they appear in scenario configuration.
const (
	ActionClick      = "click"
	ActionFill       = "fill"
	ActionType       = "type"
	ActionSelect     = "select"
	ActionScreenshot = "screenshot"
	ActionWait       = "wait"
	ActionWaitEvent  = "waitEvent"
	ActionSpeak      = "speak"
	ActionListen     = "listen"
)

// DefaultEventTimeout bounds event waits for steps that do not set their own.
const DefaultEventTimeout = 30 * time.Second

// Step is one declarative scenario action. Steps are immutable once compiled
// from configuration; the executor dispatches on the concrete variant.
type Step interface {
	// Action returns the step's action tag.
	Action() string
	// Metrics returns the metric names the step requested, nil when the step
	// wants no metrics recorded.
	Metrics() []string
}

// baseStep carries the fields shared by every variant.
type baseStep struct {
	metrics []string
}

func (b baseStep) Metrics() []string { return b.metrics }

// ClickStep clicks the element matching Selector.
type ClickStep struct {
	baseStep
	Selector string
}

func (ClickStep) Action() string { return ActionClick }

// FillStep replaces the value of the element matching Selector with Text.
type FillStep struct {
	baseStep
	Selector string
	Text     string
}

func (FillStep) Action() string { return ActionFill }

// TypeStep focuses the element matching Selector and types Text key by key.
type TypeStep struct {
	baseStep
	Selector string
	Text     string
}

func (TypeStep) Action() string { return ActionType }

// SelectStep chooses the option labelled Value in the element matching
// Selector.
type SelectStep struct {
	baseStep
	Selector string
	Value    string
}

func (SelectStep) Action() string { return ActionSelect }

// ScreenshotStep captures the page into the named PNG file.
type ScreenshotStep struct {
	baseStep
	Name string
}

func (ScreenshotStep) Action() string { return ActionScreenshot }

// WaitStep sleeps for a fixed duration.
type WaitStep struct {
	baseStep
	Duration time.Duration
}

func (WaitStep) Action() string { return ActionWait }

// WaitEventStep blocks until the named event arrives.
type WaitEventStep struct {
	baseStep
	Event   EventType
	Timeout time.Duration
}

func (WaitEventStep) Action() string { return ActionWaitEvent }

// SpeakStep plays a prerecorded utterance into the agent and blocks until
// the page reports speech-end.
type SpeakStep struct {
	baseStep
	File    string
	Timeout time.Duration
}

func (SpeakStep) Action() string { return ActionSpeak }

// ListenStep records the agent's spoken reply and scores it through the
// evaluator. Timeout bounds each of the four event waits individually.
type ListenStep struct {
	baseStep
	Timeout time.Duration
}

func (ListenStep) Action() string { return ActionListen }

// UnknownStep preserves an action tag this build does not understand. The
// executor logs it and moves on, so configs written for newer builds still
// run.
type UnknownStep struct {
	baseStep
	Tag string
}

func (s UnknownStep) Action() string { return s.Tag }

// StepSpec is the loosely-typed on-disk form of a step. Compile turns it
// into a validated variant; configuration loaders call Compile for every
// step so field errors surface before any run begins.
type StepSpec struct {
	Action   string        `yaml:"action"`
	Selector string        `yaml:"selector,omitempty"`
	Text     string        `yaml:"text,omitempty"`
	Value    string        `yaml:"value,omitempty"`
	File     string        `yaml:"file,omitempty"`
	Name     string        `yaml:"name,omitempty"`
	Event    string        `yaml:"event,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Metrics  []string      `yaml:"metrics,omitempty"`
}

// Compile validates the spec and returns the corresponding variant. Unknown
// actions compile successfully into UnknownStep; known actions with missing
// required fields are configuration errors.
func (s StepSpec) Compile() (Step, error) {
	base := baseStep{metrics: s.Metrics}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultEventTimeout
	}

	switch s.Action {
	case ActionClick:
		if s.Selector == "" {
			return nil, fmt.Errorf("%s step requires a selector", s.Action)
		}
		return ClickStep{baseStep: base, Selector: s.Selector}, nil

	case ActionFill:
		if s.Selector == "" {
			return nil, fmt.Errorf("%s step requires a selector", s.Action)
		}
		return FillStep{baseStep: base, Selector: s.Selector, Text: s.Text}, nil

	case ActionType:
		if s.Selector == "" {
			return nil, fmt.Errorf("%s step requires a selector", s.Action)
		}
		return TypeStep{baseStep: base, Selector: s.Selector, Text: s.Text}, nil

	case ActionSelect:
		if s.Selector == "" {
			return nil, fmt.Errorf("%s step requires a selector", s.Action)
		}
		if s.Value == "" {
			return nil, fmt.Errorf("%s step requires a value", s.Action)
		}
		return SelectStep{baseStep: base, Selector: s.Selector, Value: s.Value}, nil

	case ActionScreenshot:
		if s.Name == "" {
			return nil, fmt.Errorf("%s step requires a name", s.Action)
		}
		return ScreenshotStep{baseStep: base, Name: s.Name}, nil

	case ActionWait:
		if s.Duration <= 0 {
			return nil, fmt.Errorf("%s step requires a positive duration", s.Action)
		}
		return WaitStep{baseStep: base, Duration: s.Duration}, nil

	case ActionWaitEvent:
		if s.Event == "" {
			return nil, fmt.Errorf("%s step requires an event", s.Action)
		}
		return WaitEventStep{baseStep: base, Event: EventType(s.Event), Timeout: timeout}, nil

	case ActionSpeak:
		if s.File == "" {
			return nil, fmt.Errorf("%s step requires a file", s.Action)
		}
		return SpeakStep{baseStep: base, File: s.File, Timeout: timeout}, nil

	case ActionListen:
		return ListenStep{baseStep: base, Timeout: timeout}, nil

	case "":
		return nil, fmt.Errorf("step is missing an action")

	default:
		return UnknownStep{baseStep: base, Tag: s.Action}, nil
	}
}

// CompileSteps compiles a whole step list, reporting the index of the first
// invalid step.
func CompileSteps(specs []StepSpec) ([]Step, error) {
	steps := make([]Step, 0, len(specs))
	for i, spec := range specs {
		step, err := spec.Compile()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}
