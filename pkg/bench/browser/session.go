// Package browser implements the automation capability on top of Rod. It
// launches Chrome with fake-media flags, injects the page instrumentation,
// and forwards page-emitted lifecycle events to the per-run event broker.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/voicebench/voicebench/pkg/bench"
)

// emitFuncName is the host function the instrumentation script calls with
// every page-side event.
const emitFuncName = "__vbEmit"

// stableWindow is how long the DOM and network must stay quiet before a
// freshly navigated page counts as settled.
const stableWindow = time.Second

// Config configures Chrome launch options for benchmark sessions.
type Config struct {
	// Headless runs Chrome without a window (default true).
	Headless bool
	// Timeout bounds individual page operations (default 30s).
	Timeout time.Duration
	// InstrumentJS overrides the built-in instrumentation script.
	InstrumentJS string
}

// DefaultConfig returns sensible defaults for benchmarking.
func DefaultConfig() Config {
	return Config{
		Headless: true,
		Timeout:  30 * time.Second,
	}
}

// Launcher creates one fresh Chrome instance per session. It implements
// bench.Launcher.
type Launcher struct {
	cfg Config
	log *slog.Logger
}

// NewLauncher creates a session launcher.
func NewLauncher(cfg Config, log *slog.Logger) *Launcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.InstrumentJS == "" {
		cfg.InstrumentJS = instrumentJS
	}
	return &Launcher{cfg: cfg, log: log}
}

// NewSession launches a dedicated Chrome with fake media streams, auto-granted
// permissions, and gesture-free autoplay, then wires the instrumentation
// callback into onEvent. The session owns the browser process exclusively.
func (l *Launcher) NewSession(ctx context.Context, onEvent bench.EventFunc) (bench.Session, error) {
	lc := launcher.New().
		Headless(l.cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("use-fake-device-for-media-stream").
		Set("use-fake-ui-for-media-stream").
		Set("autoplay-policy", "no-user-gesture-required")

	url, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	b := rod.New().ControlURL(url).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	s := &session{
		browser: b,
		page:    page,
		timeout: l.cfg.Timeout,
		log:     l.log,
	}

	// The exposed function is the sole channel by which page-side facts
	// reach the host. Install it and the instrumentation before navigation
	// so no early event is missed.
	_, err = page.Expose(emitFuncName, func(arg gson.JSON) (interface{}, error) {
		eventType := arg.Get("type").Str()
		payload, _ := arg.Get("payload").Val().(map[string]any)
		if eventType == "" {
			l.log.Debug("ignoring malformed page event", "raw", arg.String())
			return nil, nil
		}
		onEvent(bench.EventType(eventType), payload)
		return nil, nil
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to expose event callback: %w", err)
	}

	if _, err := page.EvalOnNewDocument(l.cfg.InstrumentJS); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to install instrumentation: %w", err)
	}

	return s, nil
}

// session is one exclusive Chrome page. It implements bench.Session.
type session struct {
	browser *rod.Browser
	page    *rod.Page
	timeout time.Duration
	log     *slog.Logger
}

// Navigate opens the target URL with the session timeout applied.
func (s *session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	page.CancelTimeout()
	return nil
}

// WaitIdle blocks until the DOM and network have been quiet for stableWindow,
// bounding the race between page load and the first step. The session timeout
// caps the wait as a whole so a page that never settles fails the run instead
// of hanging it.
func (s *session) WaitIdle(ctx context.Context) error {
	page := s.page.Context(ctx).Timeout(s.timeout)
	defer page.CancelTimeout()
	if err := page.WaitStable(stableWindow); err != nil {
		return fmt.Errorf("waiting for page to settle: %w", err)
	}
	return nil
}

func (s *session) element(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := s.page.Context(ctx).Timeout(s.timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el, nil
}

// Click clicks the element matching the selector.
func (s *session) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

// Fill replaces the element's value with text.
func (s *session) Fill(ctx context.Context, selector, text string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("filling %q: %w", selector, err)
	}
	return nil
}

// Type focuses the element and inserts text through the input pipeline,
// triggering the key handlers Fill would skip.
func (s *session) Type(ctx context.Context, selector, text string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focusing %q: %w", selector, err)
	}
	if err := s.page.Context(ctx).InsertText(text); err != nil {
		return fmt.Errorf("typing into %q: %w", selector, err)
	}
	return nil
}

// Select chooses the option with the given visible text.
func (s *session) Select(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("selecting %q in %q: %w", value, selector, err)
	}
	return nil
}

// Screenshot captures the viewport into a PNG file.
func (s *session) Screenshot(ctx context.Context, path string) error {
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("capturing screenshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing screenshot %s: %w", path, err)
	}
	return nil
}

// PlayAudio asks the instrumentation to play an utterance file into the
// agent. Completion is reported back through the speech-end event.
func (s *session) PlayAudio(ctx context.Context, file string) error {
	_, err := s.page.Context(ctx).Eval(`(file) => window.__vbSpeak(file)`, file)
	if err != nil {
		return fmt.Errorf("triggering playback of %s: %w", file, err)
	}
	return nil
}

// StartRecording arms the page-side recorder.
func (s *session) StartRecording(ctx context.Context) error {
	_, err := s.page.Context(ctx).Eval(`() => window.__vbStartRecording()`)
	if err != nil {
		return fmt.Errorf("starting recorder: %w", err)
	}
	return nil
}

// StopRecording finalizes the page-side capture. The audio arrives through
// the recording-complete event, not this call.
func (s *session) StopRecording(ctx context.Context) error {
	_, err := s.page.Context(ctx).Eval(`() => window.__vbStopRecording()`)
	if err != nil {
		return fmt.Errorf("stopping recorder: %w", err)
	}
	return nil
}

// InstrumentationSnapshot pulls the live debug snapshot the instrumentation
// maintains: monitored elements and transport stats, as JSON.
func (s *session) InstrumentationSnapshot(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(
		`() => window.__vbSnapshot ? JSON.stringify(window.__vbSnapshot()) : "{}"`)
	if err != nil {
		return "", fmt.Errorf("pulling instrumentation snapshot: %w", err)
	}
	return res.Value.Str(), nil
}

// Close releases the page and the browser process. Always call this (via the
// controller's Closing phase) to prevent orphaned Chrome processes.
func (s *session) Close() error {
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}
