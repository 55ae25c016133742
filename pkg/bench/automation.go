package bench

import "context"

// Automation is the page-interaction capability consumed by the executor.
// The browser package provides the production implementation; tests provide
// fakes.
type Automation interface {
	// Click clicks the element matching the selector.
	Click(ctx context.Context, selector string) error
	// Fill replaces the value of the element matching the selector.
	Fill(ctx context.Context, selector, text string) error
	// Type focuses the element matching the selector and types the text.
	Type(ctx context.Context, selector, text string) error
	// Select chooses the option labelled value in the matching element.
	Select(ctx context.Context, selector, value string) error
	// Screenshot captures the page into the named PNG file.
	Screenshot(ctx context.Context, path string) error

	// PlayAudio triggers playback of a prerecorded utterance into the agent.
	// Completion is observed via the speech-end event, not the return.
	PlayAudio(ctx context.Context, file string) error
	// StartRecording arms the page's local recorder.
	StartRecording(ctx context.Context) error
	// StopRecording finalizes the capture; the page reports
	// recording-complete with the audio payload.
	StopRecording(ctx context.Context) error

	Snapshotter
}

// Session is one exclusive browser session: an Automation plus its
// lifecycle. Sessions are never reused across runs.
type Session interface {
	Automation

	// Navigate opens the target URL.
	Navigate(ctx context.Context, url string) error
	// WaitIdle blocks until the page and network have settled, bounding the
	// race between load and the first step.
	WaitIdle(ctx context.Context) error
	// Close releases the session and the underlying browser.
	Close() error
}

// Launcher produces fresh sessions. The onEvent callback is the sole channel
// by which browser-side facts reach the host; the session must invoke it for
// every instrumentation event the page emits.
type Launcher interface {
	NewSession(ctx context.Context, onEvent EventFunc) (Session, error)
}
