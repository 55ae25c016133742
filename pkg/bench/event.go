// Package bench implements the core benchmarking engine for conversational
// voice agents running inside a browser page: the per-run event broker, the
// sequential step executor, the run controller, and the bounded-concurrency
// benchmark scheduler.
package bench

import "time"

// EventType identifies an asynchronous fact reported by the instrumented page.
type EventType string

const (
	// EventAudioStart fires when playback begins on a monitored audio element.
	EventAudioStart EventType = "audio-start"
	// EventAudioStop fires when playback stops on a monitored audio element.
	EventAudioStop EventType = "audio-stop"
	// EventSpeechEnd fires when a synthesized utterance finishes playing.
	EventSpeechEnd EventType = "speech-end"
	// EventRecordingStart fires when the local recorder begins capturing.
	EventRecordingStart EventType = "recording-start"
	// EventRecordingComplete fires when the local recorder has finalized its
	// capture. The payload carries the base64 audio and its format metadata.
	EventRecordingComplete EventType = "recording-complete"
)

// Event is a single named fact emitted by the page, timestamped on arrival
// at the host. The same type may recur many times within one run.
type Event struct {
	Type      EventType
	Payload   map[string]any
	Timestamp time.Time
}

// PayloadString returns the named payload field as a string, or "" when the
// field is absent or not a string.
func (e Event) PayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// EventFunc receives events from an automation session's page callback.
// Implementations must be safe to call from the automation layer's goroutines.
type EventFunc func(eventType EventType, payload map[string]any)
