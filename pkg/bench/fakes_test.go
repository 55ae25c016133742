package bench

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSession records automation calls and lets tests script page-side
// events through the captured emit callback.
type fakeSession struct {
	mu     sync.Mutex
	calls  []string
	emit   EventFunc
	closed bool

	// failOn makes the named method return an error.
	failOn string

	// onPlayAudio, when set, runs in a goroutine after PlayAudio succeeds.
	onPlayAudio func(emit EventFunc)
}

func (s *fakeSession) record(call string) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	fail := s.failOn != "" && call == s.failOn
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("%s failed by test", call)
	}
	return nil
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *fakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) Click(ctx context.Context, selector string) error {
	return s.record("click:" + selector)
}

func (s *fakeSession) Fill(ctx context.Context, selector, text string) error {
	return s.record("fill:" + selector)
}

func (s *fakeSession) Type(ctx context.Context, selector, text string) error {
	return s.record("type:" + selector)
}

func (s *fakeSession) Select(ctx context.Context, selector, value string) error {
	return s.record("select:" + selector)
}

func (s *fakeSession) Screenshot(ctx context.Context, path string) error {
	return s.record("screenshot:" + path)
}

func (s *fakeSession) PlayAudio(ctx context.Context, file string) error {
	if err := s.record("play:" + file); err != nil {
		return err
	}
	if s.onPlayAudio != nil {
		go s.onPlayAudio(s.emit)
	}
	return nil
}

func (s *fakeSession) StartRecording(ctx context.Context) error {
	return s.record("startRecording")
}

func (s *fakeSession) StopRecording(ctx context.Context) error {
	return s.record("stopRecording")
}

func (s *fakeSession) InstrumentationSnapshot(ctx context.Context) (string, error) {
	return `{"monitored":[]}`, nil
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	return s.record("navigate:" + url)
}

func (s *fakeSession) WaitIdle(ctx context.Context) error {
	return s.record("waitIdle")
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.calls = append(s.calls, "close")
	return nil
}

// fakeLauncher hands out fresh fakeSessions and tracks how many sessions
// exist concurrently.
type fakeLauncher struct {
	mu       sync.Mutex
	sessions []*fakeSession
	live     int
	maxLive  int

	// launchErr makes NewSession fail.
	launchErr error
	// configure customizes each session before it is returned.
	configure func(*fakeSession)
}

func (l *fakeLauncher) NewSession(ctx context.Context, onEvent EventFunc) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	s := &fakeSession{emit: onEvent}
	if l.configure != nil {
		l.configure(s)
	}
	l.sessions = append(l.sessions, s)
	l.live++
	if l.live > l.maxLive {
		l.maxLive = l.live
	}
	return &trackedSession{fakeSession: s, launcher: l}, nil
}

func (l *fakeLauncher) Sessions() []*fakeSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*fakeSession, len(l.sessions))
	copy(out, l.sessions)
	return out
}

func (l *fakeLauncher) MaxLive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxLive
}

// trackedSession decrements the launcher's live count on Close.
type trackedSession struct {
	*fakeSession
	launcher *fakeLauncher
	once     sync.Once
}

func (s *trackedSession) Close() error {
	s.once.Do(func() {
		s.launcher.mu.Lock()
		s.launcher.live--
		s.launcher.mu.Unlock()
	})
	return s.fakeSession.Close()
}

// publishWhenWaiting publishes the event as soon as a waiter of its type
// registers, mirroring how the page only answers an outstanding expectation.
func publishWhenWaiting(t *testing.T, b *Broker, typ EventType, payload map[string]any) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if b.Outstanding(typ) > 0 {
				b.Publish(typ, payload)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
}
