package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sentinel errors for event waits. Callers match with errors.Is.
var (
	// ErrTimeout indicates the named event never arrived before the deadline.
	ErrTimeout = errors.New("event wait timed out")
	// ErrCancelled indicates the broker was torn down while the wait was
	// outstanding. It is used only at run teardown.
	ErrCancelled = errors.New("event wait cancelled")
)

// TimeoutError reports a wait that expired, optionally carrying the last
// instrumentation snapshot taken while the wait was outstanding.
type TimeoutError struct {
	EventType EventType
	Timeout   time.Duration
	Snapshot  string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("no %q event within %s", e.EventType, e.Timeout)
	if e.Snapshot != "" {
		msg += "; last snapshot: " + e.Snapshot
	}
	return msg
}

// Unwrap makes errors.Is(err, ErrTimeout) hold for TimeoutError values.
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Snapshotter provides a live view of the page instrumentation (monitored
// elements, transport stats). The broker polls it while waits are
// outstanding in debug mode and embeds its output in timeout failures.
type Snapshotter interface {
	InstrumentationSnapshot(ctx context.Context) (string, error)
}

// BrokerConfig configures a per-run event broker.
type BrokerConfig struct {
	// Debug arms a periodic sampler for every outstanding wait.
	Debug bool

	// SampleInterval is how often the debug sampler pulls a snapshot.
	SampleInterval time.Duration

	// Snapshot is the instrumentation source for debug sampling. May be nil,
	// which disables sampling even in debug mode.
	Snapshot Snapshotter

	// Logger receives sampler output and delivery diagnostics. Defaults to
	// slog.Default when nil.
	Logger *slog.Logger
}

// DefaultBrokerConfig returns the standard broker configuration.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		SampleInterval: 10 * time.Second,
	}
}

// waitResult is the single value settled into a waiter: an event or an error.
type waitResult struct {
	event Event
	err   error
}

// waiter is one pending WaitFor. Settlement happens exactly once, always
// under the broker mutex.
type waiter struct {
	eventType  EventType
	ch         chan waitResult
	settled    bool
	registered time.Time
}

// Broker correlates events arriving asynchronously from the page with
// host-side waiters. Each run owns exactly one Broker; instances are never
// shared across runs. Same-type waiters form a FIFO queue and an incoming
// event resolves only the oldest unresolved waiter of its own type. Events
// with no matching waiter are dropped, never buffered.
type Broker struct {
	cfg    BrokerConfig
	log    *slog.Logger
	mu     sync.Mutex
	queues map[EventType][]*waiter
	closed bool
}

// NewBroker creates a broker with the given configuration.
func NewBroker(cfg BrokerConfig) *Broker {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 10 * time.Second
	}
	return &Broker{
		cfg:    cfg,
		log:    log,
		queues: make(map[EventType][]*waiter),
	}
}

// SetSnapshotter wires the instrumentation source after construction. The
// snapshotter usually only exists once the session is up, which is after the
// broker must already accept events.
func (b *Broker) SetSnapshotter(s Snapshotter) {
	b.mu.Lock()
	b.cfg.Snapshot = s
	b.mu.Unlock()
}

// snapshotter returns the configured instrumentation source, if any.
func (b *Broker) snapshotter() Snapshotter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.Snapshot
}

// Publish delivers an event to the oldest outstanding waiter of the same
// type. It returns true if a waiter was resolved. Events with no matching
// waiter are dropped; after CancelAll, Publish is a no-op.
func (b *Broker) Publish(eventType EventType, payload map[string]any) bool {
	ev := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	q := b.queues[eventType]
	for i, w := range q {
		if w.settled {
			continue
		}
		w.settled = true
		w.ch <- waitResult{event: ev}
		b.queues[eventType] = append(q[:i:i], q[i+1:]...)
		return true
	}

	b.log.Debug("dropping event with no waiter", "event", string(eventType))
	return false
}

// WaitFor blocks until the next event of the given type arrives, the timeout
// elapses, or the broker is torn down. Timeouts fail with an error matching
// ErrTimeout; teardown and context cancellation fail with ErrCancelled. A
// timed-out or cancelled waiter removes itself from the queue.
func (b *Broker) WaitFor(ctx context.Context, eventType EventType, timeout time.Duration) (Event, error) {
	w := &waiter{
		eventType:  eventType,
		ch:         make(chan waitResult, 1),
		registered: time.Now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Event{}, fmt.Errorf("wait for %q: %w", eventType, ErrCancelled)
	}
	b.queues[eventType] = append(b.queues[eventType], w)
	b.mu.Unlock()

	var sampler *waitSampler
	if b.cfg.Debug && b.snapshotter() != nil {
		sampler = b.startSampler(ctx, eventType)
		defer sampler.stop()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-w.ch:
		if res.err != nil {
			return Event{}, fmt.Errorf("wait for %q: %w", eventType, res.err)
		}
		return res.event, nil

	case <-timer.C:
		if ev, settled := b.resign(w); settled {
			// Publish won the race; deliver the event anyway.
			return ev, nil
		}
		terr := &TimeoutError{EventType: eventType, Timeout: timeout}
		if sampler != nil {
			terr.Snapshot = sampler.finalSnapshot(ctx)
		}
		return Event{}, terr

	case <-ctx.Done():
		if ev, settled := b.resign(w); settled {
			return ev, nil
		}
		return Event{}, fmt.Errorf("wait for %q: %w", eventType, ErrCancelled)
	}
}

// resign removes a waiter that gave up (timeout or cancellation). If the
// waiter was settled concurrently by Publish or CancelAll, the settled event
// is returned instead so delivery is never lost.
func (b *Broker) resign(w *waiter) (Event, bool) {
	b.mu.Lock()
	if w.settled {
		b.mu.Unlock()
		res := <-w.ch
		if res.err != nil {
			return Event{}, false
		}
		return res.event, true
	}
	w.settled = true
	q := b.queues[w.eventType]
	for i, cand := range q {
		if cand == w {
			b.queues[w.eventType] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	return Event{}, false
}

// CancelAll immediately fails every outstanding waiter with ErrCancelled and
// turns all subsequent Publish calls into no-ops. It is idempotent.
func (b *Broker) CancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, q := range b.queues {
		for _, w := range q {
			if w.settled {
				continue
			}
			w.settled = true
			w.ch <- waitResult{err: ErrCancelled}
		}
	}
	b.queues = make(map[EventType][]*waiter)
}

// Outstanding reports the number of unresolved waiters for an event type.
func (b *Broker) Outstanding(eventType EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[eventType])
}

// waitSampler periodically logs instrumentation snapshots while one wait is
// outstanding and keeps the latest snapshot for timeout diagnostics.
type waitSampler struct {
	broker *Broker
	done   chan struct{}
	mu     sync.Mutex
	last   string
}

func (b *Broker) startSampler(ctx context.Context, eventType EventType) *waitSampler {
	s := &waitSampler{broker: b, done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(b.cfg.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap, err := b.snapshotter().InstrumentationSnapshot(ctx)
				if err != nil {
					b.log.Debug("instrumentation snapshot failed", "error", err)
					continue
				}
				s.mu.Lock()
				s.last = snap
				s.mu.Unlock()
				b.log.Info("still waiting for event",
					"event", string(eventType),
					"snapshot", snap)
			}
		}
	}()
	return s
}

func (s *waitSampler) stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// finalSnapshot returns a snapshot for embedding in a timeout failure. It
// prefers a fresh pull and falls back to the last sampled value.
func (s *waitSampler) finalSnapshot(ctx context.Context) string {
	if snap, err := s.broker.snapshotter().InstrumentationSnapshot(ctx); err == nil && snap != "" {
		return snap
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
