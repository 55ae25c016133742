package bench

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Combination is one (application, scenario) pairing to benchmark. Steps is
// the application preamble already concatenated with the scenario steps.
type Combination struct {
	App      string
	Scenario string
	URL      string
	Steps    []Step
}

// SchedulerConfig controls fan-out.
type SchedulerConfig struct {
	// Repeat is how many times each combination runs. Values below 1 are
	// treated as 1.
	Repeat int
	// Concurrency bounds the worker pool. Values below 1 are treated as 1;
	// the pool never exceeds the total run count.
	Concurrency int
	// Controller carries per-run controller options.
	Controller ControllerConfig
}

// Summary aggregates a whole batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []RunResult
}

// Failures returns the failed results in queue order.
func (s Summary) Failures() []RunResult {
	var out []RunResult
	for _, r := range s.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Scheduler fans run combinations out across a bounded worker pool. Workers
// pull the next unclaimed run index from a shared cursor, so early finishers
// immediately take more work instead of idling behind a static partition.
// Workers share nothing but the cursor and the metrics sink; each run gets a
// fresh controller, session, and broker.
type Scheduler struct {
	launcher Launcher
	sink     MetricsSink
	eval     Evaluator
	log      *slog.Logger
	cfg      SchedulerConfig
}

// NewScheduler creates a scheduler over the given automation launcher.
func NewScheduler(launcher Launcher, sink MetricsSink, eval Evaluator, log *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Repeat < 1 {
		cfg.Repeat = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scheduler{
		launcher: launcher,
		sink:     sink,
		eval:     eval,
		log:      log,
		cfg:      cfg,
	}
}

// BuildQueue expands combinations into the full, deterministically ordered
// run queue: combinations in input order, repetitions nested 0..Repeat-1.
func (s *Scheduler) BuildQueue(combos []Combination) []ScenarioRun {
	queue := make([]ScenarioRun, 0, len(combos)*s.cfg.Repeat)
	for _, c := range combos {
		for rep := 0; rep < s.cfg.Repeat; rep++ {
			queue = append(queue, ScenarioRun{
				Key:   RunKey{App: c.App, Scenario: c.Scenario, Repetition: rep},
				URL:   c.URL,
				Steps: c.Steps,
			})
		}
	}
	return queue
}

// Workers returns the pool size for a queue of the given length.
func (s *Scheduler) Workers(totalRuns int) int {
	if s.cfg.Concurrency < totalRuns {
		return s.cfg.Concurrency
	}
	return totalRuns
}

// Run executes every queued run exactly once and aggregates the outcomes.
// A failed run is recorded and never retried; it does not cancel siblings.
// Cancelling ctx is the process-level teardown path: outstanding event waits
// fail with ErrCancelled and each run's Closing still releases its session.
func (s *Scheduler) Run(ctx context.Context, combos []Combination) Summary {
	queue := s.BuildQueue(combos)
	total := len(queue)
	results := make([]RunResult, total)

	workers := s.Workers(total)
	s.log.Info("starting benchmark batch", "runs", total, "workers", workers)

	var cursor atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				idx := int(cursor.Add(1)) - 1
				if idx >= total {
					return
				}
				results[idx] = s.executeOne(ctx, worker, queue[idx])
			}
		}(i)
	}
	wg.Wait()

	summary := Summary{Total: total, Results: results}
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// executeOne runs a single queue entry under a fresh controller, converting
// worker panics into failed results so one bad run never kills the pool.
func (s *Scheduler) executeOne(ctx context.Context, worker int, run ScenarioRun) (result RunResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("run panicked", "run", run.Key.String(), "worker", worker, "panic", r)
			result = RunResult{
				Key: run.Key,
				Err: fmt.Errorf("run panicked: %v", r),
			}
		}
	}()

	ctrl := NewController(s.launcher, s.sink, s.eval, s.log.With("worker", worker), s.cfg.Controller)
	return ctrl.Execute(ctx, run)
}
