package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// RunKey identifies one (application, scenario, repetition) triple.
type RunKey struct {
	App        string
	Scenario   string
	Repetition int
}

func (k RunKey) String() string {
	return fmt.Sprintf("%s/%s#%d", k.App, k.Scenario, k.Repetition)
}

// MetricsSink accumulates per-step timing and score data. Independent runs
// call it concurrently, so implementations must make concurrent appends safe.
type MetricsSink interface {
	BeginRun(key RunKey, runID string)
	RecordStepMetric(key RunKey, stepIndex int, action, name string, value float64)
	EndRun(key RunKey, runID string, success bool)
}

// CSVSink writes one row per recorded metric. All methods serialize on an
// internal mutex.
type CSVSink struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewCSVSink creates (or truncates) the report file and writes the header.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating report file: %w", err)
	}
	w := csv.NewWriter(f)
	header := []string{"app", "scenario", "repetition", "step", "action", "metric", "value"}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing report header: %w", err)
	}
	return &CSVSink{f: f, w: w}, nil
}

// BeginRun is a no-op for the CSV format; rows are self-describing.
func (s *CSVSink) BeginRun(key RunKey, runID string) {}

// RecordStepMetric appends one metric row.
func (s *CSVSink) RecordStepMetric(key RunKey, stepIndex int, action, name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Write([]string{
		key.App,
		key.Scenario,
		strconv.Itoa(key.Repetition),
		strconv.Itoa(stepIndex),
		action,
		name,
		strconv.FormatFloat(value, 'f', -1, 64),
	})
}

// EndRun flushes rows buffered for the run.
func (s *CSVSink) EndRun(key RunKey, runID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
}

// Close flushes and closes the report file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return fmt.Errorf("flushing report: %w", err)
	}
	return s.f.Close()
}

// MetricRecord is one captured metric, kept by MemorySink for assertions.
type MetricRecord struct {
	Key       RunKey
	StepIndex int
	Action    string
	Name      string
	Value     float64
}

// MemorySink collects metrics in memory. It is safe for concurrent use and
// intended for tests.
type MemorySink struct {
	mu      sync.Mutex
	began   []RunKey
	ended   []RunKey
	records []MetricRecord
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) BeginRun(key RunKey, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.began = append(s.began, key)
}

func (s *MemorySink) RecordStepMetric(key RunKey, stepIndex int, action, name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, MetricRecord{
		Key:       key,
		StepIndex: stepIndex,
		Action:    action,
		Name:      name,
		Value:     value,
	})
}

func (s *MemorySink) EndRun(key RunKey, runID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, key)
}

// Records returns a copy of all captured metrics.
func (s *MemorySink) Records() []MetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MetricRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Began returns the keys passed to BeginRun, in call order.
func (s *MemorySink) Began() []RunKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunKey, len(s.began))
	copy(out, s.began)
	return out
}

// Ended returns the keys passed to EndRun, in call order.
func (s *MemorySink) Ended() []RunKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunKey, len(s.ended))
	copy(out, s.ended)
	return out
}
