// Package telemetry holds the observability hooks shared by the SDK client and
// the captcha layer. Callers plug in their own logger or metrics sink; nothing
// here imports one.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Hooks expose observability callbacks without forcing dependencies on the caller.
type Hooks struct {
	// OnHTTPRequest fires before the HTTP request is sent.
	OnHTTPRequest func(ctx context.Context, req *http.Request)
	// OnHTTPResponse fires after the request completes (even when err != nil).
	OnHTTPResponse func(ctx context.Context, req *http.Request, resp *http.Response, err error, latency time.Duration)
	// OnLogEntry allows callers to capture SDK log events.
	OnLogEntry func(ctx context.Context, entry LogEntry)
	// OnMetric records lightweight counters/gauges.
	OnMetric func(ctx context.Context, metric Metric)
}

// LogLevel encodes the severity for log hooks.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry captures structured log details for SDK consumers.
type LogEntry struct {
	Level   LogLevel
	Message string
	Fields  map[string]any
}

// Metric represents a single observability datapoint.
type Metric struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// Log emits a log entry when OnLogEntry is set.
func (h Hooks) Log(ctx context.Context, level LogLevel, msg string, fields map[string]any) {
	if h.OnLogEntry == nil {
		return
	}
	h.OnLogEntry(ctx, LogEntry{Level: level, Message: msg, Fields: fields})
}

// Metric emits a datapoint when OnMetric is set.
func (h Hooks) Metric(ctx context.Context, name string, value float64, labels map[string]string) {
	if h.OnMetric == nil {
		return
	}
	h.OnMetric(ctx, Metric{Name: name, Value: value, Labels: labels})
}

// Recorder collects log entries and metrics in memory. Tests use it to assert
// on what the SDK reported.
type Recorder struct {
	mu      sync.Mutex
	entries []LogEntry
	metrics []Metric
}

// Hooks returns hooks that append into the recorder.
func (r *Recorder) Hooks() Hooks {
	return Hooks{
		OnLogEntry: func(_ context.Context, entry LogEntry) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.entries = append(r.entries, entry)
		},
		OnMetric: func(_ context.Context, metric Metric) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.metrics = append(r.metrics, metric)
		},
	}
}

// Entries returns a copy of the recorded log entries.
func (r *Recorder) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Metrics returns a copy of the recorded metrics.
func (r *Recorder) Metrics() []Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Metric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// HasMessage reports whether any entry with the given message was recorded.
func (r *Recorder) HasMessage(msg string) bool {
	for _, e := range r.Entries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}
