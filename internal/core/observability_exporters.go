package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// OperationMetrics aggregates the samples recorded for one operation.
type OperationMetrics struct {
	TotalMS float64          `json:"total_ms"`
	Count   int64            `json:"count"`
	Results map[string]int64 `json:"results"`
}

// ExpvarMetricsSnapshot is a point-in-time copy of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationMetrics `json:"operations"`
	RecordedAt time.Time                   `json:"recorded_at"`
}

// ExpvarMetricsRecorder aggregates operation timings and outcomes and
// publishes them through expvar, for deployments without a scrape
// pipeline.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*operationTally
}

type operationTally struct {
	totalMS float64
	count   int64
	results map[string]int64
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and
// publishes it under the supplied name. When name is empty, a unique one
// is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("lorecore_service_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name: name,
		ops:  make(map[string]*operationTally),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make(map[string]OperationMetrics, len(r.ops))
	for op, tally := range r.ops {
		results := make(map[string]int64, len(tally.results))
		for status, count := range tally.results {
			results[status] = count
		}
		ops[op] = OperationMetrics{
			TotalMS: tally.totalMS,
			Count:   tally.count,
			Results: results,
		}
	}

	return ExpvarMetricsSnapshot{
		Operations: ops,
		RecordedAt: time.Now().UTC(),
	}
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}

	r.mu.Lock()
	tally := r.ops[operation]
	if tally == nil {
		tally = &operationTally{results: make(map[string]int64, 2)}
		r.ops[operation] = tally
	}
	tally.totalMS += float64(duration) / float64(time.Millisecond)
	tally.count++
	tally.results[status]++
	r.mu.Unlock()
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to
// the writer. A nil writer keeps spans in memory only.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{
		tracer: t,
		op:     operation,
		start:  time.Now().UTC(),
	}
}

func (t *JSONTraceTracer) record(entry JSONTraceEntry) {
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
	t.mu.Unlock()
}

type jsonTraceSpan struct {
	tracer *JSONTraceTracer
	op     string
	start  time.Time
}

func (s *jsonTraceSpan) End(err error) {
	end := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.op,
		Status:     "success",
		DurationMS: float64(end.Sub(s.start)) / float64(time.Millisecond),
		StartedAt:  s.start,
		EndedAt:    end,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.tracer.record(entry)
}

// LoggingAuditRecorder emits audit entries through the service logger.
type LoggingAuditRecorder struct {
	logger Logger
}

// NewLoggingAuditRecorder constructs an audit recorder backed by a Logger.
func NewLoggingAuditRecorder(logger Logger) *LoggingAuditRecorder {
	if logger == nil {
		logger = NewSlogLogger(nil)
	}
	return &LoggingAuditRecorder{logger: logger}
}

// Record implements AuditRecorder.
func (r *LoggingAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	args := []any{
		"operation", entry.Operation,
		"status", string(entry.Status),
		"project_id", entry.ProjectID,
		"entity_id", entry.EntityID,
		"duration_ms", float64(entry.Duration) / float64(time.Millisecond),
	}
	if entry.Error != "" {
		args = append(args, "error", entry.Error)
		r.logger.Warn("audit", args...)
		return
	}
	r.logger.Info("audit", args...)
}
