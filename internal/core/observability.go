package core

import (
	"context"
	"log/slog"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Logger is the minimal leveled logging surface the service emits to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type slogLogger struct{ l *slog.Logger }

// NewSlogLogger adapts a *slog.Logger to the service Logger interface.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span per service operation. Implementations must tolerate
// End being called exactly once per span.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan finalizes a span started by a Tracer.
type TraceSpan interface {
	End(err error)
}

// AuditStatus classifies the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes a completed mutating operation.
type AuditEntry struct {
	Operation string        `json:"operation"`
	Status    AuditStatus   `json:"status"`
	ProjectID string        `json:"project_id,omitempty"`
	EntityID  string        `json:"entity_id,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// AuditRecorder receives audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type serviceOptions struct {
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:  systemClock{},
		logger: NewSlogLogger(nil),
	}
}

// ServiceOption customizes Service construction.
type ServiceOption func(*serviceOptions)

// WithClock overrides the time source.
func WithClock(c Clock) ServiceOption {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder attaches a metrics sink.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithTracer attaches a tracing sink.
func WithTracer(t Tracer) ServiceOption {
	return func(o *serviceOptions) { o.tracer = t }
}

// WithAuditRecorder attaches an audit sink for mutating operations.
func WithAuditRecorder(a AuditRecorder) ServiceOption {
	return func(o *serviceOptions) { o.audit = a }
}
