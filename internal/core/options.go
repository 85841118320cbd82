package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface used by the session. It matches
// logger.Adapter, which forwards to zap.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes the outcome and latency of session operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around session operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Clock supplies timestamps for diagnostics and snapshots.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock. A nil ClockFunc reports time.Now.
type ClockFunc func() time.Time

// Now returns the current time in UTC.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}

// SessionOption customises a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	name                string
	clock               Clock
	logger              Logger
	metrics             MetricsRecorder
	tracer              Tracer
	autoReconcile       bool
	diagnosticsCapacity int
	diagnosticSink      func(Diagnostic)
	runnerConcurrency   int
}

const (
	defaultDiagnosticsCapacity = 256
	defaultRunnerConcurrency   = 4
)

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		name:                "default",
		clock:               ClockFunc(nil),
		logger:              noopLogger{},
		metrics:             noopMetrics{},
		tracer:              noopTracer{},
		autoReconcile:       true,
		diagnosticsCapacity: defaultDiagnosticsCapacity,
		runnerConcurrency:   defaultRunnerConcurrency,
	}
}

// WithName labels the session in logs and snapshots.
func WithName(name string) SessionOption {
	return func(o *sessionOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) SessionOption {
	return func(o *sessionOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) SessionOption {
	return func(o *sessionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) SessionOption {
	return func(o *sessionOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) SessionOption {
	return func(o *sessionOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithAutoReconcile toggles reconciliation after every outermost mutation.
func WithAutoReconcile(enabled bool) SessionOption {
	return func(o *sessionOptions) { o.autoReconcile = enabled }
}

// WithDiagnosticsCapacity bounds the in-memory diagnostics ring.
func WithDiagnosticsCapacity(n int) SessionOption {
	return func(o *sessionOptions) {
		if n > 0 {
			o.diagnosticsCapacity = n
		}
	}
}

// WithDiagnosticSink receives every diagnostic as it is reported.
func WithDiagnosticSink(fn func(Diagnostic)) SessionOption {
	return func(o *sessionOptions) { o.diagnosticSink = fn }
}

// WithRunnerConcurrency limits concurrent off-thread computations.
func WithRunnerConcurrency(n int) SessionOption {
	return func(o *sessionOptions) {
		if n > 0 {
			o.runnerConcurrency = n
		}
	}
}
