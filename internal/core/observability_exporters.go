package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	expvarSeq   uint64
	expvarMu    sync.Mutex
	expvarNamed = map[string]*ExpvarMetricsRecorder{}
)

// newExpvarOnce returns the recorder already published under name, if any,
// since expvar rejects duplicate names.
func newExpvarOnce(name string) *ExpvarMetricsRecorder {
	if name == "" {
		return NewExpvarMetricsRecorder("")
	}
	expvarMu.Lock()
	defer expvarMu.Unlock()
	if rec, ok := expvarNamed[name]; ok {
		return rec
	}
	rec := NewExpvarMetricsRecorder(name)
	expvarNamed[name] = rec
	return rec
}

// ExpvarMetricsRecorder publishes per-operation latency and outcome counters
// through expvar. Durations are totals in milliseconds; MaxMS tracks the
// slowest observation, which for reconcile passes is usually the number that
// matters.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*opStats
}

type opStats struct {
	totalMS float64
	maxMS   float64
	success int64
	failure int64
}

// OperationMetrics is the exported view of one operation.
type OperationMetrics struct {
	TotalMS float64 `json:"duration_ms_total"`
	MaxMS   float64 `json:"duration_ms_max"`
	Success int64   `json:"success"`
	Error   int64   `json:"error"`
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	Operations map[string]OperationMetrics `json:"operations"`
	RecordedAt time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, generating a
// unique name when empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("skylink_session_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*opStats)}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot returns a copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationMetrics, len(r.ops))
	for op, st := range r.ops {
		out[op] = OperationMetrics{TotalMS: st.totalMS, MaxMS: st.maxMS, Success: st.success, Error: st.failure}
	}
	return ExpvarMetricsSnapshot{Operations: out, RecordedAt: time.Now().UTC()}
}

// Observe records an operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	st, ok := r.ops[operation]
	if !ok {
		st = &opStats{}
		r.ops[operation] = st
	}
	st.totalMS += ms
	if ms > st.maxMS {
		st.maxMS = ms
	}
	if success {
		st.success++
	} else {
		st.failure++
	}
	r.mu.Unlock()
}

// PrometheusMetricsRecorder exports operation latency as a histogram and
// outcomes as a counter.
type PrometheusMetricsRecorder struct {
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers its collectors with reg. A nil reg
// uses a private registry, which keeps tests independent.
func NewPrometheusMetricsRecorder(namespace string, reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if namespace == "" {
		namespace = "skylink"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	rec := &PrometheusMetricsRecorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operation_duration_seconds",
			Help:      "Latency of session operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session operations by outcome.",
		}, []string{"operation", "status"}),
	}
	if err := reg.Register(rec.duration); err != nil {
		return nil, err
	}
	if err := reg.Register(rec.results); err != nil {
		return nil, err
	}
	return rec, nil
}

// Observe records an operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// JSONTraceEntry is one span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Session    string    `json:"session,omitempty"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and retains them for inspection.
type JSONTraceTracer struct {
	session string
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer writing to w; a nil writer only retains.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc}
}

// ForSession tags subsequent spans with a session name.
func (t *JSONTraceTracer) ForSession(name string) *JSONTraceTracer {
	t.mu.Lock()
	t.session = name
	t.mu.Unlock()
	return t
}

// Entries returns recorded spans ordered by start time.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	entry := JSONTraceEntry{
		Operation: s.operation,
		Status:    "success",
		StartedAt: s.started,
		EndedAt:   time.Now().UTC(),
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	entry.DurationMS = float64(entry.EndedAt.Sub(s.started)) / float64(time.Millisecond)

	s.tracer.mu.Lock()
	entry.Session = s.tracer.session
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
