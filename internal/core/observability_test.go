package core_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"skylink/internal/core"
	"skylink/pkg/domain"
)

func TestExpvarRecorderCountsOutcomes(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected generated expvar name")
	}
	s := newSession(t, core.WithMetricsRecorder(rec))
	mustRegister(t, s, imgDataset())
	if _, err := s.RegisterDataset(context.Background(), imgDataset()); err == nil {
		t.Fatalf("expected duplicate")
	}
	snap := rec.Snapshot()
	op, ok := snap.Operations["dataset.register"]
	if !ok {
		t.Fatalf("missing register metrics: %+v", snap.Operations)
	}
	if op.Success != 1 || op.Error != 1 {
		t.Fatalf("unexpected counts: %+v", op)
	}
	if op.MaxMS > op.TotalMS {
		t.Fatalf("max exceeds total: %+v", op)
	}
}

func TestPrometheusRecorderRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := core.NewPrometheusMetricsRecorder("", reg)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	if _, err := core.NewPrometheusMetricsRecorder("", reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	s := newSession(t, core.WithMetricsRecorder(rec))
	mustRegister(t, s, imgDataset())

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		if mf.GetName() != "skylink_session_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == "dataset.register" && labels["status"] == "success" && m.GetCounter().GetValue() != 1 {
				t.Fatalf("unexpected counter value %v", m.GetCounter().GetValue())
			}
		}
	}
	if !found["skylink_session_operation_duration_seconds"] || !found["skylink_session_operations_total"] {
		t.Fatalf("missing families: %v", found)
	}
}

func TestJSONTracerRecordsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := core.NewJSONTracer(&buf).ForSession("traced")
	s := newSession(t, core.WithTracer(tracer))
	mustRegister(t, s, imgDataset())
	if err := s.RemoveDataset(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected not found")
	}
	entries := mutationSpans(tracer)
	if len(entries) != 2 {
		t.Fatalf("expected two spans, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("unexpected spans: %+v", entries)
	}
	if entries[0].Session != "traced" {
		t.Fatalf("expected session tag, got %q", entries[0].Session)
	}
	dec := json.NewDecoder(&buf)
	lines := 0
	for dec.More() {
		var entry core.JSONTraceEntry
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode: %v", err)
		}
		lines++
	}
	if lines != len(tracer.Entries()) {
		t.Fatalf("expected every span written, got %d lines", lines)
	}
}

func mutationSpans(tracer *core.JSONTraceTracer) []core.JSONTraceEntry {
	var out []core.JSONTraceEntry
	for _, e := range tracer.Entries() {
		if e.Operation != "reconcile" {
			out = append(out, e)
		}
	}
	return out
}

func TestBatchTracesEachOutermostMutation(t *testing.T) {
	tracer := core.NewJSONTracer(nil)
	s := newSession(t, core.WithTracer(tracer))
	err := s.Batch(context.Background(), func(ctx context.Context) error {
		if _, err := s.RegisterDataset(ctx, imgDataset()); err != nil {
			return err
		}
		return s.AddComponent(ctx, "img", domain.Component{Name: "w", Values: make([]float64, 6)})
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if got := len(mutationSpans(tracer)); got != 2 {
		t.Fatalf("expected one span per outermost mutation, got %d", got)
	}
	if got := len(tracer.Entries()) - 2; got != 1 {
		t.Fatalf("expected a single reconcile after the batch, got %d", got)
	}
}
