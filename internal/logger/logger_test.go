package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGlobalLoggerIsUsableBeforeInitialize(_ *testing.T) {
	Logger.Infow("before init", FieldComponent, "test")
	ComponentLogger("test").Debugw("child")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestInitializeConsoleAndJSON(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev; JSONOutput = false })
	if err := Initialize(Options{Level: "debug"}); err != nil {
		t.Fatalf("console init: %v", err)
	}
	if JSONOutput {
		t.Fatalf("console mode must not flag json")
	}
	if err := Initialize(Options{JSON: true, Level: "warn"}); err != nil {
		t.Fatalf("json init: %v", err)
	}
	if !JSONOutput {
		t.Fatalf("json mode flag not set")
	}
	if err := Initialize(Options{Level: "nope"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestAdapterForwardsKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewAdapter(zap.New(core).Sugar())
	a.Debug("d", FieldDataset, "img")
	a.Info("i")
	a.Warn("w")
	a.Error("e", FieldError, "boom")
	if logs.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", logs.Len())
	}
	first := logs.All()[0]
	if first.ContextMap()[FieldDataset] != "img" {
		t.Fatalf("expected dataset field, got %v", first.ContextMap())
	}
}
