package logger

import "go.uber.org/zap"

// Standard field names for structured logging.
const (
	FieldComponent  = "component"
	FieldPlugin     = "plugin"
	FieldOperation  = "operation"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldStatus     = "status"
	FieldCount      = "count"

	FieldSession    = "session"
	FieldDataset    = "dataset"
	FieldSubset     = "subset"
	FieldLink       = "link"
	FieldViewer     = "viewer"
	FieldLayer      = "layer"
	FieldEvent      = "event"
	FieldSeq        = "seq"
	FieldGeneration = "generation"
	FieldDriver     = "driver"
	FieldKey        = "key"
)

// Adapter exposes a sugared logger through the message/key-value shape used
// by the engine's Logger interface.
type Adapter struct {
	L *zap.SugaredLogger
}

// NewAdapter wraps l, falling back to the global logger when nil.
func NewAdapter(l *zap.SugaredLogger) Adapter {
	if l == nil {
		l = Logger
	}
	return Adapter{L: l}
}

func (a Adapter) Debug(msg string, kv ...any) { a.L.Debugw(msg, kv...) }
func (a Adapter) Info(msg string, kv ...any)  { a.L.Infow(msg, kv...) }
func (a Adapter) Warn(msg string, kv ...any)  { a.L.Warnw(msg, kv...) }
func (a Adapter) Error(msg string, kv ...any) { a.L.Errorw(msg, kv...) }
