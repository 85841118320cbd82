// Package logger owns the process-wide zap logger. It starts as a no-op so
// packages can log before Initialize runs, and hands out component-scoped
// children for the session, stores, and workers.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global sugared logger.
	Logger *zap.SugaredLogger
	// JSONOutput records whether structured JSON output is active.
	JSONOutput bool
)

func init() {
	Logger = zap.NewNop().Sugar()
}

// Options controls logger construction.
type Options struct {
	JSON  bool
	Level string
}

// Initialize replaces the global logger. Console output goes to stderr so
// command output on stdout stays machine readable.
func Initialize(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	JSONOutput = opts.JSON

	var zl *zap.Logger
	if opts.JSON {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		zl, err = cfg.Build()
		if err != nil {
			return err
		}
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zl = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stderr),
			level,
		))
	}
	Logger = zl.Sugar()
	return nil
}

// ParseLevel maps a textual level to a zap level; empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel, err
	}
	return lvl, nil
}

// ComponentLogger returns a child logger tagged with the component name.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.With(FieldComponent, name)
}

// Sync flushes buffered entries; errors from syncing terminals are ignored.
func Sync() {
	_ = Logger.Sync()
}
