// Package logging wraps zap into the fluent, component-tagged, redacting
// logger shape the teacher's telemetry package used, but backed by a real
// structured-logging library rather than a hand-rolled JSON writer. One
// *Logger is constructed per process and threaded through every subsystem
// via constructor injection — never reached through a package global.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"reach/core/internal/reacherr"
)

// Logger is a thin, redaction-aware facade over *zap.Logger.
type Logger struct {
	z         *zap.Logger
	component string
}

// Config controls how the root logger is constructed.
type Config struct {
	Level     string // debug|info|warn|error
	Component string
	Writer    zapcore.WriteSyncer // defaults to os.Stderr
	JSON      bool                // false uses a console encoder, useful for local dev
}

// New builds the root Logger for the process.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)
	writer := cfg.Writer
	if writer == nil {
		writer = zapcore.AddSync(os.Stderr)
	}

	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, writer, level)
	z := zap.New(core)
	if cfg.Component != "" {
		z = z.With(zap.String("component", cfg.Component))
	}
	return &Logger{z: z, component: cfg.Component}
}

// NewNop returns a Logger that discards everything — used as a default
// in constructors and in tests that don't care about log output.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func parseLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithComponent returns a child logger tagged with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{z: l.z.With(zap.String("component", component)), component: component}
}

// WithFields returns a child logger carrying additional structured fields.
// A field whose key name suggests a secret is masked (see redact); the
// values themselves are not pattern-matched the way journal payloads are.
func (l *Logger) WithFields(fields map[string]string) *Logger {
	zfs := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zfs = append(zfs, zap.String(k, redact(k, v)))
	}
	return &Logger{z: l.z.With(zfs...), component: l.component}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }

// Error logs at error level, attaching the reacherr.Code when err carries one.
func (l *Logger) Error(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err), zap.String("error_code", string(reacherr.CodeOf(err))))
	}
	l.z.Error(msg, fields...)
}

// Sync flushes buffered log entries; call before process exit.
func (l *Logger) Sync() error { return l.z.Sync() }

// Zap exposes the underlying *zap.Logger for callers that need it directly
// (e.g. to pass into a third-party library expecting a *zap.Logger).
func (l *Logger) Zap() *zap.Logger { return l.z }

var sensitiveKeyMarkers = []string{"token", "secret", "password", "credential", "key"}

// redact applies the key-name half of the journal's payload redaction to
// log fields: a key whose name suggests sensitivity is fully masked; every
// other value passes through unchanged, whatever its shape.
func redact(key, value string) string {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(lower, marker) {
			return "[REDACTED]"
		}
	}
	return value
}
