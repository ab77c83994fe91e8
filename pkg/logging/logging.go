// Package logging provides the logger injected into the driver, the sampler
// and the scale engine.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal leveled logger used across the module.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NewDefault returns a zap-backed Logger writing to stderr. Debug enables
// debug-level output and the development encoder.
func NewDefault(debug bool) Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = !debug

	l, err := cfg.Build()
	if err != nil {
		return Null{}
	}
	return l.Sugar()
}

// FromZap adapts an existing zap logger.
func FromZap(l *zap.Logger) Logger {
	if l == nil {
		return Null{}
	}
	return l.Sugar()
}

// Named returns a child logger with name appended when l is zap-backed.
func Named(l Logger, name string) Logger {
	if s, ok := l.(*zap.SugaredLogger); ok {
		return s.Named(name)
	}
	return l
}

// Null discards everything.
type Null struct{}

func (Null) Debugf(string, ...any) {}
func (Null) Infof(string, ...any)  {}
func (Null) Warnf(string, ...any)  {}
func (Null) Errorf(string, ...any) {}

var (
	_ Logger = Null{}
	_ Logger = (*zap.SugaredLogger)(nil)
)
