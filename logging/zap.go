// Package logging adapts go.uber.org/zap to servicebus.Logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coregx/servicebus"
)

var _ servicebus.Logger = (*ZapLogger)(nil)

// ZapLogger implements servicebus.Logger on a zap logger.
// Trace output is written at debug level.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps l. A nil l yields a no-op logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Named returns a logger for a named component, for example a subscriber's queue.
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.Named(name)}
}

// Tracef implements servicebus.Logger.Tracef.
func (l *ZapLogger) Tracef(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Debugf implements servicebus.Logger.Debugf.
func (l *ZapLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Infof implements servicebus.Logger.Infof.
func (l *ZapLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warnf implements servicebus.Logger.Warnf.
func (l *ZapLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Errorf implements servicebus.Logger.Errorf.
func (l *ZapLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Info implements servicebus.Logger.Info.
func (l *ZapLogger) Info(message string) {
	l.sugar.Info(message)
}

// New builds a zap logger.
//
// Parameters:
//   - level: "trace", "debug", "info", "warn" or "error" ("trace" maps to debug)
//   - development: Console encoding with colored levels instead of JSON
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	return config.Build()
}

// ParseLevel converts a level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
