package logx

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewLogger(LoadFromEnv()))
}

func std() *Logger { return defaultLogger.Load() }

// SetDefaultLogger replaces the package-level logger.
func SetDefaultLogger(logger *Logger) {
	if logger != nil {
		defaultLogger.Store(logger)
	}
}

// GetDefaultLogger returns the package-level logger.
func GetDefaultLogger() *Logger { return std() }

func SetLevel(level Level)  { std().SetLevel(level) }
func SetOutput(w io.Writer) { std().SetOutput(w) }

func Debug(msg string) { std().log(LevelDebug, msg, nil, nil) }
func Info(msg string)  { std().log(LevelInfo, msg, nil, nil) }
func Warn(msg string)  { std().log(LevelWarn, msg, nil, nil) }
func Error(msg string) { std().log(LevelError, msg, nil, nil) }

func Debugf(format string, args ...interface{}) {
	std().log(LevelDebug, fmt.Sprintf(format, args...), nil, nil)
}

func Infof(format string, args ...interface{}) {
	std().log(LevelInfo, fmt.Sprintf(format, args...), nil, nil)
}

func Warnf(format string, args ...interface{}) {
	std().log(LevelWarn, fmt.Sprintf(format, args...), nil, nil)
}

func Errorf(format string, args ...interface{}) {
	std().log(LevelError, fmt.Sprintf(format, args...), nil, nil)
}

func WithFields(fields Fields) *Entry                { return std().WithFields(fields) }
func WithField(key string, value interface{}) *Entry { return std().WithField(key, value) }
func WithError(err error) *Entry                     { return std().WithError(err) }

// WithContext starts an entry carrying the request id and span of ctx.
func WithContext(ctx context.Context) *Entry { return std().WithContext(ctx) }
