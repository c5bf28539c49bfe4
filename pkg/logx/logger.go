// Package logx is the structured logger of every remodel process. It wraps
// zerolog with a package-level default configured from LOG_* variables.
package logx

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Fields is a map of structured data.
type Fields map[string]interface{}

// Level is a zerolog level.
type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
	LevelOff   = zerolog.Disabled
)

// ParseLevel parses a level name, accepting "warning", and falls back to info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn
	}
	if s == "off" {
		return LevelOff
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return LevelInfo
	}
	return lvl
}

// Format is the output encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config holds the logger configuration.
type Config struct {
	Level        Level
	Format       Format
	EnableColors bool
	EnableCaller bool
	// Service is attached to every line when set.
	Service string
	Output  io.Writer
}

// DefaultConfig is colored console output at info level on stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:        LevelInfo,
		Format:       FormatConsole,
		EnableColors: true,
		Output:       os.Stdout,
	}
}

// LoadFromEnv reads LOG_LEVEL, LOG_FORMAT (console, json), LOG_COLOR,
// LOG_CALLER and LOG_SERVICE.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = ParseLevel(v)
	}
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json", "cloudwatch":
		cfg.Format = FormatJSON
	case "console":
		cfg.Format = FormatConsole
	}
	if v := os.Getenv("LOG_COLOR"); v != "" {
		cfg.EnableColors = truthy(v)
	}
	if v := os.Getenv("LOG_CALLER"); v != "" {
		cfg.EnableCaller = truthy(v)
	}
	cfg.Service = os.Getenv("LOG_SERVICE")
	return cfg
}

func truthy(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes"
}

// Logger is a leveled logger backed by zerolog.
type Logger struct {
	mu     sync.RWMutex
	config Config
	zl     zerolog.Logger
}

// NewLogger creates a logger from config; nil means DefaultConfig.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	l := &Logger{config: *config}
	l.zl = build(l.config)
	return l
}

// callerSkip accounts for the logx frames between the call site and zerolog.
const callerSkip = 4

func build(cfg Config) zerolog.Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stdout
	}
	if cfg.Format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, NoColor: !cfg.EnableColors, TimeFormat: "15:04:05"}
	}

	zctx := zerolog.New(w).Level(cfg.Level).With().Timestamp()
	if cfg.Service != "" {
		zctx = zctx.Str("service", cfg.Service)
	}
	if cfg.EnableCaller {
		zctx = zctx.CallerWithSkipFrameCount(callerSkip)
	}
	return zctx.Logger()
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
	l.zl = l.zl.Level(level)
}

// GetLevel returns the minimum level.
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Level
}

// SetOutput redirects the logger to w.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
	l.zl = build(l.config)
}

func (l *Logger) log(level Level, msg string, fields Fields, err error) {
	l.mu.RLock()
	zl := l.zl
	l.mu.RUnlock()

	ev := zl.WithLevel(level)
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		ev = ev.Fields(map[string]interface{}(fields))
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

func (l *Logger) WithField(key string, value interface{}) *Entry {
	return newEntry(l).WithField(key, value)
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return newEntry(l).WithFields(fields)
}

func (l *Logger) WithError(err error) *Entry {
	return newEntry(l).WithError(err)
}

func (l *Logger) WithContext(ctx context.Context) *Entry {
	return newEntry(l).WithContext(ctx)
}
