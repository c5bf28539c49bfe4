package logx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newJSONLogger(buf *bytes.Buffer, level logx.Level) *logx.Logger {
	cfg := logx.DefaultConfig()
	cfg.Format = logx.FormatJSON
	cfg.Level = level
	cfg.Output = buf
	return logx.NewLogger(cfg)
}

func TestLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, logx.LevelInfo)

	l.WithFields(logx.Fields{"queue": "render:generate", "attempt": 2}).
		WithError(errors.New("boom")).
		Warn("jobx: job failed")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "jobx: job failed", line["message"])
	assert.Equal(t, "render:generate", line["queue"])
	assert.Equal(t, float64(2), line["attempt"])
	assert.Equal(t, "boom", line["error"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, logx.LevelWarn)

	l.WithField("k", "v").Info("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(logx.LevelDebug)
	l.WithField("k", "v").Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestEntry_WithContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, logx.LevelInfo)

	ctx := logx.ContextWithRequestID(context.Background(), "req-42")
	l.WithField("a", 1).WithContext(ctx).Info("hello")

	assert.True(t, strings.Contains(buf.String(), `"request_id":"req-42"`), buf.String())
	assert.Equal(t, "req-42", logx.RequestIDFromContext(ctx))
	assert.Empty(t, logx.RequestIDFromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logx.LevelWarn, logx.ParseLevel("warning"))
	assert.Equal(t, logx.LevelDebug, logx.ParseLevel("DEBUG"))
	assert.Equal(t, logx.LevelInfo, logx.ParseLevel("nonsense"))
	assert.Equal(t, logx.LevelInfo, logx.ParseLevel(""))
	assert.Equal(t, logx.LevelOff, logx.ParseLevel("off"))
}

func TestEntry_WithContextAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, logx.LevelInfo)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	l.WithContext(ctx).Info("traced")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", line["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", line["span_id"])
}

func TestLogger_ServiceField(t *testing.T) {
	var buf bytes.Buffer
	cfg := logx.DefaultConfig()
	cfg.Format = logx.FormatJSON
	cfg.Service = "remodel-worker"
	cfg.Output = &buf
	logx.NewLogger(cfg).WithField("queue", "email:send-notification").Info("x")

	assert.Contains(t, buf.String(), `"service":"remodel-worker"`)
}
