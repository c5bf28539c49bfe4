package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/Abraxas-365/remodel/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func keepGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetup_StdoutExportsSpans(t *testing.T) {
	keepGlobalProvider(t)
	var buf bytes.Buffer

	shutdown, err := Setup(config.TelemetryConfig{ServiceName: "remodel-test", StdoutTracing: true}, WithWriter(&buf))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "render:generate process")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "render:generate process")
	assert.Contains(t, buf.String(), "remodel-test")
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	keepGlobalProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(config.TelemetryConfig{ServiceName: "x"})
	require.NoError(t, err)
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.NoError(t, shutdown(context.Background()))
}
