// Package telemetry installs the process-wide OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"io"
	"os"

	"github.com/Abraxas-365/remodel/pkg/config"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(ctx context.Context) error

// Option configures Setup.
type Option func(*options)

type options struct {
	writer io.Writer
}

// WithWriter sets where the stdout exporter writes. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// Setup installs a tracer provider exporting to stdout when
// cfg.StdoutTracing is set. Otherwise the global no-op provider stays.
func Setup(cfg config.TelemetryConfig, opts ...Option) (ShutdownFunc, error) {
	o := options{writer: os.Stdout}
	for _, fn := range opts {
		fn(&o)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})
	if !cfg.StdoutTracing {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(o.writer))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)

	logx.WithField("service", cfg.ServiceName).Info("telemetry: stdout tracing enabled")
	return tp.Shutdown, nil
}
