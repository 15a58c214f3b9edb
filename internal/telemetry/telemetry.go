// Package telemetry installs the global OpenTelemetry providers used by the
// claimgraph binary. Both exporters write to stdout unless redirected.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Shutdown flushes and stops a provider.
type Shutdown func(context.Context) error

type settings struct {
	writer   io.Writer
	interval time.Duration
	pretty   bool
}

// Option configures InitTracer and InitMeter.
type Option func(*settings)

// WithWriter sends exported data to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(s *settings) { s.writer = w }
}

// WithInterval sets how often metrics are exported.
func WithInterval(d time.Duration) Option {
	return func(s *settings) { s.interval = d }
}

// WithPrettyPrint indents exported JSON.
func WithPrettyPrint() Option {
	return func(s *settings) { s.pretty = true }
}

func newSettings(opts []Option) settings {
	s := settings{writer: os.Stdout, interval: 30 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func newResource(service string) *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", service))
}

// InitTracer installs a batching tracer provider with a stdout exporter.
func InitTracer(service string, logger *slog.Logger, opts ...Option) (Shutdown, error) {
	s := newSettings(opts)
	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(s.writer)}
	if s.pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(service)),
	)
	otel.SetTracerProvider(tp)

	if logger != nil {
		logger.Info("tracing initialized", slog.String("service", service))
	}
	return tp.Shutdown, nil
}

// InitMeter installs a meter provider that periodically exports to stdout.
func InitMeter(service string, logger *slog.Logger, opts ...Option) (Shutdown, error) {
	s := newSettings(opts)
	exporterOpts := []stdoutmetric.Option{stdoutmetric.WithWriter(s.writer)}
	if s.pretty {
		exporterOpts = append(exporterOpts, stdoutmetric.WithPrettyPrint())
	}
	exporter, err := stdoutmetric.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(s.interval))),
		sdkmetric.WithResource(newResource(service)),
	)
	otel.SetMeterProvider(mp)

	if logger != nil {
		logger.Info("metrics initialized",
			slog.String("service", service),
			slog.Duration("interval", s.interval),
		)
	}
	return mp.Shutdown, nil
}
