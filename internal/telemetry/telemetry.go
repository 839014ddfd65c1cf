// Package telemetry installs the OpenTelemetry trace and metric providers.
package telemetry

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	Enabled     bool
	ServiceName string
	// Writer receives the exported spans and metrics. Defaults to stdout.
	Writer io.Writer
	// MetricInterval is the export period of the metric reader.
	MetricInterval time.Duration
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Setup installs the propagator and, when enabled, stdout trace and metric
// exporters as the global providers. The returned function is never nil.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	var shutdownFuncs []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return shutdown, nil
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	tracerProvider, err := newTracerProvider(w, res)
	if err != nil {
		return shutdown, errors.Join(err, shutdown(ctx))
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMeterProvider(w, res, cfg.MetricInterval)
	if err != nil {
		return shutdown, errors.Join(err, shutdown(ctx))
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	return shutdown, nil
}

func newTracerProvider(w io.Writer, res *resource.Resource) (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter, trace.WithBatchTimeout(time.Second)),
	), nil
}

func newMeterProvider(w io.Writer, res *resource.Resource, interval time.Duration) (*metric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
	), nil
}
