package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/relay/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string `mapstructure:"service_name"`
	// ServiceVersion is the version of the service.
	ServiceVersion string `mapstructure:"service_version"`
	// Environment is the deployment environment (dev, staging, prod).
	Environment string `mapstructure:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string `mapstructure:"endpoint"`
	// Insecure allows insecure connections (for development).
	Insecure bool `mapstructure:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. The returned provider should be shut down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// StageMetrics holds the instruments recorded for every stage run.
// A nil *StageMetrics records nothing.
type StageMetrics struct {
	active   metric.Int64UpDownCounter
	runs     metric.Int64Counter
	duration metric.Float64Histogram
	items    metric.Int64Counter
}

// NewStageMetrics creates stage instruments on the given meter.
func NewStageMetrics(meter metric.Meter) (*StageMetrics, error) {
	active, err := meter.Int64UpDownCounter("pipeline.stage.active",
		metric.WithDescription("Number of stages currently running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.active counter: %w", err)
	}

	runs, err := meter.Int64Counter("pipeline.stage.runs",
		metric.WithDescription("Finished stage runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.runs counter: %w", err)
	}

	duration, err := meter.Float64Histogram("pipeline.stage.duration",
		metric.WithDescription("Stage run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.duration histogram: %w", err)
	}

	items, err := meter.Int64Counter("pipeline.stage.items",
		metric.WithDescription("Items moved through stage channels by direction"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.items counter: %w", err)
	}

	return &StageMetrics{active: active, runs: runs, duration: duration, items: items}, nil
}

// RecordStart marks a stage as running.
func (m *StageMetrics) RecordStart(ctx context.Context, stage, shape string) {
	if m == nil {
		return
	}
	m.active.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("shape", shape),
	))
}

// RecordEnd marks a stage as finished and records its outcome, duration and
// item counts. in and out are the items taken from and delivered to the
// stage's channels.
func (m *StageMetrics) RecordEnd(ctx context.Context, stage, shape, status string, in, out int64, d time.Duration) {
	if m == nil {
		return
	}
	base := []attribute.KeyValue{
		attribute.String("stage", stage),
		attribute.String("shape", shape),
	}
	m.active.Add(ctx, -1, metric.WithAttributes(base...))
	m.runs.Add(ctx, 1, metric.WithAttributes(append(base, attribute.String("status", status))...))
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(base...))
	if in > 0 {
		m.items.Add(ctx, in, metric.WithAttributes(append(base, attribute.String("direction", "in"))...))
	}
	if out > 0 {
		m.items.Add(ctx, out, metric.WithAttributes(append(base, attribute.String("direction", "out"))...))
	}
}
