package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/raivaus/config"
)

// Provider wraps the OTEL tracer and meter providers plus the teardown
// run metrics.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	metrics        *Metrics
}

// NewProvider creates a telemetry provider. When the OTLP endpoint is
// unset the providers are no-op but the meter and tracer are still valid,
// so instrumented code needs no nil checks.
func NewProvider(ctx context.Context, cfg config.OTELConfig, extraReaders ...sdkmetric.Reader) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("raivaus"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, extraReaders); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	m, err := NewMetrics(p.meter)
	if err != nil {
		return nil, err
	}
	p.metrics = m

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("raivaus")

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, extraReaders []sdkmetric.Reader) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	for _, r := range extraReaders {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("raivaus")

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Metrics returns the teardown run metrics.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var firstErr error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Metrics holds the teardown run instruments.
type Metrics struct {
	deletedTotal  metric.Int64Counter
	skippedTotal  metric.Int64Counter
	failedTotal   metric.Int64Counter
	passHistogram metric.Int64Histogram
}

// NewMetrics registers the run instruments on a meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.deletedTotal, err = meter.Int64Counter(
		"raivaus_deleted_total",
		metric.WithDescription("Resources deleted"),
	)
	if err != nil {
		return nil, fmt.Errorf("create deleted_total: %w", err)
	}

	m.skippedTotal, err = meter.Int64Counter(
		"raivaus_skipped_total",
		metric.WithDescription("Resources skipped (protected or in use)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create skipped_total: %w", err)
	}

	m.failedTotal, err = meter.Int64Counter(
		"raivaus_failed_total",
		metric.WithDescription("Resources that never converged to deleted"),
	)
	if err != nil {
		return nil, fmt.Errorf("create failed_total: %w", err)
	}

	m.passHistogram, err = meter.Int64Histogram(
		"raivaus_convergence_passes",
		metric.WithDescription("Passes needed per phase before convergence or give-up"),
	)
	if err != nil {
		return nil, fmt.Errorf("create convergence_passes: %w", err)
	}

	return m, nil
}

// RecordDeleted counts a deleted resource.
func (m *Metrics) RecordDeleted(ctx context.Context, resourceType, region string) {
	m.deletedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", resourceType),
		attribute.String("region", region),
	))
}

// RecordSkipped counts a skipped resource with its verdict.
func (m *Metrics) RecordSkipped(ctx context.Context, resourceType, verdict string) {
	m.skippedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", resourceType),
		attribute.String("verdict", verdict),
	))
}

// RecordFailed counts a failed resource.
func (m *Metrics) RecordFailed(ctx context.Context, resourceType, region string) {
	m.failedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", resourceType),
		attribute.String("region", region),
	))
}

// RecordPasses records how many passes a phase took.
func (m *Metrics) RecordPasses(ctx context.Context, family string, passes int, converged bool) {
	m.passHistogram.Record(ctx, int64(passes), metric.WithAttributes(
		attribute.String("family", family),
		attribute.Bool("converged", converged),
	))
}
