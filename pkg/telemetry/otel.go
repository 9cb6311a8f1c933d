package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/OrlandoBitencourt/flagship"

// OTelProvider implements Provider using OpenTelemetry
type OTelProvider struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	evaluations      metric.Int64Counter
	fetchSuccess     metric.Int64Counter
	fetchFailure     metric.Int64Counter
	fetchDuration    metric.Float64Histogram
	cacheErrors      metric.Int64Counter
	assignments      metric.Int64Counter
	healthyProviders metric.Int64ObservableGauge

	registration metric.Registration

	// Current healthy provider count (for gauge)
	healthy atomic.Int64
}

// OTelOption configures NewOTel.
type OTelOption func(*otelConfig)

type otelConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *otelConfig) { c.tracerProvider = tp }
}

// WithMeterProvider uses mp instead of the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) OTelOption {
	return func(c *otelConfig) { c.meterProvider = mp }
}

// NewOTel creates a new OpenTelemetry provider
func NewOTel(opts ...OTelOption) (*OTelProvider, error) {
	cfg := otelConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	provider := &OTelProvider{
		tracer: cfg.tracerProvider.Tracer(instrumentationName),
		meter:  cfg.meterProvider.Meter(instrumentationName),
	}

	if err := provider.initMetrics(); err != nil {
		return nil, err
	}

	return provider, nil
}

// initMetrics initializes all metrics
func (o *OTelProvider) initMetrics() error {
	var err error

	o.evaluations, err = o.meter.Int64Counter(
		"flagship.evaluations",
		metric.WithDescription("Number of flag evaluations by resolution source"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return err
	}

	o.fetchSuccess, err = o.meter.Int64Counter(
		"flagship.fetch.success",
		metric.WithDescription("Number of successful provider fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	o.fetchFailure, err = o.meter.Int64Counter(
		"flagship.fetch.failure",
		metric.WithDescription("Number of failed provider fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	o.fetchDuration, err = o.meter.Float64Histogram(
		"flagship.fetch.duration",
		metric.WithDescription("Duration of provider fetches"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	o.cacheErrors, err = o.meter.Int64Counter(
		"flagship.cache.errors",
		metric.WithDescription("Number of failed snapshot cache operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	o.assignments, err = o.meter.Int64Counter(
		"flagship.assignments",
		metric.WithDescription("Number of experiment assignments"),
		metric.WithUnit("{assignment}"),
	)
	if err != nil {
		return err
	}

	o.healthyProviders, err = o.meter.Int64ObservableGauge(
		"flagship.providers.healthy",
		metric.WithDescription("Number of providers whose last fetches succeeded"),
	)
	if err != nil {
		return err
	}

	o.registration, err = o.meter.RegisterCallback(func(ctx context.Context, observer metric.Observer) error {
		observer.ObserveInt64(o.healthyProviders, o.healthy.Load())
		return nil
	}, o.healthyProviders)
	return err
}

// StartSpan starts a span on the provider's tracer.
func (o *OTelProvider) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	start := startOptions(opts)
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(start.attrs...))
	return ctx, otelSpan{span}
}

func (o *OTelProvider) RecordEvaluation(ctx context.Context, flagKey string, source string) {
	o.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}

func (o *OTelProvider) RecordFetch(ctx context.Context, provider string, phase string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("phase", phase),
	)

	o.fetchDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if success {
		o.fetchSuccess.Add(ctx, 1, attrs)
	} else {
		o.fetchFailure.Add(ctx, 1, attrs)
	}
}

func (o *OTelProvider) RecordCacheError(ctx context.Context, op string) {
	o.cacheErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
	))
}

func (o *OTelProvider) RecordAssignment(ctx context.Context, experiment string, variant string) {
	o.assignments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("experiment", experiment),
		attribute.String("variant", variant),
	))
}

func (o *OTelProvider) RecordHealthyProviders(ctx context.Context, healthy int) {
	o.healthy.Store(int64(healthy))
}

// Shutdown unregisters the gauge callback. SDK providers are owned by the
// caller and are not shut down here.
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	if o.registration != nil {
		return o.registration.Unregister()
	}
	return nil
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetAttributes(attrs ...Attribute) { s.span.SetAttributes(attrs...) }

func (s otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}
