// Package telemetry defines the metrics and tracing hooks the client emits,
// with an OpenTelemetry implementation and a no-op default.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Provider defines the interface for telemetry providers
type Provider interface {
	// Tracer operations
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// RecordEvaluation counts a resolved flag read by the source that served it.
	RecordEvaluation(ctx context.Context, flagKey string, source string)

	// RecordFetch records one provider fetch; phase is "bootstrap" or "refresh".
	RecordFetch(ctx context.Context, provider string, phase string, success bool, duration time.Duration)

	// RecordCacheError counts a failed cache operation ("save" or "load").
	RecordCacheError(ctx context.Context, op string)

	// RecordAssignment counts an experiment assignment.
	RecordAssignment(ctx context.Context, experiment string, variant string)

	// RecordHealthyProviders sets the healthy provider gauge.
	RecordHealthyProviders(ctx context.Context, healthy int)

	// Lifecycle
	Shutdown(ctx context.Context) error
}

// Span is the part of a trace span the client writes to.
type Span interface {
	End()
	SetAttributes(attrs ...Attribute)

	// RecordError attaches err to the span and marks it failed.
	RecordError(err error)

	AddEvent(name string, attrs ...Attribute)
}

// Attribute is a span attribute. Spans are always OpenTelemetry shaped, so
// the otel key/value type is used as is.
type Attribute = attribute.KeyValue

// SpanOption configures a span at start.
type SpanOption func(*spanStart)

type spanStart struct {
	attrs []Attribute
}

func startOptions(opts []SpanOption) spanStart {
	var s spanStart
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithAttributes sets attributes when the span starts.
func WithAttributes(attrs ...Attribute) SpanOption {
	return func(s *spanStart) {
		s.attrs = append(s.attrs, attrs...)
	}
}

// String is a string attribute.
func String(key, value string) Attribute { return attribute.String(key, value) }

// Int is an int attribute.
func Int(key string, value int) Attribute { return attribute.Int(key, value) }

// Bool is a bool attribute.
func Bool(key string, value bool) Attribute { return attribute.Bool(key, value) }

// Duration is a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return attribute.Int64(key, value.Milliseconds())
}
