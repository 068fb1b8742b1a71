/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const exportTimeout = 5 * time.Second

// Span attributes set on directive spans.
const (
	AttrDirectiveType   = attribute.Key("directive.type")
	AttrDialogRequestID = attribute.Key("directive.dialog_request_id")
	AttrMessageID       = attribute.Key("directive.message_id")
	AttrMedium          = attribute.Key("directive.medium")
	AttrBlocking        = attribute.Key("directive.blocking")
	AttrResult          = attribute.Key("directive.result")
)

// Steps a directive passes through, recorded as span events.
const (
	StepBlocked  = "blocked"
	StepHandling = "handling"
)

// TracerConfig contains configuration for OpenTelemetry tracing.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	// NodeID becomes service.instance.id so spans from a cluster can be told apart.
	NodeID       string
	OTLPEndpoint string // host:port of an OTLP gRPC collector
	Enabled      bool
	SampleRate   float64
}

// TracerProvider owns the installed provider until Shutdown.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	logger   zerolog.Logger
}

// InitTracer installs the global tracer provider. Disabled tracing installs
// a no-op provider, so directive spans cost nothing.
func InitTracer(ctx context.Context, cfg TracerConfig, logger zerolog.Logger) (*TracerProvider, error) {
	logger = logger.With().Str("component", "tracing").Logger()
	if !cfg.Enabled {
		logger.Info().Msg("tracing disabled")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &TracerProvider{logger: logger}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(serviceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(exportTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info().
		Str("otlp_endpoint", cfg.OTLPEndpoint).
		Float64("sample_rate", cfg.SampleRate).
		Msg("tracing enabled")
	return &TracerProvider{provider: tp, logger: logger}, nil
}

func serviceAttributes(cfg TracerConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.NodeID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.NodeID))
	}
	return attrs
}

// samplerFor honours the parent's decision for partial rates, so a trace
// started by an upstream caller is not split.
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()
	if err := tp.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	tp.logger.Info().Msg("tracer provider shut down")
	return nil
}

// Tracer returns a tracer for the given instrumentation scope.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// DirectiveSpan describes one directive for StartDirectiveSpan.
type DirectiveSpan struct {
	Type            string
	DialogRequestID string
	MessageID       string
	Medium          string
	Blocking        bool
}

func (d DirectiveSpan) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDirectiveType.String(d.Type),
		AttrDialogRequestID.String(d.DialogRequestID),
		AttrMessageID.String(d.MessageID),
		AttrMedium.String(d.Medium),
		AttrBlocking.Bool(d.Blocking),
	}
}

// StartDirectiveSpan opens the span covering a directive from scheduling to
// completion. Time spent blocked shows up between its step events.
func StartDirectiveSpan(tracer trace.Tracer, d DirectiveSpan) trace.Span {
	_, span := tracer.Start(context.Background(), "directive "+d.Type,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(d.attributes()...))
	return span
}

// DirectiveStep marks a scheduler step on the span.
func DirectiveStep(span trace.Span, step string) {
	span.AddEvent("directive." + step)
}

// EndDirectiveSpan records the result and ends span. A non-empty failure
// marks the span as errored.
func EndDirectiveSpan(span trace.Span, result, failure string) {
	span.SetAttributes(AttrResult.String(result))
	if failure != "" {
		span.SetStatus(codes.Error, failure)
	}
	span.End()
}

// TracingMiddleware wraps handlers with otelhttp server spans.
func TracingMiddleware(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation)
	}
}
