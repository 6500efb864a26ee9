package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
)

// Sink receives the latency/outcome events the orchestration core
// emits. The reporting layer consumes these; no component reads them
// back.
type Sink interface {
	RecordCall(ctx context.Context, backend, outcome string, attempts int, latency time.Duration)
	RecordBreakerTransition(ctx context.Context, backend, from, to string)
	RecordAttack(ctx context.Context, target, classification string)
	RecordSession(ctx context.Context, status string)
}

// Nop is a Sink that drops everything. Used in tests and when
// telemetry is disabled.
type Nop struct{}

func (Nop) RecordCall(context.Context, string, string, int, time.Duration)  {}
func (Nop) RecordBreakerTransition(context.Context, string, string, string) {}
func (Nop) RecordAttack(context.Context, string, string)                    {}
func (Nop) RecordSession(context.Context, string)                           {}

// Telemetry is the OpenTelemetry-backed Sink.
type Telemetry struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider *sdktrace.TracerProvider

	callDuration       metric.Int64Histogram
	breakerTransitions metric.Int64Counter
	attackCounter      metric.Int64Counter
	sessionCounter     metric.Int64Counter
}

func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Telemetry, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "quinine"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	callDuration, _ := meter.Int64Histogram("quinine_call_duration_ms")
	breakerTransitions, _ := meter.Int64Counter("quinine_breaker_transition_total")
	attackCounter, _ := meter.Int64Counter("quinine_attack_total")
	sessionCounter, _ := meter.Int64Counter("quinine_session_total")
	return &Telemetry{
		Tracer:             tracer,
		Meter:              meter,
		traceProvider:      tp,
		callDuration:       callDuration,
		breakerTransitions: breakerTransitions,
		attackCounter:      attackCounter,
		sessionCounter:     sessionCounter,
	}, nil
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.traceProvider == nil {
		return nil
	}
	return t.traceProvider.Shutdown(ctx)
}

func (t *Telemetry) RecordCall(ctx context.Context, backend, outcome string, attempts int, latency time.Duration) {
	if t == nil {
		return
	}
	t.callDuration.Record(ctx, latency.Milliseconds(), metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
		attribute.Int("attempts", attempts),
	))
}

func (t *Telemetry) RecordBreakerTransition(ctx context.Context, backend, from, to string) {
	if t == nil {
		return
	}
	t.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (t *Telemetry) RecordAttack(ctx context.Context, target, classification string) {
	if t == nil {
		return
	}
	t.attackCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("classification", classification),
	))
}

func (t *Telemetry) RecordSession(ctx context.Context, status string) {
	if t == nil {
		return
	}
	t.sessionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}
