// Package tracing configures the process-wide OpenTelemetry
// TracerProvider. otelhttp's router middleware and the gateway client's
// spans both record against whatever tracer otel.SetTracerProvider last
// installed; without this package that's the SDK's built-in no-op
// provider, so spans are created but never exported anywhere.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/zenalign/tokencore/internal/config"
)

// Setup installs a batching OTLP/gRPC TracerProvider as the global
// tracer provider when cfg.OTLPEndpoint is set, and returns a shutdown
// func that flushes and closes the exporter. When OTLPEndpoint is
// empty, tracing stays a no-op and shutdown is a no-op too.
func Setup(ctx context.Context, cfg config.TracingConfig, logger *zap.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if cfg.OTLPEndpoint == "" {
		logger.Info("tracing disabled, no OTLP endpoint configured")
		return noop, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return noop, fmt.Errorf("tracing: build otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return noop, fmt.Errorf("tracing: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Info("tracing enabled", zap.String("otlp_endpoint", cfg.OTLPEndpoint), zap.String("service_name", cfg.ServiceName))

	return provider.Shutdown, nil
}
