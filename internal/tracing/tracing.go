package tracing

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Init installs an OTLP/HTTP tracer provider when enabled. The returned
// function flushes and stops it; it is a no-op when tracing is off.
func Init(ctx context.Context, enabled bool, endpoint, service string) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !enabled {
		log.Debug().Msg("tracing disabled")
		return noop
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Warn().Err(err).Msg("otlp exporter, tracing disabled")
		return noop
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
	)
	otel.SetTracerProvider(tp)
	log.Info().Str("endpoint", endpoint).Msg("tracing enabled")
	return tp.Shutdown
}
