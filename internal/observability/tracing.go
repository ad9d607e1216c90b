package observability

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the client tracer used for request and handshake spans.
func Tracer() trace.Tracer {
	return otel.Tracer("campus-client")
}

// SetupTracing installs a stdout span exporter for debug runs. The
// returned shutdown func flushes pending spans.
func SetupTracing() func(context.Context) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Printf("tracing disabled: %v", err)
		return func(context.Context) {}
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return func(ctx context.Context) {
		if err := provider.Shutdown(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}
}
