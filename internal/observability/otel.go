package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/utils"
)

// Setup installs the global tracer provider when OTEL_ENABLED is truthy.
// Export goes to OTEL_EXPORTER_OTLP_ENDPOINT when set, stdout otherwise.
// The returned shutdown is a no-op when tracing is disabled.
func Setup(ctx context.Context, log *logger.Logger, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	enabled := strings.ToLower(utils.GetEnv("OTEL_ENABLED", "false", log))
	if enabled != "true" && enabled != "1" {
		return noop, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	if endpoint := utils.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", log); endpoint != "" {
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(endpoint),
		)
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return noop, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Info("Tracing enabled", "service", serviceName)
	return tp.Shutdown, nil
}
