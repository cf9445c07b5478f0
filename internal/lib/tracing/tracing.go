// Package tracing настраивает экспорт трейсов OpenTelemetry.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/sl"
)

// Shutdown сбрасывает накопленные спаны и останавливает провайдер.
type Shutdown func(context.Context) error

// Init регистрирует глобальный TracerProvider с OTLP/HTTP экспортером.
// Пустой endpoint отключает экспорт, спаны тогда никуда не уходят.
func Init(ctx context.Context, cfg config.Tracing, log *slog.Logger) (Shutdown, error) {
	const op = "tracing.Init"
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("tracing enabled", slog.String("endpoint", cfg.OTLPEndpoint))

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer provider", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}, nil
}
