package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

const instrumentationName = "github.com/theblitlabs/zemog-worker"

type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTelemetry wires the global tracer and meter providers to an OTLP
// collector. When telemetry is disabled or the collector can't be reached the
// globals stay no-op and the worker runs without telemetry.
func InitTelemetry(ctx context.Context, cfg *config.Config) (ShutdownFunc, error) {
	log := logger.WithComponent("telemetry")

	if !cfg.Telemetry.Enabled {
		return noopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.Telemetry.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collectorAddr := fmt.Sprintf("%s:%d", cfg.Telemetry.OTELCollector.Host, cfg.Telemetry.OTELCollector.Port)
	conn, err := grpc.DialContext(dialCtx, collectorAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		log.Warn().Err(err).Str("collector", collectorAddr).Msg("Failed to connect to OpenTelemetry collector, continuing without telemetry")
		return noopShutdown, nil
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create trace exporter, continuing without telemetry")
		conn.Close()
		return noopShutdown, nil
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create metric exporter, continuing without telemetry")
		tracerProvider.Shutdown(ctx)
		conn.Close()
		return noopShutdown, nil
	}

	interval := cfg.Telemetry.MetricsInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(interval),
		)),
	)
	otel.SetMeterProvider(meterProvider)

	log.Debug().Str("collector", collectorAddr).Msg("Telemetry initialized")

	// Shutdown flushes pending spans and metrics, which matters for a worker
	// that exits after one task.
	return func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()

		var errs []error
		if err := tracerProvider.Shutdown(cctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
		if err := meterProvider.Shutdown(cctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close gRPC connection: %w", err))
		}

		if len(errs) > 0 {
			return fmt.Errorf("shutdown errors: %v", errs)
		}
		return nil
	}, nil
}

func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// StartSpan opens a span for one pipeline stage.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
