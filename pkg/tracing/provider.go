package tracing

import (
	"context"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/productsync/pkg/tracing/exporters"
)

// ProviderConfig configures the global tracer provider.
type ProviderConfig struct {
	ServiceName string
	Environment string
	Version     string
	SampleRatio float64
	Exporter    exporters.Config
}

// Setup installs a tracer provider and makes StartSpan record spans. The
// returned function flushes and shuts the provider down.
func Setup(ctx context.Context, cfg ProviderConfig, logger ectologger.Logger) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		logger.WithError(err).Warn("Failed to build trace resource, continuing")
	}

	exporter, err := exporters.New(ctx, cfg.Exporter, logger)
	if err != nil {
		return nil, err
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(tp.Tracer(cfg.ServiceName))

	logger.WithFields(map[string]any{
		"service":  cfg.ServiceName,
		"exporter": cfg.Exporter.Kind,
		"endpoint": cfg.Exporter.Endpoint,
	}).Info("Tracing initialized")

	return tp.Shutdown, nil
}
