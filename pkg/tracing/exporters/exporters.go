// Package exporters builds the span exporters the tracer provider ships to.
package exporters

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	KindOTLP    = "otlp"
	KindConsole = "console"
	KindNone    = "none"

	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config selects and configures the exporter.
type Config struct {
	Kind     string            // otlp, console or none
	Endpoint string            // localhost:4317 for grpc, localhost:4318 for http
	Protocol string            // grpc or http
	Insecure bool              // disables TLS
	Headers  map[string]string // sent with every export
	Timeout  time.Duration
}

// DefaultConfig targets a local collector over insecure gRPC.
func DefaultConfig() Config {
	return Config{
		Kind:     KindOTLP,
		Endpoint: "localhost:4317",
		Protocol: ProtocolGRPC,
		Insecure: true,
		Timeout:  10 * time.Second,
	}
}

// New returns the exporter for cfg.Kind. KindNone returns a nil exporter.
func New(ctx context.Context, cfg Config, logger ectologger.Logger) (sdktrace.SpanExporter, error) {
	switch cfg.Kind {
	case KindNone, "":
		return nil, nil
	case KindConsole:
		return NewConsoleExporter(logger), nil
	case KindOTLP:
		var (
			exporter *otlptrace.Exporter
			err      error
		)
		switch cfg.Protocol {
		case ProtocolGRPC, "":
			exporter, err = newGRPCExporter(ctx, cfg)
		case ProtocolHTTP:
			exporter, err = newHTTPExporter(ctx, cfg)
		default:
			return nil, fmt.Errorf("unsupported OTLP protocol: %s (use 'grpc' or 'http')", cfg.Protocol)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Kind)
	}
}

func newGRPCExporter(ctx context.Context, cfg Config) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			otlptracegrpc.WithInsecure(),
		)
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func newHTTPExporter(ctx context.Context, cfg Config) (*otlptrace.Exporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithTimeout(cfg.Timeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return otlptracehttp.New(ctx, opts...)
}
