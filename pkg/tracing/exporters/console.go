package exporters

import (
	"context"

	"github.com/Gobusters/ectologger"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleExporter writes finished spans to the debug log.
type ConsoleExporter struct {
	logger ectologger.Logger
}

func NewConsoleExporter(logger ectologger.Logger) *ConsoleExporter {
	return &ConsoleExporter{logger: logger}
}

func (c *ConsoleExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"span":     span.Name(),
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
			"parent":   span.Parent().SpanID().String(),
			"duration": span.EndTime().Sub(span.StartTime()),
			"status":   span.Status().Code.String(),
		}).Debug("span")
	}
	return nil
}

func (c *ConsoleExporter) Shutdown(context.Context) error {
	return nil
}
