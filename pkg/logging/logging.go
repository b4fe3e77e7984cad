// Package logging builds the service logger: zap underneath, ectologger on top.
package logging

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "github.com/Ramsey-B/productsync/pkg/context"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// New returns a logger at level. pretty switches to zap's development
// encoder (console output, stack traces on warn).
func New(level string, pretty bool) (ectologger.Logger, *zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	if pretty {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	zapLogger, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, ContextFields), zapLogger, nil
}

// ContextFields copies request and trace identifiers from the message
// context into its fields. Fields already set on the message win.
func ContextFields(msg ectologger.EctoLogMessage) ectologger.EctoLogMessage {
	if msg.Ctx == nil {
		return msg
	}
	fields := make(map[string]interface{}, len(msg.Fields)+4)
	add := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	add("request_id", appctx.GetRequestID(msg.Ctx))
	add("correlation_id", appctx.GetCorrelationID(msg.Ctx))
	add("source", appctx.GetSource(msg.Ctx))
	add("trace_id", tracing.GetTraceID(msg.Ctx))
	for k, v := range msg.Fields {
		fields[k] = v
	}
	msg.Fields = fields
	return msg
}
