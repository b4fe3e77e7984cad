package exporters

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})

	tests := []struct {
		name    string
		cfg     Config
		wantNil bool
		wantErr string
	}{
		{name: "none", cfg: Config{Kind: KindNone}, wantNil: true},
		{name: "empty kind", cfg: Config{}, wantNil: true},
		{name: "console", cfg: Config{Kind: KindConsole}},
		{name: "unknown kind", cfg: Config{Kind: "jaeger"}, wantErr: "unsupported trace exporter"},
		{name: "unknown protocol", cfg: Config{Kind: KindOTLP, Protocol: "udp"}, wantErr: "unsupported OTLP protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter, err := New(context.Background(), tt.cfg, logger)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, exporter)
				return
			}
			assert.NotNil(t, exporter)
			assert.NoError(t, exporter.Shutdown(context.Background()))
		})
	}
}
