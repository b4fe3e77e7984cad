package main

import (
	"github.com/Gobusters/ectologger"
	"github.com/urfave/cli/v2"

	"github.com/Ramsey-B/productsync/config"
	"github.com/Ramsey-B/productsync/pkg/logging"
)

// bootstrap loads configuration and builds the logger shared by every
// command. The returned func flushes the logger.
func bootstrap(c *cli.Context) (*config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return nil, nil, nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	logger, zapLogger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, func() { _ = zapLogger.Sync() }, nil
}
