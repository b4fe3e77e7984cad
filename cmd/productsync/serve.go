package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API and, when enabled, the Kafka ingest consumer",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, logger, flush, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApplication(cfg, logger, modeServe)
	if err := app.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = app.Stop(shutdownCtx)
		return err
	}
	app.checker.SetReady(true)
	logger.Infof("%s %s started", cfg.AppName, cfg.Version)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case serveErr = <-app.serverErr:
		logger.WithError(serveErr).Error("HTTP server stopped unexpectedly")
	}

	app.checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
