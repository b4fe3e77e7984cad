package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Ramsey-B/productsync/pkg/ingest"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Resolve a YAML or JSON file of product records and print a summary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the records file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Exit non-zero when any record fails",
			},
		},
		Action: runIngest,
	}
}

func runIngest(c *cli.Context) error {
	cfg, logger, flush, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer flush()

	records, err := ingest.LoadFile(c.String("file"))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		logger.Warnf("No records in %s", c.String("file"))
		return nil
	}

	ctx := c.Context
	app := newApplication(cfg, logger, modeBatch)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Shutdown finished with errors")
		}
	}()
	if err := app.Start(ctx); err != nil {
		return err
	}

	summary := ingest.Summarize(app.processor.ProcessBatch(ctx, records))

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}

	if c.Bool("strict") && len(summary.Failures) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d records failed", len(summary.Failures), summary.Total), 2)
	}
	return nil
}
