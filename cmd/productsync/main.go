// Command productsync runs the product matching service and its tooling.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "productsync",
		Usage:   "Match and deduplicate product records into a canonical catalog",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "env-file",
				Usage:   "Dotenv files to load before reading the environment",
				EnvVars: []string{"PRODUCTSYNC_ENV_FILE"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override LOG_LEVEL (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			ingestCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
