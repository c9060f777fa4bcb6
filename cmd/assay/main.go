package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/assay/version"
)

func main() {
	ctx := context.Background()

	appl := &cli.Command{
		Name:    version.Name(),
		Usage:   "Forensic audio audit: authenticity and quality defects",
		Version: version.Version() + " " + version.Commit(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the TOML configuration file (default: $XDG_CONFIG_HOME/assay/config.toml)",
				Sources: cli.EnvVars("ASSAY_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error (overrides logging.level)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text, json (overrides logging.format)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Path to the results database (overrides paths.store)",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Path to the classifier artifact (overrides paths.model)",
			},
			&cli.StringFlag{
				Name:    "llm-endpoint",
				Usage:   "Arbiter generate endpoint, empty to disable (overrides llm.endpoint)",
				Sources: cli.EnvVars("ASSAY_LLM_ENDPOINT"),
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			auditCommand(),
			cacheCommand(),
			fingerprintCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		slog.Error("failed to run", "error", err)
		os.Exit(1)
	}
}
