package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/assay"
	"github.com/farcloser/assay/internal/classifier"
	"github.com/farcloser/assay/internal/output"
	"github.com/farcloser/assay/internal/store"
)

var errAuditFailed = errors.New("one or more files could not be audited")

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:      "audit",
		Usage:     "Audit audio files and print a verdict for each",
		ArgsUsage: "<file> [file...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "segmented",
				Usage: "Decode three short segments instead of the whole file",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Ignore cached results and analyze again",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Do not read or write the results database",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent audits (default: analysis.workers, or CPU count minus one)",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: console, json, markdown",
				Value: "console",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Print every measured field instead of the summary",
			},
		},
		Action: runAudit,
	}
}

func runAudit(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return errors.New("at least one file is required")
	}

	env, err := fromContext(ctx)
	if err != nil {
		return err
	}

	formatter, err := format.GetFormatter(cmd.String("format"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := env.options()
	opts.Reanalyze = cmd.Bool("force")
	opts.NoCache = cmd.Bool("no-cache")

	deps := assay.Deps{
		Classifier: classifier.New(env.cfg.Paths.Model, env.logger),
		Arbiter:    env.arbiter(),
	}

	if !opts.NoCache {
		db, err := store.Open(ctx, env.cfg.Paths.Store, env.logger)
		if err != nil {
			return fmt.Errorf("opening results database: %w", err)
		}
		defer db.Close()

		deps.Store = db
	}

	workers := env.cfg.Analysis.Workers
	if cmd.IsSet("workers") {
		workers = cmd.Int("workers")
	}

	segmented := env.cfg.Analysis.Segmented || cmd.Bool("segmented")

	pool := assay.NewPool(assay.New(deps, opts), workers)

	env.logger.Debug("auditing", "files", cmd.NArg(), "workers", pool.Workers(), "segmented", segmented)

	channels := make([]<-chan assay.Completion, 0, cmd.NArg())
	for _, path := range cmd.Args().Slice() {
		channels = append(channels, pool.Submit(ctx, path, segmented))
	}

	data := make([]*format.Data, 0, len(channels))
	failures := 0

	for _, ch := range channels {
		completion := <-ch

		if completion.Err != nil {
			failures++

			env.logger.Error("audit failed", "file", completion.Path, "stage", completion.Stage, "error", completion.Err)
		}

		data = append(data, &format.Data{
			Object: completion.Path,
			Meta:   completionMeta(completion, cmd.Bool("debug")),
		})
	}

	pool.Wait()

	if err = formatter.PrintAll(data, os.Stdout); err != nil {
		return err
	}

	if failures > 0 {
		return fmt.Errorf("%w: %d of %d", errAuditFailed, failures, len(channels))
	}

	return nil
}

func completionMeta(completion assay.Completion, debug bool) map[string]any {
	if completion.Result == nil {
		return map[string]any{
			"stage": string(completion.Stage),
			"error": completion.Err.Error(),
		}
	}

	var meta map[string]any
	if debug {
		meta = output.ResultToMap(completion.Result)
	} else {
		meta = output.Summary(completion.Result)
	}

	if completion.Err != nil {
		meta["error"] = completion.Err.Error()
	}

	return meta
}
