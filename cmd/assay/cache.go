package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/farcloser/primordium/format"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/assay/internal/output"
	"github.com/farcloser/assay/internal/store"
)

const shortHash = 12

var errNotCached = errors.New("no cached result for hash")

func cacheCommand() *cli.Command {
	formatFlag := &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: console, json, markdown",
		Value: "console",
	}

	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the results database",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached results, most recent first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum rows, 0 for all",
						Value: 50, //nolint:mnd
					},
					formatFlag,
				},
				Action: runCacheList,
			},
			{
				Name:      "show",
				Usage:     "Print the full cached result for a file hash",
				ArgsUsage: "<hash>",
				Flags:     []cli.Flag{formatFlag},
				Action:    runCacheShow,
			},
			{
				Name:   "digest",
				Usage:  "Summarize cached results by verdict and arbitration status",
				Flags:  []cli.Flag{formatFlag},
				Action: runCacheDigest,
			},
			{
				Name:      "history",
				Usage:     "List results superseded by re-analysis of a file hash",
				ArgsUsage: "<hash>",
				Flags:     []cli.Flag{formatFlag},
				Action:    runCacheHistory,
			},
		},
	}
}

func openStore(ctx context.Context) (*store.Store, error) {
	env, err := fromContext(ctx)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, env.cfg.Paths.Store, env.logger)
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}

	return db, nil
}

func runCacheList(ctx context.Context, cmd *cli.Command) error {
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.String("format") == "console" && stdoutIsTerminal() {
		rows := make([][]string, 0, len(entries))
		for _, entry := range entries {
			rows = append(rows, []string{
				entry.Hash[:min(len(entry.Hash), shortHash)],
				entry.FileName,
				string(entry.Verdict),
				strconv.FormatFloat(entry.SuspicionScore, 'f', 2, 64),
				string(entry.Classification),
				string(entry.ArbitrationStatus),
				humanize.Time(entry.Timestamp),
			})
		}

		fmt.Fprintln(os.Stdout, renderTable(
			[]string{"Hash", "File", "Verdict", "Score", "Label", "Arbitration", "Analyzed"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
		))

		return nil
	}

	formatter, err := format.GetFormatter(cmd.String("format"))
	if err != nil {
		return err
	}

	data := make([]*format.Data, 0, len(entries))
	for _, entry := range entries {
		data = append(data, &format.Data{
			Object: entry.FilePath,
			Meta: map[string]any{
				"file_hash":          entry.Hash,
				"verdict":            string(entry.Verdict),
				"suspicion_score":    entry.SuspicionScore,
				"snr_value":          entry.SNRDb,
				"clipping_count":     entry.ClippingCount,
				"was_segmented":      entry.Segmented,
				"ml_classification":  string(entry.Classification),
				"ml_confidence":      entry.Confidence,
				"llm_involved":       entry.LLMInvolved,
				"arbitration_status": string(entry.ArbitrationStatus),
				"timestamp":          entry.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			},
		})
	}

	return formatter.PrintAll(data, os.Stdout)
}

func runCacheShow(ctx context.Context, cmd *cli.Command) error {
	hash, err := hashArg(cmd)
	if err != nil {
		return err
	}

	formatter, err := format.GetFormatter(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.Get(ctx, hash)
	if err != nil {
		return err
	}

	if result == nil {
		return fmt.Errorf("%w: %s", errNotCached, hash)
	}

	return formatter.PrintAll([]*format.Data{{Object: result.FilePath, Meta: output.ResultToMap(result)}}, os.Stdout)
}

func runCacheHistory(ctx context.Context, cmd *cli.Command) error {
	hash, err := hashArg(cmd)
	if err != nil {
		return err
	}

	formatter, err := format.GetFormatter(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	superseded, err := db.History(ctx, hash)
	if err != nil {
		return err
	}

	data := make([]*format.Data, 0, len(superseded))
	for _, result := range superseded {
		data = append(data, &format.Data{Object: result.FilePath, Meta: output.Summary(result)})
	}

	return formatter.PrintAll(data, os.Stdout)
}

func runCacheDigest(ctx context.Context, cmd *cli.Command) error {
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tallies, err := db.Digest(ctx)
	if err != nil {
		return err
	}

	if cmd.String("format") == "console" && stdoutIsTerminal() {
		rows := make([][]string, 0, len(tallies))
		for _, tally := range tallies {
			rows = append(rows, []string{
				string(tally.Verdict),
				string(tally.ArbitrationStatus),
				strconv.Itoa(tally.Count),
				strconv.FormatFloat(tally.MeanSuspicion, 'f', 2, 64),
				strconv.Itoa(tally.Superseded),
			})
		}

		fmt.Fprintln(os.Stdout, renderTable(
			[]string{"Verdict", "Arbitration", "Files", "Mean score", "Superseded"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
		))

		return nil
	}

	formatter, err := format.GetFormatter(cmd.String("format"))
	if err != nil {
		return err
	}

	data := make([]*format.Data, 0, len(tallies))
	for _, tally := range tallies {
		data = append(data, &format.Data{
			Object: string(tally.Verdict) + "/" + string(tally.ArbitrationStatus),
			Meta: map[string]any{
				"count":          tally.Count,
				"mean_suspicion": tally.MeanSuspicion,
				"superseded":     tally.Superseded,
			},
		})
	}

	return formatter.PrintAll(data, os.Stdout)
}

func hashArg(cmd *cli.Command) (string, error) {
	if cmd.NArg() != 1 {
		return "", errors.New("exactly one hash is required")
	}

	return cmd.Args().First(), nil
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
