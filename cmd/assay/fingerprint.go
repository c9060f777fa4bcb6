package main

import (
	"context"
	"errors"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/assay/internal/fingerprint"
)

func fingerprintCommand() *cli.Command {
	return &cli.Command{
		Name:      "fingerprint",
		Usage:     "Print the sampled content hash used as the cache key",
		ArgsUsage: "<file> [file...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: console, json, markdown",
				Value: "console",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return errors.New("at least one file is required")
			}

			formatter, err := format.GetFormatter(cmd.String("format"))
			if err != nil {
				return err
			}

			data := make([]*format.Data, 0, cmd.NArg())

			for _, path := range cmd.Args().Slice() {
				fp, err := fingerprint.File(path)
				if err != nil {
					return err
				}

				data = append(data, &format.Data{
					Object: path,
					Meta: map[string]any{
						"hash":      fp.Hex(),
						"size":      humanize.IBytes(uint64(fp.Size)),
						"sampled":   humanize.IBytes(uint64(fp.SampleBytesRead)),
						"read_time": fp.ReadDuration.String(),
					},
				})
			}

			return formatter.PrintAll(data, os.Stdout)
		},
	}
}
