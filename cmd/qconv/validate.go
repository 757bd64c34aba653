package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/harness"
	"github.com/samcharles93/qconv/internal/logger"
)

func validateCmd() *cli.Command {
	var (
		dataDir     string
		fileIn      string
		fileOut     string
		workers     int64
		strict      bool
		accumulator string
	)

	return &cli.Command{
		Name:  "validate",
		Usage: "Run every labelled job in a directory as a classifier test",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "data-dir",
				Aliases:     []string{"d"},
				Usage:       "directory containing *.json jobs with a label",
				Required:    true,
				Destination: &dataDir,
			},
			&cli.StringFlag{
				Name:        "validation-file-in",
				Usage:       "expected predictions, one per line, to compare against",
				Destination: &fileIn,
			},
			&cli.StringFlag{
				Name:        "validation-file-out",
				Usage:       "save predictions here for a later --validation-file-in",
				Destination: &fileOut,
			},
			workersFlag(&workers),
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "fail any case whose prediction differs from its label",
				Destination: &strict,
			},
			accumulatorFlag(&accumulator),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyValidateConfig(cmd, cfg, &workers, &strict, &accumulator)
			log := logger.FromContext(ctx)

			cases, err := harness.LoadCases(dataDir)
			if err != nil {
				return err
			}
			if len(cases) == 0 {
				return fmt.Errorf("no labelled jobs in %s", dataDir)
			}
			for _, c := range cases {
				overrideAccumulator(cmd, c.Spec, accumulator)
			}

			opts := harness.Options{Workers: int(workers), Strict: strict}
			if fileIn != "" {
				if opts.ValidationIn, err = harness.ReadPredictionsFile(fileIn); err != nil {
					return err
				}
			}

			log.Info("running cases", "cases", len(cases), "workers", workers, "strict", strict)
			report, err := harness.Run(ctx, cases, opts)
			if err != nil {
				return err
			}

			if fileOut != "" {
				if err := harness.WritePredictionsFile(fileOut, report.Predictions()); err != nil {
					return err
				}
				log.Info("saved predictions", "path", fileOut)
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d cases failed", report.Failed, report.Total)
			}
			return nil
		},
	}
}
