package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/jobspec"
	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/internal/tensorio"
)

func runCmd() *cli.Command {
	var (
		jobPath     string
		outPath     string
		outDType    string
		accumulator string
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Execute one convolution job",
		Flags: []cli.Flag{
			jobFlag(&jobPath),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write the raw output buffer here instead of printing JSON",
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "out-dtype",
				Usage:       "encoding of --out (defaults to the output element type)",
				Destination: &outDType,
			},
			accumulatorFlag(&accumulator),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyRunConfig(cmd, cfg, &accumulator)
			log := logger.FromContext(ctx)

			spec, err := jobspec.Load(jobPath)
			if err != nil {
				return err
			}
			overrideAccumulator(cmd, spec, accumulator)

			res, err := jobspec.Execute(ctx, spec)
			if err != nil {
				return fmt.Errorf("job %s: %w", spec.Name, err)
			}
			log.Info("job complete",
				"job", res.Name,
				"shape", res.Shape.String(),
				"prediction", res.Prediction,
				"elapsed", res.Elapsed,
			)

			if outPath != "" {
				dt := tensorio.DTypeUnknown
				if outDType != "" {
					if dt, err = tensorio.ParseDType(outDType); err != nil {
						return err
					}
				}
				if err := res.WriteRaw(outPath, dt); err != nil {
					return err
				}
				log.Info("wrote output", "path", outPath, "elements", len(res.Output))
				return nil
			}
			return writeJSON(stdout(cmd), res)
		},
	}
}

// overrideAccumulator applies --accumulator to spec. A value that only came
// from the config file does not replace one the job file names itself.
func overrideAccumulator(cmd *cli.Command, spec *jobspec.Spec, accumulator string) {
	if accumulator == "" {
		return
	}
	if cmd.IsSet("accumulator") || spec.Accumulator == "" {
		spec.Accumulator = accumulator
	}
}

// stdout is where command output goes; tests swap the root writer.
func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
