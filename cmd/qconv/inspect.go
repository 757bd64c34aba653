package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/conv"
	"github.com/samcharles93/qconv/internal/fixedpoint"
	"github.com/samcharles93/qconv/internal/jobspec"
	"github.com/samcharles93/qconv/internal/tensor"
)

// jobSummary is what inspect derives from a job without running it.
type jobSummary struct {
	Name        string             `json:"name"`
	DType       string             `json:"dtype"`
	Accumulator string             `json:"accumulator"`
	Input       tensor.Shape       `json:"input"`
	Filter      tensor.Shape       `json:"filter"`
	Output      tensor.Shape       `json:"output"`
	Depthwise   bool               `json:"depthwise"`
	PadBottom   int                `json:"pad_bottom"`
	PadRight    int                `json:"pad_right"`
	Channels    []conv.ChannelSpan `json:"channels"`
	Multiplier  *multiplierSummary `json:"multiplier,omitempty"`
}

type multiplierSummary struct {
	Real        float32 `json:"real"`
	Significand int32   `json:"significand"`
	Shift       int32   `json:"shift"`
	Effective   float64 `json:"effective"`
}

func inspectCmd() *cli.Command {
	var (
		jobPath      string
		asJSON       bool
		maxChannels  int64
		showChannels bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the shapes, channel mapping and fixed-point multiplier of a job",
		Flags: []cli.Flag{
			jobFlag(&jobPath),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "channels",
				Usage:       "list the channel mapping",
				Value:       true,
				Destination: &showChannels,
			},
			&cli.Int64Flag{
				Name:        "max-channels",
				Usage:       "output channels to list (0 lists all)",
				Value:       16,
				Destination: &maxChannels,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec, err := jobspec.Load(jobPath)
			if err != nil {
				return err
			}
			sum, err := summarize(spec)
			if err != nil {
				return err
			}
			if !showChannels {
				sum.Channels = nil
			} else if maxChannels > 0 && int64(len(sum.Channels)) > maxChannels {
				sum.Channels = sum.Channels[:maxChannels]
			}

			w := stdout(cmd)
			if asJSON {
				return writeJSON(w, sum)
			}
			printSummary(w, sum)
			return nil
		},
	}
}

func summarize(spec *jobspec.Spec) (*jobSummary, error) {
	in, f := spec.Input.Shape, spec.Filter.Shape
	if err := in.Validate4D(); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if err := f.Validate4D(); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	out, err := spec.OutputShape()
	if err != nil {
		return nil, err
	}

	p := spec.Params
	sum := &jobSummary{
		Name:        spec.Name,
		DType:       spec.ElementDType().String(),
		Accumulator: spec.AccumulatorName(),
		Input:       in,
		Filter:      f,
		Output:      out,
		Depthwise:   p.Depthwise,
		PadBottom:   conv.ImpliedPadding(in[tensor.DimH], f[2], p.StrideY, p.PadTop, out[tensor.DimH]),
		PadRight:    conv.ImpliedPadding(in[tensor.DimW], f[3], p.StrideX, p.PadLeft, out[tensor.DimW]),
		Channels:    conv.ChannelSpans(f, p.Depthwise),
	}

	q := spec.Quantization()
	if q.Output.Quantized() {
		m := q.Multiplier()
		if !(m > 0 && m <= 1) {
			return nil, fmt.Errorf("rescale multiplier %v outside (0, 1]", m)
		}
		fp := fixedpoint.New(m)
		sum.Multiplier = &multiplierSummary{
			Real:        m,
			Significand: fp.Significand,
			Shift:       fp.Shift,
			Effective:   fp.Float64(),
		}
	}
	return sum, nil
}

func printSummary(w io.Writer, s *jobSummary) {
	fmt.Fprintf(w, "job:          %s\n", s.Name)
	fmt.Fprintf(w, "dtype:        %s (accumulator %s)\n", s.DType, s.Accumulator)
	fmt.Fprintf(w, "input:        %s\n", s.Input)
	fmt.Fprintf(w, "filter:       %s\n", s.Filter)
	fmt.Fprintf(w, "output:       %s\n", s.Output)
	fmt.Fprintf(w, "padding:      bottom=%d right=%d (implied)\n", s.PadBottom, s.PadRight)
	if s.Multiplier != nil {
		m := s.Multiplier
		fmt.Fprintf(w, "multiplier:   %g = %d * 2^-31 * 2^-%d (%.9g)\n", m.Real, m.Significand, m.Shift, m.Effective)
	} else {
		fmt.Fprintf(w, "multiplier:   none (unquantized output)\n")
	}

	if len(s.Channels) == 0 {
		return
	}
	mode := "standard"
	if s.Depthwise {
		mode = "depthwise"
	}
	fmt.Fprintf(w, "channels:     %s\n", mode)
	for _, c := range s.Channels {
		if c.Count == 1 {
			fmt.Fprintf(w, "  out %4d <- in %d, filter slice %d\n", c.OutChannel, c.First, c.FilterSlice)
		} else {
			fmt.Fprintf(w, "  out %4d <- in [%d, %d), filter slice %d\n", c.OutChannel, c.First, c.First+c.Count, c.FilterSlice)
		}
	}
}
