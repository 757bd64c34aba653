package main

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/jobspec"
)

var (
	logLevel   string
	logFormat  string
	debug      bool
	configFile string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml",
		Value:       defaultConfigPath(),
		Destination: &configFile,
	}
}

func jobFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "job",
		Aliases:     []string{"j"},
		Usage:       "path to a JSON job file",
		Required:    true,
		Destination: dest,
	}
}

func accumulatorFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "accumulator",
		Usage:       "accumulator type (i32, i64, f32, f64); overrides the job file",
		Destination: dest,
		Validator: func(v string) error {
			switch v {
			case "", jobspec.AccumulatorI32, jobspec.AccumulatorI64, jobspec.AccumulatorF32, jobspec.AccumulatorF64:
				return nil
			}
			return fmt.Errorf("unknown accumulator %q", v)
		},
	}
}

func workersFlag(dest *int64) cli.Flag {
	return &cli.Int64Flag{
		Name:        "workers",
		Aliases:     []string{"w"},
		Usage:       "concurrent jobs",
		Value:       int64(runtime.GOMAXPROCS(0)),
		Destination: dest,
	}
}
