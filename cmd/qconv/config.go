package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the qconv configuration file (~/.config/qconv/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Jobs
	Workers     *int64 `yaml:"workers"`
	Accumulator string `yaml:"accumulator"`
	Strict      *bool  `yaml:"strict"`

	// Server
	ServerAddress string   `yaml:"server_address"`
	RateLimit     *float64 `yaml:"rate_limit"`
	RateBurst     *int64   `yaml:"rate_burst"`
}

// cfg is the loaded config, set by setup before any command runs.
var cfg Config

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qconv", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config; a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func applyLoggingConfig(c *cli.Command, conf Config) {
	if conf.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = conf.LogLevel
	}
	if conf.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = conf.LogFormat
	}
}

// applyRunConfig applies config file defaults to the run command.
func applyRunConfig(c *cli.Command, conf Config, accumulator *string) {
	if conf.Accumulator != "" && !c.IsSet("accumulator") {
		*accumulator = conf.Accumulator
	}
}

// applyValidateConfig applies config file defaults to the validate command.
func applyValidateConfig(c *cli.Command, conf Config, workers *int64, strict *bool, accumulator *string) {
	if conf.Workers != nil && !c.IsSet("workers") {
		*workers = *conf.Workers
	}
	if conf.Strict != nil && !c.IsSet("strict") {
		*strict = *conf.Strict
	}
	applyRunConfig(c, conf, accumulator)
}

// applyServeConfig applies config file defaults to the serve command.
func applyServeConfig(c *cli.Command, conf Config, addr *string, rateLimit *float64, rateBurst *int64) {
	if conf.ServerAddress != "" && !c.IsSet("addr") {
		*addr = conf.ServerAddress
	}
	if conf.RateLimit != nil && !c.IsSet("rate-limit") {
		*rateLimit = *conf.RateLimit
	}
	if conf.RateBurst != nil && !c.IsSet("rate-burst") {
		*rateBurst = *conf.RateBurst
	}
}
