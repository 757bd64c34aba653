package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/harness"
	"github.com/samcharles93/qconv/internal/jobspec"
	"github.com/samcharles93/qconv/internal/tensorio"
)

// These tests share the package-level flag destinations, so none of them
// run in parallel.

const depthwiseJob = `{
  "name": "dw",
  "input":  {"shape": [1, 2, 3, 3], "dtype": "u8", "data": [1,2,3,4,5,6,7,8,9, 9,8,7,6,5,4,3,2,1], "quant": {"scale": 0.5, "zero_point": 1}},
  "filter": {"shape": [2, 2, 3, 3], "dtype": "u8", "data": [
     0,0,0, 0,1,0, 0,0,0,   0,0,0, 0,1,0, 0,0,0,
     1,1,1, 1,1,1, 1,1,1,   1,1,1, 1,1,1, 1,1,1], "quant": {"scale": 0.5, "zero_point": 0}},
  "output": {"quant": {"scale": 1, "zero_point": 0}},
  "params": {"pad_top": 1, "pad_left": 1, "stride_y": 1, "stride_x": 1, "depthwise": true},
  "label": 3
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	noConfig := filepath.Join(t.TempDir(), "absent.yaml")
	full := append([]string{"qconv", "--config", noConfig, "--log-format", "text", "--log-level", "error"}, args...)
	err := app.Run(context.Background(), full)
	return out.String(), err
}

func TestRunPrintsResult(t *testing.T) {
	job := writeFile(t, t.TempDir(), "dw.json", depthwiseJob)

	out, err := runApp(t, "run", "--job", job)
	require.NoError(t, err)

	var res jobspec.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "dw", res.Name)
	assert.Len(t, res.Output, 4*9)
	require.NotNil(t, res.Multiplier)
	assert.Equal(t, int32(1), res.Multiplier.Shift)
}

func TestRunWritesRawOutput(t *testing.T) {
	dir := t.TempDir()
	job := writeFile(t, dir, "dw.json", depthwiseJob)
	raw := filepath.Join(dir, "out.bin")

	_, err := runApp(t, "run", "--job", job, "--out", raw, "--out-dtype", "u8", "--accumulator", "i64")
	require.NoError(t, err)

	got, err := tensorio.ReadFile[uint8](raw, tensorio.DTypeU8)
	require.NoError(t, err)
	require.Len(t, got, 36)
	// Channel 0 is the identity over (x - 1) * 0.25, rounded half away from zero.
	assert.Equal(t, uint8(0), got[0])
	assert.Equal(t, uint8(1), got[2])
	assert.Equal(t, uint8(2), got[8])

	_, err = runApp(t, "run", "--job", job, "--out", raw, "--out-dtype", "f32")
	require.ErrorContains(t, err, "cannot encode")
}

func TestRunRejectsBadAccumulator(t *testing.T) {
	job := writeFile(t, t.TempDir(), "dw.json", depthwiseJob)
	_, err := runApp(t, "run", "--job", job, "--accumulator", "i128")
	require.Error(t, err)
}

func TestInspect(t *testing.T) {
	job := writeFile(t, t.TempDir(), "dw.json", depthwiseJob)

	out, err := runApp(t, "inspect", "--job", job)
	require.NoError(t, err)
	assert.Contains(t, out, "output:       [1x4x3x3]")
	assert.Contains(t, out, "padding:      bottom=1 right=1")
	assert.Contains(t, out, "multiplier:   0.25 = 1073741824 * 2^-31 * 2^-1")
	assert.Contains(t, out, "channels:     depthwise")
	assert.Contains(t, out, "out    3 <- in 1, filter slice 1")

	out, err = runApp(t, "inspect", "--job", job, "--json", "--max-channels", "2")
	require.NoError(t, err)
	var sum jobSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Len(t, sum.Channels, 2)
	assert.Equal(t, int32(1<<30), sum.Multiplier.Significand)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", depthwiseJob)
	writeFile(t, dir, "b.json", depthwiseJob)
	preds := filepath.Join(t.TempDir(), "preds.txt")

	_, err := runApp(t, "validate", "--data-dir", dir, "--validation-file-out", preds, "--workers", "2")
	require.NoError(t, err)
	recorded, err := harness.ReadPredictionsFile(preds)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	assert.Equal(t, recorded[0], recorded[1])

	_, err = runApp(t, "validate", "--data-dir", dir, "--validation-file-in", preds)
	require.NoError(t, err)

	require.NoError(t, harness.WritePredictionsFile(preds, []int{recorded[0] + 1, recorded[0]}))
	_, err = runApp(t, "validate", "--data-dir", dir, "--validation-file-in", preds)
	require.ErrorContains(t, err, "1 of 2 cases failed")
}

func TestValidateEmptyDir(t *testing.T) {
	_, err := runApp(t, "validate", "--data-dir", t.TempDir())
	require.ErrorContains(t, err, "no labelled jobs")
}

func TestVersion(t *testing.T) {
	out, err := runApp(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "version:"), out)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	path := writeFile(t, dir, "config.yaml", `
log_level: debug
workers: 3
strict: true
accumulator: i64
server_address: 0.0.0.0:9000
rate_limit: 2.5
`)
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NotNil(t, cfg.Workers)
	assert.Equal(t, int64(3), *cfg.Workers)
	require.NotNil(t, cfg.Strict)
	assert.True(t, *cfg.Strict)
	assert.Equal(t, "i64", cfg.Accumulator)
	assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddress)
	require.NotNil(t, cfg.RateLimit)
	assert.InDelta(t, 2.5, *cfg.RateLimit, 1e-9)
	assert.Nil(t, cfg.RateBurst)

	bad := writeFile(t, dir, "bad.yaml", "workers: [")
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestConfigAppliesUnlessFlagSet(t *testing.T) {
	run := func(args ...string) string {
		var acc string
		cmd := &cli.Command{
			Name:  "check",
			Flags: []cli.Flag{accumulatorFlag(&acc)},
			Action: func(ctx context.Context, c *cli.Command) error {
				applyRunConfig(c, Config{Accumulator: "f64"}, &acc)
				return nil
			},
		}
		require.NoError(t, cmd.Run(context.Background(), append([]string{"check"}, args...)))
		return acc
	}
	assert.Equal(t, "f64", run())
	assert.Equal(t, "i64", run("--accumulator", "i64"))
}
