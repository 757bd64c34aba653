package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/qconv/internal/jobspec"
	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/internal/tensor"
)

// classifierJob is a 1x1 convolution over a 4-class one-hot input, so the
// prediction is the index of the hot element.
func classifierJob(hot, label int) string {
	data := []string{"0", "0", "0", "0"}
	data[hot] = "9"
	return fmt.Sprintf(`{
	  "input":  {"shape": [1, 1, 1, 4], "dtype": "u8", "data": [%s], "quant": {"scale": 0.5, "zero_point": 0}},
	  "filter": {"shape": [1, 1, 1, 1], "dtype": "u8", "data": [2], "quant": {"scale": 0.5, "zero_point": 0}},
	  "output": {"quant": {"scale": 1, "zero_point": 0}},
	  "params": {"stride_y": 1, "stride_x": 1},
	  "label": %d
	}`, strings.Join(data, ","), label)
}

func makeCases(t *testing.T, hots, labels []int) []Case {
	t.Helper()
	cases := make([]Case, len(hots))
	for i := range hots {
		s, err := jobspec.Decode(strings.NewReader(classifierJob(hots[i], labels[i])))
		require.NoError(t, err)
		cases[i] = Case{ID: i, Label: labels[i], Spec: s}
	}
	return cases
}

func quietContext(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := logger.Open("text", "debug", &buf)
	require.NoError(t, err)
	return logger.WithContext(context.Background(), log), &buf
}

func TestRunAccuracy(t *testing.T) {
	t.Parallel()
	ctx, logs := quietContext(t)
	cases := makeCases(t, []int{0, 1, 2, 3}, []int{0, 1, 2, 0})

	report, err := Run(ctx, cases, Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 3, report.Correct)
	assert.Equal(t, 0, report.Failed)
	assert.InDelta(t, 0.75, report.Accuracy(), 1e-9)
	assert.Equal(t, []int{0, 1, 2, 3}, report.Predictions())

	out := logs.String()
	assert.Contains(t, out, "Overall accuracy: 0.750")
	assert.Contains(t, out, "Top(1) prediction is 3")
}

func TestRunStrict(t *testing.T) {
	t.Parallel()
	ctx, _ := quietContext(t)
	cases := makeCases(t, []int{0, 1}, []int{0, 2})

	report, err := Run(ctx, cases, Options{Strict: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Correct)
	assert.EqualError(t, report.Outcomes[1].Err, "prediction 1 is incorrect (should be 2)")
	assert.Equal(t, []int{0}, report.Predictions())
	assert.InDelta(t, 1.0, report.Accuracy(), 1e-9)
}

func TestRunValidationFile(t *testing.T) {
	t.Parallel()
	ctx, _ := quietContext(t)
	cases := makeCases(t, []int{0, 1, 2}, []int{0, 1, 2})

	report, err := Run(ctx, cases, Options{ValidationIn: []int{0, 3}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.False(t, report.Outcomes[0].Failed())
	assert.Contains(t, report.Outcomes[1].Err.Error(), "validation file (3)")
	assert.Contains(t, report.Outcomes[2].Err.Error(), "no prediction for case 2")
}

func TestRunEmptyValidationFileIsIgnored(t *testing.T) {
	t.Parallel()
	ctx, _ := quietContext(t)
	cases := makeCases(t, []int{0, 1}, []int{0, 1})

	report, err := Run(ctx, cases, Options{ValidationIn: []int{}})
	require.NoError(t, err)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 2, report.Correct)
}

func TestRunJobError(t *testing.T) {
	t.Parallel()
	ctx, _ := quietContext(t)
	cases := makeCases(t, []int{0, 1}, []int{0, 1})
	cases[1].Spec.Accumulator = "bogus"

	report, err := Run(ctx, cases, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Outcomes[1].Err, jobspec.ErrInvalidJob)
	assert.Equal(t, -1, report.Outcomes[1].Prediction)
}

func TestRunBadOutputShapeFailsCase(t *testing.T) {
	t.Parallel()
	ctx, _ := quietContext(t)
	cases := makeCases(t, []int{0, 1}, []int{0, 1})
	cases[0].Spec.Output.Shape = tensor.Shape{1, 1, -1, 4}

	report, err := Run(ctx, cases, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Outcomes[0].Err, jobspec.ErrInvalidJob)
	assert.False(t, report.Outcomes[1].Failed())
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	ctx, _ := quietContext(t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	_, err := Run(ctx, makeCases(t, []int{0}, []int{0}), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmptyReport(t *testing.T) {
	t.Parallel()
	r := &Report{}
	assert.Zero(t, r.Accuracy())
	assert.Empty(t, r.Predictions())
}

func TestLoadCases(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write := func(name, doc string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
	}
	write("b.json", classifierJob(1, 1))
	write("a.json", classifierJob(2, 2))
	write("unlabelled.json", `{"input": {"shape": [1,1,1,1], "dtype": "u8", "data": [1]}, "filter": {"shape": [1,1,1,1], "dtype": "u8", "data": [1]}}`)
	write("notes.txt", "ignored")

	cases, err := LoadCases(dir)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "a", cases[0].Spec.Name)
	assert.Equal(t, 0, cases[0].ID)
	assert.Equal(t, 2, cases[0].Label)
	assert.Equal(t, 1, cases[1].ID)

	_, err = LoadCases(filepath.Join(dir, "a.json"))
	assert.Error(t, err)
}

func TestPredictionsRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WritePredictions(&buf, []int{3, 0, 17}))
	assert.Equal(t, "3\n0\n17\n", buf.String())

	got, err := ReadPredictions(strings.NewReader("3\n\n0\n 17 \n"))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 17}, got)

	_, err = ReadPredictions(strings.NewReader("1\n-2\n"))
	assert.ErrorContains(t, err, "line 2")
	assert.Error(t, WritePredictions(&buf, []int{-1}))
}

func TestPredictionsFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "preds.txt")
	require.NoError(t, WritePredictionsFile(path, []int{1, 2}))
	got, err := ReadPredictionsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	_, err = ReadPredictionsFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "open validation file")
}
