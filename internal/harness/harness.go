// Package harness runs labelled convolution jobs as a classifier test: each
// job's output is a score vector whose argmax is compared against the job's
// label and, optionally, against predictions recorded by an earlier run.
package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/qconv/internal/jobspec"
	"github.com/samcharles93/qconv/internal/logger"
)

// topN is how many ranked scores are logged per case.
const topN = 5

// Case is one labelled job.
type Case struct {
	ID    int
	Label int
	Spec  *jobspec.Spec
}

// Options configures Run.
type Options struct {
	// Workers bounds concurrent jobs. Zero means GOMAXPROCS.
	Workers int
	// Strict fails every case whose prediction differs from its label.
	Strict bool
	// ValidationIn holds expected predictions indexed by case ID. When
	// non-empty, a case fails if its prediction differs.
	ValidationIn []int
}

// Outcome is the per-case result.
type Outcome struct {
	ID         int
	Prediction int
	Label      int
	Err        error
}

// Failed reports whether the case did not pass.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Report summarizes a run.
type Report struct {
	Total    int
	Correct  int
	Failed   int
	Outcomes []Outcome
}

// Accuracy is Correct over the cases that passed. It is 0 when none did.
func (r *Report) Accuracy() float64 {
	passed := r.Total - r.Failed
	if passed == 0 {
		return 0
	}
	return float64(r.Correct) / float64(passed)
}

// Predictions returns the predictions of passing cases in case order, the
// form written to a validation file.
func (r *Report) Predictions() []int {
	out := make([]int, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if !o.Failed() {
			out = append(out, o.Prediction)
		}
	}
	return out
}

// Run executes every case and scores it. Case failures are recorded in the
// report; Run itself only fails when ctx is cancelled.
func Run(ctx context.Context, cases []Case, opts Options) (*Report, error) {
	log := logger.FromContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]Outcome, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = runCase(gctx, log, c, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Total: len(cases), Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Failed():
			report.Failed++
		case o.Prediction == o.Label:
			report.Correct++
		}
	}
	log.Info(fmt.Sprintf("Overall accuracy: %.3f", report.Accuracy()),
		"cases", report.Total, "correct", report.Correct, "failed", report.Failed)
	return report, nil
}

func runCase(ctx context.Context, log logger.Logger, c Case, opts Options) Outcome {
	out := Outcome{ID: c.ID, Label: c.Label, Prediction: -1}
	log = log.With("case", c.ID)

	res, err := jobspec.Execute(ctx, c.Spec)
	if err != nil {
		log.Error("case failed", "job", c.Spec.Name, "error", err)
		out.Err = err
		return out
	}
	out.Prediction = res.Prediction

	for i, s := range res.Top(topN) {
		log.Debug(fmt.Sprintf("Top(%d) prediction is %d", i+1, s.Index), "confidence", s.Value)
	}

	if opts.Strict && out.Prediction != c.Label {
		out.Err = fmt.Errorf("prediction %d is incorrect (should be %d)", out.Prediction, c.Label)
		log.Error("case failed", "error", out.Err)
		return out
	}
	if len(opts.ValidationIn) > 0 {
		if c.ID >= len(opts.ValidationIn) {
			out.Err = fmt.Errorf("validation file has no prediction for case %d", c.ID)
		} else if want := opts.ValidationIn[c.ID]; out.Prediction != want {
			out.Err = fmt.Errorf("prediction %d doesn't match the prediction in the validation file (%d)", out.Prediction, want)
		}
		if out.Err != nil {
			log.Error("case failed", "error", out.Err)
		}
	}
	return out
}

// LoadCases reads every *.json job in dir, in name order. Jobs without a
// label are skipped; IDs are assigned to the remaining jobs from zero.
func LoadCases(dir string) ([]Case, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	cases := make([]Case, 0, len(paths))
	for _, p := range paths {
		spec, err := jobspec.Load(p)
		if err != nil {
			return nil, err
		}
		if spec.Label == nil {
			continue
		}
		cases = append(cases, Case{ID: len(cases), Label: *spec.Label, Spec: spec})
	}
	return cases, nil
}
