package jobspec

import (
	"cmp"
	"os"
	"slices"
	"time"

	"github.com/samcharles93/qconv/internal/conv"
	"github.com/samcharles93/qconv/internal/fixedpoint"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/internal/tensorio"
)

// Result is the outcome of one executed job.
type Result struct {
	Name        string             `json:"name,omitempty"`
	Shape       tensor.Shape       `json:"shape"`
	DType       tensorio.DType     `json:"dtype"`
	Output      []float64          `json:"output"`
	Dequantized []float32          `json:"dequantized,omitempty"`
	Quant       tensor.QuantParams `json:"quant"`
	Multiplier  *MultiplierInfo    `json:"multiplier,omitempty"`
	Prediction  int                `json:"prediction"`
	Label       *int               `json:"label,omitempty"`
	Elapsed     time.Duration      `json:"elapsed_ns"`

	encode func(tensorio.DType) ([]byte, error)
}

// MultiplierInfo records the fixed-point rescale a quantized job used.
type MultiplierInfo struct {
	Real        float32 `json:"real"`
	Significand int32   `json:"significand"`
	Shift       int32   `json:"shift"`
}

// Score pairs an output index with its real-valued score.
type Score struct {
	Index int     `json:"index"`
	Value float32 `json:"value"`
}

func newResult[T tensor.Element](s *Spec, out []T, shape tensor.Shape, q conv.Quantization, elapsed time.Duration) *Result {
	r := &Result{
		Name:    s.Name,
		Shape:   shape,
		DType:   tensorio.DTypeOf[T](),
		Output:  tensorio.ToFloat64(out),
		Quant:   q.Output,
		Label:   s.Label,
		Elapsed: elapsed,
		encode: func(dt tensorio.DType) ([]byte, error) {
			return tensorio.Encode(out, dt)
		},
	}
	if q.Output.Quantized() {
		m := q.Multiplier()
		fp := fixedpoint.New(m)
		r.Multiplier = &MultiplierInfo{Real: m, Significand: fp.Significand, Shift: fp.Shift}
		r.Dequantized = make([]float32, len(r.Output))
		for i, v := range r.Output {
			r.Dequantized[i] = q.Output.Dequantize(v)
		}
	}
	r.Prediction = argmax(r.Scores())
	return r
}

// Scores returns the real-valued output: dequantized when the output is
// quantized, the raw values otherwise.
func (r *Result) Scores() []float32 {
	if r.Dequantized != nil {
		return r.Dequantized
	}
	out := make([]float32, len(r.Output))
	for i, v := range r.Output {
		out[i] = float32(v)
	}
	return out
}

// Top returns the k highest scores, best first. Ties keep index order.
func (r *Result) Top(k int) []Score {
	scores := r.Scores()
	ranked := make([]Score, len(scores))
	for i, v := range scores {
		ranked[i] = Score{Index: i, Value: v}
	}
	slices.SortStableFunc(ranked, func(a, b Score) int {
		return cmp.Compare(b.Value, a.Value)
	})
	return ranked[:min(k, len(ranked))]
}

// Correct reports whether the job carried a label and the prediction matches it.
func (r *Result) Correct() bool {
	return r.Label != nil && *r.Label == r.Prediction
}

// EncodeRaw encodes the typed output buffer as dt.
func (r *Result) EncodeRaw(dt tensorio.DType) ([]byte, error) {
	if dt == tensorio.DTypeUnknown {
		dt = r.DType
	}
	return r.encode(dt)
}

// WriteRaw writes the output buffer to path as dt.
func (r *Result) WriteRaw(path string, dt tensorio.DType) error {
	raw, err := r.EncodeRaw(dt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// argmax returns the index of the first maximum, or -1 for an empty slice.
func argmax(v []float32) int {
	best := -1
	for i, x := range v {
		if best < 0 || x > v[best] {
			best = i
		}
	}
	return best
}
