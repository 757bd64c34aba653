package conv

import (
	"errors"
	"fmt"

	"github.com/samcharles93/qconv/internal/tensor"
)

// ErrInvalidJob is wrapped by every error Validate returns.
var ErrInvalidJob = errors.New("invalid convolution job")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJob, fmt.Sprintf(format, args...))
}

// OutputSize returns the number of output positions along one axis, or 0
// when the padded input is smaller than the kernel.
func OutputSize(in, kernel, stride, padBefore, padAfter int) int {
	padded := in + padBefore + padAfter
	if stride <= 0 || padded < kernel {
		return 0
	}
	return (padded-kernel)/stride + 1
}

// ImpliedPadding returns the smallest bottom (or right) padding that makes an
// axis of in elements produce out positions.
func ImpliedPadding(in, kernel, stride, padBefore, out int) int {
	return max(0, (out-1)*stride+kernel-in-padBefore)
}

// OutputChannels derives Cout from a filter shape.
func OutputChannels(filter tensor.Shape, depthwise bool) int {
	if depthwise {
		return filter[0] * filter[1]
	}
	return filter[0]
}

// Validate checks the shape and buffer invariants Convolve assumes. Callers
// run it once when a job is built; Convolve itself does not.
func (job Job[T, B]) Validate(q Quantization) error {
	if err := job.ValidateShapes(); err != nil {
		return err
	}

	in, f, out := job.InputShape, job.FilterShape, job.OutputShape
	if len(job.Input) < in.NumElements() {
		return invalid("input buffer has %d elements, shape %v needs %d", len(job.Input), in, in.NumElements())
	}
	if len(job.Filter) < f.NumElements() {
		return invalid("filter buffer has %d elements, shape %v needs %d", len(job.Filter), f, f.NumElements())
	}
	if len(job.Output) < out.NumElements() {
		return invalid("output buffer has %d elements, shape %v needs %d", len(job.Output), out, out.NumElements())
	}
	if job.Params.BiasEnabled && len(job.Bias) < out[tensor.DimC] {
		return invalid("bias buffer has %d elements, need %d", len(job.Bias), out[tensor.DimC])
	}

	return validateQuantization[T](q)
}

// ValidateShapes checks the shapes and parameters alone. It does not look at
// the buffers, so a caller can run it before allocating the output.
func (job Job[T, B]) ValidateShapes() error {
	for _, s := range []struct {
		name  string
		shape tensor.Shape
	}{
		{"input", job.InputShape},
		{"filter", job.FilterShape},
		{"output", job.OutputShape},
	} {
		if err := s.shape.Validate4D(); err != nil {
			return invalid("%s: %v", s.name, err)
		}
	}

	p := job.Params
	if p.StrideY <= 0 || p.StrideX <= 0 {
		return invalid("strides must be positive, got %dx%d", p.StrideY, p.StrideX)
	}
	if p.PadTop < 0 || p.PadLeft < 0 {
		return invalid("padding must be non-negative, got top=%d left=%d", p.PadTop, p.PadLeft)
	}

	in, f, out := job.InputShape, job.FilterShape, job.OutputShape
	if in[tensor.DimC] != f[1] {
		return invalid("input has %d channels, filter expects %d", in[tensor.DimC], f[1])
	}
	if in[tensor.DimN] != out[tensor.DimN] {
		return invalid("input batch %d != output batch %d", in[tensor.DimN], out[tensor.DimN])
	}
	if want := OutputChannels(f, p.Depthwise); out[tensor.DimC] != want {
		return invalid("output has %d channels, filter %v produces %d", out[tensor.DimC], f, want)
	}
	if err := checkAxis("height", in[tensor.DimH], f[2], p.StrideY, p.PadTop, out[tensor.DimH]); err != nil {
		return err
	}
	return checkAxis("width", in[tensor.DimW], f[3], p.StrideX, p.PadLeft, out[tensor.DimW])
}

// checkAxis verifies the output-size relation along one axis: some
// non-negative trailing padding must yield exactly out positions.
func checkAxis(axis string, in, kernel, stride, padBefore, out int) error {
	padAfter := ImpliedPadding(in, kernel, stride, padBefore, out)
	if got := OutputSize(in, kernel, stride, padBefore, padAfter); got != out {
		return invalid("output %s %d inconsistent with input %d, kernel %d, stride %d, padding %d",
			axis, out, in, kernel, stride, padBefore)
	}
	return nil
}

func validateQuantization[T tensor.Element](q Quantization) error {
	for _, p := range []struct {
		name string
		qp   tensor.QuantParams
	}{
		{"input", q.Input},
		{"filter", q.Filter},
		{"output", q.Output},
	} {
		if err := p.qp.Validate(); err != nil {
			return invalid("%s: %v", p.name, err)
		}
	}

	domain := tensor.RangeOf[T]()
	if q.OutputRange != nil {
		r := *q.OutputRange
		if r.Min > r.Max || !domain.Contains(r.Min) || !domain.Contains(r.Max) {
			return invalid("output range %v outside element domain %v", r, domain)
		}
	}

	if !q.Output.Quantized() {
		return nil
	}
	if !q.Input.Quantized() || !q.Filter.Quantized() {
		return invalid("quantized output requires quantized input and filter")
	}
	if m := q.Multiplier(); !(m > 0 && m <= 1) {
		return invalid("rescale multiplier %v (input*filter/output scale) outside (0, 1]", m)
	}
	return nil
}
