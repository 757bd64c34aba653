package jobspec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/qconv/internal/conv"
	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/internal/tensorio"
)

// MaxOutputElements bounds the output buffer a single job may allocate.
const MaxOutputElements = 1 << 26

// Execute resolves the spec's buffers, validates the job and runs the
// reference kernel. The kernel itself is not interruptible; ctx is checked
// before any work starts.
func Execute(ctx context.Context, s *Spec) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	switch s.ElementDType() {
	case tensorio.DTypeU8:
		return executeElem[uint8](ctx, s)
	case tensorio.DTypeI8:
		return executeElem[int8](ctx, s)
	case tensorio.DTypeI16:
		return executeElem[int16](ctx, s)
	case tensorio.DTypeI32:
		return executeElem[int32](ctx, s)
	case tensorio.DTypeF32:
		return executeElem[float32](ctx, s)
	}
	return nil, newInvalidJob("unsupported element dtype %s", s.ElementDType())
}

func executeElem[T tensor.Element](ctx context.Context, s *Spec) (*Result, error) {
	if s.BiasDType() == tensorio.DTypeF32 {
		return executeWith[T, float32](ctx, s)
	}
	return executeWith[T, int32](ctx, s)
}

func executeWith[T tensor.Element, B conv.Bias](ctx context.Context, s *Spec) (*Result, error) {
	log := logger.FromContext(ctx).With("job", s.Name)

	job, err := buildJob[T, B](s)
	if err != nil {
		return nil, err
	}
	q := s.Quantization()
	if err := job.Validate(q); err != nil {
		return nil, newInvalidJob("%v", err)
	}

	var run func(conv.Job[T, B], conv.Quantization)
	switch s.AccumulatorName() {
	case AccumulatorI32:
		run = conv.Convolve[int32, T, B]
	case AccumulatorI64:
		run = conv.Convolve[int64, T, B]
	case AccumulatorF32:
		run = conv.Convolve[float32, T, B]
	case AccumulatorF64:
		run = conv.Convolve[float64, T, B]
	}

	log.Debug("convolving",
		"input", job.InputShape.String(),
		"filter", job.FilterShape.String(),
		"output", job.OutputShape.String(),
		"depthwise", job.Params.Depthwise,
		"accumulator", s.AccumulatorName(),
	)
	start := time.Now()
	if err := safeConvolve(run, job, q); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	log.Debug("convolution complete", "elapsed", elapsed)

	return newResult(s, job.Output, job.OutputShape, q, elapsed), nil
}

// safeConvolve turns a kernel precondition panic into an error so a bad job
// cannot take down a long-running caller.
func safeConvolve[T tensor.Element, B conv.Bias](run func(conv.Job[T, B], conv.Quantization), job conv.Job[T, B], q conv.Quantization) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in convolve: %v", rec)
		}
	}()
	run(job, q)
	return nil
}

func buildJob[T tensor.Element, B conv.Bias](s *Spec) (conv.Job[T, B], error) {
	var job conv.Job[T, B]

	input, err := loadTensor[T](s, "input", &s.Input, s.Input.DType)
	if err != nil {
		return job, err
	}
	filter, err := loadTensor[T](s, "filter", &s.Filter, s.Filter.DType)
	if err != nil {
		return job, err
	}
	var bias []B
	if s.Bias != nil {
		bias, err = loadTensor[B](s, "bias", s.Bias, s.BiasDType())
		if err != nil {
			return job, err
		}
	}
	outShape, err := s.OutputShape()
	if err != nil {
		return job, err
	}

	job = conv.Job[T, B]{
		Input:       input,
		InputShape:  s.Input.Shape,
		Filter:      filter,
		FilterShape: s.Filter.Shape,
		Bias:        bias,
		OutputShape: outShape,
		Params:      s.Params.Params,
	}
	if err := job.ValidateShapes(); err != nil {
		return job, newInvalidJob("%v", err)
	}
	n, ok := outShape.BoundedElements(MaxOutputElements)
	if !ok {
		return job, newInvalidJob("output %v exceeds %d elements", outShape, MaxOutputElements)
	}
	job.Output = make([]T, n)
	return job, nil
}

func loadTensor[T tensor.Element](s *Spec, name string, t *TensorSpec, dt tensorio.DType) ([]T, error) {
	if t.File == "" {
		values, err := tensorio.FromFloat64[T](t.Data)
		if err != nil {
			return nil, newInvalidJob("%s: %v", name, err)
		}
		return values, nil
	}

	values, err := tensorio.ReadFile[T](s.resolve(t.File), dt)
	if err != nil {
		if errors.Is(err, tensorio.ErrBadPayload) {
			return nil, newInvalidJob("%s: %v", name, err)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return values, nil
}
