// Package conv is the reference implementation of quantized 2-D convolution.
//
// Each output element has one accumulator and a direct loop over the kernel
// window, with no reordering of arithmetic. Rounding and saturation follow
// the Android NN / gemmlowp quantization scheme.
package conv

import (
	"fmt"
	"math"

	"github.com/samcharles93/qconv/internal/fixedpoint"
	"github.com/samcharles93/qconv/internal/tensor"
)

// Bias is the set of bias buffer element types.
type Bias interface {
	int32 | float32
}

// Accumulator is the set of types a convolution can sum into. It must hold
// Cin*kH*kW products of the element range without overflow.
type Accumulator interface {
	int32 | int64 | float32 | float64
}

// Params holds the convolution hyper-parameters. Bottom and right padding
// are implied by the output shape.
type Params struct {
	PadTop      int  `json:"pad_top"`
	PadLeft     int  `json:"pad_left"`
	StrideY     int  `json:"stride_y"`
	StrideX     int  `json:"stride_x"`
	BiasEnabled bool `json:"bias_enabled"`
	Depthwise   bool `json:"depthwise"`
}

// Job references the caller-owned buffers of one convolution. All buffers
// are flat NCHW. The filter is [Cout, Cin, kH, kW] for standard convolution
// and [depthMultiplier, Cin, kH, kW] for depthwise.
type Job[T tensor.Element, B Bias] struct {
	Input       []T
	InputShape  tensor.Shape
	Filter      []T
	FilterShape tensor.Shape
	Bias        []B
	Output      []T
	OutputShape tensor.Shape
	Params      Params
}

// Quantization carries the per-tensor quantization of a job. OutputRange
// overrides the clamp bounds otherwise derived from the output element type.
type Quantization struct {
	Input       tensor.QuantParams
	Filter      tensor.QuantParams
	Output      tensor.QuantParams
	OutputRange *tensor.Range
}

// Multiplier returns the real rescale factor inputScale*filterScale/outputScale,
// rounded to float32 at each step.
func (q Quantization) Multiplier() float32 {
	return float32(q.Input.Scale*q.Filter.Scale) / q.Output.Scale
}

// Convolve computes job.Output from job.Input, job.Filter and job.Bias.
//
// When q.Output.Scale is non-zero each accumulator is rescaled by
// Multiplier() with fixed-point arithmetic, offset by the output zero point
// and clamped to the output range. Otherwise it is narrowed directly into T.
//
// Convolve panics if the shapes are not 4-D or if bias is enabled without a
// bias buffer. Buffer sizes are the caller's responsibility; see Job.Validate.
func Convolve[A Accumulator, T tensor.Element, B Bias](job Job[T, B], q Quantization) {
	if len(job.InputShape) != 4 || len(job.FilterShape) != 4 || len(job.OutputShape) != 4 {
		panic(fmt.Sprintf("conv: shapes must be 4-D, got input %v filter %v output %v",
			job.InputShape, job.FilterShape, job.OutputShape))
	}
	if job.Params.BiasEnabled && len(job.Bias) == 0 {
		panic("conv: bias enabled without a bias buffer")
	}

	g := deriveGeometry(job.InputShape, job.FilterShape, job.OutputShape, job.Params)
	mapping := newMapping(job.Params.Depthwise, g.inChannels, g.depthMultiplier)
	store := newStorer[A, T](q)

	inputOffset := A(q.Input.ZeroPoint)
	filterOffset := A(q.Filter.ZeroPoint)
	kernelArea := g.kernelH * g.kernelW
	inPlane := g.inH * g.inW
	outPlane := g.outH * g.outW

	for b := range g.batch {
		inBatch := job.Input[b*inPlane*g.inChannels:]
		for oc := range g.outChannels {
			span := mapping.span(oc)
			filterSlice := job.Filter[span.filterSlice*kernelArea*g.inChannels:]
			outBase := b*outPlane*g.outChannels + oc*outPlane

			for oy := range g.outH {
				for ox := range g.outW {
					var sum A
					for ic := span.first; ic < span.first+span.count; ic++ {
						window := filterSlice[ic*kernelArea:]
						channel := inBatch[ic*inPlane:]
						for fy := range g.kernelH {
							y := oy*g.strideY + fy - g.padTop
							if y < 0 || y >= g.inH {
								continue
							}
							for fx := range g.kernelW {
								x := ox*g.strideX + fx - g.padLeft
								if x < 0 || x >= g.inW {
									continue
								}
								f := A(window[fy*g.kernelW+fx]) - filterOffset
								v := A(channel[y*g.inW+x]) - inputOffset
								sum += f * v
							}
						}
					}
					if job.Params.BiasEnabled {
						sum += A(job.Bias[oc])
					}
					job.Output[outBase+oy*g.outW+ox] = store(sum)
				}
			}
		}
	}
}

// geometry is the set of sizes one convolution iterates over.
type geometry struct {
	batch           int
	inChannels      int
	outChannels     int
	depthMultiplier int
	inH, inW        int
	outH, outW      int
	kernelH         int
	kernelW         int
	strideY         int
	strideX         int
	padTop          int
	padLeft         int
}

func deriveGeometry(input, filter, output tensor.Shape, p Params) geometry {
	g := geometry{
		batch:           output[tensor.DimN],
		inChannels:      filter[1],
		depthMultiplier: 1,
		inH:             input[tensor.DimH],
		inW:             input[tensor.DimW],
		outH:            output[tensor.DimH],
		outW:            output[tensor.DimW],
		kernelH:         filter[2],
		kernelW:         filter[3],
		strideY:         p.StrideY,
		strideX:         p.StrideX,
		padTop:          p.PadTop,
		padLeft:         p.PadLeft,
	}
	if p.Depthwise {
		g.depthMultiplier = filter[0]
		g.outChannels = g.inChannels * g.depthMultiplier
	} else {
		g.outChannels = filter[0]
	}
	return g
}

// newStorer returns the function that turns a finished accumulator into an
// output element. The fixed-point multiplier is derived once per call.
func newStorer[A Accumulator, T tensor.Element](q Quantization) func(A) T {
	if !q.Output.Quantized() {
		return narrow[A, T]
	}

	m := fixedpoint.New(q.Multiplier())
	r := tensor.RangeOf[T]()
	if q.OutputRange != nil {
		r = *q.OutputRange
	}
	zeroPoint := int64(q.Output.ZeroPoint)
	return func(sum A) T {
		v := int64(m.Rescale(saturateInt32(sum))) + zeroPoint
		return T(r.Clamp(v))
	}
}

// saturateInt32 converts an accumulator to int32, clamping out-of-range
// values instead of wrapping. Float accumulators truncate toward zero.
func saturateInt32[A Accumulator](v A) int32 {
	lo, hi := int64(math.MinInt32), int64(math.MaxInt32)
	switch {
	case v >= A(hi):
		return math.MaxInt32
	case v <= A(lo):
		return math.MinInt32
	}
	return int32(v)
}

// narrow converts an accumulator to T without rescaling. Integer outputs
// saturate at the bounds of T.
func narrow[A Accumulator, T tensor.Element](v A) T {
	if tensor.IsFloat[T]() {
		return T(v)
	}
	r := tensor.RangeOf[T]()
	switch {
	case v >= A(r.Max):
		return T(r.Max)
	case v <= A(r.Min):
		return T(r.Min)
	}
	return T(v)
}

