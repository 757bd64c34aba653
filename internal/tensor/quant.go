package tensor

import (
	"fmt"
	"math"
)

// Element is the set of buffer element types the reference kernels accept.
type Element interface {
	uint8 | int8 | int16 | int32 | float32
}

// QuantParams describes an affine quantization: real = Scale * (q - ZeroPoint).
// A zero Scale means the tensor is not quantized.
type QuantParams struct {
	Scale     float32 `json:"scale" yaml:"scale"`
	ZeroPoint int32   `json:"zero_point" yaml:"zero_point"`
}

// Quantized reports whether the params describe a quantized tensor.
func (q QuantParams) Quantized() bool {
	return q.Scale != 0
}

// Validate rejects negative, NaN and infinite scales.
func (q QuantParams) Validate() error {
	s := float64(q.Scale)
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return fmt.Errorf("quantization scale %v must be a finite non-negative number", q.Scale)
	}
	return nil
}

// Dequantize maps a stored value back to the real domain. Unquantized
// params return the value unchanged.
func (q QuantParams) Dequantize(v float64) float32 {
	if !q.Quantized() {
		return float32(v)
	}
	return q.Scale * float32(v-float64(q.ZeroPoint))
}

// Range is the closed interval of representable quantized values.
type Range struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// Clamp limits v to [r.Min, r.Max].
func (r Range) Clamp(v int64) int64 {
	return min(max(v, r.Min), r.Max)
}

// Contains reports whether v lies inside r.
func (r Range) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// RangeOf returns the quantized domain of T. float32 tensors that carry
// quantization params store int32-range values.
func RangeOf[T Element]() Range {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Range{Min: 0, Max: math.MaxUint8}
	case int8:
		return Range{Min: math.MinInt8, Max: math.MaxInt8}
	case int16:
		return Range{Min: math.MinInt16, Max: math.MaxInt16}
	default:
		return Range{Min: math.MinInt32, Max: math.MaxInt32}
	}
}

// IsFloat reports whether T is a floating point element type.
func IsFloat[T Element]() bool {
	var zero T
	_, ok := any(zero).(float32)
	return ok
}
