package tensorio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Decode converts a little-endian payload encoded as dt into values of T.
// Integer payloads must fit T exactly; float payloads require a float T.
func Decode[T Element](raw []byte, dt DType) ([]T, error) {
	size := dt.Size()
	if size == 0 {
		return nil, fmt.Errorf("decode: unsupported dtype %s", dt)
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %s (%d bytes)", ErrBadPayload, len(raw), dt, size)
	}
	target := DTypeOf[T]()
	if dt.Element() != target {
		return nil, fmt.Errorf("decode: cannot decode %s into %s elements", dt, target)
	}

	n := len(raw) / size
	out := make([]T, n)
	for i := range n {
		b := raw[i*size : (i+1)*size]
		switch dt {
		case DTypeU8:
			out[i] = T(b[0])
		case DTypeI8:
			out[i] = T(int8(b[0]))
		case DTypeI16:
			out[i] = T(int16(binary.LittleEndian.Uint16(b)))
		case DTypeI32:
			out[i] = T(int32(binary.LittleEndian.Uint32(b)))
		case DTypeF16:
			out[i] = T(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
		case DTypeF32:
			out[i] = T(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
	}
	return out, nil
}

// Encode is the inverse of Decode. Encoding f32 values as f16 rounds to
// nearest even.
func Encode[T Element](values []T, dt DType) ([]byte, error) {
	size := dt.Size()
	if size == 0 {
		return nil, fmt.Errorf("encode: unsupported dtype %s", dt)
	}
	if src := DTypeOf[T](); dt.Element() != src {
		return nil, fmt.Errorf("encode: cannot encode %s elements as %s", src, dt)
	}

	out := make([]byte, len(values)*size)
	for i, v := range values {
		b := out[i*size : (i+1)*size]
		switch dt {
		case DTypeU8:
			b[0] = uint8(v)
		case DTypeI8:
			b[0] = uint8(int8(v))
		case DTypeI16:
			binary.LittleEndian.PutUint16(b, uint16(int16(v)))
		case DTypeI32:
			binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		case DTypeF16:
			binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
		case DTypeF32:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		}
	}
	return out, nil
}

// FromFloat64 converts JSON-style numbers into T, rejecting values that are
// not exactly representable in an integer T.
func FromFloat64[T Element](values []float64) ([]T, error) {
	out := make([]T, len(values))
	isFloat := DTypeOf[T]().Float()
	for i, v := range values {
		if !isFloat {
			if v != math.Trunc(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("value %v at index %d is not an integer", v, i)
			}
			if float64(T(v)) != v {
				return nil, fmt.Errorf("value %v at index %d overflows %s", v, i, DTypeOf[T]())
			}
		}
		out[i] = T(v)
	}
	return out, nil
}

// ToFloat64 widens values for reporting.
func ToFloat64[T Element](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
