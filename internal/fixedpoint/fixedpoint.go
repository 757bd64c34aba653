// Package fixedpoint implements the integer-only rescaling used by quantized
// kernels: a real multiplier in (0, 1] is stored as a Q31 significand plus a
// right shift, and applied with gemmlowp rounding and saturation so results
// match the Android NN CPU executor bit for bit.
package fixedpoint

import (
	"fmt"
	"math"
)

// Multiplier multiplies int32 values by a real number in (0, 1] using only
// integer arithmetic. The represented value is Significand / 2^31 / 2^Shift.
type Multiplier struct {
	Significand int32
	Shift       int32
}

// New derives the fixed-point representation of multiplier.
// It panics if multiplier is not in (0, 1].
func New(multiplier float32) Multiplier {
	if !(multiplier > 0 && multiplier <= 1) {
		panic(fmt.Sprintf("fixedpoint: multiplier %v outside (0, 1]", multiplier))
	}
	// 1.0 needs a significand of 2^31, one past MaxInt32.
	if multiplier == 1 {
		return Multiplier{Significand: math.MaxInt32, Shift: 0}
	}

	q, exp := math.Frexp(float64(multiplier))
	shift := -exp
	qFixed := int64(math.Round(q * (1 << 31)))
	if qFixed == 1<<31 {
		qFixed /= 2
		shift--
	}
	if shift < 0 || qFixed > math.MaxInt32 {
		panic(fmt.Sprintf("fixedpoint: cannot represent multiplier %v", multiplier))
	}
	return Multiplier{Significand: int32(qFixed), Shift: int32(shift)}
}

// Rescale returns approximately round(x * m).
func (m Multiplier) Rescale(x int32) int32 {
	return RoundingDivideByPOT(SaturatingRoundingDoublingHighMul(x, m.Significand), int(m.Shift))
}

// Float64 returns the real value the multiplier represents.
func (m Multiplier) Float64() float64 {
	return math.Ldexp(float64(m.Significand), -31-int(m.Shift))
}

func (m Multiplier) String() string {
	return fmt.Sprintf("%d/2^31 >> %d (%.9g)", m.Significand, m.Shift, m.Float64())
}

// SaturatingRoundingDoublingHighMul returns the high 32 bits of 2*a*b,
// rounded to nearest. The single overflowing input, MinInt32 * MinInt32,
// saturates to MaxInt32.
func SaturatingRoundingDoublingHighMul(a, b int32) int32 {
	if a == math.MinInt32 && b == math.MinInt32 {
		return math.MaxInt32
	}
	ab := int64(a) * int64(b)
	nudge := int64(1 << 30)
	if ab < 0 {
		nudge = 1 - (1 << 30)
	}
	// Go's integer division truncates toward zero, as gemmlowp expects.
	return int32((ab + nudge) / (1 << 31))
}

// RoundingDivideByPOT divides x by 2^exponent, rounding halves away from
// zero. It panics on a negative exponent.
func RoundingDivideByPOT(x int32, exponent int) int32 {
	if exponent < 0 {
		panic(fmt.Sprintf("fixedpoint: negative shift %d", exponent))
	}
	if exponent == 0 {
		return x
	}
	// Any |x| / 2^62 rounds to zero; capping keeps the mask in range.
	exponent = min(exponent, 62)

	v := int64(x)
	mask := int64(1)<<exponent - 1
	remainder := v & mask
	threshold := mask >> 1
	if v < 0 {
		threshold++
	}
	result := v >> exponent
	if remainder > threshold {
		result++
	}
	return int32(result)
}
