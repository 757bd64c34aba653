package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	t.Parallel()

	s := Shape{1, 3, 4, 5}
	assert.Equal(t, 60, s.NumElements())
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.True(t, s.Equal(Shape{1, 3, 4, 5}))
	assert.False(t, s.Equal(Shape{1, 3, 5, 4}))
	assert.False(t, s.Equal(Shape{1, 3, 4}))
	assert.Equal(t, "[1x3x4x5]", s.String())

	c := s.Clone()
	c[0] = 9
	assert.Equal(t, 1, s[0])
}

func TestShapeBoundedElements(t *testing.T) {
	t.Parallel()
	n, ok := Shape{1, 3, 4, 5}.BoundedElements(60)
	assert.True(t, ok)
	assert.Equal(t, 60, n)

	_, ok = Shape{1, 3, 4, 5}.BoundedElements(59)
	assert.False(t, ok)
	_, ok = Shape{1, 1, -1, 1}.BoundedElements(100)
	assert.False(t, ok)
	_, ok = Shape{1 << 40, 1 << 40, 1 << 40}.BoundedElements(1 << 26)
	assert.False(t, ok, "overflowing product")

	n, ok = Shape{1, 0, 7}.BoundedElements(10)
	assert.True(t, ok)
	assert.Equal(t, 0, n)
}

func TestShapeValidate4D(t *testing.T) {
	t.Parallel()

	require.NoError(t, Shape{1, 1, 1, 1}.Validate4D())
	assert.Error(t, Shape{1, 1, 1}.Validate4D())
	assert.Error(t, Shape{1, 0, 1, 1}.Validate4D())
	assert.Error(t, Shape{1, 1, -2, 1}.Validate4D())
}

func TestRangeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Range{Min: 0, Max: 255}, RangeOf[uint8]())
	assert.Equal(t, Range{Min: -128, Max: 127}, RangeOf[int8]())
	assert.Equal(t, Range{Min: math.MinInt16, Max: math.MaxInt16}, RangeOf[int16]())
	assert.Equal(t, Range{Min: math.MinInt32, Max: math.MaxInt32}, RangeOf[int32]())
	assert.Equal(t, Range{Min: math.MinInt32, Max: math.MaxInt32}, RangeOf[float32]())

	assert.True(t, IsFloat[float32]())
	assert.False(t, IsFloat[uint8]())
}

func TestRangeClamp(t *testing.T) {
	t.Parallel()

	r := RangeOf[uint8]()
	assert.Equal(t, int64(0), r.Clamp(-7))
	assert.Equal(t, int64(255), r.Clamp(1<<40))
	assert.Equal(t, int64(17), r.Clamp(17))
	assert.True(t, r.Contains(255))
	assert.False(t, r.Contains(256))
	assert.Equal(t, "[0, 255]", r.String())
}

func TestQuantParams(t *testing.T) {
	t.Parallel()

	q := QuantParams{Scale: 0.5, ZeroPoint: 10}
	assert.True(t, q.Quantized())
	assert.InDelta(t, 5.0, q.Dequantize(20), 1e-6)
	assert.InDelta(t, -5.0, q.Dequantize(0), 1e-6)

	none := QuantParams{}
	assert.False(t, none.Quantized())
	assert.InDelta(t, 3.25, none.Dequantize(3.25), 1e-6)

	require.NoError(t, q.Validate())
	require.NoError(t, none.Validate())
	assert.Error(t, QuantParams{Scale: -1}.Validate())
	assert.Error(t, QuantParams{Scale: float32(math.NaN())}.Validate())
	assert.Error(t, QuantParams{Scale: float32(math.Inf(1))}.Validate())
}
