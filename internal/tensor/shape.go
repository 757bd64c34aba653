package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape lists dimension sizes in NCHW order for 4-D tensors.
type Shape []int

// Dimension indices of a 4-D NCHW shape.
const (
	DimN = 0
	DimC = 1
	DimH = 2
	DimW = 3
)

// NumElements returns the product of all dimensions. An empty shape has one
// element (a scalar).
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// BoundedElements returns the product of all dimensions when every
// dimension is non-negative and the product does not exceed limit.
func (s Shape) BoundedElements(limit int) (int, bool) {
	n := 1
	for _, d := range s {
		if d < 0 {
			return 0, false
		}
		if d > 0 && n > limit/d {
			return 0, false
		}
		n *= d
	}
	return n, n <= limit
}

// Equal reports whether two shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate4D checks that s is a 4-D shape with positive dimensions.
func (s Shape) Validate4D() error {
	if len(s) != 4 {
		return fmt.Errorf("expected 4-D NCHW shape, got %dD %v", len(s), s)
	}
	for i, d := range s {
		if d <= 0 {
			return fmt.Errorf("dimension %d of %v must be positive", i, s)
		}
	}
	return nil
}

// Clone returns a copy of s that does not share storage.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, "x") + "]"
}
