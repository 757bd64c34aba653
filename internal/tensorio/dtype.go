package tensorio

import (
	"fmt"
	"strings"

	"github.com/samcharles93/qconv/internal/tensor"
)

// Element aliases the kernel element set so callers need only this package
// to decode buffers.
type Element = tensor.Element

// DType identifies the on-disk encoding of a raw tensor.
type DType uint8

const (
	DTypeUnknown DType = iota
	DTypeU8
	DTypeI8
	DTypeI16
	DTypeI32
	DTypeF16
	DTypeF32
)

var dtypeNames = map[DType]string{
	DTypeU8:  "u8",
	DTypeI8:  "i8",
	DTypeI16: "i16",
	DTypeI32: "i32",
	DTypeF16: "f16",
	DTypeF32: "f32",
}

// ParseDType accepts the short names used in job files ("u8", "f32", ...)
// and a few common aliases.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u8", "uint8", "qasymm8":
		return DTypeU8, nil
	case "i8", "int8", "qsymm8":
		return DTypeI8, nil
	case "i16", "int16":
		return DTypeI16, nil
	case "i32", "int32", "signed32":
		return DTypeI32, nil
	case "f16", "float16", "half":
		return DTypeF16, nil
	case "f32", "float32", "float":
		return DTypeF32, nil
	}
	return DTypeUnknown, fmt.Errorf("unknown dtype %q", s)
}

// Size returns the encoded width of one element in bytes.
func (d DType) Size() int {
	switch d {
	case DTypeU8, DTypeI8:
		return 1
	case DTypeI16, DTypeF16:
		return 2
	case DTypeI32, DTypeF32:
		return 4
	}
	return 0
}

// Float reports whether d is a floating point encoding.
func (d DType) Float() bool {
	return d == DTypeF16 || d == DTypeF32
}

// Element returns the kernel element dtype d decodes to. f16 files are
// widened to f32.
func (d DType) Element() DType {
	if d == DTypeF16 {
		return DTypeF32
	}
	return d
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// MarshalText implements encoding.TextMarshaler. DTypeUnknown encodes as
// the empty string.
func (d DType) MarshalText() ([]byte, error) {
	if d == DTypeUnknown {
		return []byte{}, nil
	}
	if _, ok := dtypeNames[d]; !ok {
		return nil, fmt.Errorf("cannot marshal %s", d)
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = DTypeUnknown
		return nil
	}
	parsed, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DTypeOf returns the natural encoding of T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return DTypeU8
	case int8:
		return DTypeI8
	case int16:
		return DTypeI16
	case int32:
		return DTypeI32
	case float32:
		return DTypeF32
	}
	return DTypeUnknown
}
