// Package jobspec describes convolution jobs as JSON documents and executes
// them against the reference kernel.
package jobspec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/qconv/internal/conv"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/internal/tensorio"
)

// ErrInvalidJob is wrapped by every error caused by the job description
// itself rather than by I/O.
var ErrInvalidJob = errors.New("invalid job")

type invalidJobError struct {
	msg string
}

func (e invalidJobError) Error() string {
	return e.msg
}

func (e invalidJobError) Unwrap() error {
	return ErrInvalidJob
}

func newInvalidJob(format string, args ...any) error {
	return invalidJobError{msg: fmt.Sprintf(format, args...)}
}

// Accumulator names accepted in job files.
const (
	AccumulatorI32 = "i32"
	AccumulatorI64 = "i64"
	AccumulatorF32 = "f32"
	AccumulatorF64 = "f64"
)

// TensorSpec describes one buffer. Exactly one of Data or File supplies the
// values; File is a raw little-endian payload in DType.
type TensorSpec struct {
	Shape tensor.Shape       `json:"shape,omitempty"`
	DType tensorio.DType     `json:"dtype,omitempty"`
	Data  []float64          `json:"data,omitempty"`
	File  string             `json:"file,omitempty"`
	Quant tensor.QuantParams `json:"quant"`
}

// OutputSpec describes the output buffer. Shape may be omitted, in which
// case it is inferred from the input, filter and padding.
type OutputSpec struct {
	Shape tensor.Shape       `json:"shape,omitempty"`
	DType tensorio.DType     `json:"dtype,omitempty"`
	Quant tensor.QuantParams `json:"quant"`
	Range *tensor.Range      `json:"range,omitempty"`
}

// ParamsSpec extends the kernel parameters with the trailing padding used
// only for output shape inference.
type ParamsSpec struct {
	conv.Params
	PadBottom *int `json:"pad_bottom,omitempty"`
	PadRight  *int `json:"pad_right,omitempty"`
}

// Spec is one convolution job.
type Spec struct {
	Name        string      `json:"name,omitempty"`
	Input       TensorSpec  `json:"input"`
	Filter      TensorSpec  `json:"filter"`
	Bias        *TensorSpec `json:"bias,omitempty"`
	Output      OutputSpec  `json:"output"`
	Params      ParamsSpec  `json:"params"`
	Accumulator string      `json:"accumulator,omitempty"`
	Label       *int        `json:"label,omitempty"`

	// baseDir resolves relative File paths.
	baseDir string
}

// Load reads a job file. Relative tensor file paths resolve against the
// job file's directory.
func Load(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	spec, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	spec.baseDir = filepath.Dir(path)
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return spec, nil
}

// Decode parses a job from r without touching the filesystem.
func Decode(r io.Reader) (*Spec, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, invalidJobError{msg: fmt.Sprintf("decode job: %v", err)}
	}
	return &spec, nil
}

// Encode writes spec as indented JSON.
func (s *Spec) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// UsesFiles reports whether any tensor is backed by a file.
func (s *Spec) UsesFiles() bool {
	if s.Input.File != "" || s.Filter.File != "" {
		return true
	}
	return s.Bias != nil && s.Bias.File != ""
}

// Quantization returns the kernel quantization described by the spec.
func (s *Spec) Quantization() conv.Quantization {
	return conv.Quantization{
		Input:       s.Input.Quant,
		Filter:      s.Filter.Quant,
		Output:      s.Output.Quant,
		OutputRange: s.Output.Range,
	}
}

// ElementDType is the dtype the kernel operates on.
func (s *Spec) ElementDType() tensorio.DType {
	return s.Input.DType.Element()
}

// BiasDType is the bias dtype, defaulting to i32 for integer elements and
// f32 for float elements.
func (s *Spec) BiasDType() tensorio.DType {
	if s.Bias != nil && s.Bias.DType != tensorio.DTypeUnknown {
		return s.Bias.DType
	}
	if s.ElementDType().Float() {
		return tensorio.DTypeF32
	}
	return tensorio.DTypeI32
}

// AccumulatorName returns the accumulator. The default is i32 for 8-bit
// elements, i64 for i16 and i32 elements (whose products overflow int32) and
// f32 for float elements.
func (s *Spec) AccumulatorName() string {
	if s.Accumulator != "" {
		return strings.ToLower(s.Accumulator)
	}
	switch s.ElementDType() {
	case tensorio.DTypeF32:
		return AccumulatorF32
	case tensorio.DTypeI16, tensorio.DTypeI32:
		return AccumulatorI64
	}
	return AccumulatorI32
}

// OutputShape returns the explicit output shape or infers it. Inferred
// shapes pad bottom/right like top/left unless overridden.
func (s *Spec) OutputShape() (tensor.Shape, error) {
	if len(s.Output.Shape) > 0 {
		return s.Output.Shape, nil
	}
	in, f, p := s.Input.Shape, s.Filter.Shape, s.Params
	if len(in) != 4 || len(f) != 4 {
		return nil, newInvalidJob("output shape needs 4-D input and filter shapes, got %v and %v", in, f)
	}
	padBottom, padRight := p.PadTop, p.PadLeft
	if p.PadBottom != nil {
		padBottom = *p.PadBottom
	}
	if p.PadRight != nil {
		padRight = *p.PadRight
	}
	h := conv.OutputSize(in[tensor.DimH], f[2], p.StrideY, p.PadTop, padBottom)
	w := conv.OutputSize(in[tensor.DimW], f[3], p.StrideX, p.PadLeft, padRight)
	if h <= 0 || w <= 0 {
		return nil, newInvalidJob("inferred output %dx%d is empty (input %v, filter %v)", h, w, in, f)
	}
	return tensor.Shape{in[tensor.DimN], conv.OutputChannels(f, p.Depthwise), h, w}, nil
}

// validate checks the parts of a spec Execute cannot leave to conv.Validate.
func (s *Spec) validate() error {
	elem := s.ElementDType()
	if elem == tensorio.DTypeUnknown {
		return newInvalidJob("input dtype is required")
	}
	if s.Filter.DType.Element() != elem {
		return newInvalidJob("filter dtype %s does not match input dtype %s", s.Filter.DType, s.Input.DType)
	}
	if s.Output.DType != tensorio.DTypeUnknown && s.Output.DType.Element() != elem {
		return newInvalidJob("output dtype %s does not match input dtype %s", s.Output.DType, s.Input.DType)
	}
	switch s.BiasDType() {
	case tensorio.DTypeI32, tensorio.DTypeF32:
	default:
		return newInvalidJob("bias dtype must be i32 or f32, got %s", s.BiasDType())
	}
	if s.Params.BiasEnabled && s.Bias == nil {
		return newInvalidJob("bias_enabled set without a bias tensor")
	}
	switch s.AccumulatorName() {
	case AccumulatorI32, AccumulatorI64, AccumulatorF32, AccumulatorF64:
	default:
		return newInvalidJob("unknown accumulator %q", s.Accumulator)
	}
	for _, t := range s.tensors() {
		if len(t.spec.Data) > 0 && t.spec.File != "" {
			return newInvalidJob("%s: data and file are mutually exclusive", t.name)
		}
		if len(t.spec.Data) == 0 && t.spec.File == "" {
			return newInvalidJob("%s: one of data or file is required", t.name)
		}
	}
	return nil
}

type namedTensor struct {
	name string
	spec *TensorSpec
}

func (s *Spec) tensors() []namedTensor {
	out := []namedTensor{{"input", &s.Input}, {"filter", &s.Filter}}
	if s.Bias != nil {
		out = append(out, namedTensor{"bias", s.Bias})
	}
	return out
}

func (s *Spec) resolve(path string) string {
	if filepath.IsAbs(path) || s.baseDir == "" {
		return path
	}
	return filepath.Join(s.baseDir, path)
}
