package api

import (
	"github.com/samcharles93/qconv/internal/jobspec"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/internal/tensorio"
	"github.com/samcharles93/qconv/internal/version"
)

// ConvolutionResponse is the stored result of one POST /v1/convolutions.
type ConvolutionResponse struct {
	ID          string                  `json:"id"`
	Object      string                  `json:"object"`
	CreatedAt   int64                   `json:"created_at"`
	Name        string                  `json:"name,omitempty"`
	Shape       tensor.Shape            `json:"shape"`
	DType       tensorio.DType          `json:"dtype"`
	Output      []float64               `json:"output"`
	Dequantized []float32               `json:"dequantized,omitempty"`
	Quant       tensor.QuantParams      `json:"quant"`
	Multiplier  *jobspec.MultiplierInfo `json:"multiplier,omitempty"`
	Prediction  int                     `json:"prediction"`
	Top         []jobspec.Score         `json:"top,omitempty"`
	ElapsedNS   int64                   `json:"elapsed_ns"`
}

type DeleteConvolutionResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Build   version.Info `json:"build"`
	Stored  int          `json:"stored"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error APIError `json:"error"`
}
