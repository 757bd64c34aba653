package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qconv/internal/jobspec"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return c.JSON(status, errorEnvelope{Error: APIError{
		Message: msg,
		Type:    errType,
		Param:   param,
	}})
}

// writeJobError maps a decode, Execute or store error to a status.
func writeJobError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, jobspec.ErrInvalidJob), errors.Is(err, ErrInvalidRequest):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound):
		return writeNotFound(c, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return writeError(c, http.StatusServiceUnavailable, "server_error", err.Error(), "")
	}
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
}

// decodeJob reads a job from the request body. Jobs that reference files
// are rejected: the server only convolves what the client sends.
func decodeJob(body io.Reader, limit int64) (*jobspec.Spec, error) {
	if limit > 0 {
		body = io.LimitReader(body, limit+1)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(raw)) > limit {
		return nil, newInvalidRequest(fmt.Sprintf("request body exceeds %d bytes", limit))
	}
	spec, err := jobspec.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if spec.UsesFiles() {
		return nil, newInvalidRequest("tensor file references are not accepted; send inline data")
	}
	return spec, nil
}

func newConvolutionID() string {
	return "conv_" + uuid.NewString()
}
