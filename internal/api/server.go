// Package api serves the reference convolution over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qconv/internal/jobspec"
	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/internal/version"
)

const (
	defaultMaxBodyBytes = 32 << 20
	defaultTopK         = 5
)

type Config struct {
	// MaxBodyBytes caps a job document. Zero selects 32 MiB.
	MaxBodyBytes int64
	// TopK is how many ranked scores a response carries. Zero selects 5;
	// negative disables them.
	TopK int
}

type Server struct {
	store *ConvolutionStore
	cfg   Config
	clock func() time.Time
}

func NewServer(store *ConvolutionStore, cfg Config) *Server {
	if store == nil {
		store = NewConvolutionStore(0)
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.TopK == 0 {
		cfg.TopK = defaultTopK
	}
	return &Server{
		store: store,
		cfg:   cfg,
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)

	e.POST("/v1/convolutions", s.handleCreateConvolution)
	e.GET("/v1/convolutions/:id", s.handleGetConvolution)
	e.DELETE("/v1/convolutions/:id", s.handleDeleteConvolution)
}

// WithLogger makes log available to handlers through the request context.
func WithLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))
			return next(c)
		}
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.String(),
		Build:   version.Resolve(),
		Stored:  s.store.Len(),
	})
}

func (s *Server) handleCreateConvolution(c *echo.Context) error {
	ctx := c.Request().Context()
	spec, err := decodeJob(c.Request().Body, s.cfg.MaxBodyBytes)
	if err != nil {
		return writeJobError(c, err)
	}

	res, err := jobspec.Execute(ctx, spec)
	if err != nil {
		logger.FromContext(ctx).Warn("convolution rejected", "job", spec.Name, "error", err)
		return writeJobError(c, err)
	}

	resp := s.newResponse(res)
	s.store.Save(resp)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetConvolution(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return writeNotFound(c, "convolution not found")
	}
	resp, err := s.store.Get(id)
	if err != nil {
		return writeJobError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteConvolution(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return writeNotFound(c, "convolution not found")
	}
	if err := s.store.Delete(id); err != nil {
		return writeJobError(c, err)
	}
	return c.JSON(http.StatusOK, DeleteConvolutionResp{
		ID:      id,
		Object:  "convolution",
		Deleted: true,
	})
}

func (s *Server) newResponse(res *jobspec.Result) *ConvolutionResponse {
	resp := &ConvolutionResponse{
		ID:          newConvolutionID(),
		Object:      "convolution",
		CreatedAt:   s.clock().Unix(),
		Name:        res.Name,
		Shape:       res.Shape,
		DType:       res.DType,
		Output:      res.Output,
		Dequantized: res.Dequantized,
		Quant:       res.Quant,
		Multiplier:  res.Multiplier,
		Prediction:  res.Prediction,
		ElapsedNS:   res.Elapsed.Nanoseconds(),
	}
	if s.cfg.TopK > 0 {
		resp.Top = res.Top(s.cfg.TopK)
	}
	return resp
}
