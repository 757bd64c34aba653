package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qconv/internal/api"
	"github.com/samcharles93/qconv/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rateLimit   float64
		rateBurst   int64
		maxStored   int64
		maxBody     int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the convolution REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.FloatFlag{
				Name:        "rate-limit",
				Usage:       "sustained requests per second per client (0 disables)",
				Value:       20,
				Destination: &rateLimit,
			},
			&cli.Int64Flag{
				Name:        "rate-burst",
				Usage:       "requests a client may burst above --rate-limit",
				Value:       40,
				Destination: &rateBurst,
			},
			&cli.Int64Flag{
				Name:        "max-stored",
				Usage:       "results kept for GET before the oldest are evicted (0 keeps all)",
				Value:       1024,
				Destination: &maxStored,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "largest accepted job document in bytes",
				Value:       32 << 20,
				Destination: &maxBody,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, cfg, &addr, &rateLimit, &rateBurst)
			log := logger.FromContext(ctx)

			store := api.NewConvolutionStore(int(maxStored))
			server := api.NewServer(store, api.Config{MaxBodyBytes: maxBody})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(api.WithLogger(log))
			e.Use(api.RateLimit(rateLimit, int(rateBurst)))
			server.Register(e)

			log.Info("starting server", "address", addr, "rate_limit", rateLimit, "rate_burst", rateBurst)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
