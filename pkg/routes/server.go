package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/productsync/pkg/middleware"
	"github.com/Ramsey-B/productsync/pkg/routes/health"
)

// ServerConfig configures NewServer
type ServerConfig struct {
	ServiceName string
	ContainerID string
	BodyLimit   string // e.g. "8M"
}

// NewServer builds the echo instance with middleware, the API, and /metrics
func NewServer(cfg ServerConfig, logger ectologger.Logger, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	if cfg.BodyLimit != "" {
		e.Use(echomiddleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(middleware.Context())
	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(middleware.Container(cfg.ContainerID))
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	Register(e, checker)

	return e
}
