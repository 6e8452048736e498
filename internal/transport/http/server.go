// Package http assembles the echo server exposing the memory service.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/dhawansolanki/weavium-ai/internal/service"
	"github.com/dhawansolanki/weavium-ai/internal/tools"
	v1 "github.com/dhawansolanki/weavium-ai/internal/transport/http/v1"
	"github.com/dhawansolanki/weavium-ai/internal/transport/ws"
)

// NewServer returns an echo instance with middleware and all routes registered.
// registry and stream may be nil.
func NewServer(svc *service.Service, registry *tools.Registry, stream *ws.Server, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := logger.Info()
			if v.Error != nil || v.Status >= 500 {
				evt = logger.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1.NewHandler(svc, registry, stream).RegisterRoutes(e)
	return e
}
