// Package server hosts the HTTP surface: the echo instance, shared
// middleware, and the service-error to status-code mapping.
package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"nestcare/backend/internal/auth"
)

// Server wraps echo with the middleware every route shares. Feature handlers
// register themselves on API().
type Server struct {
	echo   *echo.Echo
	api    *echo.Group
	addr   string
	logger *zap.Logger
}

func New(addr string, jwtSecret []byte, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	api := e.Group("/api/v1", auth.Middleware(jwtSecret))

	return &Server{echo: e, api: api, addr: addr, logger: logger}
}

// API is the authenticated route group feature handlers mount onto.
func (s *Server) API() *echo.Group { return s.api }

// Echo exposes the root instance for unauthenticated routes such as probes.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("took", time.Since(start)),
			)
			return nil
		}
	}
}
