// Package handler serves liveness and readiness checks for load balancers
// and orchestration probes.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const probeTimeout = 2 * time.Second

// Handler answers /healthz and /readyz. Nil pingers are skipped, so partial
// deployments still report ready.
type Handler struct {
	db    Pinger
	redis Pinger
}

func NewHandler(db, redis Pinger) *Handler {
	return &Handler{db: db, redis: redis}
}

// RegisterRoutes mounts the probes on the unauthenticated root.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.live)
	e.GET("/readyz", h.ready)
}

// live reports process liveness only; it never touches dependencies.
func (h *Handler) live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ready reports 503 with the failing dependencies when any backing store is
// unreachable.
func (h *Handler) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for name, p := range map[string]Pinger{"database": h.db, "redis": h.redis} {
		if p == nil {
			continue
		}
		if err := p.PingContext(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, checks)
}
