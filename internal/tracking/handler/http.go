// Package handler exposes GPS history and ingestion over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"nestcare/backend/internal/apperr"
	"nestcare/backend/internal/auth"
	"nestcare/backend/internal/monitor"
	"nestcare/backend/internal/server"
	sessiondomain "nestcare/backend/internal/session/domain"
	"nestcare/backend/internal/tracking/domain"
	"nestcare/backend/internal/tracking/repository"
)

// historyLimit caps a GPS history response.
const historyLimit = 1000

// SessionReader resolves sessions for party checks.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// Handler serves the location endpoints.
type Handler struct {
	samples     repository.Repository
	sessions    SessionReader
	coordinator *monitor.Coordinator
}

func NewHandler(samples repository.Repository, sessions SessionReader, coordinator *monitor.Coordinator) *Handler {
	return &Handler{samples: samples, sessions: sessions, coordinator: coordinator}
}

// RegisterRoutes mounts the GPS endpoints on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/sessions/:id/gps", h.history)
	api.GET("/sessions/:id/gps/latest", h.latest)
	api.POST("/sessions/:id/gps", h.record, auth.RequireRole(auth.RoleSitter))
}

type sampleResponse struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func toSampleResponse(s *domain.Sample) sampleResponse {
	return sampleResponse{
		ID:         s.ID,
		SessionID:  s.SessionID,
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Accuracy:   s.AccuracyM,
		Altitude:   s.AltitudeM,
		Speed:      s.SpeedMps,
		Heading:    s.Heading,
		RecordedAt: s.RecordedAt,
	}
}

// history returns the session's track, newest first, capped at 1000 points.
func (h *Handler) history(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	sessionID := c.Param("id")
	if err := h.requireParty(c, user, sessionID); err != nil {
		return err
	}
	samples, err := h.samples.ListBySession(c.Request().Context(), sessionID, historyLimit)
	if err != nil {
		return server.MapError(&apperr.TransportError{Op: "list samples", Err: err})
	}
	out := make([]sampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, toSampleResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) latest(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	sessionID := c.Param("id")
	if err := h.requireParty(c, user, sessionID); err != nil {
		return err
	}
	sample, err := h.samples.Latest(c.Request().Context(), sessionID)
	if err != nil {
		return server.MapError(&apperr.TransportError{Op: "load latest sample", Err: err})
	}
	if sample == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no location recorded yet")
	}
	return c.JSON(http.StatusOK, toSampleResponse(sample))
}

type recordPayload struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Accuracy   *float64   `json:"accuracy"`
	Altitude   *float64   `json:"altitude"`
	Speed      *float64   `json:"speed"`
	Heading    *float64   `json:"heading"`
	RecordedAt *time.Time `json:"recorded_at"`
}

// record ingests a device-reported position. The session must be active and
// belong to the calling sitter.
func (h *Handler) record(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	sessionID := c.Param("id")

	sess, err := h.sessions.GetByID(c.Request().Context(), sessionID)
	if err != nil {
		return server.MapError(&apperr.TransportError{Op: "load session", Err: err})
	}
	if sess == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if sess.SitterID != user.ID {
		return echo.NewHTTPError(http.StatusForbidden, "session belongs to another sitter")
	}

	var payload recordPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	at := time.Now().UTC()
	if payload.RecordedAt != nil {
		at = payload.RecordedAt.UTC()
	}

	sample, err := h.coordinator.Ingest(c.Request().Context(), sessionID, monitor.Position{
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		AccuracyM: payload.Accuracy,
		AltitudeM: payload.Altitude,
		SpeedMps:  payload.Speed,
		Heading:   payload.Heading,
	}, at)
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusCreated, toSampleResponse(sample))
}

func (h *Handler) requireParty(c echo.Context, user auth.User, sessionID string) error {
	if user.Role == auth.RoleAdmin {
		return nil
	}
	sess, err := h.sessions.GetByID(c.Request().Context(), sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store temporarily unavailable")
	}
	if sess == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if sess.ParentID != user.ID && sess.SitterID != user.ID {
		return echo.NewHTTPError(http.StatusForbidden, "not a party to this session")
	}
	return nil
}
