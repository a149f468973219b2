// Package handler exposes the alert pipeline over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"nestcare/backend/internal/alert/domain"
	"nestcare/backend/internal/alert/repository"
	"nestcare/backend/internal/alert/service"
	"nestcare/backend/internal/auth"
	"nestcare/backend/internal/server"
	sessiondomain "nestcare/backend/internal/session/domain"
)

// SessionReader resolves sessions for party checks.
type SessionReader interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// Handler serves the alert endpoints.
type Handler struct {
	pipeline *service.Pipeline
	sessions SessionReader
}

func NewHandler(pipeline *service.Pipeline, sessions SessionReader) *Handler {
	return &Handler{pipeline: pipeline, sessions: sessions}
}

// RegisterRoutes mounts the alert endpoints on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/sessions/:id/alerts", h.listForSession)
	api.POST("/sessions/:id/emergency", h.triggerEmergency, auth.RequireRole(auth.RoleParent, auth.RoleSitter))
	api.GET("/alerts", h.listForUser)
	api.GET("/alerts/:id", h.get)
	api.POST("/alerts/:id/view", h.markViewed, auth.RequireRole(auth.RoleParent, auth.RoleAdmin))
	api.POST("/alerts/:id/acknowledge", h.acknowledge, auth.RequireRole(auth.RoleParent, auth.RoleAdmin))
	api.POST("/alerts/:id/resolve", h.resolve, auth.RequireRole(auth.RoleParent, auth.RoleAdmin))
}

type alertResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	ParentID  string `json:"parent_id"`
	SitterID  string `json:"sitter_id,omitempty"`

	Type     string `json:"type"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Status   string `json:"status"`
	// EmergencyActionRequired tells the viewer to surface the emergency
	// affordance; the backend never dials out itself.
	EmergencyActionRequired bool `json:"emergency_action_required"`

	ViewedAt       *time.Time `json:"viewed_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toAlertResponse(a *domain.Alert) alertResponse {
	return alertResponse{
		ID:                      a.ID,
		SessionID:               a.SessionID,
		ParentID:                a.ParentID,
		SitterID:                a.SitterID,
		Type:                    string(a.Type),
		Severity:                string(a.Severity),
		Title:                   a.Title,
		Message:                 a.Message,
		Status:                  string(a.Status),
		EmergencyActionRequired: a.EmergencyActionRequired(),
		ViewedAt:                a.ViewedAt,
		AcknowledgedAt:          a.AcknowledgedAt,
		ResolvedAt:              a.ResolvedAt,
		CreatedAt:               a.CreatedAt,
	}
}

func (h *Handler) listForSession(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	sessionID := c.Param("id")
	if err := h.requireParty(c, user, sessionID); err != nil {
		return err
	}

	alerts, err := h.pipeline.ListForSession(c.Request().Context(), sessionID, parseFilters(c))
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toAlertResponses(alerts))
}

// listForUser returns the caller's alerts across all their sessions: parents
// see alerts addressed to them, sitters theirs, admins everything.
func (h *Handler) listForUser(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	filters := parseFilters(c)
	if raw := c.QueryParam("session_id"); raw != "" {
		filters.SessionID = &raw
	}

	var (
		alerts []*domain.Alert
		err    error
	)
	switch user.Role {
	case auth.RoleParent:
		alerts, err = h.pipeline.ListForParent(c.Request().Context(), user.ID, filters)
	case auth.RoleSitter:
		alerts, err = h.pipeline.ListForSitter(c.Request().Context(), user.ID, filters)
	case auth.RoleAdmin:
		alerts, err = h.pipeline.ListAll(c.Request().Context(), filters)
	default:
		return echo.NewHTTPError(http.StatusForbidden, "unknown role")
	}
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toAlertResponses(alerts))
}

func parseFilters(c echo.Context) repository.Filters {
	var filters repository.Filters
	if raw := c.QueryParam("status"); raw != "" {
		s := domain.Status(raw)
		filters.Status = &s
	}
	if raw := c.QueryParam("severity"); raw != "" {
		s := domain.Severity(raw)
		filters.Severity = &s
	}
	if raw := c.QueryParam("type"); raw != "" {
		t := domain.Type(raw)
		filters.Type = &t
	}
	return filters
}

func toAlertResponses(alerts []*domain.Alert) []alertResponse {
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	return out
}

type emergencyPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (h *Handler) triggerEmergency(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	sessionID := c.Param("id")
	if err := h.requireParty(c, user, sessionID); err != nil {
		return err
	}

	var payload emergencyPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if payload.Title == "" {
		payload.Title = "Emergency reported"
	}
	if payload.Message == "" {
		payload.Message = "A party to this session triggered the emergency action."
	}

	alert, err := h.pipeline.Raise(c.Request().Context(), service.RaiseInput{
		SessionID: sessionID,
		Type:      domain.TypeEmergency,
		Severity:  domain.SeverityCritical,
		Title:     payload.Title,
		Message:   payload.Message,
	})
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusCreated, toAlertResponse(alert))
}

func (h *Handler) get(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	alert, err := h.pipeline.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return server.MapError(err)
	}
	if !alertVisibleTo(user, alert) {
		return echo.NewHTTPError(http.StatusForbidden, "not a party to this alert")
	}
	return c.JSON(http.StatusOK, toAlertResponse(alert))
}

func (h *Handler) markViewed(c echo.Context) error {
	return h.progress(c, h.pipeline.MarkViewed)
}

func (h *Handler) acknowledge(c echo.Context) error {
	return h.progress(c, h.pipeline.Acknowledge)
}

func (h *Handler) resolve(c echo.Context) error {
	return h.progress(c, h.pipeline.Resolve)
}

func (h *Handler) progress(c echo.Context, op func(ctx context.Context, id string) (*domain.Alert, error)) error {
	user, _ := auth.CurrentUser(c)
	existing, err := h.pipeline.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return server.MapError(err)
	}
	if !alertVisibleTo(user, existing) {
		return echo.NewHTTPError(http.StatusForbidden, "not a party to this alert")
	}
	alert, err := op(c.Request().Context(), c.Param("id"))
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toAlertResponse(alert))
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

func alertVisibleTo(user auth.User, a *domain.Alert) bool {
	if user.Role == auth.RoleAdmin {
		return true
	}
	return a.ParentID == user.ID || (a.SitterID != "" && a.SitterID == user.ID)
}
