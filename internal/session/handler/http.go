// Package handler exposes the session lifecycle over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"nestcare/backend/internal/apperr"
	"nestcare/backend/internal/auth"
	"nestcare/backend/internal/monitor"
	"nestcare/backend/internal/retry"
	"nestcare/backend/internal/server"
	"nestcare/backend/internal/session/domain"
	"nestcare/backend/internal/session/service"
)

const listLimit = 100

// Lister is the slice of the session repository the read endpoints use.
type Lister interface {
	ListByParent(ctx context.Context, parentID string, status *domain.Status, limit int) ([]*domain.Session, error)
	ListBySitter(ctx context.Context, sitterID string, status *domain.Status, limit int) ([]*domain.Session, error)
	ListAll(ctx context.Context, status *domain.Status, limit int) ([]*domain.Session, error)
}

// Handler serves the session endpoints.
type Handler struct {
	dispatcher  *service.Dispatcher
	lifecycle   *service.Lifecycle
	coordinator *monitor.Coordinator
	lister      Lister
}

func NewHandler(dispatcher *service.Dispatcher, lifecycle *service.Lifecycle, coordinator *monitor.Coordinator, lister Lister) *Handler {
	return &Handler{
		dispatcher:  dispatcher,
		lifecycle:   lifecycle,
		coordinator: coordinator,
		lister:      lister,
	}
}

// RegisterRoutes mounts the session endpoints on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sessions", h.createRequest, auth.RequireRole(auth.RoleParent))
	api.PUT("/sessions/:id", h.updateRequest, auth.RequireRole(auth.RoleParent))
	api.GET("/sessions", h.list)
	api.GET("/sessions/available", h.discoverAvailable, auth.RequireRole(auth.RoleSitter))
	api.GET("/sessions/:id", h.get)
	api.POST("/sessions/:id/accept", h.accept, auth.RequireRole(auth.RoleSitter))
	api.POST("/sessions/:id/start", h.start, auth.RequireRole(auth.RoleSitter))
	api.POST("/sessions/:id/complete", h.complete, auth.RequireRole(auth.RoleSitter))
	api.POST("/sessions/:id/cancel", h.cancel, auth.RequireRole(auth.RoleParent, auth.RoleSitter))
	api.POST("/sessions/:id/monitoring/gps", h.toggleGPS, auth.RequireRole(auth.RoleSitter))
	api.POST("/sessions/:id/monitoring/cry-detection", h.toggleCryDetection, auth.RequireRole(auth.RoleSitter))
	api.POST("/sessions/:id/monitoring/start", h.startMonitoring, auth.RequireRole(auth.RoleSitter))
	api.POST("/sessions/:id/monitoring/stop", h.stopMonitoring, auth.RequireRole(auth.RoleSitter))
}

type timeSlotPayload struct {
	Date  time.Time `json:"date"`
	Start string    `json:"start"`
	End   string    `json:"end"`
	Hours float64   `json:"hours"`
}

type createRequestPayload struct {
	ChildIDs        []string          `json:"child_ids"`
	StartTime       time.Time         `json:"start_time"`
	TimeSlots       []timeSlotPayload `json:"time_slots"`
	Address         string            `json:"address"`
	City            string            `json:"city"`
	Latitude        *float64          `json:"latitude"`
	Longitude       *float64          `json:"longitude"`
	SearchScope     string            `json:"search_scope"`
	MaxDistanceKm   *float64          `json:"max_distance_km"`
	InvitedSitterID string            `json:"invited_sitter_id"`
	HourlyRate      *float64          `json:"hourly_rate"`
	Notes           string            `json:"notes"`
}

func (h *Handler) createRequest(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	var payload createRequestPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	slots := make([]domain.TimeSlot, 0, len(payload.TimeSlots))
	for _, s := range payload.TimeSlots {
		slots = append(slots, domain.TimeSlot{Date: s.Date, Start: s.Start, End: s.End, Hours: s.Hours})
	}

	sess, err := h.dispatcher.CreateRequest(c.Request().Context(), service.CreateRequestInput{
		ParentID:  user.ID,
		ChildIDs:  payload.ChildIDs,
		StartTime: payload.StartTime,
		TimeSlots: slots,
		Location: domain.Location{
			Address:   payload.Address,
			City:      payload.City,
			Latitude:  payload.Latitude,
			Longitude: payload.Longitude,
		},
		SearchScope:     domain.SearchScope(payload.SearchScope),
		MaxDistanceKm:   payload.MaxDistanceKm,
		InvitedSitterID: payload.InvitedSitterID,
		HourlyRate:      payload.HourlyRate,
		Notes:           payload.Notes,
	})
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusCreated, toSessionResponse(sess))
}

type locationPayload struct {
	Address   string   `json:"address"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// updateRequestPayload carries the editable request fields. Absent fields keep
// their stored value.
type updateRequestPayload struct {
	ChildIDs        []string          `json:"child_ids"`
	StartTime       *time.Time        `json:"start_time"`
	TimeSlots       []timeSlotPayload `json:"time_slots"`
	Location        *locationPayload  `json:"location"`
	SearchScope     *string           `json:"search_scope"`
	MaxDistanceKm   *float64          `json:"max_distance_km"`
	InvitedSitterID *string           `json:"invited_sitter_id"`
	HourlyRate      *float64          `json:"hourly_rate"`
	Notes           *string           `json:"notes"`
}

func (h *Handler) updateRequest(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	var payload updateRequestPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	in := service.UpdateRequestInput{
		SessionID:       c.Param("id"),
		ParentID:        user.ID,
		ChildIDs:        payload.ChildIDs,
		StartTime:       payload.StartTime,
		MaxDistanceKm:   payload.MaxDistanceKm,
		InvitedSitterID: payload.InvitedSitterID,
		HourlyRate:      payload.HourlyRate,
		Notes:           payload.Notes,
	}
	if payload.TimeSlots != nil {
		slots := make([]domain.TimeSlot, 0, len(payload.TimeSlots))
		for _, s := range payload.TimeSlots {
			slots = append(slots, domain.TimeSlot{Date: s.Date, Start: s.Start, End: s.End, Hours: s.Hours})
		}
		in.TimeSlots = slots
	}
	if payload.Location != nil {
		in.Location = &domain.Location{
			Address:   payload.Location.Address,
			City:      payload.Location.City,
			Latitude:  payload.Location.Latitude,
			Longitude: payload.Location.Longitude,
		}
	}
	if payload.SearchScope != nil {
		scope := domain.SearchScope(*payload.SearchScope)
		in.SearchScope = &scope
	}

	sess, err := h.dispatcher.UpdateRequest(c.Request().Context(), in)
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

// list returns the caller's sessions: parents see their own, sitters theirs,
// admins everything. Newest first, capped at 100.
func (h *Handler) list(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}

	var status *domain.Status
	if raw := c.QueryParam("status"); raw != "" {
		s := domain.Status(raw)
		status = &s
	}

	ctx := c.Request().Context()
	var (
		sessions []*domain.Session
		err      error
	)
	switch user.Role {
	case auth.RoleParent:
		sessions, err = h.lister.ListByParent(ctx, user.ID, status, listLimit)
	case auth.RoleSitter:
		sessions, err = h.lister.ListBySitter(ctx, user.ID, status, listLimit)
	case auth.RoleAdmin:
		sessions, err = h.lister.ListAll(ctx, status, listLimit)
	default:
		return echo.NewHTTPError(http.StatusForbidden, "unknown role")
	}
	if err != nil {
		return server.MapError(&apperr.TransportError{Op: "list sessions", Err: err})
	}
	return c.JSON(http.StatusOK, toSessionResponses(sessions))
}

func (h *Handler) discoverAvailable(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	cand := service.Candidate{
		SitterID: user.ID,
		City:     c.QueryParam("city"),
	}
	if raw := c.QueryParam("latitude"); raw != "" {
		if lat, err := strconv.ParseFloat(raw, 64); err == nil {
			cand.Latitude = &lat
		}
	}
	if raw := c.QueryParam("longitude"); raw != "" {
		if lon, err := strconv.ParseFloat(raw, 64); err == nil {
			cand.Longitude = &lon
		}
	}

	sessions, err := h.dispatcher.DiscoverAvailable(c.Request().Context(), cand)
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponses(sessions))
}

func (h *Handler) get(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	sess, err := h.lifecycle.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return server.MapError(err)
	}
	if !mayView(user, sess) {
		return echo.NewHTTPError(http.StatusForbidden, "not a party to this session")
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) accept(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	sess, err := retry.Transition(c.Request().Context(), func() (*domain.Session, error) {
		return h.lifecycle.Accept(c.Request().Context(), c.Param("id"), user.ID)
	})
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) start(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	if err := h.requireSitter(c, user); err != nil {
		return err
	}
	sess, err := retry.Transition(c.Request().Context(), func() (*domain.Session, error) {
		return h.lifecycle.Start(c.Request().Context(), c.Param("id"))
	})
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) complete(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	if err := h.requireSitter(c, user); err != nil {
		return err
	}
	sess, err := retry.Transition(c.Request().Context(), func() (*domain.Session, error) {
		return h.lifecycle.Complete(c.Request().Context(), c.Param("id"))
	})
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

type cancelPayload struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	var payload cancelPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	existing, err := h.lifecycle.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return server.MapError(err)
	}
	if !mayView(user, existing) {
		return echo.NewHTTPError(http.StatusForbidden, "not a party to this session")
	}

	by := domain.CancelledByParent
	if user.Role == auth.RoleSitter {
		by = domain.CancelledBySitter
	}
	sess, err := retry.Transition(c.Request().Context(), func() (*domain.Session, error) {
		return h.lifecycle.Cancel(c.Request().Context(), c.Param("id"), by, payload.Reason)
	})
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

type togglePayload struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) toggleGPS(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	if err := h.requireSitter(c, user); err != nil {
		return err
	}
	var payload togglePayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.coordinator.ToggleGPS(c.Request().Context(), c.Param("id"), payload.Enabled)
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) toggleCryDetection(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	if err := h.requireSitter(c, user); err != nil {
		return err
	}
	var payload togglePayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.coordinator.ToggleCryDetection(c.Request().Context(), c.Param("id"), payload.Enabled)
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) startMonitoring(c echo.Context) error {
	user, _ := auth.CurrentUser(c)
	if err := h.requireSitter(c, user); err != nil {
		return err
	}
	sess, err := h.coordinator.StartMonitoring(c.Request().Context(), c.Param("id"))
	if err != nil {
		return server.MapError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) stopMonitoring(c echo.Context) error {
	h.coordinator.StopMonitoring(c.Request().Context(), c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// requireSitter rejects callers who are not the sitter bound to the session.
func (h *Handler) requireSitter(c echo.Context, user auth.User) error {
	sess, err := h.lifecycle.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return server.MapError(err)
	}
	if sess.SitterID != user.ID {
		return echo.NewHTTPError(http.StatusForbidden, "session belongs to another sitter")
	}
	return nil
}

func mayView(user auth.User, s *domain.Session) bool {
	switch user.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleParent:
		return s.ParentID == user.ID
	case auth.RoleSitter:
		// Sitters may inspect open requests they could claim.
		return s.SitterID == user.ID || s.Open()
	default:
		return false
	}
}
