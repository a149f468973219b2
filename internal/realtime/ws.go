package realtime

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler streams a session's realtime events to a websocket client:
// status changes, alerts, and location updates, merged into one feed.
type WSHandler struct {
	bus    *Bus
	names  Channels
	logger *zap.Logger
}

func NewWSHandler(bus *Bus, logger *zap.Logger) *WSHandler {
	return &WSHandler{bus: bus, logger: logger}
}

// RegisterRoutes mounts the events endpoint on the API group.
func (h *WSHandler) RegisterRoutes(api *echo.Group) {
	api.GET("/sessions/:id/events", h.stream)
}

func (h *WSHandler) stream(c echo.Context) error {
	sessionID := c.Param("id")
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	subs := make([]*Subscription, 0, 3)
	merged := make(chan Event, 16)
	for _, channel := range []string{
		h.names.SessionChannel(sessionID),
		h.names.SessionAlertsChannel(sessionID),
		h.names.SessionLocationChannel(sessionID),
	} {
		sub, err := h.bus.Subscribe(ctx, channel, nil)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return echo.NewHTTPError(http.StatusServiceUnavailable, "realtime bus unavailable")
		}
		subs = append(subs, sub)
		go func(sub *Subscription) {
			for ev := range sub.Events() {
				select {
				case merged <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Drain client frames so pings and close messages are processed; any read
	// error ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-merged:
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed, closing stream",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				return nil
			}
		}
	}
}
