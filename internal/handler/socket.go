package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

// SocketHandler upgrades GET /v1/ws to a realtime connection.  Identity
// comes from OptionalJWT, so guests may connect and watch a room.
type SocketHandler struct {
	hub      *realtime.Hub
	intents  realtime.SeatIntents
	upgrader websocket.Upgrader
	base     context.Context
	log      *slog.Logger
}

// NewSocketHandler constructs a SocketHandler.  Connections live until the
// peer goes away or base is cancelled on shutdown.
func NewSocketHandler(base context.Context, hub *realtime.Hub, intents realtime.SeatIntents, log *slog.Logger) *SocketHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SocketHandler{
		hub:     hub,
		intents: intents,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		base: base,
		log:  log,
	}
}

// Serve handles GET /v1/ws.
func (h *SocketHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Debug("websocket upgrade failed", "error", err)
		return nil
	}
	client := realtime.NewClient(conn, h.hub, h.intents, middleware.ActorFrom(c), h.log)
	client.Run(h.base)
	return nil
}
