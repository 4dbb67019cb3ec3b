package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// TicketHandler is used by staff at the door.
type TicketHandler struct {
	tickets Tickets
	log     *slog.Logger
}

// NewTicketHandler constructs a TicketHandler.
func NewTicketHandler(tickets Tickets, log *slog.Logger) *TicketHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TicketHandler{tickets: tickets, log: log}
}

// Verify handles POST /v1/tickets/verify.  An invalid ticket is still a
// 200: the body says why it is not valid and carries the booking.
func (h *TicketHandler) Verify(c echo.Context) error {
	var body verifyRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	token := strings.TrimSpace(body.QRCode)
	if token == "" {
		return badRequest(c, "qrCode is required")
	}
	v, err := h.tickets.Verify(c.Request().Context(), middleware.ActorFrom(c), token)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toVerificationResponse(v))
}

// CheckIn handles POST /v1/tickets/check-in.  A second check-in of the same
// booking is a 409 "ticket already used".
func (h *TicketHandler) CheckIn(c echo.Context) error {
	var body checkInRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	id := strings.TrimSpace(body.BookingID)
	if id == "" {
		return badRequest(c, "bookingId is required")
	}
	b, err := h.tickets.CheckIn(c.Request().Context(), middleware.ActorFrom(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
