package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// BookingHandler drives the booking lifecycle: creating a pending booking
// from reserved seats, reading it back and settling it once the payment
// provider reports an outcome.
type BookingHandler struct {
	bookings Bookings
	log      *slog.Logger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(bookings Bookings, log *slog.Logger) *BookingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BookingHandler{bookings: bookings, log: log}
}

// Create handles POST /v1/bookings.  Customers book seats they reserved;
// staff with employeeMode set book at the counter on behalf of a walk-in
// customer described by customerInfo.
func (h *BookingHandler) Create(c echo.Context) error {
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	req, err := body.toService()
	if err != nil {
		return respondError(c, h.log, err)
	}
	b, err := h.bookings.CreatePendingBooking(c.Request().Context(), middleware.ActorFrom(c), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.bookings.Get(c.Request().Context(), middleware.ActorFrom(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// ListMine handles GET /v1/my-bookings?limit=N, newest first.
func (h *BookingHandler) ListMine(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "invalid limit")
		}
		limit = n
	}
	list, err := h.bookings.ListMine(c.Request().Context(), middleware.ActorFrom(c), limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	out := make([]bookingResponse, 0, len(list))
	for i := range list {
		out = append(out, toBookingResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// Settle handles PUT /v1/bookings/:id/payment.  Repeating the same outcome
// returns the settled booking again; a different outcome is a 409.
func (h *BookingHandler) Settle(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "invalid booking id")
	}
	var body settleRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	req := service.SettleRequest{
		Outcome:       model.PaymentStatus(strings.ToLower(strings.TrimSpace(body.PaymentStatus))),
		TransactionID: strings.TrimSpace(body.TransactionID),
		PaymentMethod: strings.TrimSpace(body.PaymentMethod),
	}
	b, err := h.bookings.SettlePayment(c.Request().Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
