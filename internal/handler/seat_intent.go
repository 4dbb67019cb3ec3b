package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

// SeatIntentHandler exposes the seat intents of the realtime channel over
// plain HTTP for clients that cannot keep a websocket open.  The room is
// told about every change exactly as if it came from a socket.
type SeatIntentHandler struct {
	intents realtime.SeatIntents
	log     *slog.Logger
}

// NewSeatIntentHandler constructs a SeatIntentHandler.
func NewSeatIntentHandler(intents realtime.SeatIntents, log *slog.Logger) *SeatIntentHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SeatIntentHandler{intents: intents, log: log}
}

// bind reads the showtime id and the seat ids of an intent request.
func (h *SeatIntentHandler) bind(c echo.Context) (uint64, []uint64, error) {
	id, ok := idParam(c, "id")
	if !ok {
		return 0, nil, badRequest(c, "invalid showtime id")
	}
	var body seatIDsRequest
	if err := c.Bind(&body); err != nil {
		return 0, nil, badRequest(c, "invalid request body")
	}
	if len(body.SeatIDs) == 0 {
		return 0, nil, badRequest(c, "seatIds is required")
	}
	return id, body.SeatIDs, nil
}

// Select handles POST /v1/showtimes/:id/seats/select.  Selection is
// advisory, so seats held by someone else are listed as rejected in a 200
// response instead of failing the request.
func (h *SeatIntentHandler) Select(c echo.Context) error {
	id, seatIDs, err := h.bind(c)
	if err != nil || id == 0 {
		return err
	}
	out, err := h.intents.Select(c.Request().Context(), id, seatIDs, middleware.ActorFrom(c).UserID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	resp := echo.Map{"showtimeId": id, "selected": nonNil(out.Selected), "rejected": nonNil(out.Rejected)}
	if len(out.Selected) > 0 {
		resp["expiresAt"] = out.ExpiresAt
	}
	return c.JSON(http.StatusOK, resp)
}

// Release handles POST /v1/showtimes/:id/seats/release.  Releasing seats
// the caller does not hold is not an error; they are reported as skipped.
func (h *SeatIntentHandler) Release(c echo.Context) error {
	id, seatIDs, err := h.bind(c)
	if err != nil || id == 0 {
		return err
	}
	out, err := h.intents.Release(c.Request().Context(), id, seatIDs, middleware.ActorFrom(c).UserID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"showtimeId": id, "released": nonNil(out.Released), "skipped": nonNil(out.Skipped)})
}

// Reserve handles POST /v1/showtimes/:id/seats/reserve.  Either every seat
// is reserved for payment or none is, in which case the conflicting seats
// come back with a 409.
func (h *SeatIntentHandler) Reserve(c echo.Context) error {
	id, seatIDs, err := h.bind(c)
	if err != nil || id == 0 {
		return err
	}
	out, err := h.intents.Reserve(c.Request().Context(), id, seatIDs, middleware.ActorFrom(c).UserID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"showtimeId": id, "seatIds": out.SeatIDs, "expiresAt": out.ExpiresAt})
}

func nonNil(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
