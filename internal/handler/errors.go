package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// genericError is returned for failures whose details must not leak.
const genericError = "something went wrong, please try again"

// respondError translates a service error into the HTTP response.  It is
// the only place the error taxonomy meets status codes.
func respondError(c echo.Context, log *slog.Logger, err error) error {
	if sc, ok := model.AsSeatConflict(err); ok {
		return c.JSON(http.StatusConflict, echo.Map{"error": sc.Error(), "seatIds": sc.SeatIDs})
	}
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		if log == nil {
			log = slog.Default()
		}
		log.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(status, echo.Map{"error": genericError})
	}
	msg, ok := model.PublicMessage(err)
	if !ok {
		msg = http.StatusText(status)
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func statusOf(err error) int {
	switch {
	case model.IsExpiredWindow(err):
		return http.StatusGone
	case errors.Is(err, model.ErrGuestNotAllowed):
		return http.StatusUnauthorized
	case model.IsForbidden(err):
		return http.StatusForbidden
	case model.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsAny(err, model.ErrShowtimeNotFound, model.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.IsAny(err, model.ErrAlreadySettled, model.ErrAlreadyCheckedIn, model.ErrBookingNotConfirmed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// badRequest writes a 400 with msg.
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
