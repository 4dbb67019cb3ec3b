package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/realtime"
)

// ShowtimeHandler serves the read side of a showtime: its catalog entry,
// its seat map and who is currently looking at it.  Admins also use it to
// create the seat rows of a new showtime.
type ShowtimeHandler struct {
	catalog ShowtimeReader
	seats   SeatMapper
	roster  RosterReader
	init    SeatInitializer
	log     *slog.Logger
}

// NewShowtimeHandler constructs a ShowtimeHandler.
func NewShowtimeHandler(catalog ShowtimeReader, seats SeatMapper, roster RosterReader, init SeatInitializer, log *slog.Logger) *ShowtimeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ShowtimeHandler{catalog: catalog, seats: seats, roster: roster, init: init, log: log}
}

// GetShowtime handles GET /v1/showtimes/:id.
func (h *ShowtimeHandler) GetShowtime(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	st, err := h.catalog.GetShowtime(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toShowtimeResponse(st))
}

// GetSeatMap handles GET /v1/showtimes/:id/seats.  Clients load it when
// they (re)join a room; the realtime events only carry changes.
func (h *ShowtimeHandler) GetSeatMap(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	ctx := c.Request().Context()
	seats, err := h.seats.SeatMap(ctx, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if len(seats) == 0 {
		// an empty map is either an unknown showtime or one not initialised yet
		if _, err := h.catalog.GetShowtime(ctx, id); err != nil {
			return respondError(c, h.log, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"showtimeId": id, "seats": toSeatResponses(seats)})
}

// GetViewers handles GET /v1/showtimes/:id/viewers.  The roster only
// covers viewers connected to this node.
func (h *ShowtimeHandler) GetViewers(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	roster := h.roster.Roster(id)
	users := make([]realtime.PresencePayload, 0, len(roster))
	for _, p := range roster {
		users = append(users, realtime.PresenceOf(p))
	}
	return c.JSON(http.StatusOK, realtime.ActiveUsersPayload{ShowtimeID: id, Users: users})
}

// InitSeats handles POST /v1/admin/showtimes/:id/seats.  It is safe to
// call again after seats were added to the theater.
func (h *ShowtimeHandler) InitSeats(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	ctx := c.Request().Context()
	if _, err := h.catalog.GetShowtime(ctx, id); err != nil {
		return respondError(c, h.log, err)
	}
	created, err := h.init.InitShowtime(ctx, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	h.log.InfoContext(ctx, "seat map initialised", "showtime_id", id, "created", created)
	return c.JSON(http.StatusCreated, echo.Map{"showtimeId": id, "created": created})
}
