package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// RegisterStaff registers the door and back-office endpoints.  Ticket
// verification needs STAFF or ADMIN; seat map initialisation is ADMIN only.
func RegisterStaff(e *echo.Echo, t *handler.TicketHandler, s *handler.ShowtimeHandler, opts Options) {
	door := e.Group(
		"/v1/tickets",
		middleware.JWTAuth(opts.JWTSecret),
		middleware.RequireRole(model.RoleStaff, model.RoleAdmin),
	)
	door.POST("/verify", t.Verify)
	door.POST("/check-in", t.CheckIn)

	admin := e.Group(
		"/v1/admin",
		middleware.JWTAuth(opts.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	admin.POST("/showtimes/:id/seats", s.InitSeats)
}
