package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// RegisterCustomer registers the endpoints of signed-in users under /v1.
// Staff and admins use the same routes; the services decide what each
// role may do with a booking.  Seat intents and booking creation are rate
// limited per caller.
func RegisterCustomer(e *echo.Echo, intents *handler.SeatIntentHandler, b *handler.BookingHandler, opts Options) {
	g := e.Group("/v1")
	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(opts.JWTSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleStaff, model.RoleAdmin),
	}
	limited := append(auth[:len(auth):len(auth)], opts.RateLimit)

	// HTTP fallbacks of the realtime seat intents.
	g.POST("/showtimes/:id/seats/select", intents.Select, limited...)
	g.POST("/showtimes/:id/seats/release", intents.Release, limited...)
	g.POST("/showtimes/:id/seats/reserve", intents.Reserve, limited...)

	g.POST("/bookings", b.Create, limited...)
	g.GET("/bookings/:id", b.Get, auth...)
	g.PUT("/bookings/:id/payment", b.Settle, auth...)
	g.GET("/my-bookings", b.ListMine, auth...)
}
