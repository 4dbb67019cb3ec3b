package router // package router defines how HTTP routes are registered for the API

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
)

// Handlers bundles every HTTP handler the API mounts.
type Handlers struct {
	Showtimes *handler.ShowtimeHandler
	Intents   *handler.SeatIntentHandler
	Bookings  *handler.BookingHandler
	Tickets   *handler.TicketHandler
	Socket    *handler.SocketHandler
	Ready     *handler.ReadyHandler
}

// Options carries the cross-cutting middleware shared by route groups.
// RateLimit guards seat intents and booking creation; Cache fronts catalog
// reads only.
type Options struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(log *slog.Logger, h Handlers, opts Options) *echo.Echo {
	if opts.RateLimit == nil {
		opts.RateLimit = passthrough
	}
	if opts.Cache == nil {
		opts.Cache = passthrough
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	RegisterRoutes(e, h.Ready)
	RegisterPublic(e, h.Showtimes, h.Socket, opts)
	RegisterCustomer(e, h.Intents, h.Bookings, opts)
	RegisterStaff(e, h.Tickets, h.Showtimes, opts)
	return e
}

// RegisterRoutes registers the operational endpoints: liveness, readiness
// and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, ready *handler.ReadyHandler) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready.Ready)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the endpoints guests may use: showtime details,
// the seat map, the viewer roster and the realtime socket.  A token is
// optional; when present the caller is identified so the socket can carry
// seat intents.
func RegisterPublic(e *echo.Echo, s *handler.ShowtimeHandler, ws *handler.SocketHandler, opts Options) {
	optional := middleware.OptionalJWT(opts.JWTSecret)

	// Showtime details change rarely and tolerate cache staleness.
	e.GET("/v1/showtimes/:id", s.GetShowtime, opts.Cache)
	// The seat map is authoritative; it is never cached.
	e.GET("/v1/showtimes/:id/seats", s.GetSeatMap)
	e.GET("/v1/showtimes/:id/viewers", s.GetViewers)

	e.GET("/v1/ws", ws.Serve, optional)
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
