package bootstrap

import (
	"database/sql"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/realtime"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/service"
)

var HTTPModule = fx.Module("http",
	fx.Provide(
		NewHandlers,
		NewEcho,
	),
)

func NewHandlers(
	db *sql.DB,
	rdb *redis.Client,
	catalog *repository.CatalogRepo,
	seats *repository.SeatStatusRepo,
	hub *realtime.Hub,
	reservations *service.ReservationManager,
	bookings *service.BookingOrchestrator,
	tickets *service.TicketVerifier,
	bg *Background,
	log *slog.Logger,
) router.Handlers {
	return router.Handlers{
		Showtimes: handler.NewShowtimeHandler(catalog, reservations, hub, seats, log),
		Intents:   handler.NewSeatIntentHandler(reservations, log),
		Bookings:  handler.NewBookingHandler(bookings, log),
		Tickets:   handler.NewTicketHandler(tickets, log),
		Socket:    handler.NewSocketHandler(bg.Context(), hub, reservations, log),
		Ready:     handler.NewReadyHandler(db, rdb),
	}
}

func NewEcho(cfg config.Config, rdb *redis.Client, h router.Handlers, log *slog.Logger) *echo.Echo {
	return router.New(log, h, router.Options{
		JWTSecret: cfg.JWT.Secret,
		RateLimit: middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
		Cache:     middleware.NewRedisCache(cfg.Cache, rdb),
	})
}
