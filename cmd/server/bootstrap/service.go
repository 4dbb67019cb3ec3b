package bootstrap

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/realtime"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/service"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

var ServiceModule = fx.Module("service",
	fx.Provide(
		clock.NewRealClock,
		NewReservationManager,
		NewBookingOrchestrator,
		NewTicketVerifier,
		NewExpirySweeper,
	),
)

func NewReservationManager(seats *repository.SeatStatusRepo, hub *realtime.Hub, clk clock.Clock, cfg config.Config, log *slog.Logger) *service.ReservationManager {
	policy := service.Policy{SelectTTL: cfg.Booking.SelectTTL, PaymentWindow: cfg.Booking.PaymentWindow}
	return service.NewReservationManager(seats, hub, clk, policy, log)
}

func NewBookingOrchestrator(
	seats *repository.SeatStatusRepo,
	reservations *service.ReservationManager,
	bookings *repository.BookingRepo,
	catalog *repository.CatalogRepo,
	hub *realtime.Hub,
	publisher *queue.Publisher,
	signer *utils.TicketSigner,
	clk clock.Clock,
	log *slog.Logger,
) *service.BookingOrchestrator {
	return service.NewBookingOrchestrator(seats, reservations, bookings, catalog, hub, publisher, signer, clk, log)
}

func NewTicketVerifier(bookings *repository.BookingRepo, catalog *repository.CatalogRepo, signer *utils.TicketSigner, clk clock.Clock, log *slog.Logger) *service.TicketVerifier {
	return service.NewTicketVerifier(bookings, catalog, signer, clk, log)
}

func NewExpirySweeper(seats *repository.SeatStatusRepo, bookings *repository.BookingRepo, hub *realtime.Hub, clk clock.Clock, cfg config.Config, log *slog.Logger) *service.ExpirySweeper {
	return service.NewExpirySweeper(seats, bookings, hub, clk, cfg.Booking.SweepInterval, cfg.Booking.SweepBatch, log)
}
