package handler

import (
	"context"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// ShowtimeReader resolves showtimes from the catalog.
type ShowtimeReader interface {
	GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error)
}

// SeatMapper returns the authoritative seat map of a showtime.
type SeatMapper interface {
	SeatMap(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error)
}

// SeatInitializer creates the seat rows of a newly scheduled showtime.
type SeatInitializer interface {
	InitShowtime(ctx context.Context, showtimeID uint64) (int64, error)
}

// RosterReader lists the viewers joined to a showtime room.
type RosterReader interface {
	Roster(showtimeID uint64) []model.Participant
}

// Bookings is the booking lifecycle as the HTTP surface drives it.
type Bookings interface {
	CreatePendingBooking(ctx context.Context, actor model.Actor, req service.CreateBookingRequest) (*model.Booking, error)
	SettlePayment(ctx context.Context, actor model.Actor, bookingID string, req service.SettleRequest) (*model.Booking, error)
	Get(ctx context.Context, actor model.Actor, bookingID string) (*model.Booking, error)
	ListMine(ctx context.Context, actor model.Actor, limit int) ([]model.Booking, error)
}

// Tickets verifies tickets at the door.
type Tickets interface {
	Verify(ctx context.Context, actor model.Actor, token string) (*service.Verification, error)
	CheckIn(ctx context.Context, actor model.Actor, bookingID string) (*model.Booking, error)
}

var (
	_ SeatMapper           = (*service.ReservationManager)(nil)
	_ realtime.SeatIntents = (*service.ReservationManager)(nil)
	_ Bookings             = (*service.BookingOrchestrator)(nil)
	_ Tickets              = (*service.TicketVerifier)(nil)
	_ RosterReader         = (*realtime.Hub)(nil)
)
