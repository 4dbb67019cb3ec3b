// Package service holds the booking core: the reservation state machine,
// pricing, booking orchestration, ticket verification and the expiry
// sweeper.  It depends on storage and transport only through the
// interfaces below.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

// SeatStore is the seat status persistence.  CompareAndSet is the only way
// seat state changes.
type SeatStore interface {
	ListByShowtime(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error)
	ListByIDs(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.SeatStatus, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.SeatStatus, error)
	CompareAndSet(ctx context.Context, t model.SeatTransition) (model.CASResult, error)
}

// BookingStore persists bookings.
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetByQRToken(ctx context.Context, token string) (*model.Booking, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]model.Booking, error)
	Settle(ctx context.Context, id string, s model.Settlement) (bool, error)
	CheckIn(ctx context.Context, id string, at time.Time) (bool, error)
	CancelExpiredPending(ctx context.Context, now time.Time) (int64, error)
}

// Catalog is the read-only showtime, combo and voucher lookup.
type Catalog interface {
	GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error)
	GetCombos(ctx context.Context, ids []uint64) (map[uint64]model.Combo, error)
	GetVoucherByCode(ctx context.Context, code string) (*model.Voucher, error)
	GetVoucherByID(ctx context.Context, id uint64) (*model.Voucher, error)
}

// Broadcaster fans events out to the viewers of a showtime.
type Broadcaster interface {
	Broadcast(ctx context.Context, showtimeID uint64, ev realtime.Event)
}

// Notifier dispatches the confirmation of a settled booking.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *model.Booking, st *model.Showtime) error
}

// TicketMinter derives the printable ticket token of a booking and checks
// a scanned token against it.
type TicketMinter interface {
	Mint(bookingID string) string
	Matches(bookingID, token string) bool
}

// Policy carries the hold durations of the reservation state machine.
type Policy struct {
	SelectTTL     time.Duration
	PaymentWindow time.Duration
}
