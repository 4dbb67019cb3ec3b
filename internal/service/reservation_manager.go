package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

// ReservationManager drives the per-seat state machine
//
//	available -> selecting -> reserved -> booked
//	selecting, reserved -> available (release or expiry)
//
// Every transition is one compare-and-set on the seat store.  The first
// write to land wins; losers are told which seats they lost.
type ReservationManager struct {
	seats  SeatStore
	bus    Broadcaster
	clock  clock.Clock
	policy Policy
	log    *slog.Logger
}

// NewReservationManager constructs a ReservationManager.
func NewReservationManager(seats SeatStore, bus Broadcaster, clk clock.Clock, policy Policy, log *slog.Logger) *ReservationManager {
	if log == nil {
		log = slog.Default()
	}
	return &ReservationManager{
		seats:  seats,
		bus:    bus,
		clock:  clk,
		policy: policy,
		log:    log.With("component", "reservation-manager"),
	}
}

// SeatMap returns the authoritative seat map of a showtime.
func (m *ReservationManager) SeatMap(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error) {
	seats, err := m.seats.ListByShowtime(ctx, showtimeID)
	if err != nil {
		return nil, errors.Wrap(err, "load seat map")
	}
	return seats, nil
}

// Select puts an advisory selecting hold on the seats.  Seats the user is
// already selecting are renewed; seats selected or reserved by anyone else
// are rejected individually.
func (m *ReservationManager) Select(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID string) (model.SelectionOutcome, error) {
	if err := validateIntent(showtimeID, seatIDs, userID); err != nil {
		return model.SelectionOutcome{}, err
	}
	exp := m.clock.Now().Add(m.policy.SelectTTL)
	res, err := m.seats.CompareAndSet(ctx, model.SeatTransition{
		ShowtimeID:          showtimeID,
		SeatIDs:             seatIDs,
		From:                []model.SeatState{model.SeatAvailable, model.SeatSelecting},
		To:                  model.SeatSelecting,
		Holder:              userID,
		MatchHolder:         true,
		ExpiresAt:           &exp,
		RequireNoBookingRef: true,
	})
	if err != nil {
		return model.SelectionOutcome{}, errors.Wrap(err, "select seats")
	}
	metrics.RecordSeats("select", len(res.Succeeded), len(res.Rejected))

	if len(res.Succeeded) > 0 {
		m.bus.Broadcast(ctx, showtimeID, realtime.NewEvent(realtime.EventSeatsBeingSelected, realtime.SeatsPayload{
			ShowtimeID: showtimeID, SeatIDs: res.Succeeded, UserID: userID, ExpiresAt: &exp,
		}))
	}
	return model.SelectionOutcome{Selected: res.Succeeded, Rejected: res.Rejected, ExpiresAt: exp}, nil
}

// Release returns the caller's held seats to available.  Seats the caller
// does not hold are skipped without error, so releasing twice is harmless.
// Seats already linked to a pending booking stay put until the booking is
// settled or lapses.
func (m *ReservationManager) Release(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID string) (model.ReleaseOutcome, error) {
	if err := validateIntent(showtimeID, seatIDs, userID); err != nil {
		return model.ReleaseOutcome{}, err
	}
	res, err := m.seats.CompareAndSet(ctx, model.SeatTransition{
		ShowtimeID:          showtimeID,
		SeatIDs:             seatIDs,
		From:                []model.SeatState{model.SeatSelecting, model.SeatReserved},
		To:                  model.SeatAvailable,
		Holder:              userID,
		MatchHolder:         true,
		RequireNoBookingRef: true,
	})
	if err != nil {
		return model.ReleaseOutcome{}, errors.Wrap(err, "release seats")
	}
	metrics.RecordSeats("release", len(res.Succeeded), 0)

	if len(res.Succeeded) > 0 {
		m.bus.Broadcast(ctx, showtimeID, realtime.NewEvent(realtime.EventSeatsReleased, realtime.SeatsPayload{
			ShowtimeID: showtimeID, SeatIDs: res.Succeeded, UserID: userID, Reason: realtime.ReasonReleased,
		}))
	}
	return model.ReleaseOutcome{Released: res.Succeeded, Skipped: res.Rejected}, nil
}

// Reserve turns the caller's selecting holds into reserved holds that last
// for the payment window.  It is all or nothing: if any seat cannot move,
// the seats that did move are put back to available and a
// *model.SeatConflictError names the seats that failed.
func (m *ReservationManager) Reserve(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID string) (model.ReserveOutcome, error) {
	if err := validateIntent(showtimeID, seatIDs, userID); err != nil {
		return model.ReserveOutcome{}, err
	}
	now := m.clock.Now()
	exp := now.Add(m.policy.PaymentWindow)
	res, err := m.seats.CompareAndSet(ctx, model.SeatTransition{
		ShowtimeID:  showtimeID,
		SeatIDs:     seatIDs,
		From:        []model.SeatState{model.SeatSelecting},
		To:          model.SeatReserved,
		Holder:      userID,
		MatchHolder: true,
		ExpiresAt:   &exp,
		UnexpiredAt: &now,
	})
	if err != nil {
		m.rollbackReserve(ctx, showtimeID, res.Succeeded, userID)
		return model.ReserveOutcome{}, errors.Wrap(err, "reserve seats")
	}
	metrics.RecordSeats("reserve", len(res.Succeeded), len(res.Rejected))

	if !res.AllSucceeded() {
		m.rollbackReserve(ctx, showtimeID, res.Succeeded, userID)
		return model.ReserveOutcome{}, model.NewSeatConflict("not selected by you or no longer available", res.Rejected)
	}

	m.bus.Broadcast(ctx, showtimeID, realtime.NewEvent(realtime.EventSeatsReservedForPay, realtime.SeatsPayload{
		ShowtimeID: showtimeID, SeatIDs: res.Succeeded, UserID: userID, ExpiresAt: &exp,
	}))
	return model.ReserveOutcome{SeatIDs: res.Succeeded, ExpiresAt: exp}, nil
}

// rollbackReserve releases seats a failed reserve already moved.
func (m *ReservationManager) rollbackReserve(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID string) {
	if len(seatIDs) == 0 {
		return
	}
	res, err := m.seats.CompareAndSet(ctx, model.SeatTransition{
		ShowtimeID:          showtimeID,
		SeatIDs:             seatIDs,
		From:                []model.SeatState{model.SeatReserved},
		To:                  model.SeatAvailable,
		Holder:              userID,
		MatchHolder:         true,
		RequireNoBookingRef: true,
	})
	if err != nil {
		m.log.Error("reserve rollback failed, seats will lapse via sweeper",
			"showtime_id", showtimeID, "seat_ids", seatIDs, "error", err)
		return
	}
	if len(res.Succeeded) > 0 {
		m.bus.Broadcast(ctx, showtimeID, realtime.NewEvent(realtime.EventSeatsReleased, realtime.SeatsPayload{
			ShowtimeID: showtimeID, SeatIDs: res.Succeeded, UserID: userID, Reason: realtime.ReasonReservationFailed,
		}))
	}
}

// Claim links seats to a new booking and restarts their hold for the
// payment window.  Online bookings need the seats reserved by holder and
// unexpired.  Counter bookings (counter=true) may also take available
// seats and the staff member's own holds.  It is all or nothing like
// Reserve.
func (m *ReservationManager) Claim(ctx context.Context, showtimeID uint64, seatIDs []uint64, holder, bookingRef string, counter bool) (time.Time, error) {
	now := m.clock.Now()
	exp := now.Add(m.policy.PaymentWindow)
	t := model.SeatTransition{
		ShowtimeID:          showtimeID,
		SeatIDs:             seatIDs,
		From:                []model.SeatState{model.SeatReserved},
		To:                  model.SeatReserved,
		Holder:              holder,
		MatchHolder:         true,
		ExpiresAt:           &exp,
		BookingRef:          bookingRef,
		UnexpiredAt:         &now,
		RequireNoBookingRef: true,
	}
	if counter {
		t.From = []model.SeatState{model.SeatAvailable, model.SeatSelecting, model.SeatReserved}
		t.UnexpiredAt = nil
	}
	res, err := m.seats.CompareAndSet(ctx, t)
	if err != nil {
		m.Unclaim(ctx, showtimeID, res.Succeeded, holder, bookingRef, counter)
		return time.Time{}, errors.Wrap(err, "claim seats")
	}
	metrics.RecordSeats("claim", len(res.Succeeded), len(res.Rejected))
	if !res.AllSucceeded() {
		m.Unclaim(ctx, showtimeID, res.Succeeded, holder, bookingRef, counter)
		return time.Time{}, model.NewSeatConflict("no longer held for this booking", res.Rejected)
	}
	return exp, nil
}

// Unclaim undoes Claim for seats still linked to bookingRef.  Online
// bookings hand the seats back as plain reservations; counter bookings
// release them.
func (m *ReservationManager) Unclaim(ctx context.Context, showtimeID uint64, seatIDs []uint64, holder, bookingRef string, counter bool) {
	if len(seatIDs) == 0 {
		return
	}
	t := model.SeatTransition{
		ShowtimeID:      showtimeID,
		SeatIDs:         seatIDs,
		From:            []model.SeatState{model.SeatReserved},
		To:              model.SeatReserved,
		Holder:          holder,
		MatchHolder:     true,
		MatchBookingRef: bookingRef,
	}
	if counter {
		t.To = model.SeatAvailable
	} else {
		exp := m.clock.Now().Add(m.policy.PaymentWindow)
		t.ExpiresAt = &exp
	}
	if _, err := m.seats.CompareAndSet(ctx, t); err != nil {
		m.log.Error("unclaim failed, seats will lapse via sweeper",
			"showtime_id", showtimeID, "booking_id", bookingRef, "error", err)
		return
	}
	if counter {
		m.bus.Broadcast(ctx, showtimeID, realtime.NewEvent(realtime.EventSeatsReleased, realtime.SeatsPayload{
			ShowtimeID: showtimeID, SeatIDs: seatIDs, Reason: realtime.ReasonReservationFailed,
		}))
	}
}

// FinalizeBooked marks the booking's reserved seats as booked.  Only the
// booking orchestrator and the expiry sweeper call it, for confirmed
// bookings.
func (m *ReservationManager) FinalizeBooked(ctx context.Context, showtimeID uint64, seatIDs []uint64, holder, bookingRef string) (model.CASResult, error) {
	res, err := m.seats.CompareAndSet(ctx, bookedTransition(showtimeID, seatIDs, holder, bookingRef))
	if err != nil {
		return res, errors.Wrap(err, "finalize booked seats")
	}
	metrics.RecordSeats("finalize_booked", len(res.Succeeded), len(res.Rejected))
	return res, nil
}

// FinalizeReleased returns reserved seats to available, clearing holder,
// expiry and booking reference.  With a non-empty bookingRef only seats
// still linked to that booking are released.
func (m *ReservationManager) FinalizeReleased(ctx context.Context, showtimeID uint64, seatIDs []uint64, bookingRef string) (model.CASResult, error) {
	res, err := m.seats.CompareAndSet(ctx, releasedTransition(showtimeID, seatIDs, bookingRef))
	if err != nil {
		return res, errors.Wrap(err, "finalize released seats")
	}
	metrics.RecordSeats("finalize_released", len(res.Succeeded), len(res.Rejected))
	return res, nil
}

func bookedTransition(showtimeID uint64, seatIDs []uint64, holder, bookingRef string) model.SeatTransition {
	return model.SeatTransition{
		ShowtimeID:      showtimeID,
		SeatIDs:         seatIDs,
		From:            []model.SeatState{model.SeatReserved},
		To:              model.SeatBooked,
		Holder:          holder,
		MatchHolder:     true,
		BookingRef:      bookingRef,
		MatchBookingRef: bookingRef,
	}
}

func releasedTransition(showtimeID uint64, seatIDs []uint64, bookingRef string) model.SeatTransition {
	return model.SeatTransition{
		ShowtimeID:      showtimeID,
		SeatIDs:         seatIDs,
		From:            []model.SeatState{model.SeatReserved},
		To:              model.SeatAvailable,
		MatchBookingRef: bookingRef,
	}
}

func validateIntent(showtimeID uint64, seatIDs []uint64, userID string) error {
	if userID == "" {
		return model.ErrGuestNotAllowed
	}
	if showtimeID == 0 {
		return model.Invalidf("showtimeId is required")
	}
	if len(seatIDs) == 0 {
		return model.Invalidf("seatIds must not be empty")
	}
	for _, id := range seatIDs {
		if id == 0 {
			return model.Invalidf("seatIds must be positive")
		}
	}
	return nil
}
