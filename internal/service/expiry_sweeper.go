package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

// SweepReport summarises one expiry sweep.
type SweepReport struct {
	BookingsCancelled int64
	SeatsReleased     int
	SeatsBooked       int
}

// ExpirySweeper returns lapsed holds to available.  Every release is a
// compare-and-set guarded on the hold still being expired, so any number
// of sweepers may run against the same store.  Seats linked to a booking
// are never released by expiry alone: they follow their booking, released
// once it is cancelled and booked once it is confirmed.
type ExpirySweeper struct {
	seats    SeatStore
	bookings BookingStore
	bus      Broadcaster
	clock    clock.Clock
	interval time.Duration
	batch    int
	log      *slog.Logger
}

// NewExpirySweeper constructs an ExpirySweeper.
func NewExpirySweeper(seats SeatStore, bookings BookingStore, bus Broadcaster, clk clock.Clock, interval time.Duration, batch int, log *slog.Logger) *ExpirySweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 500
	}
	return &ExpirySweeper{
		seats:    seats,
		bookings: bookings,
		bus:      bus,
		clock:    clk,
		interval: interval,
		batch:    batch,
		log:      log.With("component", "expiry-sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("expiry sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce cancels pending bookings whose payment window lapsed, then
// releases every expired selecting or reserved hold.  Expired seats linked
// to a booking are settled according to that booking.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var report SweepReport
	now := s.clock.Now()

	n, err := s.bookings.CancelExpiredPending(ctx, now)
	if err != nil {
		return report, errors.Wrap(err, "cancel expired bookings")
	}
	report.BookingsCancelled = n
	metrics.PendingBookingsExpired.Add(float64(n))

	expired, err := s.seats.ListExpiredHolds(ctx, now, s.batch)
	if err != nil {
		return report, errors.Wrap(err, "list expired holds")
	}

	for _, showtimeID := range showtimeOrder(expired) {
		released, err := s.expireShowtime(ctx, showtimeID, expired, now)
		report.SeatsReleased += released
		if err != nil {
			return report, err
		}
	}
	for _, group := range linkedGroups(expired) {
		released, booked, err := s.settleLinked(ctx, group)
		report.SeatsReleased += released
		report.SeatsBooked += booked
		if err != nil {
			return report, err
		}
	}
	if report.SeatsReleased > 0 || report.BookingsCancelled > 0 || report.SeatsBooked > 0 {
		s.log.Info("expiry sweep",
			"seats_released", report.SeatsReleased,
			"seats_booked", report.SeatsBooked,
			"bookings_cancelled", report.BookingsCancelled)
	}
	return report, nil
}

// expireShowtime releases the expired holds of one showtime that are not
// linked to a booking.
func (s *ExpirySweeper) expireShowtime(ctx context.Context, showtimeID uint64, expired []model.SeatStatus, now time.Time) (int, error) {
	var ids []uint64
	holders := make(map[uint64]string)
	for _, seat := range expired {
		if seat.ShowtimeID != showtimeID || seat.BookingRef != "" {
			continue
		}
		ids = append(ids, seat.SeatID)
		holders[seat.SeatID] = seat.HolderID
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.seats.CompareAndSet(ctx, model.SeatTransition{
		ShowtimeID:          showtimeID,
		SeatIDs:             ids,
		From:                []model.SeatState{model.SeatSelecting, model.SeatReserved},
		To:                  model.SeatAvailable,
		ExpiredAt:           &now,
		RequireNoBookingRef: true,
	})
	if err != nil {
		return len(res.Succeeded), errors.Wrapf(err, "expire holds of showtime %d", showtimeID)
	}
	if len(res.Succeeded) == 0 {
		return 0, nil
	}
	metrics.HoldsExpired.Add(float64(len(res.Succeeded)))

	byHolder := make(map[string][]uint64)
	for _, id := range res.Succeeded {
		byHolder[holders[id]] = append(byHolder[holders[id]], id)
	}
	for holder, seatIDs := range byHolder {
		s.bus.Broadcast(ctx, showtimeID, realtime.NewEvent(realtime.EventReservationExpired, realtime.SeatsPayload{
			ShowtimeID: showtimeID, SeatIDs: seatIDs, UserID: holder, Reason: realtime.ReasonExpired,
		}))
	}
	s.bus.Broadcast(ctx, showtimeID, realtime.NewEvent(realtime.EventSeatsReleased, realtime.SeatsPayload{
		ShowtimeID: showtimeID, SeatIDs: res.Succeeded, Reason: realtime.ReasonExpired,
	}))
	return len(res.Succeeded), nil
}

// linkedGroup is the expired seats of one booking.
type linkedGroup struct {
	showtimeID uint64
	bookingRef string
	holder     string
	seatIDs    []uint64
}

func linkedGroups(seats []model.SeatStatus) []linkedGroup {
	idx := make(map[string]int)
	var out []linkedGroup
	for _, seat := range seats {
		if seat.BookingRef == "" {
			continue
		}
		i, ok := idx[seat.BookingRef]
		if !ok {
			i = len(out)
			idx[seat.BookingRef] = i
			out = append(out, linkedGroup{showtimeID: seat.ShowtimeID, bookingRef: seat.BookingRef, holder: seat.HolderID})
		}
		out[i].seatIDs = append(out[i].seatIDs, seat.SeatID)
	}
	return out
}

// settleLinked moves the expired seats of a booking to match the booking:
// available when it was cancelled or never stored, booked when it was
// confirmed but the seats were not finalized.  Seats of a booking still
// pending are left alone; its cancellation releases them on a later sweep.
func (s *ExpirySweeper) settleLinked(ctx context.Context, g linkedGroup) (released, booked int, err error) {
	b, err := s.bookings.GetByID(ctx, g.bookingRef)
	switch {
	case errors.Is(err, model.ErrBookingNotFound):
		b = nil
	case err != nil:
		return 0, 0, errors.Wrapf(err, "load booking %s", g.bookingRef)
	}

	if b != nil && b.BookingStatus == model.BookingConfirmed {
		res, err := s.seats.CompareAndSet(ctx, bookedTransition(g.showtimeID, g.seatIDs, g.holder, g.bookingRef))
		if err != nil {
			return 0, 0, errors.Wrapf(err, "finalize seats of booking %s", g.bookingRef)
		}
		if len(res.Succeeded) > 0 {
			metrics.RecordSeats("finalize_booked", len(res.Succeeded), len(res.Rejected))
			s.bus.Broadcast(ctx, g.showtimeID, realtime.NewEvent(realtime.EventSeatsBooked, realtime.SeatsPayload{
				ShowtimeID: g.showtimeID, SeatIDs: res.Succeeded, BookingID: g.bookingRef,
			}))
			s.log.Warn("finalized seats of confirmed booking", "booking_id", g.bookingRef, "seat_ids", res.Succeeded)
		}
		return 0, len(res.Succeeded), nil
	}
	if b != nil && b.BookingStatus != model.BookingCancelled {
		return 0, 0, nil
	}

	res, err := s.seats.CompareAndSet(ctx, releasedTransition(g.showtimeID, g.seatIDs, g.bookingRef))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "release seats of booking %s", g.bookingRef)
	}
	if len(res.Succeeded) == 0 {
		return 0, 0, nil
	}
	metrics.HoldsExpired.Add(float64(len(res.Succeeded)))
	s.bus.Broadcast(ctx, g.showtimeID, realtime.NewEvent(realtime.EventReservationExpired, realtime.SeatsPayload{
		ShowtimeID: g.showtimeID, SeatIDs: res.Succeeded, UserID: g.holder, BookingID: g.bookingRef, Reason: realtime.ReasonExpired,
	}))
	s.bus.Broadcast(ctx, g.showtimeID, realtime.NewEvent(realtime.EventSeatsReleased, realtime.SeatsPayload{
		ShowtimeID: g.showtimeID, SeatIDs: res.Succeeded, BookingID: g.bookingRef, Reason: realtime.ReasonExpired,
	}))
	return len(res.Succeeded), 0, nil
}

func showtimeOrder(seats []model.SeatStatus) []uint64 {
	seen := make(map[uint64]struct{})
	var out []uint64
	for _, s := range seats {
		if _, ok := seen[s.ShowtimeID]; ok {
			continue
		}
		seen[s.ShowtimeID] = struct{}{}
		out = append(out, s.ShowtimeID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
