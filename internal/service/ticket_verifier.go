package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// Reasons a scanned ticket is not valid for entry.
const (
	TicketExpired      = "ticket expired"
	TicketNotConfirmed = "booking is not confirmed"
	TicketUsed         = "ticket already used"
)

// Verification is the result of scanning a ticket at the door.  Booking and
// Showtime are attached even when Valid is false so the operator can see
// why.
type Verification struct {
	Valid     bool
	Reason    string
	Booking   *model.Booking
	Showtime  *model.Showtime
	ExpiresAt time.Time
}

// TicketVerifier validates ticket tokens and records check-ins.
type TicketVerifier struct {
	bookings BookingStore
	catalog  Catalog
	tickets  TicketMinter
	clock    clock.Clock
	log      *slog.Logger
}

// NewTicketVerifier constructs a TicketVerifier.
func NewTicketVerifier(bookings BookingStore, catalog Catalog, tickets TicketMinter, clk clock.Clock, log *slog.Logger) *TicketVerifier {
	if log == nil {
		log = slog.Default()
	}
	return &TicketVerifier{
		bookings: bookings,
		catalog:  catalog,
		tickets:  tickets,
		clock:    clk,
		log:      log.With("component", "ticket-verifier"),
	}
}

// Verify looks a ticket up by its token.  An unknown token is an error;
// a known ticket that cannot be used comes back with Valid=false and a
// reason.
func (v *TicketVerifier) Verify(ctx context.Context, actor model.Actor, token string) (*Verification, error) {
	if !actor.IsStaff() {
		return nil, errors.Wrap(model.ErrForbidden, "ticket verification requires a staff account")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, model.Invalidf("ticket token is required")
	}
	b, err := v.bookings.GetByQRToken(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "look up ticket")
	}
	if !v.tickets.Matches(b.ID, token) {
		v.log.Warn("stored ticket token does not match its booking", "booking_id", b.ID)
		return nil, errors.Wrap(model.ErrBookingNotFound, "look up ticket")
	}
	st, err := v.catalog.GetShowtime(ctx, b.ShowtimeID)
	if err != nil {
		return nil, errors.Wrapf(err, "look up showtime of booking %s", b.ID)
	}

	res := &Verification{Valid: true, Booking: b, Showtime: st, ExpiresAt: st.TicketExpiry()}
	switch {
	case b.BookingStatus != model.BookingConfirmed:
		res.Valid, res.Reason = false, TicketNotConfirmed
	case v.clock.Now().After(res.ExpiresAt):
		res.Valid, res.Reason = false, TicketExpired
	case b.CheckedIn:
		res.Valid, res.Reason = false, TicketUsed
	}
	return res, nil
}

// CheckIn admits the holder of a confirmed booking.  A second check-in
// fails with model.ErrAlreadyCheckedIn.  Expired tickets may still be
// checked in by staff.
func (v *TicketVerifier) CheckIn(ctx context.Context, actor model.Actor, bookingID string) (*model.Booking, error) {
	if !actor.IsStaff() {
		return nil, errors.Wrap(model.ErrForbidden, "check-in requires a staff account")
	}
	if bookingID == "" {
		return nil, model.Invalidf("booking id is required")
	}
	b, err := v.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, errors.Wrapf(err, "load booking %s", bookingID)
	}
	if b.BookingStatus != model.BookingConfirmed {
		metrics.TicketCheckIns.WithLabelValues("not_confirmed").Inc()
		return nil, errors.Wrapf(model.ErrBookingNotConfirmed, "booking %s is %s", b.ID, b.BookingStatus)
	}
	if b.CheckedIn {
		metrics.TicketCheckIns.WithLabelValues("already_used").Inc()
		return nil, errors.Wrapf(model.ErrAlreadyCheckedIn, "booking %s", b.ID)
	}

	now := v.clock.Now()
	ok, err := v.bookings.CheckIn(ctx, b.ID, now)
	if err != nil {
		return nil, errors.Wrapf(err, "check in booking %s", b.ID)
	}
	if !ok {
		metrics.TicketCheckIns.WithLabelValues("already_used").Inc()
		return nil, errors.Wrapf(model.ErrAlreadyCheckedIn, "booking %s", b.ID)
	}
	b.CheckedIn = true
	b.CheckedInAt = &now
	b.UpdatedAt = now
	metrics.TicketCheckIns.WithLabelValues("admitted").Inc()
	v.log.Info("ticket checked in", "booking_id", b.ID, "staff_id", actor.UserID)
	return b, nil
}
