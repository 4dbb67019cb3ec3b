package service

import (
	"context"
	"log/slog"
	"net/mail"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

const notifyTimeout = 30 * time.Second

// CreateBookingRequest is the input of CreatePendingBooking.
type CreateBookingRequest struct {
	ShowtimeID uint64
	SeatIDs    []uint64
	Combos     []model.ComboRequest
	Voucher    VoucherRef
	// EmployeeMode lets staff sell at the counter without a prior hold.
	EmployeeMode bool
	Customer     *model.CustomerInfo
}

// SettleRequest is the payment outcome reported for a booking.
type SettleRequest struct {
	Outcome       model.PaymentStatus
	TransactionID string
	PaymentMethod string
}

// BookingOrchestrator turns held seats into priced pending bookings and
// settles them on the payment outcome.
type BookingOrchestrator struct {
	seats        SeatStore
	reservations *ReservationManager
	bookings     BookingStore
	catalog      Catalog
	pricer       *Pricer
	bus          Broadcaster
	notifier     Notifier
	tickets      TicketMinter
	clock        clock.Clock
	newID        func() string
	log          *slog.Logger
}

// NewBookingOrchestrator constructs a BookingOrchestrator.
func NewBookingOrchestrator(
	seats SeatStore,
	reservations *ReservationManager,
	bookings BookingStore,
	catalog Catalog,
	bus Broadcaster,
	notifier Notifier,
	tickets TicketMinter,
	clk clock.Clock,
	log *slog.Logger,
) *BookingOrchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &BookingOrchestrator{
		seats:        seats,
		reservations: reservations,
		bookings:     bookings,
		catalog:      catalog,
		pricer:       NewPricer(catalog),
		bus:          bus,
		notifier:     notifier,
		tickets:      tickets,
		clock:        clk,
		newID:        uuid.NewString,
		log:          log.With("component", "booking-orchestrator"),
	}
}

// CreatePendingBooking validates that the requested seats are held for the
// caller, prices the order and persists a pending booking linked to the
// seats.  No booking is created unless every seat can be claimed.
func (o *BookingOrchestrator) CreatePendingBooking(ctx context.Context, actor model.Actor, req CreateBookingRequest) (*model.Booking, error) {
	if err := validateCreate(actor, req); err != nil {
		return nil, err
	}
	now := o.clock.Now()

	st, err := o.catalog.GetShowtime(ctx, req.ShowtimeID)
	if err != nil {
		return nil, errors.Wrap(err, "look up showtime")
	}
	if st.Started(now) {
		return nil, errors.Wrapf(model.ErrShowtimeStarted, "showtime %d started at %s", st.ID, st.StartTime.Format(time.RFC3339))
	}

	seats, err := o.heldSeats(ctx, actor, req, now)
	if err != nil {
		return nil, err
	}

	quote, err := o.pricer.Quote(ctx, st, seats, req.Combos, req.Voucher, now)
	if err != nil {
		return nil, err
	}

	b := &model.Booking{
		ID:             o.newID(),
		CustomerID:     actor.UserID,
		ShowtimeID:     st.ID,
		Seats:          quote.Seats,
		Combos:         quote.Combos,
		Subtotal:       quote.Subtotal,
		DiscountAmount: quote.Discount,
		TotalAmount:    quote.Total,
		PaymentStatus:  model.PaymentPending,
		BookingStatus:  model.BookingPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.EmployeeMode {
		customer := *req.Customer
		b.StaffID = actor.UserID
		b.Customer = &customer
		if customer.CustomerID != "" {
			b.CustomerID = customer.CustomerID
		}
	} else {
		b.Customer = &model.CustomerInfo{CustomerID: actor.UserID, Name: actor.Name, Email: actor.Email}
	}
	if quote.Voucher != nil {
		id := quote.Voucher.ID
		b.VoucherID = &id
		b.VoucherCode = quote.Voucher.Code
	}
	b.QRToken = o.tickets.Mint(b.ID)

	holder := seatHolder(b)
	exp, err := o.reservations.Claim(ctx, st.ID, b.SeatIDs(), holder, b.ID, req.EmployeeMode)
	if err != nil {
		return nil, err
	}
	b.HoldExpiresAt = exp

	if err := o.bookings.Create(ctx, b); err != nil {
		o.reservations.Unclaim(ctx, st.ID, b.SeatIDs(), holder, b.ID, req.EmployeeMode)
		return nil, errors.Wrap(err, "persist booking")
	}

	channel := "online"
	if req.EmployeeMode {
		channel = "counter"
	}
	metrics.BookingsCreated.WithLabelValues(channel).Inc()
	o.bus.Broadcast(ctx, st.ID, realtime.NewEvent(realtime.EventSeatsReservedForPay, realtime.SeatsPayload{
		ShowtimeID: st.ID, SeatIDs: b.SeatIDs(), UserID: holder, ExpiresAt: &exp, BookingID: b.ID,
	}))
	o.log.Info("pending booking created",
		"booking_id", b.ID, "showtime_id", st.ID, "seats", len(b.Seats), "total", b.TotalAmount, "channel", channel)
	return b, nil
}

// heldSeats loads the requested seats in request order and checks they
// can be sold to the caller.
func (o *BookingOrchestrator) heldSeats(ctx context.Context, actor model.Actor, req CreateBookingRequest, now time.Time) ([]model.SeatStatus, error) {
	rows, err := o.seats.ListByIDs(ctx, req.ShowtimeID, req.SeatIDs)
	if err != nil {
		return nil, errors.Wrap(err, "load requested seats")
	}
	byID := make(map[uint64]model.SeatStatus, len(rows))
	for _, r := range rows {
		byID[r.SeatID] = r
	}

	ordered := make([]model.SeatStatus, 0, len(req.SeatIDs))
	var unavailable []uint64
	for _, id := range req.SeatIDs {
		s, ok := byID[id]
		if !ok || !sellable(s, actor, req.EmployeeMode, now) {
			unavailable = append(unavailable, id)
			continue
		}
		ordered = append(ordered, s)
	}
	if len(unavailable) > 0 {
		reason := "not reserved by you or hold expired"
		if req.EmployeeMode {
			reason = "not available"
		}
		return nil, model.NewSeatConflict(reason, unavailable)
	}
	return ordered, nil
}

// sellable reports whether seat s can go into a booking made by actor.
// Counter sales may take available seats or the staff member's own holds.
func sellable(s model.SeatStatus, actor model.Actor, counter bool, now time.Time) bool {
	if s.BookingRef != "" {
		return false
	}
	if counter {
		return s.Status == model.SeatAvailable || (s.Status.Held() && s.HolderID == actor.UserID)
	}
	return s.HeldBy(model.SeatReserved, actor.UserID, now)
}

// SettlePayment applies a payment outcome to a pending booking.  Settling
// again with the same outcome returns the booking unchanged and retries
// finalizing its seats; a different outcome after settlement is rejected
// with model.ErrAlreadySettled.
func (o *BookingOrchestrator) SettlePayment(ctx context.Context, actor model.Actor, bookingID string, req SettleRequest) (*model.Booking, error) {
	if req.Outcome != model.PaymentCompleted && req.Outcome != model.PaymentFailed {
		return nil, model.Invalidf("paymentStatus must be %q or %q", model.PaymentCompleted, model.PaymentFailed)
	}
	b, err := o.Get(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Terminal() {
		if _, err := settledAgain(b, req.Outcome); err != nil {
			return nil, err
		}
		switch b.BookingStatus {
		case model.BookingConfirmed:
			if err := o.finalize(ctx, b); err != nil {
				return nil, err
			}
		case model.BookingCancelled:
			o.releaseBookingSeats(ctx, b, realtime.ReasonPaymentFailed)
		}
		return b, nil
	}

	now := o.clock.Now()
	if req.Outcome == model.PaymentCompleted && !now.Before(b.HoldExpiresAt) {
		return o.settleLapsed(ctx, b, req, now)
	}

	s := model.Settlement{
		PaymentStatus: req.Outcome,
		BookingStatus: model.BookingConfirmed,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
		At:            now,
	}
	if req.Outcome == model.PaymentFailed {
		s.BookingStatus = model.BookingCancelled
	} else {
		s.UnexpiredAt = &now
	}
	won, err := o.bookings.Settle(ctx, b.ID, s)
	if err != nil {
		return nil, errors.Wrap(err, "settle booking")
	}
	if !won {
		return o.reloadSettled(ctx, b.ID, req, now)
	}
	applySettlement(b, s)
	metrics.BookingsSettled.WithLabelValues(string(req.Outcome)).Inc()

	if req.Outcome == model.PaymentFailed {
		o.releaseBookingSeats(ctx, b, realtime.ReasonPaymentFailed)
		return b, nil
	}

	o.notify(ctx, b)
	if err := o.finalize(ctx, b); err != nil {
		// the seats stay linked to the confirmed booking; a repeat
		// settlement or the expiry sweeper books them
		o.log.Warn("booking confirmed with seats not yet booked", "booking_id", b.ID)
	}
	o.log.Info("booking confirmed", "booking_id", b.ID, "transaction_id", req.TransactionID)
	return b, nil
}

// settleLapsed cancels a booking whose payment arrived after the hold
// lapsed.  The seats may already belong to someone else.
func (o *BookingOrchestrator) settleLapsed(ctx context.Context, b *model.Booking, req SettleRequest, now time.Time) (*model.Booking, error) {
	s := model.Settlement{
		PaymentStatus: model.PaymentFailed,
		BookingStatus: model.BookingCancelled,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
		At:            now,
	}
	won, err := o.bookings.Settle(ctx, b.ID, s)
	if err != nil {
		return nil, errors.Wrap(err, "cancel lapsed booking")
	}
	if won {
		metrics.BookingsSettled.WithLabelValues(string(model.PaymentFailed)).Inc()
		o.releaseBookingSeats(ctx, b, realtime.ReasonHoldExpired)
		o.log.Warn("payment completed after hold lapsed, booking cancelled",
			"booking_id", b.ID, "transaction_id", req.TransactionID)
	}
	return nil, errors.Wrapf(model.ErrHoldExpired, "booking %s payment window closed at %s",
		b.ID, b.HoldExpiresAt.Format(time.RFC3339))
}

func (o *BookingOrchestrator) releaseBookingSeats(ctx context.Context, b *model.Booking, reason string) {
	res, err := o.reservations.FinalizeReleased(ctx, b.ShowtimeID, b.SeatIDs(), b.ID)
	if err != nil {
		o.log.Error("release booking seats failed, seats will lapse via sweeper", "booking_id", b.ID, "error", err)
		return
	}
	if len(res.Succeeded) == 0 {
		return
	}
	o.bus.Broadcast(ctx, b.ShowtimeID, realtime.NewEvent(realtime.EventSeatsReleased, realtime.SeatsPayload{
		ShowtimeID: b.ShowtimeID, SeatIDs: res.Succeeded, BookingID: b.ID, Reason: reason,
	}))
}

// finalize books the seats of a confirmed booking.  Seats linked to the
// booking are never released while it is confirmed, so a rejected seat was
// already booked by an earlier call or by the expiry sweeper.  Calling it
// again after a storage error completes the job.
func (o *BookingOrchestrator) finalize(ctx context.Context, b *model.Booking) error {
	res, err := o.reservations.FinalizeBooked(ctx, b.ShowtimeID, b.SeatIDs(), seatHolder(b), b.ID)
	if err != nil {
		o.log.Error("finalize booked seats failed, retry or sweeper completes it", "booking_id", b.ID, "error", err)
		return errors.Wrap(err, "finalize booked seats")
	}
	if len(res.Succeeded) == 0 {
		return nil
	}
	o.bus.Broadcast(ctx, b.ShowtimeID, realtime.NewEvent(realtime.EventSeatsBooked, realtime.SeatsPayload{
		ShowtimeID: b.ShowtimeID, SeatIDs: res.Succeeded, BookingID: b.ID,
	}))
	return nil
}

// reloadSettled handles a settlement that did not apply: either a
// concurrent call settled first, or the payment window closed between the
// check and the write.
func (o *BookingOrchestrator) reloadSettled(ctx context.Context, id string, req SettleRequest, now time.Time) (*model.Booking, error) {
	b, err := o.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "reload booking")
	}
	if b.BookingStatus == model.BookingPending {
		return o.settleLapsed(ctx, b, req, now)
	}
	return settledAgain(b, req.Outcome)
}

func settledAgain(b *model.Booking, outcome model.PaymentStatus) (*model.Booking, error) {
	if b.Outcome() == outcome {
		return b, nil
	}
	if outcome == model.PaymentCompleted && lapsed(b) {
		return nil, errors.Wrapf(model.ErrHoldExpired, "booking %s payment window closed at %s",
			b.ID, b.HoldExpiresAt.Format(time.RFC3339))
	}
	return nil, errors.Wrapf(model.ErrAlreadySettled, "booking %s is %s", b.ID, b.BookingStatus)
}

// lapsed reports whether b was cancelled because its payment window ran
// out rather than by a failed payment.
func lapsed(b *model.Booking) bool {
	return b.BookingStatus == model.BookingCancelled && b.SettledAt != nil && !b.SettledAt.Before(b.HoldExpiresAt)
}

// notify dispatches the confirmation without blocking the settlement.
// Failures are logged only; the booking stays confirmed.
func (o *BookingOrchestrator) notify(ctx context.Context, b *model.Booking) {
	if o.notifier == nil {
		return
	}
	snapshot := *b
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		st, err := o.catalog.GetShowtime(ctx, snapshot.ShowtimeID)
		if err == nil {
			err = o.notifier.BookingConfirmed(ctx, &snapshot, st)
		}
		if err != nil {
			metrics.NotificationsFailed.Inc()
			o.log.Warn("booking confirmation not dispatched", "booking_id", snapshot.ID, "error", err)
		}
	}()
}

// Get returns a booking the caller is allowed to see.
func (o *BookingOrchestrator) Get(ctx context.Context, actor model.Actor, bookingID string) (*model.Booking, error) {
	if bookingID == "" {
		return nil, model.Invalidf("booking id is required")
	}
	b, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, errors.Wrapf(err, "load booking %s", bookingID)
	}
	if !CanAccess(actor, b) {
		return nil, errors.Wrapf(model.ErrForbidden, "booking %s", bookingID)
	}
	return b, nil
}

// ListMine returns the caller's own bookings, newest first.
func (o *BookingOrchestrator) ListMine(ctx context.Context, actor model.Actor, limit int) ([]model.Booking, error) {
	if actor.IsGuest() {
		return nil, model.ErrGuestNotAllowed
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := o.bookings.ListByCustomer(ctx, actor.UserID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list bookings")
	}
	return out, nil
}

// CanAccess reports whether actor may read or settle b: its customer, the
// staff member who created it, or an administrator.
func CanAccess(actor model.Actor, b *model.Booking) bool {
	switch {
	case actor.IsGuest():
		return false
	case actor.IsAdmin():
		return true
	case actor.UserID == b.CustomerID:
		return true
	case b.StaffID != "" && actor.UserID == b.StaffID:
		return true
	}
	return false
}

// seatHolder is the holder recorded on the booking's seats: the staff
// member for counter sales, the customer otherwise.
func seatHolder(b *model.Booking) string {
	if b.StaffID != "" {
		return b.StaffID
	}
	return b.CustomerID
}

func applySettlement(b *model.Booking, s model.Settlement) {
	at := s.At
	b.PaymentStatus = s.PaymentStatus
	b.BookingStatus = s.BookingStatus
	b.PaymentMethod = s.PaymentMethod
	b.TransactionID = s.TransactionID
	b.SettledAt = &at
	b.UpdatedAt = at
}

func validateCreate(actor model.Actor, req CreateBookingRequest) error {
	if actor.IsGuest() {
		return model.ErrGuestNotAllowed
	}
	if req.ShowtimeID == 0 {
		return model.Invalidf("showtimeId is required")
	}
	if len(req.SeatIDs) == 0 {
		return model.Invalidf("seatIds must not be empty")
	}
	seen := make(map[uint64]struct{}, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		if id == 0 {
			return model.Invalidf("seatIds must be positive")
		}
		if _, dup := seen[id]; dup {
			return model.Invalidf("seat %d is listed twice", id)
		}
		seen[id] = struct{}{}
	}
	if !req.EmployeeMode {
		return nil
	}
	if !actor.IsStaff() {
		return errors.Wrap(model.ErrForbidden, "employee mode requires a staff account")
	}
	c := req.Customer
	if c == nil || c.Name == "" {
		return model.Invalidf("customerInfo.name is required for counter bookings")
	}
	if c.Email == "" && c.Phone == "" {
		return model.Invalidf("customerInfo needs an email or a phone")
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return model.Invalidf("customerInfo.email is not a valid address")
		}
	}
	return nil
}
