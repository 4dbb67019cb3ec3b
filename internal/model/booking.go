package model

import "time"

// PaymentStatus tracks the payment side of a booking.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// BookingStatus tracks the lifecycle of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// BookedSeat is a seat captured by value when the booking was created, so
// later catalog edits cannot alter a sold ticket.
type BookedSeat struct {
	SeatID     uint64 // booking_seats.seat_id
	RowLabel   string // booking_seats.row_label
	SeatNumber uint32 // booking_seats.seat_number
	Category   string // booking_seats.category
	Price      int64  // booking_seats.price
}

// BookedCombo is a concession line captured by value at creation.
type BookedCombo struct {
	ComboID   uint64 // booking_combos.combo_id
	Name      string // booking_combos.name
	Quantity  int    // booking_combos.quantity
	UnitPrice int64  // booking_combos.unit_price
}

// CustomerInfo is the walk-in customer snapshot a staff member records when
// booking at the counter.  CustomerID is set when the customer has an
// account of their own.
type CustomerInfo struct {
	CustomerID string
	Name       string
	Email      string
	Phone      string
}

// Booking records one purchase for one showtime.  Seats and combos are
// snapshots; the seat_statuses rows only carry a weak back reference to the
// booking id.
//
// Fields:
//  ID             – uuid minted by the service.
//  CustomerID     – owner of the booking.
//  StaffID        – staff member who created it at the counter (optional).
//  Customer       – customer snapshot for staff bookings (optional).
//  ShowtimeID     – showtime booked.
//  Subtotal       – seats plus combos before discount.
//  DiscountAmount – voucher discount actually applied.
//  TotalAmount    – Subtotal minus DiscountAmount, never negative.
//  QRToken        – printable ticket code derived from ID.
//  HoldExpiresAt  – payment deadline; the seats' hold lapses at the same time.
type Booking struct {
	ID             string
	CustomerID     string
	StaffID        string
	Customer       *CustomerInfo
	ShowtimeID     uint64
	Seats          []BookedSeat
	Combos         []BookedCombo
	VoucherID      *uint64
	VoucherCode    string
	Subtotal       int64
	DiscountAmount int64
	TotalAmount    int64
	PaymentStatus  PaymentStatus
	BookingStatus  BookingStatus
	PaymentMethod  string
	TransactionID  string
	QRToken        string
	CheckedIn      bool
	CheckedInAt    *time.Time
	HoldExpiresAt  time.Time
	SettledAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SeatIDs returns the ids of the booked seats in booking order.
func (b *Booking) SeatIDs() []uint64 {
	ids := make([]uint64, 0, len(b.Seats))
	for _, s := range b.Seats {
		ids = append(ids, s.SeatID)
	}
	return ids
}

// Terminal reports whether the booking has been confirmed or cancelled.
func (b *Booking) Terminal() bool {
	return b.BookingStatus == BookingConfirmed || b.BookingStatus == BookingCancelled
}

// Outcome returns the payment outcome the booking was settled with, or
// PaymentPending while it is still open.
func (b *Booking) Outcome() PaymentStatus {
	switch b.BookingStatus {
	case BookingConfirmed:
		return PaymentCompleted
	case BookingCancelled:
		return PaymentFailed
	}
	return PaymentPending
}

// Settlement is the terminal state a pending booking is moved to.
type Settlement struct {
	PaymentStatus PaymentStatus
	BookingStatus BookingStatus
	PaymentMethod string
	TransactionID string
	At            time.Time

	// UnexpiredAt, when set, requires the payment window to still be open
	// at that instant.
	UnexpiredAt *time.Time
}
