// Package queue carries booking confirmations over RabbitMQ: the publisher
// used by the booking core and the consumer that delivers tickets.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// BookingConfirmedEvent is published when a booking's payment completes.
// It carries everything the ticket mail needs so the consumer never has to
// query the primary database.
type BookingConfirmedEvent struct {
	BookingID     string   `json:"booking_id"`
	CustomerID    string   `json:"customer_id"`
	StaffID       string   `json:"staff_id,omitempty"`
	CustomerName  string   `json:"customer_name"`
	CustomerEmail string   `json:"customer_email"`
	CustomerPhone string   `json:"customer_phone,omitempty"`
	ShowtimeID    uint64   `json:"showtime_id"`
	MovieTitle    string   `json:"movie_title"`
	BranchName    string   `json:"branch_name"`
	TheaterName   string   `json:"theater_name"`
	StartsAt      string   `json:"starts_at"`
	EndsAt        string   `json:"ends_at,omitempty"`
	SeatLabels    []string `json:"seats"`
	Combos        []string `json:"combos,omitempty"`
	Subtotal      int64    `json:"subtotal"`
	Discount      int64    `json:"discount"`
	TotalAmount   int64    `json:"total_amount"`
	QRToken       string   `json:"qr_token"`
	ConfirmedAt   string   `json:"confirmed_at"`
}

// NewBookingConfirmedEvent snapshots a confirmed booking and its showtime.
func NewBookingConfirmedEvent(b *model.Booking, st *model.Showtime) BookingConfirmedEvent {
	ev := BookingConfirmedEvent{
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		StaffID:     b.StaffID,
		ShowtimeID:  b.ShowtimeID,
		Subtotal:    b.Subtotal,
		Discount:    b.DiscountAmount,
		TotalAmount: b.TotalAmount,
		QRToken:     b.QRToken,
		ConfirmedAt: b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if b.SettledAt != nil {
		ev.ConfirmedAt = b.SettledAt.UTC().Format(time.RFC3339)
	}
	if b.Customer != nil {
		ev.CustomerName = b.Customer.Name
		ev.CustomerEmail = b.Customer.Email
		ev.CustomerPhone = b.Customer.Phone
	}
	if st != nil {
		ev.MovieTitle = st.MovieTitle
		ev.BranchName = st.BranchName
		ev.TheaterName = st.TheaterName
		ev.StartsAt = st.StartTime.UTC().Format(time.RFC3339)
		if st.EndTime != nil {
			ev.EndsAt = st.EndTime.UTC().Format(time.RFC3339)
		}
	}
	for _, s := range b.Seats {
		ev.SeatLabels = append(ev.SeatLabels, model.SeatStatus{RowLabel: s.RowLabel, SeatNumber: s.SeatNumber}.Label())
	}
	for _, c := range b.Combos {
		ev.Combos = append(ev.Combos, fmt.Sprintf("%dx %s", c.Quantity, c.Name))
	}
	return ev
}
