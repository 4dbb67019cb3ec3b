// Package realtime implements the per-showtime broadcast rooms viewers join
// to watch a seat map converge.  Events are hints: clients always trust the
// direct answer to their own request over anything received in a room.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// Client to server intents.
const (
	IntentJoinShowtime = "join-showtime"
	IntentSelectSeats  = "select-seats"
	IntentReleaseSeats = "release-seats"
	IntentReserveSeats = "reserve-seats"
)

// Server to client events.
const (
	EventSeatsBeingSelected     = "seats-being-selected"
	EventSeatSelectionSuccess   = "seat-selection-success"
	EventSeatSelectionFailed    = "seat-selection-failed"
	EventSeatsReservedForPay    = "seats-reserved-for-payment"
	EventSeatReservationSuccess = "seat-reservation-success"
	EventSeatReservationFailed  = "seat-reservation-failed"
	EventSeatsBooked            = "seats-booked"
	EventSeatsReleased          = "seats-released"
	EventReservationExpired     = "reservation-expired"
	EventUserJoined             = "user-joined"
	EventUserLeft               = "user-left"
	EventActiveUsersList        = "active-users-list"
	EventError                  = "error"
)

// Release reasons carried by seats-released.
const (
	ReasonReleased          = "released"
	ReasonExpired           = "expired"
	ReasonPaymentFailed     = "payment-failed"
	ReasonReservationFailed = "reservation-failed"
	ReasonHoldExpired       = "hold-expired"
)

// Event is one message on the wire: {"event": "...", "data": {...}}.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes payload as the data of a named event.
func NewEvent(name string, payload any) Event {
	ev := Event{Name: name}
	if payload != nil {
		// Payloads are plain structs of this package; encoding cannot fail.
		ev.Data, _ = json.Marshal(payload)
	}
	return ev
}

// SeatsPayload is the data of every seat event.
type SeatsPayload struct {
	ShowtimeID uint64     `json:"showtimeId"`
	SeatIDs    []uint64   `json:"seatIds"`
	UserID     string     `json:"userId,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	BookingID  string     `json:"bookingId,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// PresencePayload describes one room member.
type PresencePayload struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	IsGuest   bool      `json:"isGuest"`
	Timestamp time.Time `json:"timestamp"`
}

// ActiveUsersPayload is the data of active-users-list.
type ActiveUsersPayload struct {
	ShowtimeID uint64            `json:"showtimeId"`
	Users      []PresencePayload `json:"users"`
}

// ErrorPayload is the data of error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// IntentPayload is the data of every client intent.
type IntentPayload struct {
	ShowtimeID uint64   `json:"showtimeId"`
	SeatIDs    []uint64 `json:"seatIds"`
}

// PresenceOf converts a participant to its wire form.
func PresenceOf(p model.Participant) PresencePayload {
	return PresencePayload{UserID: p.UserID, UserName: p.Name, IsGuest: p.IsGuest, Timestamp: p.JoinedAt}
}

type originKey struct{}

// WithOrigin tags ctx with the connection that caused a state change, so
// room broadcasts skip it; that connection gets a direct reply instead.
func WithOrigin(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, originKey{}, connID)
}

// OriginFrom returns the connection id stored by WithOrigin, or "".
func OriginFrom(ctx context.Context) string {
	id, _ := ctx.Value(originKey{}).(string)
	return id
}
