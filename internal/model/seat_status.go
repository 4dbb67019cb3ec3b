package model

import (
	"fmt"
	"time"
)

// SeatState is the availability state of one seat for one showtime.
type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatSelecting SeatState = "selecting"
	SeatReserved  SeatState = "reserved"
	SeatBooked    SeatState = "booked"
)

// Valid reports whether s is one of the known seat states.
func (s SeatState) Valid() bool {
	switch s {
	case SeatAvailable, SeatSelecting, SeatReserved, SeatBooked:
		return true
	}
	return false
}

// Held reports whether the state is a time-bounded hold.
func (s SeatState) Held() bool {
	return s == SeatSelecting || s == SeatReserved
}

// SeatStatus tracks availability, holder and price of one physical seat for
// one showtime.  There is exactly one row per (showtime, seat) pair, created
// together with the showtime.  Row label, number and category come from the
// physical seat and are used to snapshot seats into bookings.
//
// Fields:
//  ShowtimeID    – showtime the record belongs to.
//  SeatID        – physical seat.
//  Status        – available, selecting, reserved or booked.
//  HolderID      – opaque user id owning a non-available state; empty when available.
//  HoldExpiresAt – hold deadline; nil for available and booked.
//  Price         – price snapshot taken when the showtime was created.
//  BookingRef    – id of the booking that claimed the seat; empty otherwise.
type SeatStatus struct {
	ShowtimeID    uint64     // seat_statuses.showtime_id
	SeatID        uint64     // seat_statuses.seat_id
	RowLabel      string     // seats.row_label
	SeatNumber    uint32     // seats.seat_number
	Category      string     // seats.category
	Status        SeatState  // seat_statuses.status
	HolderID      string     // seat_statuses.holder_id (nullable)
	HoldExpiresAt *time.Time // seat_statuses.hold_expires_at (nullable)
	Price         int64      // seat_statuses.price
	BookingRef    string     // seat_statuses.booking_ref (nullable)
	UpdatedAt     time.Time  // seat_statuses.updated_at
}

// Label renders the seat position the way it is printed on tickets, e.g. "C7".
func (s SeatStatus) Label() string {
	return fmt.Sprintf("%s%d", s.RowLabel, s.SeatNumber)
}

// HeldBy reports whether the seat is in state st, held by userID and the
// hold has not lapsed at now.
func (s SeatStatus) HeldBy(st SeatState, userID string, now time.Time) bool {
	if s.Status != st || s.HolderID != userID {
		return false
	}
	return s.HoldExpiresAt != nil && s.HoldExpiresAt.After(now)
}

// SeatTransition describes one compare-and-set over a batch of seats of a
// single showtime.  The transition is applied independently to every seat;
// a seat only moves when its current row satisfies every guard.
type SeatTransition struct {
	ShowtimeID uint64
	SeatIDs    []uint64

	// From lists the statuses a seat may currently be in.
	From []SeatState
	// To is the status written on success.
	To SeatState
	// Holder is written as the new holder (cleared when To is available).
	// With MatchHolder set, seats that are not available must currently be
	// held by Holder.
	Holder      string
	MatchHolder bool
	// ExpiresAt is written as the new hold deadline.  It is ignored and
	// cleared when To is available or booked.
	ExpiresAt *time.Time
	// BookingRef is written as the new booking reference; empty clears it.
	BookingRef string

	// ExpiredAt only matches seats whose hold deadline is at or before it.
	ExpiredAt *time.Time
	// UnexpiredAt only matches seats whose hold deadline is after it.
	UnexpiredAt *time.Time
	// MatchBookingRef only matches seats currently linked to this booking.
	MatchBookingRef string
	// RequireNoBookingRef only matches seats not linked to any booking.
	RequireNoBookingRef bool
}

// CASResult reports which seats of a transition moved and which did not.
type CASResult struct {
	Succeeded []uint64
	Rejected  []uint64
}

// AllSucceeded reports whether no seat was rejected.
func (r CASResult) AllSucceeded() bool {
	return len(r.Rejected) == 0
}

// SelectionOutcome is the result of an advisory select.
type SelectionOutcome struct {
	Selected  []uint64
	Rejected  []uint64
	ExpiresAt time.Time
}

// ReleaseOutcome is the result of a release.  Skipped seats were not held
// by the caller and were left untouched.
type ReleaseOutcome struct {
	Released []uint64
	Skipped  []uint64
}

// ReserveOutcome is the result of a successful all-or-nothing reserve.
type ReserveOutcome struct {
	SeatIDs   []uint64
	ExpiresAt time.Time
}
