package model

import "time"

// Showtime is the catalog view of a single screening as the booking core
// needs it: which movie plays where, when it starts and ends, and the base
// ticket price.  The catalog itself is owned elsewhere; this struct is a
// read-only snapshot.
//
// Fields:
//  ID          – showtimes.id
//  MovieID     – movie being screened (voucher allow-lists match on it).
//  MovieTitle  – title printed on the ticket and confirmation email.
//  TheaterID   – screening room.
//  BranchID    – cinema branch owning the room (voucher allow-lists).
//  StartTime   – when the screening starts; bookings close at this time.
//  EndTime     – optional end of the screening; tickets expire at it.
//  BasePrice   – default seat price in minor currency units.
type Showtime struct {
	ID          uint64     // showtimes.id
	MovieID     uint64     // showtimes.movie_id
	MovieTitle  string     // movies.title
	TheaterID   uint64     // showtimes.theater_id
	TheaterName string     // theaters.name
	BranchID    uint64     // theaters.branch_id
	BranchName  string     // branches.name
	StartTime   time.Time  // showtimes.start_time
	EndTime     *time.Time // showtimes.end_time (nullable)
	BasePrice   int64      // showtimes.base_price
}

// Started reports whether the showtime is no longer bookable at now.
func (s Showtime) Started(now time.Time) bool {
	return !s.StartTime.After(now)
}

// TicketExpiry is the instant after which a ticket for this showtime is no
// longer valid at the door.  It falls back to the start time when the
// catalog does not record an end time.
func (s Showtime) TicketExpiry() time.Time {
	if s.EndTime != nil && !s.EndTime.IsZero() {
		return *s.EndTime
	}
	return s.StartTime
}
