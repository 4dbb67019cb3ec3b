package repository // repository for per-showtime seat status persistence

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// SeatStatusRepo persists seat_statuses.  Every state change goes through
// CompareAndSet, which is a conditional UPDATE per seat: the database
// decides atomically whether the row still matches, so no lock is held in
// the application and concurrent processes cannot both win the same seat.
type SeatStatusRepo struct {
	db *sql.DB
}

// NewSeatStatusRepo constructs a SeatStatusRepo with the given DB handle.
func NewSeatStatusRepo(db *sql.DB) *SeatStatusRepo {
	return &SeatStatusRepo{db: db}
}

const seatStatusSelect = `SELECT ss.showtime_id, ss.seat_id, s.row_label, s.seat_number, s.category,
	       ss.status, ss.holder_id, ss.hold_expires_at, ss.price, ss.booking_ref, ss.updated_at
	FROM seat_statuses ss
	JOIN seats s ON s.id = ss.seat_id`

// ListByShowtime returns the full seat map of a showtime ordered by row
// then seat number.
func (r *SeatStatusRepo) ListByShowtime(ctx context.Context, showtimeID uint64) ([]model.SeatStatus, error) {
	const q = seatStatusSelect + `
	WHERE ss.showtime_id = ?
	ORDER BY s.row_label, s.seat_number`
	rows, err := r.db.QueryContext(ctx, q, showtimeID)
	if err != nil {
		return nil, errors.Wrapf(err, "list seat statuses of showtime %d", showtimeID)
	}
	return scanSeatStatuses(rows)
}

// ListByIDs returns the seat statuses of the given seats.  Unknown seat ids
// are simply absent from the result.
func (r *SeatStatusRepo) ListByIDs(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.SeatStatus, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q := seatStatusSelect + `
	WHERE ss.showtime_id = ? AND ss.seat_id IN (` + placeholders(len(seatIDs)) + `)
	ORDER BY s.row_label, s.seat_number`
	args := make([]any, 0, len(seatIDs)+1)
	args = append(args, showtimeID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "list seat statuses of showtime %d", showtimeID)
	}
	return scanSeatStatuses(rows)
}

// ListExpiredHolds returns up to limit held seats whose deadline is at or
// before now, oldest first.  The result is only a candidate list; callers
// expire them with a guarded CompareAndSet.
func (r *SeatStatusRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]model.SeatStatus, error) {
	const q = seatStatusSelect + `
	WHERE ss.status IN (?, ?) AND ss.hold_expires_at IS NOT NULL AND ss.hold_expires_at <= ?
	ORDER BY ss.hold_expires_at
	LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, string(model.SeatSelecting), string(model.SeatReserved), now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list expired seat holds")
	}
	return scanSeatStatuses(rows)
}

// InitShowtime creates the available seat rows of a showtime for every seat
// of its theater, snapshotting the showtime's base price.  Existing rows are
// left untouched, so it can be re-run after seats are added to a theater.
func (r *SeatStatusRepo) InitShowtime(ctx context.Context, showtimeID uint64) (int64, error) {
	const q = `INSERT IGNORE INTO seat_statuses (showtime_id, seat_id, status, price)
	           SELECT st.id, s.id, ?, st.base_price
	           FROM showtimes st
	           JOIN seats s ON s.theater_id = st.theater_id
	           WHERE st.id = ?`
	res, err := r.db.ExecContext(ctx, q, string(model.SeatAvailable), showtimeID)
	if err != nil {
		return 0, errors.Wrapf(err, "init seat statuses of showtime %d", showtimeID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}

// CompareAndSet applies t to each seat independently and reports which
// seats moved.  A seat is rejected when its row no longer satisfies the
// transition's guards.  When a database error interrupts the batch, the
// seats that already moved are returned together with the error so the
// caller can roll them back.
func (r *SeatStatusRepo) CompareAndSet(ctx context.Context, t model.SeatTransition) (model.CASResult, error) {
	var res model.CASResult
	if len(t.SeatIDs) == 0 {
		return res, nil
	}
	if len(t.From) == 0 || !t.To.Valid() {
		return res, errors.Wrapf(model.ErrInvalidRequest, "seat transition %v -> %q", t.From, t.To)
	}

	query, setArgs, guardArgs := buildTransition(t)
	for _, seatID := range uniqueIDs(t.SeatIDs) {
		args := make([]any, 0, len(setArgs)+len(guardArgs)+2)
		args = append(args, setArgs...)
		args = append(args, t.ShowtimeID, seatID)
		args = append(args, guardArgs...)

		out, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return res, errors.Wrapf(err, "transition seat %d of showtime %d to %s", seatID, t.ShowtimeID, t.To)
		}
		n, err := out.RowsAffected()
		if err != nil {
			return res, errors.Wrap(err, "rows affected")
		}
		if n == 1 {
			res.Succeeded = append(res.Succeeded, seatID)
		} else {
			res.Rejected = append(res.Rejected, seatID)
		}
	}
	return res, nil
}

// buildTransition renders the conditional UPDATE for t.  The statement takes
// the SET arguments, then showtime and seat id, then the guard arguments.
func buildTransition(t model.SeatTransition) (string, []any, []any) {
	var holder, expires, bookingRef any
	if t.To != model.SeatAvailable && t.Holder != "" {
		holder = t.Holder
	}
	if t.To.Held() && t.ExpiresAt != nil {
		expires = t.ExpiresAt.UTC()
	}
	if t.To != model.SeatAvailable && t.BookingRef != "" {
		bookingRef = t.BookingRef
	}
	setArgs := []any{string(t.To), holder, expires, bookingRef}

	var b strings.Builder
	b.WriteString(`UPDATE seat_statuses
	SET status = ?, holder_id = ?, hold_expires_at = ?, booking_ref = ?, updated_at = UTC_TIMESTAMP(3)
	WHERE showtime_id = ? AND seat_id = ? AND status IN (`)
	b.WriteString(placeholders(len(t.From)))
	b.WriteString(")")

	guardArgs := make([]any, 0, len(t.From)+4)
	for _, st := range t.From {
		guardArgs = append(guardArgs, string(st))
	}
	if t.MatchHolder {
		b.WriteString(" AND (status = 'available' OR holder_id = ?)")
		guardArgs = append(guardArgs, t.Holder)
	}
	if t.ExpiredAt != nil {
		b.WriteString(" AND hold_expires_at IS NOT NULL AND hold_expires_at <= ?")
		guardArgs = append(guardArgs, t.ExpiredAt.UTC())
	}
	if t.UnexpiredAt != nil {
		b.WriteString(" AND hold_expires_at > ?")
		guardArgs = append(guardArgs, t.UnexpiredAt.UTC())
	}
	if t.MatchBookingRef != "" {
		b.WriteString(" AND booking_ref = ?")
		guardArgs = append(guardArgs, t.MatchBookingRef)
	}
	if t.RequireNoBookingRef {
		b.WriteString(" AND booking_ref IS NULL")
	}
	return b.String(), setArgs, guardArgs
}

func scanSeatStatuses(rows *sql.Rows) ([]model.SeatStatus, error) {
	defer rows.Close()

	var result []model.SeatStatus
	for rows.Next() {
		var (
			s          model.SeatStatus
			status     string
			holder     sql.NullString
			expiresAt  sql.NullTime
			bookingRef sql.NullString
		)
		if err := rows.Scan(
			&s.ShowtimeID, &s.SeatID, &s.RowLabel, &s.SeatNumber, &s.Category,
			&status, &holder, &expiresAt, &s.Price, &bookingRef, &s.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan seat status")
		}
		s.Status = model.SeatState(status)
		s.HolderID = holder.String
		s.BookingRef = bookingRef.String
		if expiresAt.Valid {
			t := expiresAt.Time
			s.HoldExpiresAt = &t
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate seat statuses")
	}
	return result, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// uniqueIDs drops duplicates while keeping the caller's order.
func uniqueIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
