package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// BookingRepo persists bookings with their seat and combo snapshots.
// Status changes are conditional updates so concurrent settlements and
// check-ins of the same booking have exactly one winner.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo constructs a BookingRepo with the given DB handle.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

const bookingColumns = `id, customer_id, staff_id, customer_name, customer_email, customer_phone,
	showtime_id, voucher_id, voucher_code, subtotal, discount_amount, total_amount,
	payment_status, booking_status, payment_method, transaction_id, qr_token,
	checked_in, checked_in_at, hold_expires_at, settled_at, created_at, updated_at`

// Create inserts the booking and its snapshots in one transaction.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin booking tx")
	}
	defer func() { _ = tx.Rollback() }()

	var name, email, phone any
	if b.Customer != nil {
		name, email, phone = nullable(b.Customer.Name), nullable(b.Customer.Email), nullable(b.Customer.Phone)
	}
	var voucherID any
	if b.VoucherID != nil {
		voucherID = *b.VoucherID
	}

	const insertBooking = `INSERT INTO bookings (
	    id, customer_id, staff_id, customer_name, customer_email, customer_phone,
	    showtime_id, voucher_id, voucher_code, subtotal, discount_amount, total_amount,
	    payment_status, booking_status, qr_token, hold_expires_at, created_at, updated_at)
	    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertBooking,
		b.ID, b.CustomerID, nullable(b.StaffID), name, email, phone,
		b.ShowtimeID, voucherID, nullable(b.VoucherCode), b.Subtotal, b.DiscountAmount, b.TotalAmount,
		string(b.PaymentStatus), string(b.BookingStatus), b.QRToken, b.HoldExpiresAt.UTC(),
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	); err != nil {
		return errors.Wrapf(classify(err, nil), "insert booking %s", b.ID)
	}

	const insertSeat = `INSERT INTO booking_seats (booking_id, position, seat_id, row_label, seat_number, category, price)
	                    VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i, s := range b.Seats {
		if _, err := tx.ExecContext(ctx, insertSeat, b.ID, i, s.SeatID, s.RowLabel, s.SeatNumber, s.Category, s.Price); err != nil {
			return errors.Wrapf(err, "insert seat %d of booking %s", s.SeatID, b.ID)
		}
	}

	const insertCombo = `INSERT INTO booking_combos (booking_id, position, combo_id, name, quantity, unit_price)
	                     VALUES (?, ?, ?, ?, ?, ?)`
	for i, c := range b.Combos {
		if _, err := tx.ExecContext(ctx, insertCombo, b.ID, i, c.ComboID, c.Name, c.Quantity, c.UnitPrice); err != nil {
			return errors.Wrapf(err, "insert combo %d of booking %s", c.ComboID, b.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit booking tx")
	}
	return nil
}

// GetByID loads a booking with its snapshots.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
}

// GetByQRToken loads the booking a ticket token was minted for.
func (r *BookingRepo) GetByQRToken(ctx context.Context, token string) (*model.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE qr_token = ?`, token)
}

// ListByCustomer returns a customer's most recent bookings, newest first.
func (r *BookingRepo) ListByCustomer(ctx context.Context, customerID string, limit int) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings
	           WHERE customer_id = ?
	           ORDER BY created_at DESC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, customerID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list bookings of %s", customerID)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate bookings")
	}
	for i := range out {
		if err := r.loadLines(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Settle moves a pending booking to the terminal statuses of s.  It reports
// false when the booking was no longer pending, or its payment window had
// closed at s.UnexpiredAt, in which case nothing was written.
func (r *BookingRepo) Settle(ctx context.Context, id string, s model.Settlement) (bool, error) {
	q := `UPDATE bookings
	      SET payment_status = ?, booking_status = ?, payment_method = ?, transaction_id = ?,
	          settled_at = ?, updated_at = ?
	      WHERE id = ? AND booking_status = ?`
	args := []any{
		string(s.PaymentStatus), string(s.BookingStatus), nullable(s.PaymentMethod), nullable(s.TransactionID),
		s.At.UTC(), s.At.UTC(), id, string(model.BookingPending),
	}
	if s.UnexpiredAt != nil {
		q += ` AND hold_expires_at > ?`
		args = append(args, s.UnexpiredAt.UTC())
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, errors.Wrapf(err, "settle booking %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

// CheckIn marks a confirmed booking as used.  It reports false when the
// booking is missing, not confirmed or already checked in.
func (r *BookingRepo) CheckIn(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE bookings
	           SET checked_in = 1, checked_in_at = ?, updated_at = ?
	           WHERE id = ? AND checked_in = 0 AND booking_status = ?`
	res, err := r.db.ExecContext(ctx, q, at.UTC(), at.UTC(), id, string(model.BookingConfirmed))
	if err != nil {
		return false, errors.Wrapf(err, "check in booking %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

// CancelExpiredPending cancels pending bookings whose payment window lapsed
// at or before now and returns how many were cancelled.
func (r *BookingRepo) CancelExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE bookings
	           SET payment_status = ?, booking_status = ?, settled_at = ?, updated_at = ?
	           WHERE booking_status = ? AND hold_expires_at <= ?`
	res, err := r.db.ExecContext(ctx, q,
		string(model.PaymentFailed), string(model.BookingCancelled), now.UTC(), now.UTC(),
		string(model.BookingPending), now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "cancel expired pending bookings")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}

func (r *BookingRepo) getOne(ctx context.Context, q string, arg any) (*model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query booking")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "query booking")
		}
		return nil, model.ErrBookingNotFound
	}
	b, err := scanBooking(rows)
	if err != nil {
		return nil, err
	}
	_ = rows.Close()
	if err := r.loadLines(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// loadLines fills the seat and combo snapshots of b.
func (r *BookingRepo) loadLines(ctx context.Context, b *model.Booking) error {
	const seatsQ = `SELECT seat_id, row_label, seat_number, category, price
	                FROM booking_seats WHERE booking_id = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, seatsQ, b.ID)
	if err != nil {
		return errors.Wrapf(err, "load seats of booking %s", b.ID)
	}
	b.Seats = nil
	for rows.Next() {
		var s model.BookedSeat
		if err := rows.Scan(&s.SeatID, &s.RowLabel, &s.SeatNumber, &s.Category, &s.Price); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan booking seat")
		}
		b.Seats = append(b.Seats, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return errors.Wrap(err, "iterate booking seats")
	}
	rows.Close()

	const combosQ = `SELECT combo_id, name, quantity, unit_price
	                 FROM booking_combos WHERE booking_id = ? ORDER BY position`
	rows, err = r.db.QueryContext(ctx, combosQ, b.ID)
	if err != nil {
		return errors.Wrapf(err, "load combos of booking %s", b.ID)
	}
	defer rows.Close()
	b.Combos = nil
	for rows.Next() {
		var c model.BookedCombo
		if err := rows.Scan(&c.ComboID, &c.Name, &c.Quantity, &c.UnitPrice); err != nil {
			return errors.Wrap(err, "scan booking combo")
		}
		b.Combos = append(b.Combos, c)
	}
	return errors.Wrap(rows.Err(), "iterate booking combos")
}

func scanBooking(rows *sql.Rows) (*model.Booking, error) {
	var (
		b                            model.Booking
		staffID, name, email, phone  sql.NullString
		voucherCode, method, txID    sql.NullString
		voucherID                    sql.NullInt64
		paymentStatus, bookingStatus string
		checkedInAt, settledAt       sql.NullTime
	)
	if err := rows.Scan(
		&b.ID, &b.CustomerID, &staffID, &name, &email, &phone,
		&b.ShowtimeID, &voucherID, &voucherCode, &b.Subtotal, &b.DiscountAmount, &b.TotalAmount,
		&paymentStatus, &bookingStatus, &method, &txID, &b.QRToken,
		&b.CheckedIn, &checkedInAt, &b.HoldExpiresAt, &settledAt, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan booking")
	}
	b.StaffID = staffID.String
	b.VoucherCode = voucherCode.String
	b.PaymentMethod = method.String
	b.TransactionID = txID.String
	b.PaymentStatus = model.PaymentStatus(paymentStatus)
	b.BookingStatus = model.BookingStatus(bookingStatus)
	if voucherID.Valid {
		id := uint64(voucherID.Int64)
		b.VoucherID = &id
	}
	if name.Valid || email.Valid || phone.Valid {
		b.Customer = &model.CustomerInfo{Name: name.String, Email: email.String, Phone: phone.String}
	}
	if checkedInAt.Valid {
		t := checkedInAt.Time
		b.CheckedInAt = &t
	}
	if settledAt.Valid {
		t := settledAt.Time
		b.SettledAt = &t
	}
	return &b, nil
}

// nullable maps the empty string to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
