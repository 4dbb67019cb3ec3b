// Sentinel and structured errors shared by the repositories, services and
// handlers.  Handlers translate them into HTTP responses in one place, so
// every layer can wrap freely and still be classified with errors.Is/As.
package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrShowtimeNotFound = errors.New("showtime not found")
	ErrBookingNotFound  = errors.New("booking not found")

	ErrShowtimeStarted = errors.New("showtime has already started")
	ErrHoldExpired     = errors.New("seat hold has expired")

	ErrForbidden       = errors.New("forbidden")
	ErrGuestNotAllowed = errors.New("sign in to select seats")

	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidCombo   = errors.New("invalid combo")

	ErrVoucherNotFound      = errors.New("voucher not found")
	ErrVoucherInactive      = errors.New("voucher is not active")
	ErrVoucherOutsideWindow = errors.New("voucher is outside its validity window")
	ErrVoucherMinPurchase   = errors.New("order is below the voucher minimum purchase")
	ErrVoucherNotApplicable = errors.New("voucher does not apply to this showtime")

	ErrAlreadySettled      = errors.New("booking already settled with a different outcome")
	ErrAlreadyCheckedIn    = errors.New("ticket already used")
	ErrBookingNotConfirmed = errors.New("booking is not confirmed")
)

// IsExpiredWindow reports whether err means "too late": the showtime
// started or a hold lapsed.
func IsExpiredWindow(err error) bool {
	return errors.IsAny(err, ErrShowtimeStarted, ErrHoldExpired)
}

// IsInvalidVoucher reports whether err rejects the voucher of an order.
func IsInvalidVoucher(err error) bool {
	return errors.IsAny(err, ErrVoucherNotFound, ErrVoucherInactive, ErrVoucherOutsideWindow,
		ErrVoucherMinPurchase, ErrVoucherNotApplicable)
}

// IsValidation reports whether err rejects malformed input before any
// mutation happened.
func IsValidation(err error) bool {
	return errors.IsAny(err, ErrInvalidRequest, ErrInvalidCombo) || IsInvalidVoucher(err)
}

// IsForbidden reports whether the caller may not perform the operation.
func IsForbidden(err error) bool {
	return errors.IsAny(err, ErrForbidden, ErrGuestNotAllowed)
}

// SeatConflictError reports seats that could not be claimed because another
// holder owns them, they lapsed, or they are not in the expected state.
type SeatConflictError struct {
	SeatIDs []uint64
	Reason  string
}

func (e *SeatConflictError) Error() string {
	ids := make([]string, 0, len(e.SeatIDs))
	for _, id := range e.SeatIDs {
		ids = append(ids, strconv.FormatUint(id, 10))
	}
	if e.Reason == "" {
		return fmt.Sprintf("seats unavailable: %s", strings.Join(ids, ","))
	}
	return fmt.Sprintf("seats unavailable: %s: %s", strings.Join(ids, ","), e.Reason)
}

// NewSeatConflict builds a SeatConflictError for ids.
func NewSeatConflict(reason string, ids []uint64) error {
	return &SeatConflictError{SeatIDs: append([]uint64(nil), ids...), Reason: reason}
}

// AsSeatConflict extracts a SeatConflictError from err's chain.
func AsSeatConflict(err error) (*SeatConflictError, bool) {
	var sc *SeatConflictError
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}

// Invalidf builds a validation error with a user-facing message.
func Invalidf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidRequest)
}

// publicErrors are the expected failures whose message is safe to show,
// most specific first.
var publicErrors = []error{
	ErrShowtimeStarted,
	ErrHoldExpired,
	ErrGuestNotAllowed,
	ErrVoucherNotFound,
	ErrVoucherInactive,
	ErrVoucherOutsideWindow,
	ErrVoucherMinPurchase,
	ErrVoucherNotApplicable,
	ErrShowtimeNotFound,
	ErrBookingNotFound,
	ErrAlreadySettled,
	ErrAlreadyCheckedIn,
	ErrBookingNotConfirmed,
	ErrForbidden,
}

// PublicMessage returns the user-facing message of an expected error.  It
// reports false for infrastructure failures, whose details must not leak.
func PublicMessage(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	for _, known := range publicErrors {
		if errors.Is(err, known) {
			return known.Error(), true
		}
	}
	if errors.IsAny(err, ErrInvalidRequest, ErrInvalidCombo) {
		return errors.UnwrapAll(err).Error(), true
	}
	return "", false
}
