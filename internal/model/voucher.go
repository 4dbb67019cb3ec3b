package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a voucher's value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Voucher is a discount code from the catalog.  The booking core only reads
// vouchers; it never changes their usage or lifecycle.
//
// Fields:
//  Value       – percent (0-100) for percentage vouchers, amount for fixed ones.
//  MinPurchase – minimum subtotal the voucher applies to; 0 means none.
//  MaxDiscount – cap on the discount; 0 means uncapped.
//  MovieIDs    – optional allow-list; empty means every movie.
//  BranchIDs   – optional allow-list; empty means every branch.
type Voucher struct {
	ID           uint64
	Code         string
	DiscountType DiscountType
	Value        int64
	MinPurchase  int64
	MaxDiscount  int64
	ValidFrom    time.Time
	ValidUntil   time.Time
	MovieIDs     []uint64
	BranchIDs    []uint64
	Active       bool
}

// Check returns nil when the voucher can be applied to a purchase of
// subtotal for showtime at now, or the reason it cannot.
func (v Voucher) Check(now time.Time, subtotal int64, st Showtime) error {
	switch {
	case !v.Active:
		return ErrVoucherInactive
	case !v.ValidFrom.IsZero() && now.Before(v.ValidFrom):
		return ErrVoucherOutsideWindow
	case !v.ValidUntil.IsZero() && now.After(v.ValidUntil):
		return ErrVoucherOutsideWindow
	case v.MinPurchase > 0 && subtotal < v.MinPurchase:
		return ErrVoucherMinPurchase
	case len(v.MovieIDs) > 0 && !containsID(v.MovieIDs, st.MovieID):
		return ErrVoucherNotApplicable
	case len(v.BranchIDs) > 0 && !containsID(v.BranchIDs, st.BranchID):
		return ErrVoucherNotApplicable
	}
	return nil
}

// DiscountFor computes the discount on subtotal.  Percentage discounts are
// rounded down to whole units.  The result is capped by MaxDiscount and
// never exceeds subtotal.
func (v Voucher) DiscountFor(subtotal int64) int64 {
	if subtotal <= 0 || v.Value <= 0 {
		return 0
	}
	var discount decimal.Decimal
	switch v.DiscountType {
	case DiscountPercentage:
		discount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(v.Value)).
			Div(decimal.NewFromInt(100)).
			Floor()
	case DiscountFixed:
		discount = decimal.NewFromInt(v.Value)
	default:
		return 0
	}
	if v.MaxDiscount > 0 {
		discount = decimal.Min(discount, decimal.NewFromInt(v.MaxDiscount))
	}
	discount = decimal.Min(discount, decimal.NewFromInt(subtotal))
	return discount.IntPart()
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
