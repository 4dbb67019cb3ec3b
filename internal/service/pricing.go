package service

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// VoucherRef identifies the voucher of an order by code or by id.
type VoucherRef struct {
	Code string
	ID   *uint64
}

// Empty reports whether no voucher was given.
func (v VoucherRef) Empty() bool { return v.Code == "" && v.ID == nil }

// Quote is a priced order.
type Quote struct {
	Seats    []model.BookedSeat
	Combos   []model.BookedCombo
	Subtotal int64
	Discount int64
	Total    int64
	Voucher  *model.Voucher
}

// Pricer prices orders: seat snapshots plus combos minus the voucher
// discount, floored at zero.
type Pricer struct {
	catalog Catalog
}

// NewPricer constructs a Pricer.
func NewPricer(catalog Catalog) *Pricer {
	return &Pricer{catalog: catalog}
}

// Quote prices seats (in the order given), combos and an optional voucher
// for showtime st at now.  Catalog lookup failures are fatal; an unknown,
// inactive or inapplicable voucher is a validation error.
func (p *Pricer) Quote(ctx context.Context, st *model.Showtime, seats []model.SeatStatus, combos []model.ComboRequest, voucher VoucherRef, now time.Time) (Quote, error) {
	var q Quote
	for _, s := range seats {
		q.Seats = append(q.Seats, model.BookedSeat{
			SeatID: s.SeatID, RowLabel: s.RowLabel, SeatNumber: s.SeatNumber, Category: s.Category, Price: s.Price,
		})
		q.Subtotal += s.Price
	}

	lines, err := p.comboLines(ctx, combos)
	if err != nil {
		return Quote{}, err
	}
	for _, l := range lines {
		q.Subtotal += l.UnitPrice * int64(l.Quantity)
	}
	q.Combos = lines

	if !voucher.Empty() {
		v, err := p.lookupVoucher(ctx, voucher)
		if err != nil {
			return Quote{}, err
		}
		if err := v.Check(now, q.Subtotal, *st); err != nil {
			return Quote{}, errors.Wrapf(err, "voucher %s", v.Code)
		}
		q.Voucher = v
		q.Discount = v.DiscountFor(q.Subtotal)
	}

	q.Total = q.Subtotal - q.Discount
	if q.Total < 0 {
		q.Total = 0
	}
	return q, nil
}

// comboLines merges repeated combos and snapshots their catalog price.
func (p *Pricer) comboLines(ctx context.Context, combos []model.ComboRequest) ([]model.BookedCombo, error) {
	if len(combos) == 0 {
		return nil, nil
	}
	qty := make(map[uint64]int, len(combos))
	var order []uint64
	for _, c := range combos {
		if c.ComboID == 0 || c.Quantity <= 0 {
			return nil, errors.Mark(errors.Newf("combo %d needs a positive quantity", c.ComboID), model.ErrInvalidCombo)
		}
		if _, ok := qty[c.ComboID]; !ok {
			order = append(order, c.ComboID)
		}
		qty[c.ComboID] += c.Quantity
	}

	catalog, err := p.catalog.GetCombos(ctx, order)
	if err != nil {
		return nil, errors.Wrap(err, "look up combos")
	}

	lines := make([]model.BookedCombo, 0, len(order))
	var missing []uint64
	for _, id := range order {
		c, ok := catalog[id]
		if !ok || !c.Active {
			missing = append(missing, id)
			continue
		}
		lines = append(lines, model.BookedCombo{ComboID: id, Name: c.Name, Quantity: qty[id], UnitPrice: c.Price})
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return nil, errors.Mark(errors.Newf("combos %v are not available", missing), model.ErrInvalidCombo)
	}
	return lines, nil
}

func (p *Pricer) lookupVoucher(ctx context.Context, ref VoucherRef) (*model.Voucher, error) {
	var (
		v   *model.Voucher
		err error
	)
	if ref.ID != nil {
		v, err = p.catalog.GetVoucherByID(ctx, *ref.ID)
	} else {
		v, err = p.catalog.GetVoucherByCode(ctx, ref.Code)
	}
	if err != nil {
		if errors.Is(err, model.ErrVoucherNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "look up voucher")
	}
	return v, nil
}
