package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// CatalogRepo reads the showtime, combo and voucher catalog.  The booking
// core never writes these tables.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo constructs a CatalogRepo with the given DB handle.
func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// GetShowtime resolves a showtime with its movie, theater and branch.
func (r *CatalogRepo) GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	const q = `SELECT st.id, st.movie_id, m.title, st.theater_id, t.name, t.branch_id, b.name,
	                  st.start_time, st.end_time, st.base_price
	           FROM showtimes st
	           JOIN movies m ON m.id = st.movie_id
	           JOIN theaters t ON t.id = st.theater_id
	           JOIN branches b ON b.id = t.branch_id
	           WHERE st.id = ?`
	var (
		s   model.Showtime
		end sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.MovieID, &s.MovieTitle, &s.TheaterID, &s.TheaterName, &s.BranchID, &s.BranchName,
		&s.StartTime, &end, &s.BasePrice,
	)
	if err != nil {
		return nil, errors.Wrapf(classify(err, model.ErrShowtimeNotFound), "get showtime %d", id)
	}
	if end.Valid {
		t := end.Time
		s.EndTime = &t
	}
	return &s, nil
}

// GetCombos returns the requested combos keyed by id.  Unknown ids are
// absent from the map.
func (r *CatalogRepo) GetCombos(ctx context.Context, ids []uint64) (map[uint64]model.Combo, error) {
	out := make(map[uint64]model.Combo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q := `SELECT id, name, price, is_active FROM combos WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "get combos")
	}
	defer rows.Close()
	for rows.Next() {
		var c model.Combo
		if err := rows.Scan(&c.ID, &c.Name, &c.Price, &c.Active); err != nil {
			return nil, errors.Wrap(err, "scan combo")
		}
		out[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate combos")
	}
	return out, nil
}

const voucherSelect = `SELECT id, code, discount_type, value, min_purchase, max_discount,
	       valid_from, valid_until, movie_ids, branch_ids, is_active
	FROM vouchers`

// GetVoucherByCode looks a voucher up by its printed code.
func (r *CatalogRepo) GetVoucherByCode(ctx context.Context, code string) (*model.Voucher, error) {
	v, err := scanVoucher(r.db.QueryRowContext(ctx, voucherSelect+` WHERE code = ?`, code))
	return v, errors.Wrapf(err, "get voucher %q", code)
}

// GetVoucherByID looks a voucher up by id.
func (r *CatalogRepo) GetVoucherByID(ctx context.Context, id uint64) (*model.Voucher, error) {
	v, err := scanVoucher(r.db.QueryRowContext(ctx, voucherSelect+` WHERE id = ?`, id))
	return v, errors.Wrapf(err, "get voucher %d", id)
}

func scanVoucher(row *sql.Row) (*model.Voucher, error) {
	var (
		v                   model.Voucher
		discountType        string
		from, until         sql.NullTime
		movieIDs, branchIDs string
	)
	if err := row.Scan(&v.ID, &v.Code, &discountType, &v.Value, &v.MinPurchase, &v.MaxDiscount,
		&from, &until, &movieIDs, &branchIDs, &v.Active); err != nil {
		return nil, classify(err, model.ErrVoucherNotFound)
	}
	v.DiscountType = model.DiscountType(discountType)
	v.ValidFrom = from.Time
	v.ValidUntil = until.Time
	v.MovieIDs = parseIDList(movieIDs)
	v.BranchIDs = parseIDList(branchIDs)
	return &v, nil
}

// parseIDList parses the comma separated allow-lists stored on vouchers.
// Malformed entries are ignored.
func parseIDList(s string) []uint64 {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseUint(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
