package service

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

// memSeats is an in-memory SeatStore whose CompareAndSet applies the same
// guards as the SQL statement, atomically per seat.
type memSeats struct {
	mu    sync.Mutex
	rows  map[uint64]map[uint64]*model.SeatStatus
	fail  error
	calls int
}

func newMemSeats() *memSeats {
	return &memSeats{rows: make(map[uint64]map[uint64]*model.SeatStatus)}
}

// add creates available seats for a showtime.  Seat i is row "A", number i.
func (m *memSeats) add(showtimeID uint64, price int64, seatIDs ...uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[showtimeID] == nil {
		m.rows[showtimeID] = make(map[uint64]*model.SeatStatus)
	}
	for _, id := range seatIDs {
		m.rows[showtimeID][id] = &model.SeatStatus{
			ShowtimeID: showtimeID, SeatID: id, RowLabel: "A", SeatNumber: uint32(id),
			Category: "standard", Status: model.SeatAvailable, Price: price,
		}
	}
}

func (m *memSeats) get(showtimeID, seatID uint64) model.SeatStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[showtimeID][seatID]
}

func (m *memSeats) ListByShowtime(_ context.Context, showtimeID uint64) ([]model.SeatStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SeatStatus
	for _, s := range m.rows[showtimeID] {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	return out, nil
}

func (m *memSeats) ListByIDs(_ context.Context, showtimeID uint64, seatIDs []uint64) ([]model.SeatStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SeatStatus
	for _, id := range seatIDs {
		if s, ok := m.rows[showtimeID][id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSeats) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]model.SeatStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SeatStatus
	for _, seats := range m.rows {
		for _, s := range seats {
			if s.Status.Held() && s.HoldExpiresAt != nil && !s.HoldExpiresAt.After(now) {
				out = append(out, *s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSeats) CompareAndSet(_ context.Context, t model.SeatTransition) (model.CASResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var res model.CASResult
	if m.fail != nil {
		return res, m.fail
	}
	for _, id := range t.SeatIDs {
		s, ok := m.rows[t.ShowtimeID][id]
		if !ok || !matches(s, t) {
			res.Rejected = append(res.Rejected, id)
			continue
		}
		s.Status = t.To
		s.HolderID, s.HoldExpiresAt, s.BookingRef = "", nil, ""
		if t.To != model.SeatAvailable {
			s.HolderID = t.Holder
			s.BookingRef = t.BookingRef
		}
		if t.To.Held() && t.ExpiresAt != nil {
			exp := *t.ExpiresAt
			s.HoldExpiresAt = &exp
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res, nil
}

func matches(s *model.SeatStatus, t model.SeatTransition) bool {
	if !slices.Contains(t.From, s.Status) {
		return false
	}
	if t.MatchHolder && s.Status != model.SeatAvailable && s.HolderID != t.Holder {
		return false
	}
	if t.ExpiredAt != nil && (s.HoldExpiresAt == nil || s.HoldExpiresAt.After(*t.ExpiredAt)) {
		return false
	}
	if t.UnexpiredAt != nil && (s.HoldExpiresAt == nil || !s.HoldExpiresAt.After(*t.UnexpiredAt)) {
		return false
	}
	if t.MatchBookingRef != "" && s.BookingRef != t.MatchBookingRef {
		return false
	}
	if t.RequireNoBookingRef && s.BookingRef != "" {
		return false
	}
	return true
}

// memBookings is an in-memory BookingStore with the conditional updates of
// the SQL repository.
type memBookings struct {
	mu   sync.Mutex
	byID map[string]*model.Booking

	// afterSettle runs once a settlement is written, before Settle returns.
	afterSettle func(id string)
}

func newMemBookings() *memBookings {
	return &memBookings{byID: make(map[string]*model.Booking)}
}

func (m *memBookings) Create(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.byID[b.ID] = &cp
	return nil
}

func (m *memBookings) GetByID(_ context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) GetByQRToken(_ context.Context, token string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.byID {
		if b.QRToken == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, model.ErrBookingNotFound
}

func (m *memBookings) ListByCustomer(_ context.Context, customerID string, limit int) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.byID {
		if b.CustomerID == customerID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memBookings) Settle(_ context.Context, id string, s model.Settlement) (bool, error) {
	won, err := m.settle(id, s)
	if won && m.afterSettle != nil {
		m.afterSettle(id)
	}
	return won, err
}

func (m *memBookings) settle(id string, s model.Settlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok {
		return false, model.ErrBookingNotFound
	}
	if b.BookingStatus != model.BookingPending {
		return false, nil
	}
	if s.UnexpiredAt != nil && !b.HoldExpiresAt.After(*s.UnexpiredAt) {
		return false, nil
	}
	at := s.At
	b.PaymentStatus, b.BookingStatus = s.PaymentStatus, s.BookingStatus
	b.PaymentMethod, b.TransactionID = s.PaymentMethod, s.TransactionID
	b.SettledAt, b.UpdatedAt = &at, at
	return true, nil
}

// all returns a snapshot of every stored booking.
func (m *memBookings) all() []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Booking, 0, len(m.byID))
	for _, b := range m.byID {
		out = append(out, *b)
	}
	return out
}

func (m *memBookings) CheckIn(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byID[id]
	if !ok || b.CheckedIn || b.BookingStatus != model.BookingConfirmed {
		return false, nil
	}
	b.CheckedIn, b.CheckedInAt = true, &at
	return true, nil
}

func (m *memBookings) CancelExpiredPending(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.byID {
		if b.BookingStatus == model.BookingPending && !b.HoldExpiresAt.After(now) {
			at := now
			b.PaymentStatus, b.BookingStatus = model.PaymentFailed, model.BookingCancelled
			b.SettledAt, b.UpdatedAt = &at, at
			n++
		}
	}
	return n, nil
}

// memCatalog serves fixed showtimes, combos and vouchers.
type memCatalog struct {
	showtimes map[uint64]*model.Showtime
	combos    map[uint64]model.Combo
	vouchers  map[string]*model.Voucher
}

func (c *memCatalog) GetShowtime(_ context.Context, id uint64) (*model.Showtime, error) {
	st, ok := c.showtimes[id]
	if !ok {
		return nil, model.ErrShowtimeNotFound
	}
	cp := *st
	return &cp, nil
}

func (c *memCatalog) GetCombos(_ context.Context, ids []uint64) (map[uint64]model.Combo, error) {
	out := make(map[uint64]model.Combo)
	for _, id := range ids {
		if cb, ok := c.combos[id]; ok {
			out[id] = cb
		}
	}
	return out, nil
}

func (c *memCatalog) GetVoucherByCode(_ context.Context, code string) (*model.Voucher, error) {
	v, ok := c.vouchers[code]
	if !ok {
		return nil, model.ErrVoucherNotFound
	}
	return v, nil
}

func (c *memCatalog) GetVoucherByID(_ context.Context, id uint64) (*model.Voucher, error) {
	for _, v := range c.vouchers {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, model.ErrVoucherNotFound
}

// recordingBus collects broadcast events.
type recordingBus struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *recordingBus) Broadcast(_ context.Context, _ uint64, ev realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Name)
	}
	return out
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) BookingConfirmed(ctx context.Context, b *model.Booking, st *model.Showtime) error {
	args := m.Called(ctx, b, st)
	return args.Error(0)
}

type stubMinter struct{}

func (stubMinter) Mint(bookingID string) string { return "TK-" + bookingID }

func (stubMinter) Matches(bookingID, token string) bool { return token == "TK-"+bookingID }
