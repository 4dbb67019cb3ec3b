package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

// ScenarioSuite drives whole bookings across the manager, orchestrator,
// sweeper and verifier sharing one set of stores.
type ScenarioSuite struct {
	suite.Suite

	ctx      context.Context
	f        *bookingFixture
	sweeper  *ExpirySweeper
	verifier *TicketVerifier
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioSuite))
}

func (s *ScenarioSuite) SetupTest() {
	s.ctx = context.Background()
	s.f = newBookingFixture(s.T())
	s.sweeper = NewExpirySweeper(s.f.seats, s.f.bookings, s.f.bus, s.f.clock, time.Second, 100, nil)
	s.verifier = NewTicketVerifier(s.f.bookings, s.f.catalog, stubMinter{}, s.f.clock, nil)
}

func (s *ScenarioSuite) TestPurchaseToCheckIn() {
	f := s.f

	sel, err := f.res.Select(s.ctx, 1, []uint64{10, 11}, "alice")
	s.Require().NoError(err)
	s.ElementsMatch([]uint64{10, 11}, sel.Selected)
	s.Empty(sel.Rejected)

	_, err = f.res.Reserve(s.ctx, 1, []uint64{10, 11}, "alice")
	s.Require().NoError(err)

	b, err := f.orch.CreatePendingBooking(s.ctx, alice, CreateBookingRequest{
		ShowtimeID: 1,
		SeatIDs:    []uint64{10, 11},
		Combos:     []model.ComboRequest{{ComboID: 5, Quantity: 1}},
		Voucher:    VoucherRef{Code: "TEN"},
	})
	s.Require().NoError(err)
	s.Equal(int64(261000), b.TotalAmount)

	done := f.expectNotification(nil)
	_, err = f.orch.SettlePayment(s.ctx, alice, b.ID, SettleRequest{Outcome: model.PaymentCompleted, TransactionID: "tx-9"})
	s.Require().NoError(err)
	waitFor(s.T(), done)

	for _, id := range []uint64{10, 11} {
		seat := f.seats.get(1, id)
		s.Equal(model.SeatBooked, seat.Status)
		s.Equal(b.ID, seat.BookingRef)
	}

	// a sweep long after the hold window leaves booked seats alone
	f.clock.Add(time.Hour)
	report, err := s.sweeper.SweepOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(report.SeatsReleased)

	res, err := s.verifier.Verify(s.ctx, clerk, b.QRToken)
	s.Require().NoError(err)
	s.True(res.Valid)

	_, err = s.verifier.CheckIn(s.ctx, clerk, b.ID)
	s.Require().NoError(err)
	_, err = s.verifier.CheckIn(s.ctx, clerk, b.ID)
	s.ErrorIs(err, model.ErrAlreadyCheckedIn)
}

func (s *ScenarioSuite) TestAbandonedCheckoutFreesSeatsForOthers() {
	f := s.f
	f.hold(s.T(), "alice", 12)

	b, err := f.orch.CreatePendingBooking(s.ctx, alice, CreateBookingRequest{ShowtimeID: 1, SeatIDs: []uint64{12}})
	s.Require().NoError(err)

	sel, err := f.res.Select(s.ctx, 1, []uint64{12}, "bob")
	s.Require().NoError(err)
	s.Equal([]uint64{12}, sel.Rejected)

	f.clock.Add(16 * time.Minute)
	report, err := s.sweeper.SweepOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.SeatsReleased)
	s.Equal(int64(1), report.BookingsCancelled)
	s.Contains(f.bus.names(), realtime.EventReservationExpired)

	f.hold(s.T(), "bob", 12)
	s.Equal("bob", f.seats.get(1, 12).HolderID)

	_, err = f.orch.SettlePayment(s.ctx, alice, b.ID, SettleRequest{Outcome: model.PaymentCompleted})
	s.ErrorIs(err, model.ErrHoldExpired)
	s.Equal(model.SeatReserved, f.seats.get(1, 12).Status)
	s.Equal("bob", f.seats.get(1, 12).HolderID)
}

func (s *ScenarioSuite) TestRacingSelectionsHaveOneWinner() {
	const racers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			out, err := s.f.res.Select(s.ctx, 1, []uint64{13}, user)
			if err != nil || len(out.Selected) == 0 {
				return
			}
			mu.Lock()
			winners = append(winners, user)
			mu.Unlock()
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	s.Require().Len(winners, 1)
	seat := s.f.seats.get(1, 13)
	s.Equal(model.SeatSelecting, seat.Status)
	s.Equal(winners[0], seat.HolderID)
}

func (s *ScenarioSuite) TestTicketForFinishedShowtime() {
	end := testNow.Add(3 * time.Hour)
	s.f.catalog.showtimes[1].EndTime = &end
	b := confirmedBooking(s.T(), s.f)

	s.f.clock.Set(end.Add(time.Second))
	res, err := s.verifier.Verify(s.ctx, clerk, b.QRToken)
	s.Require().NoError(err)
	s.False(res.Valid)
	s.Equal(TicketExpired, res.Reason)
}

func (s *ScenarioSuite) TestConcurrentCheckoutsNeverDoubleSell() {
	const buyers = 8
	f := s.f
	seats := []uint64{10, 11}
	f.notifier.On("BookingConfirmed", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// every written settlement is followed by a sweep past the hold
	f.bookings.afterSettle = func(string) {
		f.clock.Add(16 * time.Minute)
		_, err := s.sweeper.SweepOnce(s.ctx)
		s.NoError(err)
	}

	stop := make(chan struct{})
	sweeps := make(chan struct{})
	go func() {
		defer close(sweeps)
		for i := 0; i < 24; i++ {
			select {
			case <-stop:
				return
			default:
			}
			f.clock.Add(2 * time.Minute)
			_, err := s.sweeper.SweepOnce(s.ctx)
			s.NoError(err)
			time.Sleep(time.Millisecond)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(actor model.Actor) {
			defer wg.Done()
			for attempt := 0; attempt < 50; attempt++ {
				if s.checkout(actor, seats) {
					return
				}
				_, _ = f.res.Release(s.ctx, 1, seats, actor.UserID)
			}
		}(model.Actor{UserID: fmt.Sprintf("buyer-%d", i), Role: model.RoleCustomer, Name: "Buyer", Email: "buyer@example.com"})
	}
	wg.Wait()
	close(stop)
	<-sweeps

	// let every remaining hold lapse and be settled by the sweeper
	f.clock.Add(30 * time.Minute)
	_, err := s.sweeper.SweepOnce(s.ctx)
	s.Require().NoError(err)

	holders := make(map[uint64][]string)
	confirmed := 0
	for _, b := range f.bookings.all() {
		s.NotEqual(model.BookingPending, b.BookingStatus, "booking %s left pending", b.ID)
		if b.BookingStatus != model.BookingConfirmed {
			continue
		}
		confirmed++
		for _, id := range b.SeatIDs() {
			holders[id] = append(holders[id], b.ID)
			seat := f.seats.get(1, id)
			s.Equal(model.SeatBooked, seat.Status, "seat %d of %s", id, b.ID)
			s.Equal(b.ID, seat.BookingRef, "seat %d of %s", id, b.ID)
		}
	}
	s.LessOrEqual(confirmed, 1)
	for id, ids := range holders {
		s.Len(ids, 1, "seat %d sold to %v", id, ids)
	}
}

// checkout runs one attempt of the whole purchase and reports whether the
// payment was accepted.
func (s *ScenarioSuite) checkout(actor model.Actor, seatIDs []uint64) bool {
	f := s.f
	sel, err := f.res.Select(s.ctx, 1, seatIDs, actor.UserID)
	if err != nil || len(sel.Rejected) > 0 {
		return false
	}
	if _, err := f.res.Reserve(s.ctx, 1, seatIDs, actor.UserID); err != nil {
		return false
	}
	b, err := f.orch.CreatePendingBooking(s.ctx, actor, CreateBookingRequest{ShowtimeID: 1, SeatIDs: seatIDs})
	if err != nil {
		return false
	}
	_, err = f.orch.SettlePayment(s.ctx, actor, b.ID, SettleRequest{Outcome: model.PaymentCompleted})
	return err == nil
}
