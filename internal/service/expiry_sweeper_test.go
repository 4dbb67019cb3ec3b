package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

func TestSweepOnceReleasesExpiredHolds(t *testing.T) {
	m, seats, bus, clk := newManager(t)
	ctx := context.Background()

	_, err := m.Select(ctx, 1, []uint64{10}, "alice")
	require.NoError(t, err)
	_, err = m.Select(ctx, 1, []uint64{11}, "bob")
	require.NoError(t, err)
	_, err = m.Reserve(ctx, 1, []uint64{11}, "bob")
	require.NoError(t, err)

	sweeper := NewExpirySweeper(seats, newMemBookings(), bus, clk, time.Second, 100, nil)

	clk.Add(time.Minute)
	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SeatsReleased)
	assert.Equal(t, model.SeatAvailable, seats.get(1, 10).Status)
	assert.Equal(t, model.SeatReserved, seats.get(1, 11).Status)
	assert.Contains(t, bus.names(), realtime.EventReservationExpired)

	clk.Add(15 * time.Minute)
	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SeatsReleased)
	assert.Equal(t, model.SeatAvailable, seats.get(1, 11).Status)

	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.SeatsReleased)
}

func TestSweepSkipsRenewedHold(t *testing.T) {
	m, seats, bus, clk := newManager(t)
	ctx := context.Background()

	_, err := m.Select(ctx, 1, []uint64{10}, "alice")
	require.NoError(t, err)
	clk.Add(time.Minute)

	expired, err := seats.ListExpiredHolds(ctx, clk.Now(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	// the seat is released and taken by someone else before the sweeper
	// gets to it
	_, err = m.Release(ctx, 1, []uint64{10}, "alice")
	require.NoError(t, err)
	_, err = m.Select(ctx, 1, []uint64{10}, "bob")
	require.NoError(t, err)

	sweeper := NewExpirySweeper(seats, newMemBookings(), bus, clk, time.Second, 100, nil)
	n, err := sweeper.expireShowtime(ctx, 1, expired, clk.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "bob", seats.get(1, 10).HolderID)
}

func TestConcurrentSweepersConverge(t *testing.T) {
	m, seats, bus, clk := newManager(t)
	ctx := context.Background()

	_, err := m.Select(ctx, 1, []uint64{10, 11, 12, 13}, "alice")
	require.NoError(t, err)
	clk.Add(time.Minute)

	bookings := newMemBookings()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper := NewExpirySweeper(seats, bookings, bus, clk, time.Second, 100, nil)
			report, err := sweeper.SweepOnce(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total += report.SeatsReleased
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, total)
	for _, id := range []uint64{10, 11, 12, 13} {
		assert.Equal(t, model.SeatAvailable, seats.get(1, id).Status)
	}
}

func TestSweeperRun(t *testing.T) {
	m, seats, bus, clk := newManager(t)
	_, err := m.Select(context.Background(), 1, []uint64{10}, "alice")
	require.NoError(t, err)
	clk.Add(time.Minute)

	sweeper := NewExpirySweeper(seats, newMemBookings(), bus, clk, 10*time.Millisecond, 100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return seats.get(1, 10).Status == model.SeatAvailable
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweepFollowsLinkedBooking(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	f.hold(t, "alice", 10)
	f.hold(t, "bob", 11)

	pending, err := f.orch.CreatePendingBooking(ctx, alice, CreateBookingRequest{ShowtimeID: 1, SeatIDs: []uint64{10}})
	require.NoError(t, err)
	confirmed, err := f.orch.CreatePendingBooking(ctx, bob, CreateBookingRequest{ShowtimeID: 1, SeatIDs: []uint64{11}})
	require.NoError(t, err)

	// bob's booking is confirmed directly in the store, as if the process
	// died before finalizing the seats
	won, err := f.bookings.Settle(ctx, confirmed.ID, model.Settlement{
		PaymentStatus: model.PaymentCompleted, BookingStatus: model.BookingConfirmed, At: f.clock.Now(),
	})
	require.NoError(t, err)
	require.True(t, won)

	sweeper := NewExpirySweeper(f.seats, f.bookings, f.bus, f.clock, time.Second, 100, nil)
	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)

	f.clock.Add(16 * time.Minute)
	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.BookingsCancelled)
	assert.Equal(t, 1, report.SeatsReleased)
	assert.Equal(t, 1, report.SeatsBooked)

	assert.Equal(t, model.SeatAvailable, f.seats.get(1, 10).Status)
	seat := f.seats.get(1, 11)
	assert.Equal(t, model.SeatBooked, seat.Status)
	assert.Equal(t, confirmed.ID, seat.BookingRef)
	assert.Contains(t, f.bus.names(), realtime.EventSeatsBooked)

	stored, err := f.bookings.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, stored.BookingStatus)
}

func TestExpireShowtimeSkipsBookingLinkedSeats(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	f.hold(t, "alice", 10)
	_, err := f.orch.CreatePendingBooking(ctx, alice, CreateBookingRequest{ShowtimeID: 1, SeatIDs: []uint64{10}})
	require.NoError(t, err)

	f.clock.Add(16 * time.Minute)
	expired, err := f.seats.ListExpiredHolds(ctx, f.clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	sweeper := NewExpirySweeper(f.seats, f.bookings, f.bus, f.clock, time.Second, 100, nil)
	n, err := sweeper.expireShowtime(ctx, 1, expired, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.SeatReserved, f.seats.get(1, 10).Status)
}
