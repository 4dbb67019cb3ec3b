package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// confirmedBooking runs a booking through payment and returns it.
func confirmedBooking(t *testing.T, f *bookingFixture) *model.Booking {
	t.Helper()
	ctx := context.Background()
	f.hold(t, "alice", 10)
	done := f.expectNotification(nil)

	b, err := f.orch.CreatePendingBooking(ctx, alice, CreateBookingRequest{ShowtimeID: 1, SeatIDs: []uint64{10}})
	require.NoError(t, err)
	b, err = f.orch.SettlePayment(ctx, alice, b.ID, SettleRequest{Outcome: model.PaymentCompleted})
	require.NoError(t, err)
	waitFor(t, done)
	return b
}

func TestVerifyAndCheckIn(t *testing.T) {
	f := newBookingFixture(t)
	b := confirmedBooking(t, f)
	v := NewTicketVerifier(f.bookings, f.catalog, stubMinter{}, f.clock, nil)
	ctx := context.Background()

	res, err := v.Verify(ctx, clerk, b.QRToken)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Reason)
	assert.Equal(t, b.ID, res.Booking.ID)
	assert.Equal(t, "Dune", res.Showtime.MovieTitle)

	checked, err := v.CheckIn(ctx, clerk, b.ID)
	require.NoError(t, err)
	assert.True(t, checked.CheckedIn)
	assert.Equal(t, f.clock.Now(), *checked.CheckedInAt)

	_, err = v.CheckIn(ctx, clerk, b.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyCheckedIn)
	msg, ok := model.PublicMessage(err)
	assert.True(t, ok)
	assert.Equal(t, "ticket already used", msg)

	res, err = v.Verify(ctx, clerk, b.QRToken)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, TicketUsed, res.Reason)
}

func TestVerifyExpiredTicket(t *testing.T) {
	f := newBookingFixture(t)
	end := testNow.Add(4 * time.Hour)
	f.catalog.showtimes[1].EndTime = &end
	b := confirmedBooking(t, f)
	v := NewTicketVerifier(f.bookings, f.catalog, stubMinter{}, f.clock, nil)
	ctx := context.Background()

	f.clock.Set(end.Add(time.Minute))
	res, err := v.Verify(ctx, clerk, b.QRToken)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, TicketExpired, res.Reason)
	assert.Equal(t, end, res.ExpiresAt)
	require.NotNil(t, res.Booking)
	assert.Equal(t, b.ID, res.Booking.ID)

	// staff may still admit an expired ticket
	checked, err := v.CheckIn(ctx, clerk, b.ID)
	require.NoError(t, err)
	assert.True(t, checked.CheckedIn)
}

func TestVerifyFallsBackToStartTime(t *testing.T) {
	f := newBookingFixture(t)
	b := confirmedBooking(t, f)
	v := NewTicketVerifier(f.bookings, f.catalog, stubMinter{}, f.clock, nil)

	f.clock.Set(f.catalog.showtimes[1].StartTime.Add(time.Second))
	res, err := v.Verify(context.Background(), clerk, b.QRToken)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, TicketExpired, res.Reason)
}

func TestCheckInRequiresConfirmedBooking(t *testing.T) {
	f := newBookingFixture(t)
	f.hold(t, "alice", 10)
	ctx := context.Background()
	b, err := f.orch.CreatePendingBooking(ctx, alice, CreateBookingRequest{ShowtimeID: 1, SeatIDs: []uint64{10}})
	require.NoError(t, err)
	v := NewTicketVerifier(f.bookings, f.catalog, stubMinter{}, f.clock, nil)

	_, err = v.CheckIn(ctx, clerk, b.ID)
	assert.ErrorIs(t, err, model.ErrBookingNotConfirmed)

	res, err := v.Verify(ctx, clerk, b.QRToken)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, TicketNotConfirmed, res.Reason)
}

func TestTicketOperationsRequireStaff(t *testing.T) {
	f := newBookingFixture(t)
	v := NewTicketVerifier(f.bookings, f.catalog, stubMinter{}, f.clock, nil)
	ctx := context.Background()

	_, err := v.Verify(ctx, alice, "TK-x")
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = v.CheckIn(ctx, alice, "bk-1")
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = v.Verify(ctx, clerk, "TK-unknown")
	assert.ErrorIs(t, err, model.ErrBookingNotFound)
}

func TestVerifyRejectsTokenNotMintedForBooking(t *testing.T) {
	f := newBookingFixture(t)
	b := confirmedBooking(t, f)
	v := NewTicketVerifier(f.bookings, f.catalog, stubMinter{}, f.clock, nil)

	// a row whose token was written by hand rather than minted
	f.bookings.mu.Lock()
	f.bookings.byID[b.ID].QRToken = "TK-forged"
	f.bookings.mu.Unlock()

	_, err := v.Verify(context.Background(), clerk, "TK-forged")
	assert.ErrorIs(t, err, model.ErrBookingNotFound)
}
