package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

type stubCatalog struct {
	showtimes map[uint64]*model.Showtime
}

func (s stubCatalog) GetShowtime(_ context.Context, id uint64) (*model.Showtime, error) {
	if st, ok := s.showtimes[id]; ok {
		return st, nil
	}
	return nil, errors.Wrapf(model.ErrShowtimeNotFound, "get showtime %d", id)
}

type stubSeats struct {
	seats map[uint64][]model.SeatStatus
}

func (s stubSeats) SeatMap(_ context.Context, id uint64) ([]model.SeatStatus, error) {
	return s.seats[id], nil
}

type stubInit struct{ created int64 }

func (s stubInit) InitShowtime(context.Context, uint64) (int64, error) { return s.created, nil }

// stubIntents records intents and answers with canned outcomes.
type stubIntents struct {
	mu      sync.Mutex
	calls   []string
	reserve error
}

func (s *stubIntents) record(name, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name+":"+userID)
}

func (s *stubIntents) Select(_ context.Context, _ uint64, ids []uint64, userID string) (model.SelectionOutcome, error) {
	s.record("select", userID)
	if userID == "" {
		return model.SelectionOutcome{}, model.ErrGuestNotAllowed
	}
	return model.SelectionOutcome{Selected: ids[:1], Rejected: ids[1:], ExpiresAt: testNow.Add(30 * time.Second)}, nil
}

func (s *stubIntents) Release(_ context.Context, _ uint64, ids []uint64, userID string) (model.ReleaseOutcome, error) {
	s.record("release", userID)
	return model.ReleaseOutcome{Released: ids}, nil
}

func (s *stubIntents) Reserve(_ context.Context, _ uint64, ids []uint64, userID string) (model.ReserveOutcome, error) {
	s.record("reserve", userID)
	if s.reserve != nil {
		return model.ReserveOutcome{}, s.reserve
	}
	return model.ReserveOutcome{SeatIDs: ids, ExpiresAt: testNow.Add(15 * time.Minute)}, nil
}

func showtimeFixture() (stubCatalog, stubSeats) {
	catalog := stubCatalog{showtimes: map[uint64]*model.Showtime{
		1: {ID: 1, MovieID: 7, MovieTitle: "Dune", TheaterName: "Hall 1", StartTime: testNow.Add(2 * time.Hour), BasePrice: 120000},
		2: {ID: 2, MovieID: 7, MovieTitle: "Dune", StartTime: testNow.Add(4 * time.Hour), BasePrice: 120000},
	}}
	exp := testNow.Add(time.Minute)
	seats := stubSeats{seats: map[uint64][]model.SeatStatus{
		1: {
			{ShowtimeID: 1, SeatID: 10, RowLabel: "C", SeatNumber: 7, Category: "standard", Status: model.SeatAvailable, Price: 120000},
			{ShowtimeID: 1, SeatID: 11, RowLabel: "C", SeatNumber: 8, Category: "standard", Status: model.SeatSelecting, HolderID: "u-2", HoldExpiresAt: &exp, Price: 120000},
		},
	}}
	return catalog, seats
}

func TestShowtimeReads(t *testing.T) {
	catalog, seats := showtimeFixture()
	hub := realtime.NewHub(nil)
	h := NewShowtimeHandler(catalog, seats, hub, stubInit{created: 40}, nil)
	e := echo.New()
	e.GET("/v1/showtimes/:id", h.GetShowtime)
	e.GET("/v1/showtimes/:id/seats", h.GetSeatMap)
	e.GET("/v1/showtimes/:id/viewers", h.GetViewers)
	e.POST("/v1/admin/showtimes/:id/seats", h.InitSeats)

	rec := call(e, http.MethodGet, "/v1/showtimes/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dune", decode(t, rec)["movieTitle"])

	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodGet, "/v1/showtimes/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, call(e, http.MethodGet, "/v1/showtimes/9", "").Code)

	rec = call(e, http.MethodGet, "/v1/showtimes/1/seats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["seats"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "C7", list[0].(map[string]any)["label"])
	assert.Equal(t, "selecting", list[1].(map[string]any)["status"])

	// initialised later: known showtime, empty map
	rec = call(e, http.MethodGet, "/v1/showtimes/2/seats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, call(e, http.MethodGet, "/v1/showtimes/9/seats", "").Code)

	rec = call(e, http.MethodGet, "/v1/showtimes/1/viewers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["users"])

	rec = call(e, http.MethodPost, "/v1/admin/showtimes/2/seats", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(40), decode(t, rec)["created"])
	assert.Equal(t, http.StatusNotFound, call(e, http.MethodPost, "/v1/admin/showtimes/9/seats", "").Code)
}

func TestSeatIntents(t *testing.T) {
	intents := &stubIntents{}
	h := NewSeatIntentHandler(intents, nil)
	e := echo.New()
	g := e.Group("/v1/showtimes/:id/seats", as(customer))
	g.POST("/select", h.Select)
	g.POST("/release", h.Release)
	g.POST("/reserve", h.Reserve)

	rec := call(e, http.MethodPost, "/v1/showtimes/1/seats/select", `{"seatIds":[10,11]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{float64(10)}, body["selected"])
	assert.Equal(t, []any{float64(11)}, body["rejected"])
	assert.NotEmpty(t, body["expiresAt"])

	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/showtimes/1/seats/select", `{"seatIds":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/showtimes/0/seats/select", `{"seatIds":[1]}`).Code)

	rec = call(e, http.MethodPost, "/v1/showtimes/1/seats/release", `{"seatIds":[10]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["skipped"])

	rec = call(e, http.MethodPost, "/v1/showtimes/1/seats/reserve", `{"seatIds":[10,11]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{float64(10), float64(11)}, decode(t, rec)["seatIds"])

	intents.reserve = model.NewSeatConflict("held by someone else", []uint64{11})
	rec = call(e, http.MethodPost, "/v1/showtimes/1/seats/reserve", `{"seatIds":[10,11]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []any{float64(11)}, decode(t, rec)["seatIds"])

	assert.Equal(t, []string{"select:u-1", "release:u-1", "reserve:u-1", "reserve:u-1"}, intents.calls)
}

func TestSeatIntentsRejectGuests(t *testing.T) {
	h := NewSeatIntentHandler(&stubIntents{}, nil)
	e := echo.New()
	e.POST("/v1/showtimes/:id/seats/select", h.Select)

	rec := call(e, http.MethodPost, "/v1/showtimes/1/seats/select", `{"seatIds":[10]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSocketJoinAndSelect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub(nil)
	intents := &stubIntents{}
	h := NewSocketHandler(ctx, hub, intents, nil)
	e := echo.New()
	e.GET("/v1/ws", h.Serve, as(customer))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() realtime.Event {
		t.Helper()
		var ev realtime.Event
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	require.NoError(t, conn.WriteJSON(realtime.NewEvent(realtime.IntentJoinShowtime, realtime.IntentPayload{ShowtimeID: 1})))
	ev := read()
	assert.Equal(t, realtime.EventActiveUsersList, ev.Name)
	assert.Contains(t, string(ev.Data), `"userId":"u-1"`)
	assert.Len(t, hub.Roster(1), 1)

	require.NoError(t, conn.WriteJSON(realtime.NewEvent(realtime.IntentSelectSeats, realtime.IntentPayload{SeatIDs: []uint64{10}})))
	ev = read()
	assert.Equal(t, realtime.EventSeatSelectionSuccess, ev.Name)
	assert.Contains(t, string(ev.Data), `"seatIds":[10]`)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return len(hub.Roster(1)) == 0 }, 2*time.Second, 10*time.Millisecond)
}
