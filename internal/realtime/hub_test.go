package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fakeMember struct {
	id string
	p  model.Participant

	mu     sync.Mutex
	events []Event
	full   bool
	closed bool
}

func newMember(id string, joined time.Time) *fakeMember {
	return &fakeMember{id: id, p: model.Participant{UserID: "user-" + id, Name: id, JoinedAt: joined}}
}

func (m *fakeMember) ID() string                     { return m.id }
func (m *fakeMember) Participant() model.Participant { return m.p }

func (m *fakeMember) Send(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.events = append(m.events, ev)
	return true
}

func (m *fakeMember) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *fakeMember) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Name)
	}
	return out
}

func (m *fakeMember) last() Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[len(m.events)-1]
}

type recordingRelay struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingRelay) Publish(_ context.Context, showtimeID uint64, ev Event, except string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ev.Name+"/"+except)
	return r.err
}

func TestJoinSendsRosterAndAnnounces(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	a, b := newMember("a", t0), newMember("b", t0.Add(time.Second))

	hub.Join(ctx, 1, a)
	hub.Join(ctx, 1, b)

	assert.Equal(t, []string{EventActiveUsersList, EventUserJoined}, a.names())
	assert.Equal(t, []string{EventActiveUsersList}, b.names())

	var list ActiveUsersPayload
	require.NoError(t, json.Unmarshal(b.last().Data, &list))
	require.Len(t, list.Users, 2)
	assert.Equal(t, "user-a", list.Users[0].UserID)
	assert.Equal(t, "user-b", list.Users[1].UserID)

	var joined PresencePayload
	require.NoError(t, json.Unmarshal(a.last().Data, &joined))
	assert.Equal(t, "user-b", joined.UserID)
}

func TestBroadcastSkipsOriginAndOtherRooms(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	a, b, other := newMember("a", t0), newMember("b", t0), newMember("c", t0)
	hub.Join(ctx, 1, a)
	hub.Join(ctx, 1, b)
	hub.Join(ctx, 2, other)

	ev := NewEvent(EventSeatsBeingSelected, SeatsPayload{ShowtimeID: 1, SeatIDs: []uint64{10}, UserID: "user-a"})
	hub.Broadcast(WithOrigin(ctx, "a"), 1, ev)

	assert.NotContains(t, a.names(), EventSeatsBeingSelected)
	assert.Equal(t, EventSeatsBeingSelected, b.last().Name)
	assert.NotContains(t, other.names(), EventSeatsBeingSelected)

	// server-originated events reach everyone
	hub.Broadcast(ctx, 1, NewEvent(EventSeatsReleased, SeatsPayload{ShowtimeID: 1, Reason: ReasonExpired}))
	assert.Equal(t, EventSeatsReleased, a.last().Name)
	assert.Equal(t, EventSeatsReleased, b.last().Name)
}

func TestLeaveAnnouncesAndRemovesEmptyRoom(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	a, b := newMember("a", t0), newMember("b", t0)
	hub.Join(ctx, 1, a)
	hub.Join(ctx, 1, b)

	hub.Leave(ctx, 1, "b")
	assert.Equal(t, EventUserLeft, a.last().Name)
	assert.Len(t, hub.Roster(1), 1)

	// unknown member is a no-op
	hub.Leave(ctx, 1, "zzz")
	hub.Leave(ctx, 1, "a")
	assert.Empty(t, hub.Roster(1))
	assert.Equal(t, 0, hub.Rooms())
}

func TestSlowMemberIsDropped(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	a, slow := newMember("a", t0), newMember("slow", t0)
	hub.Join(ctx, 1, a)
	hub.Join(ctx, 1, slow)

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	n := hub.Deliver(1, NewEvent(EventSeatsBooked, SeatsPayload{ShowtimeID: 1}), "")
	assert.Equal(t, 1, n)
	assert.True(t, slow.closed)
	assert.Len(t, hub.Roster(1), 1)

	left := a.last()
	assert.Equal(t, EventUserLeft, left.Name)
	var p PresencePayload
	require.NoError(t, json.Unmarshal(left.Data, &p))
	assert.Equal(t, "user-slow", p.UserID)

	// the connection's own Leave afterwards finds nothing to announce
	before := len(a.names())
	hub.Leave(ctx, 1, "slow")
	assert.Len(t, a.names(), before)
}

func TestRoomsGauge(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	hub.Join(ctx, 1, newMember("a", t0))
	hub.Join(ctx, 2, newMember("b", t0))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RealtimeRooms))

	hub.Leave(ctx, 2, "b")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RealtimeRooms))
	assert.Equal(t, 1, hub.Rooms())
}

func TestRosterOrderedByJoinTime(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()
	hub.Join(ctx, 1, newMember("late", t0.Add(time.Minute)))
	hub.Join(ctx, 1, newMember("early", t0))
	hub.Join(ctx, 1, newMember("also-early", t0))

	var ids []string
	for _, p := range hub.Roster(1) {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []string{"user-also-early", "user-early", "user-late"}, ids)
}

func TestBroadcastPublishesToRelay(t *testing.T) {
	hub := NewHub(nil)
	relay := &recordingRelay{err: errors.New("redis down")}
	hub.SetRelay(relay)
	a := newMember("a", t0)
	hub.Join(context.Background(), 1, a)

	// a failing relay still delivers locally
	hub.Broadcast(context.Background(), 1, NewEvent(EventSeatsBooked, SeatsPayload{ShowtimeID: 1}))
	assert.Equal(t, EventSeatsBooked, a.last().Name)
	assert.Equal(t, []string{EventUserJoined + "/a", EventSeatsBooked + "/"}, relay.sent)
}

func TestRedisRelayPublish(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	hub := NewHub(nil)
	relay := NewRedisRelay(rdb, "node-1", hub, nil)

	ev := NewEvent(EventSeatsBooked, SeatsPayload{ShowtimeID: 7, SeatIDs: []uint64{1}, BookingID: "bk-1"})
	body, err := json.Marshal(envelope{Node: "node-1", ShowtimeID: 7, Except: "conn-1", Event: ev})
	require.NoError(t, err)
	mock.ExpectPublish("showtime:7", body).SetVal(2)

	require.NoError(t, relay.Publish(context.Background(), 7, ev, "conn-1"))
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectPublish("showtime:7", body).SetErr(errors.New("connection refused"))
	assert.Error(t, relay.Publish(context.Background(), 7, ev, "conn-1"))
}

func TestRedisRelayHandle(t *testing.T) {
	rdb, _ := redismock.NewClientMock()
	hub := NewHub(nil)
	relay := NewRedisRelay(rdb, "node-1", hub, nil)
	hub.SetRelay(nil)

	a, b := newMember("a", t0), newMember("b", t0)
	hub.Join(context.Background(), 7, a)
	hub.Join(context.Background(), 7, b)

	ev := NewEvent(EventSeatsReservedForPay, SeatsPayload{ShowtimeID: 7, SeatIDs: []uint64{3}})
	remote, err := json.Marshal(envelope{Node: "node-2", ShowtimeID: 7, Except: "a", Event: ev})
	require.NoError(t, err)
	own, err := json.Marshal(envelope{Node: "node-1", ShowtimeID: 7, Event: NewEvent(EventSeatsBooked, nil)})
	require.NoError(t, err)

	relay.handle(Channel(7), string(remote))
	relay.handle(Channel(7), string(own))
	relay.handle(Channel(7), "{not json")
	relay.handle("other:7", string(remote))

	assert.NotContains(t, a.names(), EventSeatsReservedForPay)
	assert.Equal(t, 1, countOf(b.names(), EventSeatsReservedForPay))
	assert.NotContains(t, b.names(), EventSeatsBooked)
}

func countOf(names []string, name string) int {
	n := 0
	for _, s := range names {
		if s == name {
			n++
		}
	}
	return n
}
