package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
)

// Member is one connection joined to a showtime room.
type Member interface {
	ID() string
	Participant() model.Participant
	// Send queues ev for delivery without blocking.  It returns false when
	// the member cannot keep up and should be dropped.
	Send(ev Event) bool
	Close()
}

// Relay forwards room events to other nodes.
type Relay interface {
	Publish(ctx context.Context, showtimeID uint64, ev Event, except string) error
}

// Hub is the registry of showtime rooms on this node.  It is the only code
// that touches the member sets; everything else goes through Join, Leave,
// Broadcast and Roster.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint64]map[string]Member
	relay Relay
	log   *slog.Logger
}

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms: make(map[uint64]map[string]Member),
		log:   log.With("component", "realtime-hub"),
	}
}

// SetRelay attaches a relay; broadcasts are then also published to other
// nodes.  It must be called before the hub is used.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Join adds m to the showtime room, tells the other members and sends m
// the current roster.
func (h *Hub) Join(ctx context.Context, showtimeID uint64, m Member) {
	h.mu.Lock()
	room, ok := h.rooms[showtimeID]
	if !ok {
		room = make(map[string]Member)
		h.rooms[showtimeID] = room
	}
	room[m.ID()] = m
	h.mu.Unlock()
	h.countRooms()

	h.Broadcast(WithOrigin(ctx, m.ID()), showtimeID, NewEvent(EventUserJoined, PresenceOf(m.Participant())))

	roster := h.Roster(showtimeID)
	users := make([]PresencePayload, 0, len(roster))
	for _, p := range roster {
		users = append(users, PresenceOf(p))
	}
	if !m.Send(NewEvent(EventActiveUsersList, ActiveUsersPayload{ShowtimeID: showtimeID, Users: users})) {
		h.drop(showtimeID, m)
	}
}

// Leave removes the member from the room and tells the remaining members.
// Leaving never touches seat state; holds lapse on their own.
func (h *Hub) Leave(ctx context.Context, showtimeID uint64, memberID string) {
	h.mu.Lock()
	room := h.rooms[showtimeID]
	m, ok := room[memberID]
	if ok {
		delete(room, memberID)
		if len(room) == 0 {
			delete(h.rooms, showtimeID)
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.countRooms()
	p := m.Participant()
	h.Broadcast(ctx, showtimeID, NewEvent(EventUserLeft, PresenceOf(p)))
}

// Broadcast delivers ev to every member of the room except the origin
// connection stored in ctx, and publishes it to other nodes when a relay
// is attached.  Delivery is best effort.
func (h *Hub) Broadcast(ctx context.Context, showtimeID uint64, ev Event) {
	except := OriginFrom(ctx)
	h.Deliver(showtimeID, ev, except)
	if h.relay == nil {
		return
	}
	if err := h.relay.Publish(ctx, showtimeID, ev, except); err != nil {
		h.log.Warn("relay publish failed", "showtime_id", showtimeID, "event", ev.Name, "error", err)
	}
}

// Deliver sends ev to the local members of the room except the member
// with id except.  It returns the number of members reached.
func (h *Hub) Deliver(showtimeID uint64, ev Event, except string) int {
	h.mu.RLock()
	room := h.rooms[showtimeID]
	targets := make([]Member, 0, len(room))
	for id, m := range room {
		if id != except {
			targets = append(targets, m)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, m := range targets {
		if m.Send(ev) {
			delivered++
			continue
		}
		h.drop(showtimeID, m)
	}
	if delivered > 0 {
		metrics.RealtimeEvents.WithLabelValues(ev.Name).Add(float64(delivered))
	}
	return delivered
}

// Roster returns the participants of a room ordered by join time.
func (h *Hub) Roster(showtimeID uint64) []model.Participant {
	h.mu.RLock()
	room := h.rooms[showtimeID]
	out := make([]model.Participant, 0, len(room))
	for _, m := range room {
		out = append(out, m.Participant())
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Rooms returns the number of rooms with at least one local member.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) countRooms() {
	metrics.RealtimeRooms.Set(float64(h.Rooms()))
}

// drop removes a member that could not keep up, closes it and tells the
// rest of the room it left.
func (h *Hub) drop(showtimeID uint64, m Member) {
	h.mu.Lock()
	room := h.rooms[showtimeID]
	_, ok := room[m.ID()]
	if ok {
		delete(room, m.ID())
		if len(room) == 0 {
			delete(h.rooms, showtimeID)
		}
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.countRooms()
	h.log.Warn("dropping slow member", "showtime_id", showtimeID, "member_id", m.ID())
	m.Close()
	h.Broadcast(context.Background(), showtimeID, NewEvent(EventUserLeft, PresenceOf(m.Participant())))
}
