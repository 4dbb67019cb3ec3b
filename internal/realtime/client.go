package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iliyamo/cinema-booking/internal/metrics"
	"github.com/iliyamo/cinema-booking/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// SeatIntents is the part of the reservation manager a connection drives.
type SeatIntents interface {
	Select(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID string) (model.SelectionOutcome, error)
	Release(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID string) (model.ReleaseOutcome, error)
	Reserve(ctx context.Context, showtimeID uint64, seatIDs []uint64, userID string) (model.ReserveOutcome, error)
}

// Client is one websocket connection.  It is a member of at most one room
// at a time.  Seat state is never touched when the connection goes away;
// the expiry sweeper releases whatever the viewer still held.
type Client struct {
	id       string
	conn     *websocket.Conn
	hub      *Hub
	intents  SeatIntents
	actor    model.Actor
	joinedAt time.Time
	log      *slog.Logger

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}

	mu         sync.Mutex
	showtimeID uint64
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, hub *Hub, intents SeatIntents, actor model.Actor, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	return &Client{
		id:       id,
		conn:     conn,
		hub:      hub,
		intents:  intents,
		actor:    actor,
		joinedAt: time.Now().UTC(),
		log:      log.With("component", "realtime-client", "conn_id", id, "user_id", actor.UserID),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Participant() model.Participant {
	name := c.actor.Name
	if c.actor.IsGuest() && name == "" {
		name = "Guest"
	}
	return model.Participant{UserID: c.actor.UserID, Name: name, IsGuest: c.actor.IsGuest(), JoinedAt: c.joinedAt}
}

// Send queues ev without blocking.
func (c *Client) Send(ev Event) bool {
	b, err := json.Marshal(ev)
	if err != nil {
		return true
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Close stops the connection's pumps.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Run pumps the connection until it closes or ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	metrics.RealtimeConnections.Inc()
	defer metrics.RealtimeConnections.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.writePump(ctx)
	c.readPump(ctx)

	if room := c.room(); room != 0 {
		c.hub.Leave(context.Background(), room, c.id)
	}
	c.Close()
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("connection closed unexpectedly", "error", err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.reply(NewEvent(EventError, ErrorPayload{Message: "malformed message"}))
			continue
		}
		c.dispatch(ctx, ev)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// dispatch handles one client intent.  The sender gets a direct reply;
// the rest of the room learns about the change through the hub.
func (c *Client) dispatch(ctx context.Context, ev Event) {
	var in IntentPayload
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &in); err != nil {
			c.reply(NewEvent(EventError, ErrorPayload{Message: "malformed " + ev.Name + " payload"}))
			return
		}
	}
	if in.ShowtimeID == 0 {
		in.ShowtimeID = c.room()
	}
	ctx = WithOrigin(ctx, c.id)

	switch ev.Name {
	case IntentJoinShowtime:
		c.join(ctx, in.ShowtimeID)
	case IntentSelectSeats:
		c.selectSeats(ctx, in)
	case IntentReleaseSeats:
		c.releaseSeats(ctx, in)
	case IntentReserveSeats:
		c.reserveSeats(ctx, in)
	default:
		c.reply(NewEvent(EventError, ErrorPayload{Message: "unknown event " + ev.Name}))
	}
}

func (c *Client) join(ctx context.Context, showtimeID uint64) {
	if showtimeID == 0 {
		c.reply(NewEvent(EventError, ErrorPayload{Message: "showtimeId is required"}))
		return
	}
	c.mu.Lock()
	prev := c.showtimeID
	c.showtimeID = showtimeID
	c.mu.Unlock()
	if prev == showtimeID {
		return
	}
	if prev != 0 {
		c.hub.Leave(ctx, prev, c.id)
	}
	c.hub.Join(ctx, showtimeID, c)
}

func (c *Client) selectSeats(ctx context.Context, in IntentPayload) {
	out, err := c.intents.Select(ctx, in.ShowtimeID, in.SeatIDs, c.actor.UserID)
	if err != nil {
		c.reply(NewEvent(EventSeatSelectionFailed, SeatsPayload{
			ShowtimeID: in.ShowtimeID, SeatIDs: in.SeatIDs, Message: c.failureMessage(err),
		}))
		return
	}
	if len(out.Selected) > 0 {
		exp := out.ExpiresAt
		c.reply(NewEvent(EventSeatSelectionSuccess, SeatsPayload{
			ShowtimeID: in.ShowtimeID, SeatIDs: out.Selected, UserID: c.actor.UserID, ExpiresAt: &exp,
		}))
	}
	if len(out.Rejected) > 0 {
		c.reply(NewEvent(EventSeatSelectionFailed, SeatsPayload{
			ShowtimeID: in.ShowtimeID, SeatIDs: out.Rejected, Message: "seats are being selected or reserved by someone else",
		}))
	}
}

func (c *Client) releaseSeats(ctx context.Context, in IntentPayload) {
	out, err := c.intents.Release(ctx, in.ShowtimeID, in.SeatIDs, c.actor.UserID)
	if err != nil {
		c.reply(NewEvent(EventError, ErrorPayload{Message: c.failureMessage(err)}))
		return
	}
	c.reply(NewEvent(EventSeatsReleased, SeatsPayload{
		ShowtimeID: in.ShowtimeID, SeatIDs: out.Released, UserID: c.actor.UserID, Reason: ReasonReleased,
	}))
}

func (c *Client) reserveSeats(ctx context.Context, in IntentPayload) {
	out, err := c.intents.Reserve(ctx, in.ShowtimeID, in.SeatIDs, c.actor.UserID)
	if err != nil {
		failed := SeatsPayload{ShowtimeID: in.ShowtimeID, SeatIDs: in.SeatIDs, Message: c.failureMessage(err)}
		if sc, ok := model.AsSeatConflict(err); ok {
			failed.SeatIDs = sc.SeatIDs
		}
		c.reply(NewEvent(EventSeatReservationFailed, failed))
		return
	}
	exp := out.ExpiresAt
	c.reply(NewEvent(EventSeatReservationSuccess, SeatsPayload{
		ShowtimeID: in.ShowtimeID, SeatIDs: out.SeatIDs, UserID: c.actor.UserID, ExpiresAt: &exp,
	}))
}

// failureMessage turns an intent error into something safe to show.
func (c *Client) failureMessage(err error) string {
	if sc, ok := model.AsSeatConflict(err); ok {
		return sc.Error()
	}
	if msg, ok := model.PublicMessage(err); ok {
		return msg
	}
	c.log.Error("seat intent failed", "error", err)
	return "something went wrong, please try again"
}

func (c *Client) reply(ev Event) {
	if !c.Send(ev) {
		c.Close()
	}
}

func (c *Client) room() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showtimeID
}
