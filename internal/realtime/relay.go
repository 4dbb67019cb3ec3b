package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "showtime:"

// envelope is the redis pub/sub message carrying a room event between
// nodes.  Node lets the publisher skip its own echo.
type envelope struct {
	Node       string `json:"node"`
	ShowtimeID uint64 `json:"showtimeId"`
	Except     string `json:"except,omitempty"`
	Event      Event  `json:"event"`
}

// RedisRelay fans room events out to every node through redis pub/sub, so
// viewers of one showtime converge even when connected to different
// processes.
type RedisRelay struct {
	rdb    *redis.Client
	nodeID string
	hub    *Hub
	log    *slog.Logger
}

// NewRedisRelay constructs a relay for hub and attaches it.
func NewRedisRelay(rdb *redis.Client, nodeID string, hub *Hub, log *slog.Logger) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	r := &RedisRelay{rdb: rdb, nodeID: nodeID, hub: hub, log: log.With("component", "realtime-relay", "node", nodeID)}
	hub.SetRelay(r)
	return r
}

// Channel returns the pub/sub channel of a showtime room.
func Channel(showtimeID uint64) string {
	return channelPrefix + strconv.FormatUint(showtimeID, 10)
}

// Publish sends ev to the other nodes.
func (r *RedisRelay) Publish(ctx context.Context, showtimeID uint64, ev Event, except string) error {
	body, err := json.Marshal(envelope{Node: r.nodeID, ShowtimeID: showtimeID, Except: except, Event: ev})
	if err != nil {
		return errors.Wrap(err, "marshal relay envelope")
	}
	if err := r.rdb.Publish(ctx, Channel(showtimeID), body).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", Channel(showtimeID))
	}
	return nil
}

// Run subscribes to every showtime channel and delivers remote events to
// local members until ctx is cancelled.  Subscription errors are retried
// with backoff.
func (r *RedisRelay) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := r.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		r.log.Warn("relay subscription ended, resubscribing", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "psubscribe")
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			r.handle(msg.Channel, msg.Payload)
		}
	}
}

// handle delivers one relayed event to local members.
func (r *RedisRelay) handle(channel, payload string) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("dropping malformed relay message", "channel", channel, "error", err)
		return
	}
	if env.Node == r.nodeID {
		return
	}
	r.hub.Deliver(env.ShowtimeID, env.Event, env.Except)
}
