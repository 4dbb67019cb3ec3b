package bootstrap

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/realtime"
)

var RealtimeModule = fx.Module("realtime",
	fx.Provide(
		NewBackground,
		NewHub,
	),
)

// NewHub builds the room registry and, when redis is available, starts
// the cross-node relay on application start.
func NewHub(lc fx.Lifecycle, cfg config.Config, rdb *redis.Client, bg *Background, log *slog.Logger) *realtime.Hub {
	hub := realtime.NewHub(log)
	if rdb == nil {
		log.Warn("redis unavailable, realtime rooms are local to this node")
		return hub
	}
	relay := realtime.NewRedisRelay(rdb, cfg.App.NodeID, hub, log)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			bg.Go("realtime-relay", func(ctx context.Context) {
				if err := relay.Run(ctx); err != nil {
					log.Error("realtime relay stopped", "error", err)
				}
			})
			return nil
		},
	})
	return hub
}
