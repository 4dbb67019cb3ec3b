package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/utils"
)

var InfraModule = fx.Module("infra",
	fx.Provide(
		NewDB,
		NewRedis,
		NewPublisher,
		repository.NewSeatStatusRepo,
		repository.NewBookingRepo,
		repository.NewCatalogRepo,
		func(cfg config.Config) *utils.TicketSigner {
			return utils.NewTicketSigner(cfg.Booking.TicketSecret)
		},
	),
)

// NewDB opens MySQL and, when enabled, applies the embedded schema.
func NewDB(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.DB.Migrate {
				return nil
			}
			log.Info("applying database schema")
			return database.Migrate(ctx, db)
		},
		OnStop: func(_ context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

// NewRedis returns nil when redis is unreachable; dependents degrade.
func NewRedis(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error { return rdb.Close() },
		})
	}
	return rdb
}

// NewPublisher dials RabbitMQ lazily on the first confirmation.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) *queue.Publisher {
	p := queue.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error { return p.Close() },
	})
	return p
}
