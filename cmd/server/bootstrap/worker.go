package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/notify"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/service"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(
		NewMailer,
	),
	fx.Invoke(
		StartSweeper,
		StartConfirmationConsumer,
	),
)

func NewMailer(cfg config.Config, log *slog.Logger) *notify.Mailer {
	return notify.NewMailer(cfg.SMTP, log)
}

// StartSweeper runs the expiry sweep on every node; the compare-and-set
// transitions make concurrent sweeps converge.
func StartSweeper(lc fx.Lifecycle, bg *Background, sweeper *service.ExpirySweeper) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			bg.Go("expiry-sweeper", sweeper.Run)
			return nil
		},
	})
}

// StartConfirmationConsumer sends the ticket email for every confirmed
// booking published to the queue.
func StartConfirmationConsumer(lc fx.Lifecycle, bg *Background, cfg config.Config, mailer *notify.Mailer, log *slog.Logger) {
	consumer := queue.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, mailer.SendTicket, log)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			bg.Go("confirmation-consumer", consumer.Run)
			return nil
		},
	})
}
