package bootstrap

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/fx"
)

// Background runs long-lived loops (sweeper, consumer, relay, sockets)
// under one context that is cancelled when the application stops.
type Background struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

func NewBackground(lc fx.Lifecycle, log *slog.Logger) *Background {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Background{ctx: ctx, cancel: cancel, log: log}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			b.cancel()
			done := make(chan struct{})
			go func() {
				b.wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return b
}

// Context is cancelled on shutdown.
func (b *Background) Context() context.Context { return b.ctx }

// Go runs fn until it returns or the application stops.
func (b *Background) Go(name string, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.log.Info("background task started", "task", name)
		fn(b.ctx)
		b.log.Info("background task stopped", "task", name)
	}()
}
