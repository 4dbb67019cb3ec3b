package bootstrap

import (
	"log/slog"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/logger"
)

var ConfigModule = fx.Module("config",
	fx.Provide(
		NewConfig,
		NewLogger,
	),
)

// NewConfig loads the configuration and fills in a node id when none is
// set, so every process has a distinct identity in the realtime fan-out.
func NewConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if cfg.App.NodeID == "" {
		cfg.App.NodeID = uuid.NewString()
	}
	return cfg, nil
}

func NewLogger(cfg config.Config) *slog.Logger {
	return logger.New(cfg).With("node", cfg.App.NodeID)
}
