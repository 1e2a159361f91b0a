package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jun/voznota/internal/config"
	"github.com/jun/voznota/internal/logging"
)

// Bootstrap loads configuration from the environment (and envFile when it
// exists), builds the root logger for service and initializes the App.
// The returned logger is usable even when err is non-nil.
func Bootstrap(ctx context.Context, envFile, service string) (*App, *config.Config, zerolog.Logger, error) {
	log := logging.New(logging.Config{}, service)

	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, log, err
	}
	log = logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, service)

	application, err := NewApp(ctx, cfg, log)
	if err != nil {
		return nil, cfg, log, err
	}
	return application, cfg, log, nil
}
