package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/runner"
	"github.com/theblitlabs/zemog-worker/internal/telemetry"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// RunWorker processes a single task from the configured queue and exits.
func RunWorker(configPath string) error {
	log := logger.WithComponent("cli")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := initTelemetry(ctx, cfg)
	defer shutdown()

	service, err := runner.NewService(ctx, cfg)
	if err != nil {
		errorutil.HandleError(log, err, "Failed to create worker service")
		return err
	}
	defer service.Stop()

	outcome, err := service.Run(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", outcome.RunID).
		Str("state", string(outcome.State)).
		Msg("Worker run complete")
	return nil
}

// RunStandalone executes one test from a local package directory without
// touching the queue or the result bucket.
func RunStandalone(configPath, dir, test string) error {
	log := logger.WithComponent("cli")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := initTelemetry(ctx, cfg)
	defer shutdown()

	executor, err := runner.NewExecutor(cfg)
	if err != nil {
		errorutil.HandleError(log, err, "Failed to create test executor")
		return err
	}

	_, err = runner.RunStandalone(ctx, executor, dir, test)
	return err
}

func loadConfig(path string) (*config.Config, error) {
	log := logger.WithComponent("cli")

	cm := config.GetConfigManager()
	cm.SetConfigPath(path)
	cfg, err := cm.GetConfig()
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to load config")
		return nil, err
	}

	for _, opt := range cfg.Debug.Enabled() {
		log.Warn().Str("option", opt).Msg("Debug option enabled")
	}
	return cfg, nil
}

func initTelemetry(ctx context.Context, cfg *config.Config) func() {
	log := logger.WithComponent("cli")

	shutdown, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Telemetry disabled")
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}
}
