package runner

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/core/ports"
	"github.com/theblitlabs/zemog-worker/internal/telemetry"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// RunStandalone executes one test from an already unpacked package directory.
// Nothing is taken from the queue, uploaded or notified, and the results
// directory is left in place for inspection.
func RunStandalone(ctx context.Context, executor ports.TestExecutor, dir, test string) (result *models.ExecutionResult, err error) {
	log := logger.WithComponent("standalone").With().
		Str("dir", dir).
		Str("test_name", test).
		Logger()

	ctx, span := telemetry.StartSpan(ctx, "standalone.run",
		attribute.String("dir", dir),
		attribute.String("test_name", test))
	defer func() { telemetry.EndSpan(span, err) }()

	log.Info().Msg("STARTED")

	if err := executor.Open(dir); err != nil {
		log.Error().Err(err).Msg("Failed to open test package")
		return nil, err
	}

	result, err = executor.Execute(ctx, test)
	if err != nil {
		log.Error().Err(err).Msg("Test execution failed")
		return nil, err
	}

	log.Info().
		Int("exit_code", result.ExitCode).
		Str("results_dir", result.ResultsDirectory).
		Msg("FINISHED")
	if result.Succeeded() {
		log.Info().Msg("SUCCESSFUL")
	} else {
		log.Info().Msg("FAILED")
	}
	return result, nil
}
