package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// ProcessLauncher runs the runner as a child process of the worker.
type ProcessLauncher struct{}

func NewProcessLauncher() *ProcessLauncher {
	return &ProcessLauncher{}
}

func (l *ProcessLauncher) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	log := logger.WithComponent("sandbox.process")

	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", spec.Binary, err)
	}
	log.Debug().Int("pid", cmd.Process.Pid).Str("binary", spec.Binary).Msg("Runner process started")

	err := cmd.Wait()
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, fmt.Errorf("failed to wait for %s: %w", spec.Binary, err)
	}
}
