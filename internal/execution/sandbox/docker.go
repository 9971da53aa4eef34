package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// DockerAPI is the subset of the Docker client the launcher uses.
type DockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.ContainerCreateCreatedBody, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.ContainerWaitOKBody, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
}

type DockerConfig struct {
	Image       string
	MemoryLimit int64
}

// DockerLauncher runs the runner inside a throwaway container. The runner
// artifact, staging and results directories are bind-mounted at their host
// paths so manifest file URIs resolve unchanged.
type DockerLauncher struct {
	client DockerAPI
	config DockerConfig
}

func NewDockerLauncher(config DockerConfig) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return NewDockerLauncherWithClient(cli, config), nil
}

func NewDockerLauncherWithClient(cli DockerAPI, config DockerConfig) *DockerLauncher {
	return &DockerLauncher{client: cli, config: config}
}

func (l *DockerLauncher) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	log := logger.WithComponent("sandbox.docker")

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, p := range spec.Mounts {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: p, Target: p})
	}

	resp, err := l.client.ContainerCreate(ctx,
		&container.Config{
			Image:      l.config.Image,
			Cmd:        append([]string{spec.Binary}, spec.Args...),
			WorkingDir: spec.Dir,
		},
		&container.HostConfig{
			Mounts:    mounts,
			Resources: container.Resources{Memory: l.config.MemoryLimit},
		},
		nil, nil, "")
	if err != nil {
		return -1, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := resp.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := l.client.ContainerRemove(removeCtx, containerID, types.ContainerRemoveOptions{Force: true}); err != nil {
			log.Error().Err(err).Str("container_id", containerID).Msg("Failed to remove container")
		}
	}()

	if err := l.client.ContainerStart(ctx, containerID, types.ContainerStartOptions{}); err != nil {
		return -1, fmt.Errorf("failed to start container: %w", err)
	}
	log.Debug().Str("container_id", containerID).Str("image", l.config.Image).Msg("Runner container started")

	out, err := l.client.ContainerLogs(ctx, containerID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to attach to container logs: %w", err)
	}
	defer out.Close()

	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(spec.Stdout, spec.Stderr, out)
		copyDone <- err
	}()

	statusCh, errCh := l.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, fmt.Errorf("error waiting for container: %w", err)
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		return -1, ctx.Err()
	}

	if err := <-copyDone; err != nil {
		log.Warn().Err(err).Str("container_id", containerID).Msg("Container log stream ended with error")
	}
	return exitCode, nil
}
