package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// DockerEngine runs the CLI engine inside a container for deployments that
// want hard isolation: no network, memory-limited, and only the data roots
// mounted in.
type DockerEngine struct {
	client *client.Client
	image  string
	binary string
	mounts []string
}

// NewDockerEngine creates a container-based engine. mounts lists the host
// directories (the guard's allowed roots) bound into the container at the
// same paths, so compiled argv paths stay valid.
func NewDockerEngine(engineImage, binary string, mounts []string) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerEngine{client: cli, image: engineImage, binary: binary, mounts: mounts}, nil
}

// Start implements Engine.Start using Docker containers.
func (d *DockerEngine) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	// Pull only when the image is missing locally.
	_, err := d.client.ImageInspect(ctx, d.image)
	if err != nil {
		reader, err := d.client.ImagePull(ctx, d.image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", d.image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	binds := make([]string, 0, len(d.mounts))
	for _, m := range d.mounts {
		binds = append(binds, m+":"+m)
	}

	containerConfig := &container.Config{
		Image:           d.image,
		Cmd:             append([]string{d.binary}, opts.Argv...),
		WorkingDir:      opts.WorkDir,
		Tty:             true,
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		Binds: binds,
		Resources: container.Resources{
			Memory: opts.MemoryBytes,
		},
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &dockerHandle{
		client:      d.client,
		containerID: resp.ID,
		maxOutput:   opts.MaxOutputBytes,
	}, nil
}

type dockerHandle struct {
	client      *client.Client
	containerID string
	maxOutput   int64
	stdout      []byte
}

func (h *dockerHandle) Wait(ctx context.Context) (ExitResult, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return ExitResult{ExitCode: -1, Error: err}, err
	case status := <-statusCh:
		h.collectLogs(ctx)
		if status.Error != nil {
			return ExitResult{ExitCode: int(status.StatusCode), Error: fmt.Errorf("%s", status.Error.Message)}, nil
		}
		return ExitResult{ExitCode: int(status.StatusCode)}, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *dockerHandle) collectLogs(ctx context.Context) {
	rc, err := h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return
	}
	defer rc.Close()

	buf := newBoundedBuffer(h.maxOutput)
	io.Copy(buf, rc)
	h.stdout = buf.Bytes()
}

func (h *dockerHandle) Stop(ctx context.Context) error {
	timeout := int(termGrace.Seconds())
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout})
}

// Output returns the combined container log as stdout; with a TTY the two
// streams are multiplexed.
func (h *dockerHandle) Output() (stdout, stderr []byte) {
	return h.stdout, nil
}
