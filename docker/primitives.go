package docker

// primitives.go exposes the low-level engine operations the command gateway
// composes: resolving a container, running a command inside it, and reading
// its logs. these stay thin; the gateway owns the policy (allow-list,
// timeout, shortcut registry).

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sasta-kro/dropdeploy/errs"
	"github.com/sasta-kro/dropdeploy/models"
)

// ExecResult carries the demultiplexed output of one command run inside a
// container. ExitCode is -1 when the exec finished but its exit code could
// not be retrieved; the buffers are still valid in that case.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ResolveRunningContainer finds a running container for the gateway.
// resolution is two-step: exact name first, then a fallback scan of running
// containers whose image is <prefix>/<slug>:latest, where slug is the given
// name with the prefix stripped. the fallback covers containers that were
// renamed or recreated outside the pipeline but still run a platform image.
func (engineClient *Client) ResolveRunningContainer(ctx context.Context, containerName string) (string, error) {
	containerID, _, err := engineClient.findContainerByExactName(ctx, containerName, false)
	if err != nil {
		return "", err
	}
	if containerID != "" {
		return containerID, nil
	}

	// fallback: match by image. normalize "prefix-slug" and "prefix_slug"
	// the same way, then compare against the derived image reference.
	slug := strings.TrimPrefix(strings.TrimPrefix(containerName, engineClient.namePrefix), "-")
	slug = strings.TrimPrefix(slug, "_")
	expectedImage := models.ImageRef(engineClient.namePrefix, slug)

	runningContainers, err := engineClient.sdk.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to list running containers: %w", err)
	}
	for _, listedContainer := range runningContainers {
		if listedContainer.Image == expectedImage {
			return listedContainer.ID, nil
		}
	}

	return "", errs.New(errs.KindNotFound,
		"no running container named %q and no running container using image %q; deploy the project first",
		containerName, expectedImage)
}

/*
ExecInContainer runs a shell command inside a running container and returns
its demultiplexed output and exit code.

The command is executed as ["/bin/sh", "-c", command] with stdout and stderr
both attached. Because the exec runs without a TTY, the engine multiplexes
the two streams over one connection using its 8-byte frame protocol (byte 0
is the stream kind, 1=stdout 2=stderr; bytes 4-7 are the big-endian payload
length). stdcopy.StdCopy is the SDK's state machine over exactly that
protocol and splits the frames into the two buffers.

The context carries the caller's wall-clock deadline. On expiry the hijacked
connection is closed, the copy unblocks, and the call fails with a Timeout
error; partial buffers are discarded.
*/
func (engineClient *Client) ExecInContainer(ctx context.Context, containerID string, command string) (*ExecResult, error) {
	execConfig := container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	}

	createResponse, err := engineClient.sdk.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec in container %q: %w", containerID[:12], err)
	}

	attachResponse, err := engineClient.sdk.ContainerExecAttach(ctx, createResponse.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec process: %w", err)
	}
	defer attachResponse.Close()

	var stdoutBuffer, stderrBuffer bytes.Buffer

	// the copy blocks until the command finishes or the connection dies.
	// run it in a goroutine so the deadline can win the race: closing the
	// hijacked connection is the only way to abort a running exec read.
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdoutBuffer, &stderrBuffer, attachResponse.Reader)
		copyDone <- copyErr
	}()

	select {
	case <-ctx.Done():
		attachResponse.Close()
		return nil, errs.Wrap(errs.KindTimeout, ctx.Err(), "command did not complete in time")
	case copyErr := <-copyDone:
		if copyErr != nil {
			return nil, fmt.Errorf("failed to read exec output: %w", copyErr)
		}
	}

	result := &ExecResult{
		Stdout: stdoutBuffer.String(),
		Stderr: stderrBuffer.String(),
	}

	// the exit code lives on the exec instance, fetched via inspect after
	// completion. if that lookup fails the output is still worth returning;
	// -1 marks the code as unknown rather than pretending it was 0.
	inspectResponse, err := engineClient.sdk.ContainerExecInspect(ctx, createResponse.ID)
	if err != nil {
		engineClient.logger.Warn("failed to inspect exec for exit code", "error", err)
		result.ExitCode = -1
		return result, nil
	}
	result.ExitCode = inspectResponse.ExitCode

	return result, nil
}

// ContainerLogsTail fetches the last tailLines lines of a container's
// combined stdout/stderr. the engine multiplexes non-TTY logs with the same
// frame protocol as exec, so the stream is demultiplexed here too; both
// streams land in one buffer in chronological order.
func (engineClient *Client) ContainerLogsTail(ctx context.Context, containerID string, tailLines int) (string, error) {
	logReader, err := engineClient.sdk.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", tailLines),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logReader.Close()

	var combinedBuffer bytes.Buffer
	_, err = stdcopy.StdCopy(&combinedBuffer, &combinedBuffer, logReader)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to demultiplex container logs: %w", err)
	}

	return combinedBuffer.String(), nil
}
