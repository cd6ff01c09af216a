package docker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sasta-kro/dropdeploy/errs"
)

/*
ReplaceAndRun makes a freshly built image the live container for a project.

Containers here are disposable: a redeploy never restarts or mutates the old
container, it destroys it and creates a new one from the new image. that
guarantees a clean, predictable runtime state on every deployment and is the
same stop/remove -> create/start pattern production platforms use.

Steps:

	stop and remove any container already holding containerName
	allocate a verified-free host port from [8000, 9999]
	create the container: internal port exposed, host->internal binding,
	  memory hard cap, CPU-share weight, restart-on-crash policy
	start it

Returns the allocated host port; the orchestrator persists it onto the
deployment row as the reverse-proxy target.
*/
func (engineClient *Client) ReplaceAndRun(
	ctx context.Context,
	imageRef string,
	internalPort int,
	containerName string,
) (int, error) {
	// replace semantics: at most one container per project may exist, named
	// deterministically from the slug. clear the name before creating, and
	// if the create below still collides (a racing pipeline), clean up the
	// stale holder and let the queue retry.
	err := engineClient.StopAndRemoveContainer(ctx, containerName)
	if err != nil {
		return 0, errs.Wrap(errs.KindRunFailed, err, "failed to remove previous container %q", containerName)
	}

	hostPort, err := allocateHostPort()
	if err != nil {
		return 0, errs.Wrap(errs.KindRunFailed, err, "port allocation failed for %q", containerName)
	}

	internalPortSpec, err := nat.NewPort("tcp", strconv.Itoa(internalPort))
	if err != nil {
		return 0, errs.Wrap(errs.KindRunFailed, err, "invalid internal port %d", internalPort)
	}

	// container.Config is the "inside the container" view, HostConfig the
	// host-dependent one (bindings, resource caps, restart policy). the
	// engine API keeps them separate and so does this code.
	containerInternalConfig := &container.Config{
		Image: imageRef,
		ExposedPorts: nat.PortSet{
			internalPortSpec: struct{}{},
		},
	}

	containerHostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			internalPortSpec: []nat.PortBinding{
				{
					// bind on all interfaces; the reverse proxy connects over
					// loopback, and the firewall is expected to keep the raw
					// port range off the public interface.
					HostIP:   "0.0.0.0",
					HostPort: strconv.Itoa(hostPort),
				},
			},
		},

		// every deployed container gets the same caps: a hard memory limit
		// so one runaway app cannot take the host down, and a CPU-share
		// weight so containers degrade proportionally under contention
		// rather than starving each other.
		Resources: container.Resources{
			Memory:    engineClient.memoryLimitBytes,
			CPUShares: engineClient.cpuShares,
		},

		// restart automatically on crash or host reboot, but not when the
		// container was explicitly stopped (redeploy, project deletion).
		RestartPolicy: container.RestartPolicy{
			Name: "unless-stopped",
		},
	}

	// nil platform: the daemon picks the image layer matching the host's
	// native architecture.
	var platform *v1.Platform

	createResponse, err := engineClient.sdk.ContainerCreate(
		ctx,
		containerInternalConfig,
		containerHostConfig,
		nil, // no custom networking; the proxy reaches the published host port
		platform,
		containerName,
	)
	if err != nil {
		return 0, errs.Wrap(errs.KindRunFailed, err, "failed to create container %q", containerName)
	}

	engineClient.logger.Info("container created",
		"container_id", createResponse.ID[:12],
		"container_name", containerName,
		"image", imageRef,
		"host_port", hostPort,
	)

	err = engineClient.sdk.ContainerStart(ctx, createResponse.ID, container.StartOptions{})
	if err != nil {
		// a created-but-unstartable container would block the next deploy's
		// create under the same name; remove it before reporting failure.
		removeErr := engineClient.sdk.ContainerRemove(ctx, createResponse.ID, container.RemoveOptions{Force: true})
		if removeErr != nil {
			engineClient.logger.Warn("failed to remove unstartable container",
				"container_name", containerName, "error", removeErr)
		}
		return 0, errs.Wrap(errs.KindRunFailed, err, "failed to start container %q", containerName)
	}

	engineClient.logger.Info("container started",
		"container_name", containerName,
		"host_port", hostPort,
	)

	return hostPort, nil
}

// StopAndRemoveContainer stops and removes a container by exact name.
// if no container with the given name is found, it returns nil (not an
// error), because the desired state (container gone) is already satisfied.
// used before every redeploy and by project deletion.
func (engineClient *Client) StopAndRemoveContainer(ctx context.Context, containerName string) error {
	targetContainerID, _, err := engineClient.findContainerByExactName(ctx, containerName, true)
	if err != nil {
		return err
	}
	if targetContainerID == "" {
		engineClient.logger.Debug("container not found, nothing to remove", "name", containerName)
		return nil
	}

	// SIGTERM with a grace period, then SIGKILL. ten seconds is enough for
	// the app servers these recipes produce.
	stopTimeout := 10
	err = engineClient.sdk.ContainerStop(ctx, targetContainerID, container.StopOptions{
		Timeout: &stopTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to stop container %q: %w", containerName, err)
	}

	err = engineClient.sdk.ContainerRemove(ctx, targetContainerID, container.RemoveOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove container %q: %w", containerName, err)
	}

	engineClient.logger.Info("container stopped and removed", "name", containerName)
	return nil
}

// findContainerByExactName resolves a container name to (id, image).
// the engine's "name" filter matches substrings, so "dropdeploy-site" would
// also match "dropdeploy-site-2"; the exact match is verified against the
// full name list, which the engine prefixes with "/".
// includeStopped controls whether exited containers are considered.
// a missing container returns empty values and a nil error: absence is a
// normal answer here, not a failure.
func (engineClient *Client) findContainerByExactName(
	ctx context.Context,
	containerName string,
	includeStopped bool,
) (containerID string, imageName string, err error) {
	listFilters := filters.NewArgs(filters.Arg("name", containerName))

	containers, err := engineClient.sdk.ContainerList(ctx, container.ListOptions{
		All:     includeStopped,
		Filters: listFilters,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to list containers to find %q: %w", containerName, err)
	}

	targetName := "/" + containerName
	for _, listedContainer := range containers {
		for _, name := range listedContainer.Names {
			if name == targetName {
				return listedContainer.ID, listedContainer.Image, nil
			}
		}
	}
	return "", "", nil
}
