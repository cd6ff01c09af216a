// Package docker wraps the Docker SDK client and provides the high-level
// operations the deployment pipeline needs: building images from a context
// directory, replacing and running per-project containers, and the
// inspect/exec/logs primitives the command gateway uses.
// all Docker SDK calls are isolated here so no other package imports the SDK
// directly. if the engine interaction strategy changes, only this package changes.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dockerSDKclient "github.com/docker/docker/client"
)

// Client wraps the Docker SDK client with a logger and the process-wide
// resource caps applied to every deployed container.
// it is safe to share a single Client across goroutines; the SDK handles
// concurrency internally.
type Client struct {
	sdk    *dockerSDKclient.Client
	logger *slog.Logger

	// namePrefix is the container-name and image-namespace prefix,
	// "dropdeploy" by default: containers are "<prefix>-<slug>", images
	// "<prefix>/<slug>:latest".
	namePrefix string

	// memoryLimitBytes and cpuShares are the per-container resource caps,
	// applied uniformly at create time.
	memoryLimitBytes int64
	cpuShares        int64
}

// Options groups the construction parameters for Client. grouping them in a
// struct keeps NewClient's signature stable as more knobs are added.
type Options struct {
	// SocketPath is the engine control socket. empty means the SDK default
	// ($DOCKER_HOST, then the standard unix socket).
	SocketPath string

	// NamePrefix is the container/image namespace prefix.
	NamePrefix string

	// MemoryLimitBytes is the hard memory cap per deployed container.
	MemoryLimitBytes int64

	// CPUShares is the relative CPU weight per deployed container.
	CPUShares int64
}

// NewClient connects to the Docker daemon and performs a ping to verify the
// connection is live before returning. an error here should cause main to
// exit immediately: if the daemon is unreachable, the platform cannot function.
func NewClient(logger *slog.Logger, options Options) (*Client, error) {
	// FromEnv reads $DOCKER_HOST and friends; WithAPIVersionNegotiation
	// picks the highest API version both sides support, without which a
	// version mismatch between SDK and daemon fails every call.
	sdkOptions := []dockerSDKclient.Opt{
		dockerSDKclient.FromEnv,
		dockerSDKclient.WithAPIVersionNegotiation(),
	}
	if options.SocketPath != "" {
		// an explicitly configured socket wins over the environment.
		sdkOptions = append(sdkOptions, dockerSDKclient.WithHost("unix://"+options.SocketPath))
	}

	sdkClient, err := dockerSDKclient.NewClientWithOpts(sdkOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker sdk client: %w", err)
	}

	engineClient := &Client{
		sdk:              sdkClient,
		logger:           logger,
		namePrefix:       options.NamePrefix,
		memoryLimitBytes: options.MemoryLimitBytes,
		cpuShares:        options.CPUShares,
	}

	// ping the daemon immediately to fail fast if Docker is not running.
	// 5 seconds is generous for a local socket response.
	pingContext, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()

	if err := engineClient.ping(pingContext); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	logger.Info("docker client connected", "host", sdkClient.DaemonHost())
	return engineClient, nil
}

// ping sends a lightweight ping request to the Docker daemon.
// used at startup to verify connectivity before accepting any work.
func (engineClient *Client) ping(ctx context.Context) error {
	_, err := engineClient.sdk.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying Docker SDK client connection.
// deferred in main immediately after NewClient returns successfully.
func (engineClient *Client) Close() error {
	return engineClient.sdk.Close()
}
