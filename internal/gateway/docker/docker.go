// Package docker provisions sandboxes as local containers. It is meant
// for development machines without cloud credentials.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"sandplane/internal/gateway"
	"sandplane/internal/store"
)

const (
	sandboxLabel = "sandplane.sandbox"
	// Seconds a sandbox gets to exit before it is killed.
	stopTimeoutSeconds = 10
)

// Config holds configuration for the Docker gateway.
type Config struct {
	Image   string
	Command []string
}

// API is the part of the Docker client the gateway calls.
type API interface {
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// Gateway implements gateway.Gateway using the Docker SDK.
type Gateway struct {
	client API
	config Config
	logger *slog.Logger
}

// New creates a Docker gateway from the standard environment (DOCKER_HOST, etc.).
func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return NewWithClient(cli, cfg, logger), nil
}

// NewWithClient creates a gateway on top of an existing client.
func NewWithClient(cli API, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.Image == "" {
		cfg.Image = "alpine:3.20"
	}
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"sleep", "infinity"}
	}
	return &Gateway{client: cli, config: cfg, logger: logger}
}

func containerName(name string, now time.Time) string {
	return fmt.Sprintf("sandplane-%s-%s", strings.ToLower(name), strconv.FormatInt(now.UnixNano(), 36))
}

func sandboxLabels(name string) map[string]string {
	return map[string]string{
		sandboxLabel:  name,
		"environment": "sandbox",
	}
}

// Create implements gateway.Gateway.
func (g *Gateway) Create(ctx context.Context, name string) (gateway.Handle, store.SandboxStatus, error) {
	if err := gateway.ValidateName(name); err != nil {
		return "", "", err
	}

	// Pull only when the image is not present locally.
	if _, err := g.client.ImageInspect(ctx, g.config.Image); err != nil {
		reader, err := g.client.ImagePull(ctx, g.config.Image, image.PullOptions{})
		if err != nil {
			return "", "", gateway.ProvisioningError(name, fmt.Errorf("pull image %s: %w", g.config.Image, err))
		}
		defer reader.Close()
		_, _ = io.Copy(io.Discard, reader)
	}

	resp, err := g.client.ContainerCreate(ctx, &container.Config{
		Image:  g.config.Image,
		Cmd:    g.config.Command,
		Env:    []string{"SANDBOX_NAME=" + name},
		Labels: sandboxLabels(name),
		Tty:    true,
	}, nil, nil, nil, containerName(name, time.Now()))
	if err != nil {
		return "", "", gateway.ProvisioningError(name, fmt.Errorf("create container: %w", err))
	}

	if err := g.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = g.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		return "", "", gateway.ProvisioningError(name, fmt.Errorf("start container: %w", err))
	}

	g.logger.Info("started sandbox container", "sandbox", name, "container_id", resp.ID)
	return gateway.Handle(resp.ID), store.SandboxStatusActive, nil
}

// Destroy implements gateway.Gateway. A container that is already gone counts as destroyed.
func (g *Gateway) Destroy(ctx context.Context, handle gateway.Handle) (store.SandboxStatus, error) {
	timeout := stopTimeoutSeconds
	if err := g.client.ContainerStop(ctx, string(handle), container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		g.logger.Warn("graceful stop failed, forcing removal", "container_id", string(handle), "error", err)
	}

	err := g.client.ContainerRemove(ctx, string(handle), container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return "", gateway.DeprovisionError(handle, err)
	}
	g.logger.Info("removed sandbox container", "container_id", string(handle))
	return store.SandboxStatusTerminated, nil
}

// Close releases the underlying Docker client.
func (g *Gateway) Close() error {
	return g.client.Close()
}
