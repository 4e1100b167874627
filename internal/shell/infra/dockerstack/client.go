// Package dockerstack implements the infrastructure adapter for single-host
// Docker and docker-compose tenant deployments.
package dockerstack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// Container errors
	ErrContainerNotFound      = errors.New("container not found")
	ErrContainerAlreadyExists = errors.New("container already exists")
	ErrContainerNotRunning    = errors.New("container is not running")

	// Network errors
	ErrNetworkNotFound      = errors.New("network not found")
	ErrNetworkAlreadyExists = errors.New("network already exists")
	ErrNetworkInUse         = errors.New("network has active endpoints")
	ErrAlreadyConnected     = errors.New("container already connected to network")

	// Volume errors
	ErrVolumeNotFound = errors.New("volume not found")
	ErrVolumeInUse    = errors.New("volume is in use")

	// Image errors
	ErrImageNotFound   = errors.New("image not found")
	ErrImagePullFailed = errors.New("image pull failed")

	// Connection errors
	ErrPortAlreadyAllocated = errors.New("port is already allocated")
	ErrConnectionFailed     = errors.New("docker connection failed")
)

// EngineError wraps Docker engine errors with operation context.
type EngineError struct {
	Op      string // Operation that failed
	Entity  string // Entity type (container, network, volume, image)
	ID      string // Entity ID if applicable
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError.
func NewEngineError(op, entity, id, message string, err error) *EngineError {
	return &EngineError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Client Types
// =============================================================================

// PortBinding maps a container port to an optional host port.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 means no host publishing
	Protocol      string // tcp (default), udp
	HostIP        string
}

// VolumeMount attaches a named volume or bind path to a container.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ResourceLimits caps a container's CPU and memory.
type ResourceLimits struct {
	CPULimit    float64 // CPU cores, converted to NanoCPUs
	MemoryLimit int64   // bytes
}

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Name     string
	Image    string
	Env      map[string]string
	Labels   map[string]string
	Networks []string
	Volumes  []VolumeMount
	Ports    []PortBinding

	Resources     ResourceLimits
	RestartPolicy string // no, always, unless-stopped, on-failure
}

// ContainerInfo is the subset of container state the adapter inspects.
type ContainerInfo struct {
	ID     string
	Name   string
	Image  string
	State  string // created, running, exited, dead...
	Health string // empty when no healthcheck is configured
	Labels map[string]string
}

// NetworkSpec describes a network to create.
type NetworkSpec struct {
	Name   string
	Driver string // bridge by default
	Labels map[string]string
}

// VolumeSpec describes a volume to create.
type VolumeSpec struct {
	Name   string
	Driver string // local by default
	Labels map[string]string
}

// RemoveOptions controls container removal.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// Client is the narrowed Docker engine surface the adapter needs. All
// operations take a context; deadlines come from the caller.
type Client interface {
	Ping(ctx context.Context) error
	Close() error

	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)

	CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error)
	RemoveNetwork(ctx context.Context, networkID string) error
	ConnectNetwork(ctx context.Context, networkID, containerID string) error
	DisconnectNetwork(ctx context.Context, networkID, containerID string, force bool) error

	CreateVolume(ctx context.Context, spec VolumeSpec) (string, error)
	RemoveVolume(ctx context.Context, volumeName string, force bool) error

	ImageExists(ctx context.Context, imageName string) (bool, error)
	PullImage(ctx context.Context, imageName string) error
}

// =============================================================================
// Engine Client Implementation
// =============================================================================

// EngineClient implements Client using the Docker SDK.
type EngineClient struct {
	cli *client.Client
}

// NewEngineClient creates a Docker engine client. If host is empty, the
// default Docker host from the environment is used.
func NewEngineClient(host string) (*EngineClient, error) {
	var opts []client.Opt
	opts = append(opts, client.FromEnv)
	opts = append(opts, client.WithAPIVersionNegotiation())

	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewEngineError("NewEngineClient", "", "", "failed to create client", ErrConnectionFailed)
	}

	return &EngineClient{cli: cli}, nil
}

// Ping checks if the Docker daemon is reachable.
func (c *EngineClient) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return NewEngineError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (c *EngineClient) Close() error {
	return c.cli.Close()
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates a new container from the given spec.
func (c *EngineClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	config := &container.Config{
		Image:  spec.Image,
		Labels: spec.Labels,
	}

	for k, v := range spec.Env {
		config.Env = append(config.Env, fmt.Sprintf("%s=%s", k, v))
	}

	hostConfig := &container.HostConfig{}

	// Port bindings
	if len(spec.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}

		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}

			if p.HostPort == 0 {
				continue
			}
			portBindings[containerPort] = []nat.PortBinding{
				{
					HostIP:   p.HostIP,
					HostPort: fmt.Sprintf("%d", p.HostPort),
				},
			}
		}

		config.ExposedPorts = exposedPorts
		if len(portBindings) > 0 {
			hostConfig.PortBindings = portBindings
		}
	}

	// Volume mounts
	for _, v := range spec.Volumes {
		mountType := mount.TypeVolume
		if strings.HasPrefix(v.Source, "/") {
			mountType = mount.TypeBind
		}

		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mountType,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	// Resource limits
	if spec.Resources.CPULimit > 0 {
		hostConfig.NanoCPUs = int64(spec.Resources.CPULimit * 1e9)
	}
	if spec.Resources.MemoryLimit > 0 {
		hostConfig.Memory = spec.Resources.MemoryLimit
	}

	// Restart policy
	if spec.RestartPolicy != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(spec.RestartPolicy),
		}
	}

	// Network config
	var networkConfig *network.NetworkingConfig
	if len(spec.Networks) > 0 {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{},
		}
		for _, n := range spec.Networks {
			networkConfig.EndpointsConfig[n] = &network.EndpointSettings{}
		}
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		if strings.Contains(err.Error(), "Conflict") {
			return "", NewEngineError("CreateContainer", "container", spec.Name, "container already exists", ErrContainerAlreadyExists)
		}
		if strings.Contains(err.Error(), "port is already allocated") {
			return "", NewEngineError("CreateContainer", "container", spec.Name, err.Error(), ErrPortAlreadyAllocated)
		}
		return "", NewEngineError("CreateContainer", "container", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// StartContainer starts a created container.
func (c *EngineClient) StartContainer(ctx context.Context, containerID string) error {
	err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewEngineError("StartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewEngineError("StartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// StopContainer stops a running container.
func (c *EngineClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	stopOptions := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		stopOptions.Timeout = &seconds
	}

	err := c.cli.ContainerStop(ctx, containerID, stopOptions)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewEngineError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is not running") {
			return NewEngineError("StopContainer", "container", containerID, "container is not running", ErrContainerNotRunning)
		}
		return NewEngineError("StopContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// RemoveContainer removes a container.
func (c *EngineClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	removeOpts := container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	}

	err := c.cli.ContainerRemove(ctx, containerID, removeOpts)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewEngineError("RemoveContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewEngineError("RemoveContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// InspectContainer returns the state of a container.
func (c *EngineClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	resp, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewEngineError("InspectContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewEngineError("InspectContainer", "container", containerID, err.Error(), err)
	}

	health := ""
	if resp.State != nil && resp.State.Health != nil {
		health = resp.State.Health.Status
	}

	info := &ContainerInfo{
		ID:     resp.ID,
		Name:   strings.TrimPrefix(resp.Name, "/"),
		Health: health,
	}
	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
	}
	if resp.State != nil {
		info.State = resp.State.Status
	}

	return info, nil
}

// =============================================================================
// Network Operations
// =============================================================================

// CreateNetwork creates a new Docker network.
func (c *EngineClient) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	driver := spec.Driver
	if driver == "" {
		driver = "bridge"
	}

	resp, err := c.cli.NetworkCreate(ctx, spec.Name, network.CreateOptions{
		Driver: driver,
		Labels: spec.Labels,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return "", NewEngineError("CreateNetwork", "network", spec.Name, "network already exists", ErrNetworkAlreadyExists)
		}
		return "", NewEngineError("CreateNetwork", "network", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// RemoveNetwork removes a Docker network.
func (c *EngineClient) RemoveNetwork(ctx context.Context, networkID string) error {
	err := c.cli.NetworkRemove(ctx, networkID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewEngineError("RemoveNetwork", "network", networkID, "network not found", ErrNetworkNotFound)
		}
		if strings.Contains(err.Error(), "has active endpoints") {
			return NewEngineError("RemoveNetwork", "network", networkID, "network has active endpoints", ErrNetworkInUse)
		}
		return NewEngineError("RemoveNetwork", "network", networkID, err.Error(), err)
	}
	return nil
}

// ConnectNetwork connects a container to a network.
func (c *EngineClient) ConnectNetwork(ctx context.Context, networkID, containerID string) error {
	err := c.cli.NetworkConnect(ctx, networkID, containerID, nil)
	if err != nil {
		if strings.Contains(err.Error(), "already exists in network") {
			return NewEngineError("ConnectNetwork", "network", networkID, "container already connected", ErrAlreadyConnected)
		}
		if client.IsErrNotFound(err) {
			if strings.Contains(err.Error(), "network") {
				return NewEngineError("ConnectNetwork", "network", networkID, "network not found", ErrNetworkNotFound)
			}
			return NewEngineError("ConnectNetwork", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewEngineError("ConnectNetwork", "network", networkID, err.Error(), err)
	}
	return nil
}

// DisconnectNetwork disconnects a container from a network.
func (c *EngineClient) DisconnectNetwork(ctx context.Context, networkID, containerID string, force bool) error {
	err := c.cli.NetworkDisconnect(ctx, networkID, containerID, force)
	if err != nil {
		if client.IsErrNotFound(err) {
			if strings.Contains(err.Error(), "network") {
				return NewEngineError("DisconnectNetwork", "network", networkID, "network not found", ErrNetworkNotFound)
			}
			return NewEngineError("DisconnectNetwork", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewEngineError("DisconnectNetwork", "network", networkID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Volume Operations
// =============================================================================

// CreateVolume creates a new Docker volume.
func (c *EngineClient) CreateVolume(ctx context.Context, spec VolumeSpec) (string, error) {
	driver := spec.Driver
	if driver == "" {
		driver = "local"
	}

	resp, err := c.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   spec.Name,
		Driver: driver,
		Labels: spec.Labels,
	})
	if err != nil {
		return "", NewEngineError("CreateVolume", "volume", spec.Name, err.Error(), err)
	}

	return resp.Name, nil
}

// RemoveVolume removes a Docker volume.
func (c *EngineClient) RemoveVolume(ctx context.Context, volumeName string, force bool) error {
	err := c.cli.VolumeRemove(ctx, volumeName, force)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewEngineError("RemoveVolume", "volume", volumeName, "volume not found", ErrVolumeNotFound)
		}
		if strings.Contains(err.Error(), "in use") {
			return NewEngineError("RemoveVolume", "volume", volumeName, "volume is in use", ErrVolumeInUse)
		}
		return NewEngineError("RemoveVolume", "volume", volumeName, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Image Operations
// =============================================================================

// ImageExists checks if an image exists locally.
func (c *EngineClient) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, NewEngineError("ImageExists", "image", imageName, err.Error(), err)
	}

	return true, nil
}

// PullImage pulls an image from the registry.
func (c *EngineClient) PullImage(ctx context.Context, imageName string) error {
	reader, err := c.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not found") ||
			strings.Contains(errStr, "manifest unknown") ||
			strings.Contains(errStr, "repository does not exist") ||
			strings.Contains(errStr, "pull access denied") {
			return NewEngineError("PullImage", "image", imageName, "image not found", ErrImageNotFound)
		}
		return NewEngineError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}
	defer reader.Close()

	// Drain the reader to complete the pull
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return NewEngineError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}

	return nil
}
