package dockerstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/template"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/infra"
)

// =============================================================================
// Adapter
// =============================================================================

var (
	ErrNotProvisioned = errors.New("tenant infrastructure not provisioned")
	ErrNotDeployed    = errors.New("tenant container not deployed")
)

// runningPollInterval is how often the deploy wait loop inspects the
// container.
const runningPollInterval = 2 * time.Second

// Options configures the Docker adapter.
type Options struct {
	// BaseDomain is the platform domain tenant hostnames are derived under.
	BaseDomain string

	// EdgeNetwork is the shared reverse-proxy network the edge router
	// listens on. It exists before the provisioner starts; the adapter
	// attaches tenant containers to it but never creates or removes it.
	EdgeNetwork string

	// CertResolver names the ACME resolver the edge router uses for
	// tenant certificates.
	CertResolver string
}

// stagedTenant carries state between the provision and deploy phases of one
// run. The container environment lives here, never in artifacts or logs.
type stagedTenant struct {
	env       map[string]string
	requestID string
	plan      domain.PlanType
	hostname  string
	sslOn     bool
}

// Adapter implements infra.Adapter against a single Docker host. Tenant
// containers are routed through a shared edge proxy, so the adapter manages
// networks, volumes and containers but no host port allocation.
type Adapter struct {
	client   Client
	opts     Options
	platform domain.InfrastructureType
	logger   *slog.Logger

	mu     sync.Mutex
	staged map[string]stagedTenant
}

// New creates a Docker adapter. The platform distinguishes plain docker from
// docker_compose runs; both deploy through the compose template, the latter
// additionally logs the rendered document for operators.
func New(client Client, platform domain.InfrastructureType, opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.EdgeNetwork == "" {
		opts.EdgeNetwork = "dotmac_edge"
	}
	if opts.CertResolver == "" {
		opts.CertResolver = "letsencrypt"
	}
	if opts.BaseDomain == "" {
		opts.BaseDomain = "tenants.localhost"
	}
	return &Adapter{
		client:   client,
		opts:     opts,
		platform: platform,
		logger:   logger.With("component", "dockerstack"),
		staged:   make(map[string]stagedTenant),
	}
}

// Platform returns the infrastructure type this adapter serves.
func (a *Adapter) Platform() domain.InfrastructureType {
	return a.platform
}

// Ready reports whether the Docker daemon is reachable.
func (a *Adapter) Ready(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Close releases the Docker client connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// =============================================================================
// Phase: Provision Infrastructure
// =============================================================================

// ProvisionInfrastructure creates the tenant bridge network and data volume
// and stages the container environment for the deploy phase. The secret
// values travel only through the staged environment; they are never recorded
// in artifacts or logged.
func (a *Adapter) ProvisionInfrastructure(ctx context.Context, spec infra.ProvisionSpec) (*domain.DeploymentArtifacts, error) {
	ispID := spec.Request.ISPID
	artifacts := domain.NewDeploymentArtifacts(ispID)
	labels := IdentityLabels(ispID, spec.Request.RequestID, spec.Request.Config.PlanType)

	a.logger.Info("provisioning docker infrastructure",
		"isp_id", ispID,
		"request_id", spec.Request.RequestID,
	)

	networkName := domain.NetworkName(ispID)
	networkID, err := a.client.CreateNetwork(ctx, NetworkSpec{Name: networkName, Labels: labels})
	if err != nil {
		return artifacts, fmt.Errorf("create tenant network %s: %w", networkName, err)
	}
	artifacts.NetworkID = networkID
	artifacts.NetworkName = networkName
	artifacts.Record("network", networkName)

	volumeName := domain.VolumeName(ispID)
	if _, err := a.client.CreateVolume(ctx, VolumeSpec{Name: volumeName, Labels: labels}); err != nil {
		return artifacts, fmt.Errorf("create tenant volume %s: %w", volumeName, err)
	}
	artifacts.VolumeName = volumeName
	artifacts.Record("volume", volumeName)

	// Docker has no first-class secret objects outside swarm mode; the
	// bundle is staged in memory and injected as container environment at
	// deploy time.
	env := make(map[string]string, len(spec.Environment)+len(spec.Secrets))
	for k, v := range spec.Environment {
		env[k] = v
	}
	for k, v := range spec.Secrets {
		env[k] = v
	}

	cfg := spec.Request.Config
	a.stageTenant(ispID, stagedTenant{
		env:       env,
		requestID: spec.Request.RequestID,
		plan:      cfg.PlanType,
		hostname:  domain.TenantHostname(ispID, cfg.NetworkConfig, a.opts.BaseDomain),
		sslOn:     cfg.NetworkConfig.SSLEnabled,
	})

	a.logger.Info("docker infrastructure provisioned",
		"isp_id", ispID,
		"network", networkName,
		"volume", volumeName,
	)
	return artifacts, nil
}

// =============================================================================
// Phase: Deploy Container
// =============================================================================

// DeployContainer validates the rendered compose tree, creates and starts
// the tenant container and waits up to wait for it to reach the running
// state.
func (a *Adapter) DeployContainer(ctx context.Context, rendered map[string]any, artifacts *domain.DeploymentArtifacts, wait time.Duration) error {
	ispID := artifacts.ISPID

	staged, ok := a.takeTenant(ispID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotProvisioned, ispID)
	}

	project, err := LoadProject(ctx, ispID, rendered)
	if err != nil {
		return err
	}

	if a.platform == domain.InfraDockerCompose {
		if doc, derr := RenderYAML(rendered); derr == nil {
			a.logger.Debug("rendered compose document", "isp_id", ispID, "compose", string(doc))
		}
	}

	svc, err := AppService(project)
	if err != nil {
		return err
	}

	spec := containerSpecFromService(svc, staged.env)
	if spec.Name == "" {
		spec.Name = domain.ContainerName(ispID)
	}

	port := template.DefaultContainerPort
	if len(spec.Ports) > 0 {
		port = spec.Ports[0].ContainerPort
	}

	for k, v := range IdentityLabels(ispID, staged.requestID, staged.plan) {
		spec.Labels[k] = v
	}
	for k, v := range MonitoringLabels(port) {
		spec.Labels[k] = v
	}
	for k, v := range RouteLabels(RouteParams{
		ISPID:        ispID,
		Hostname:     staged.hostname,
		Port:         port,
		EnableTLS:    staged.sslOn,
		CertResolver: a.opts.CertResolver,
	}) {
		spec.Labels[k] = v
	}

	exists, err := a.client.ImageExists(ctx, spec.Image)
	if err != nil {
		return fmt.Errorf("check image %s: %w", spec.Image, err)
	}
	if !exists {
		a.logger.Info("pulling image", "isp_id", ispID, "image", spec.Image)
		if err := a.client.PullImage(ctx, spec.Image); err != nil {
			return fmt.Errorf("pull image %s: %w", spec.Image, err)
		}
	}

	containerID, err := a.client.CreateContainer(ctx, spec)
	if err != nil {
		return fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	artifacts.ContainerID = containerID
	artifacts.ContainerName = spec.Name
	artifacts.Record("container", spec.Name)

	if err := a.client.StartContainer(ctx, containerID); err != nil {
		return fmt.Errorf("start container %s: %w", spec.Name, err)
	}

	if err := a.waitRunning(ctx, containerID, wait); err != nil {
		return err
	}

	artifacts.InternalURL = fmt.Sprintf("http://%s:%d", spec.Name, port)
	a.logger.Info("container deployed",
		"isp_id", ispID,
		"container", spec.Name,
		"container_id", shortID(containerID),
	)
	return nil
}

// waitRunning polls the container state until it is running, the wait budget
// is spent, or the container dies.
func (a *Adapter) waitRunning(ctx context.Context, containerID string, wait time.Duration) error {
	ticker := time.NewTicker(runningPollInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(wait)

	for {
		info, err := a.client.InspectContainer(ctx, containerID)
		if err != nil {
			return fmt.Errorf("inspect container: %w", err)
		}
		switch info.State {
		case "running":
			return nil
		case "exited", "dead":
			return fmt.Errorf("container %s %s before becoming ready", info.Name, info.State)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for container %s to run", info.Name)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// =============================================================================
// Phase: Configure Networking
// =============================================================================

// ConfigureNetworking attaches the tenant container to the shared edge
// network so the reverse proxy can reach it, and records the external URL
// for the tenant hostname.
func (a *Adapter) ConfigureNetworking(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error {
	if artifacts.ContainerID == "" {
		return fmt.Errorf("%w: %s", ErrNotDeployed, artifacts.ISPID)
	}

	err := a.client.ConnectNetwork(ctx, a.opts.EdgeNetwork, artifacts.ContainerID)
	if err != nil && !errors.Is(err, ErrAlreadyConnected) {
		return fmt.Errorf("connect container to edge network %s: %w", a.opts.EdgeNetwork, err)
	}
	artifacts.Record("network_attachment", a.opts.EdgeNetwork)

	hostname := domain.TenantHostname(artifacts.ISPID, cfg.NetworkConfig, a.opts.BaseDomain)
	scheme := "http"
	if cfg.NetworkConfig.SSLEnabled {
		scheme = "https"
	}
	artifacts.ExternalURL = scheme + "://" + hostname

	a.logger.Info("networking configured",
		"isp_id", artifacts.ISPID,
		"hostname", hostname,
		"edge_network", a.opts.EdgeNetwork,
	)
	return nil
}

// =============================================================================
// Phase: Configure SSL
// =============================================================================

// ConfigureSSL verifies the TLS routing labels written at container creation
// and records the certificate resolver as the TLS material reference. The
// edge router obtains the actual certificate on first request.
func (a *Adapter) ConfigureSSL(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error {
	if artifacts.ContainerID == "" {
		return fmt.Errorf("%w: %s", ErrNotDeployed, artifacts.ISPID)
	}

	info, err := a.client.InspectContainer(ctx, artifacts.ContainerID)
	if err != nil {
		return fmt.Errorf("inspect container for tls labels: %w", err)
	}

	found := false
	for k, v := range info.Labels {
		if strings.HasSuffix(k, ".tls.certresolver") && v == a.opts.CertResolver {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("container %s carries no tls routing labels", info.Name)
	}

	artifacts.SSLCertSecret = a.opts.CertResolver
	a.logger.Info("ssl configured",
		"isp_id", artifacts.ISPID,
		"cert_resolver", a.opts.CertResolver,
	)
	return nil
}

// =============================================================================
// Phase: Configure Monitoring
// =============================================================================

// ConfigureMonitoring verifies the scrape-discovery labels and that the
// container is still running. There is nothing to create: the metrics stack
// discovers tenant containers through their labels.
func (a *Adapter) ConfigureMonitoring(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error {
	if artifacts.ContainerID == "" {
		return fmt.Errorf("%w: %s", ErrNotDeployed, artifacts.ISPID)
	}

	info, err := a.client.InspectContainer(ctx, artifacts.ContainerID)
	if err != nil {
		return fmt.Errorf("inspect container for monitoring: %w", err)
	}
	if info.State != "running" {
		return fmt.Errorf("container %s is %s, cannot register monitoring", info.Name, info.State)
	}
	if info.Labels[LabelScrape] != "true" {
		return fmt.Errorf("container %s carries no scrape labels", info.Name)
	}

	a.logger.Info("monitoring configured", "isp_id", artifacts.ISPID, "container", info.Name)
	return nil
}

// =============================================================================
// Rollback
// =============================================================================

// RollbackDeployment removes the recorded resources in reverse creation
// order: edge attachment, container, volume, network. Individual failures
// are logged and collected; teardown continues past them.
func (a *Adapter) RollbackDeployment(ctx context.Context, artifacts *domain.DeploymentArtifacts) error {
	ispID := artifacts.ISPID
	a.clearTenant(ispID)

	var failed []string
	for _, r := range artifacts.ResourcesForRollback() {
		var err error
		switch r.Kind {
		case "network_attachment":
			err = a.client.DisconnectNetwork(ctx, r.Name, artifacts.ContainerID, true)
			if errors.Is(err, ErrNetworkNotFound) || errors.Is(err, ErrContainerNotFound) {
				err = nil
			}
		case "container":
			err = a.removeContainer(ctx, artifacts, r.Name)
		case "volume":
			err = a.client.RemoveVolume(ctx, r.Name, true)
			if errors.Is(err, ErrVolumeNotFound) {
				err = nil
			}
		case "network":
			id := artifacts.NetworkID
			if id == "" {
				id = r.Name
			}
			err = a.client.RemoveNetwork(ctx, id)
			if errors.Is(err, ErrNetworkNotFound) {
				err = nil
			}
		default:
			a.logger.Warn("unknown resource kind in rollback", "isp_id", ispID, "kind", r.Kind, "name", r.Name)
			continue
		}

		if err != nil {
			a.logger.Error("rollback step failed",
				"isp_id", ispID,
				"kind", r.Kind,
				"name", r.Name,
				"error", err,
			)
			failed = append(failed, r.Kind+"/"+r.Name)
			continue
		}
		a.logger.Info("rolled back resource", "isp_id", ispID, "kind", r.Kind, "name", r.Name)
	}

	if len(failed) > 0 {
		return fmt.Errorf("rollback left %d resources behind: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func (a *Adapter) removeContainer(ctx context.Context, artifacts *domain.DeploymentArtifacts, name string) error {
	id := artifacts.ContainerID
	if id == "" {
		id = name
	}

	stopTimeout := 10 * time.Second
	if err := a.client.StopContainer(ctx, id, &stopTimeout); err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			return nil
		}
		// Not running is fine; force removal below handles the rest
		if !errors.Is(err, ErrContainerNotRunning) {
			a.logger.Warn("stop before removal failed", "container", name, "error", err)
		}
	}

	err := a.client.RemoveContainer(ctx, id, RemoveOptions{Force: true})
	if errors.Is(err, ErrContainerNotFound) {
		return nil
	}
	return err
}

// =============================================================================
// Staged Tenant State
// =============================================================================

func (a *Adapter) stageTenant(ispID string, s stagedTenant) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.staged[ispID] = s
}

// takeTenant consumes the staged state for a tenant; each provisioned
// environment is deployed at most once.
func (a *Adapter) takeTenant(ispID string) (stagedTenant, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.staged[ispID]
	if ok {
		delete(a.staged, ispID)
	}
	return s, ok
}

func (a *Adapter) clearTenant(ispID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.staged, ispID)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
