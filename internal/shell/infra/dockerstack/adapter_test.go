package dockerstack

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/template"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/infra"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest(t *testing.T, ssl bool) *domain.ProvisioningRequest {
	t.Helper()
	cfg := domain.ISPConfig{
		TenantName: "acme-isp",
		PlanType:   domain.PlanStandard,
		NetworkConfig: domain.NetworkConfig{
			SSLEnabled: ssl,
		},
	}
	req, err := domain.NewProvisioningRequest("acme-isp", 500, cfg, domain.DefaultRequestOptions())
	require.NoError(t, err)
	return req
}

func testProvisionSpec(t *testing.T, ssl bool) infra.ProvisionSpec {
	t.Helper()
	req := testRequest(t, ssl)
	return infra.ProvisionSpec{
		Request:   req,
		Resources: domain.ResourceRequirements{CPUCores: 1.5, MemoryGB: 2.5, StorageGB: 11, MaxConnections: 75, MaxConcurrentRequests: 35},
		Environment: map[string]string{
			"APP_MODE": "production",
		},
		Secrets: map[string]string{
			"DATABASE_PASSWORD": "db-pass-value",
			"SESSION_SECRET":    "sess-value",
		},
	}
}

// renderTestTemplate renders the built-in compose template the way the
// orchestrator does.
func renderTestTemplate(t *testing.T, req *domain.ProvisioningRequest, resources domain.ResourceRequirements) map[string]any {
	t.Helper()
	mgr := template.NewManager()
	vars := template.PrepareVariables(domain.InfraDocker, template.VariableInput{
		ISPID:      req.ISPID,
		Config:     req.Config,
		Resources:  resources,
		BaseDomain: "tenants.example.com",
		Image:      "dotmac/isp-framework:1.4",
	})
	rendered, err := mgr.Render(req.ISPID, template.DefaultTemplateName, domain.InfraDocker, vars)
	require.NoError(t, err)
	return rendered
}

func newTestAdapter(engine Client) *Adapter {
	return New(engine, domain.InfraDocker, Options{
		BaseDomain:   "tenants.example.com",
		EdgeNetwork:  "dotmac_edge",
		CertResolver: "letsencrypt",
	}, setupTestLogger())
}

// provisionAndDeploy runs the first two phases against the mock engine.
func provisionAndDeploy(t *testing.T, a *Adapter, engine *mockEngine, ssl bool) *domain.DeploymentArtifacts {
	t.Helper()
	ctx := context.Background()
	spec := testProvisionSpec(t, ssl)

	artifacts, err := a.ProvisionInfrastructure(ctx, spec)
	require.NoError(t, err)

	rendered := renderTestTemplate(t, spec.Request, spec.Resources)
	require.NoError(t, a.DeployContainer(ctx, rendered, artifacts, 30*time.Second))
	return artifacts
}

// =============================================================================
// Mock Engine
// =============================================================================

type mockContainer struct {
	spec  ContainerSpec
	state string
}

type mockEngine struct {
	mu sync.Mutex

	networks   map[string]string // name -> id
	volumes    map[string]bool
	containers map[string]*mockContainer // id -> state
	images     map[string]bool
	connected  map[string][]string // network ref -> container ids

	nextID int

	pulled            []string
	removedOrder      []string // kind/name in removal order
	disconnected      []string
	startState        string // state after start, "running" by default
	createNetworkErr  error
	createVolumeErr   error
	createErr         error
	startErr          error
	connectErr        error
	removeVolumeErr   error
	removeNetworkErr  error
	pingErr           error
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		networks:   map[string]string{},
		volumes:    map[string]bool{},
		containers: map[string]*mockContainer{},
		images:     map[string]bool{"dotmac/isp-framework:1.4": true},
		connected:  map[string][]string{},
		startState: "running",
	}
}

func (m *mockEngine) Ping(ctx context.Context) error { return m.pingErr }
func (m *mockEngine) Close() error                   { return nil }

func (m *mockEngine) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.nextID++
	id := fmt.Sprintf("ctr-%04d-%s", m.nextID, spec.Name)
	m.containers[id] = &mockContainer{spec: spec, state: "created"}
	return id, nil
}

func (m *mockEngine) StartContainer(ctx context.Context, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	c, ok := m.containers[containerID]
	if !ok {
		return NewEngineError("StartContainer", "container", containerID, "container not found", ErrContainerNotFound)
	}
	c.state = m.startState
	return nil
}

func (m *mockEngine) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[containerID]
	if !ok {
		return NewEngineError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
	}
	c.state = "exited"
	return nil
}

func (m *mockEngine) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[containerID]
	if !ok {
		return NewEngineError("RemoveContainer", "container", containerID, "container not found", ErrContainerNotFound)
	}
	delete(m.containers, containerID)
	m.removedOrder = append(m.removedOrder, "container/"+c.spec.Name)
	return nil
}

func (m *mockEngine) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[containerID]
	if !ok {
		return nil, NewEngineError("InspectContainer", "container", containerID, "container not found", ErrContainerNotFound)
	}
	return &ContainerInfo{
		ID:     containerID,
		Name:   c.spec.Name,
		Image:  c.spec.Image,
		State:  c.state,
		Labels: c.spec.Labels,
	}, nil
}

func (m *mockEngine) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createNetworkErr != nil {
		return "", m.createNetworkErr
	}
	if _, exists := m.networks[spec.Name]; exists {
		return "", NewEngineError("CreateNetwork", "network", spec.Name, "network already exists", ErrNetworkAlreadyExists)
	}
	id := "net-" + spec.Name
	m.networks[spec.Name] = id
	return id, nil
}

func (m *mockEngine) RemoveNetwork(ctx context.Context, networkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeNetworkErr != nil {
		return m.removeNetworkErr
	}
	for name, id := range m.networks {
		if id == networkID || name == networkID {
			delete(m.networks, name)
			m.removedOrder = append(m.removedOrder, "network/"+name)
			return nil
		}
	}
	return NewEngineError("RemoveNetwork", "network", networkID, "network not found", ErrNetworkNotFound)
}

func (m *mockEngine) ConnectNetwork(ctx context.Context, networkID, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected[networkID] = append(m.connected[networkID], containerID)
	return nil
}

func (m *mockEngine) DisconnectNetwork(ctx context.Context, networkID, containerID string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = append(m.disconnected, networkID)
	m.removedOrder = append(m.removedOrder, "attachment/"+networkID)
	return nil
}

func (m *mockEngine) CreateVolume(ctx context.Context, spec VolumeSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createVolumeErr != nil {
		return "", m.createVolumeErr
	}
	m.volumes[spec.Name] = true
	return spec.Name, nil
}

func (m *mockEngine) RemoveVolume(ctx context.Context, volumeName string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeVolumeErr != nil {
		return m.removeVolumeErr
	}
	if !m.volumes[volumeName] {
		return NewEngineError("RemoveVolume", "volume", volumeName, "volume not found", ErrVolumeNotFound)
	}
	delete(m.volumes, volumeName)
	m.removedOrder = append(m.removedOrder, "volume/"+volumeName)
	return nil
}

func (m *mockEngine) ImageExists(ctx context.Context, imageName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.images[imageName], nil
}

func (m *mockEngine) PullImage(ctx context.Context, imageName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulled = append(m.pulled, imageName)
	m.images[imageName] = true
	return nil
}

func (m *mockEngine) containerByName(name string) *mockContainer {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.containers {
		if c.spec.Name == name {
			return c
		}
	}
	return nil
}

// =============================================================================
// Provision Tests
// =============================================================================

func TestProvisionInfrastructure_CreatesNetworkAndVolume(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)

	artifacts, err := a.ProvisionInfrastructure(context.Background(), testProvisionSpec(t, false))
	require.NoError(t, err)

	assert.Equal(t, "dotmac_acme_isp", artifacts.NetworkName)
	assert.Equal(t, "net-dotmac_acme_isp", artifacts.NetworkID)
	assert.Equal(t, "dotmac_acme_isp_data", artifacts.VolumeName)

	require.Len(t, artifacts.CreatedResources, 2)
	assert.Equal(t, "network", artifacts.CreatedResources[0].Kind)
	assert.Equal(t, "volume", artifacts.CreatedResources[1].Kind)

	assert.Contains(t, engine.networks, "dotmac_acme_isp")
	assert.True(t, engine.volumes["dotmac_acme_isp_data"])
}

func TestProvisionInfrastructure_NetworkCollision(t *testing.T) {
	engine := newMockEngine()
	engine.networks["dotmac_acme_isp"] = "net-existing"
	a := newTestAdapter(engine)

	artifacts, err := a.ProvisionInfrastructure(context.Background(), testProvisionSpec(t, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkAlreadyExists)

	// Nothing recorded: the first create failed
	assert.Empty(t, artifacts.CreatedResources)
}

func TestProvisionInfrastructure_PartialFailureKeepsLedger(t *testing.T) {
	engine := newMockEngine()
	engine.createVolumeErr = NewEngineError("CreateVolume", "volume", "dotmac_acme_isp_data", "disk full", nil)
	a := newTestAdapter(engine)

	artifacts, err := a.ProvisionInfrastructure(context.Background(), testProvisionSpec(t, false))
	require.Error(t, err)

	// The network made it and must be on the ledger for rollback
	require.Len(t, artifacts.CreatedResources, 1)
	assert.Equal(t, "network", artifacts.CreatedResources[0].Kind)
}

// =============================================================================
// Deploy Tests
// =============================================================================

func TestDeployContainer_FullFlow(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)

	artifacts := provisionAndDeploy(t, a, engine, false)

	assert.NotEmpty(t, artifacts.ContainerID)
	assert.Equal(t, "dotmac_acme_isp_app", artifacts.ContainerName)
	assert.Equal(t, "http://dotmac_acme_isp_app:8000", artifacts.InternalURL)

	require.Len(t, artifacts.CreatedResources, 3)
	assert.Equal(t, "container", artifacts.CreatedResources[2].Kind)

	c := engine.containerByName("dotmac_acme_isp_app")
	require.NotNil(t, c)
	assert.Equal(t, "running", c.state)
	assert.Equal(t, "dotmac/isp-framework:1.4", c.spec.Image)
	assert.Contains(t, c.spec.Networks, "dotmac_acme_isp")
	assert.Equal(t, "unless-stopped", c.spec.RestartPolicy)

	// Resource limits flow from the rendered compose deploy block
	assert.InDelta(t, 1.5, c.spec.Resources.CPULimit, 0.01)
	assert.Equal(t, int64(2560)*1024*1024, c.spec.Resources.MemoryLimit)
}

func TestDeployContainer_InjectsStagedEnvironment(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)

	provisionAndDeploy(t, a, engine, false)

	c := engine.containerByName("dotmac_acme_isp_app")
	require.NotNil(t, c)

	// Template environment
	assert.Equal(t, "acme-isp", c.spec.Env["DOTMAC_TENANT"])
	assert.Equal(t, "dotmac_acme_isp", c.spec.Env["DOTMAC_DATABASE"])
	// Config environment and secrets staged at provision time
	assert.Equal(t, "production", c.spec.Env["APP_MODE"])
	assert.Equal(t, "db-pass-value", c.spec.Env["DATABASE_PASSWORD"])
	assert.Equal(t, "sess-value", c.spec.Env["SESSION_SECRET"])
}

func TestDeployContainer_AppliesLabels(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)

	provisionAndDeploy(t, a, engine, true)

	c := engine.containerByName("dotmac_acme_isp_app")
	require.NotNil(t, c)

	assert.Equal(t, "acme-isp", c.spec.Labels[LabelTenant])
	assert.Equal(t, ManagedByValue, c.spec.Labels[LabelManagedBy])
	assert.Equal(t, "true", c.spec.Labels[LabelScrape])
	assert.Equal(t, "true", c.spec.Labels["traefik.enable"])
	assert.Equal(t, "Host(`acme-isp.tenants.example.com`)",
		c.spec.Labels["traefik.http.routers.dotmac-acme-isp.rule"])
	assert.Equal(t, "letsencrypt",
		c.spec.Labels["traefik.http.routers.dotmac-acme-isp-secure.tls.certresolver"])
}

func TestDeployContainer_WithoutProvision(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)

	req := testRequest(t, false)
	rendered := renderTestTemplate(t, req, domain.ResourceRequirements{CPUCores: 1, MemoryGB: 2, StorageGB: 10, MaxConnections: 50, MaxConcurrentRequests: 25})

	err := a.DeployContainer(context.Background(), rendered, domain.NewDeploymentArtifacts("acme-isp"), 30*time.Second)
	assert.ErrorIs(t, err, ErrNotProvisioned)
}

func TestDeployContainer_PullsMissingImage(t *testing.T) {
	engine := newMockEngine()
	delete(engine.images, "dotmac/isp-framework:1.4")
	a := newTestAdapter(engine)

	provisionAndDeploy(t, a, engine, false)

	assert.Equal(t, []string{"dotmac/isp-framework:1.4"}, engine.pulled)
}

func TestDeployContainer_ContainerDiesBeforeRunning(t *testing.T) {
	engine := newMockEngine()
	engine.startState = "exited"
	a := newTestAdapter(engine)

	ctx := context.Background()
	spec := testProvisionSpec(t, false)
	artifacts, err := a.ProvisionInfrastructure(ctx, spec)
	require.NoError(t, err)

	rendered := renderTestTemplate(t, spec.Request, spec.Resources)
	err = a.DeployContainer(ctx, rendered, artifacts, 30*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited")

	// The container is still on the ledger for rollback
	assert.Equal(t, "container", artifacts.CreatedResources[2].Kind)
}

// =============================================================================
// Networking / SSL / Monitoring Tests
// =============================================================================

func TestConfigureNetworking_AttachesEdgeAndSetsURL(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, false)

	err := a.ConfigureNetworking(context.Background(), testRequest(t, false).Config, artifacts)
	require.NoError(t, err)

	assert.Equal(t, "http://acme-isp.tenants.example.com", artifacts.ExternalURL)
	assert.Contains(t, engine.connected, "dotmac_edge")
	assert.Equal(t, "network_attachment", artifacts.CreatedResources[3].Kind)
}

func TestConfigureNetworking_HTTPSWhenSSLEnabled(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, true)

	err := a.ConfigureNetworking(context.Background(), testRequest(t, true).Config, artifacts)
	require.NoError(t, err)
	assert.Equal(t, "https://acme-isp.tenants.example.com", artifacts.ExternalURL)
}

func TestConfigureNetworking_AlreadyConnectedTolerated(t *testing.T) {
	engine := newMockEngine()
	engine.connectErr = NewEngineError("ConnectNetwork", "network", "dotmac_edge", "container already connected", ErrAlreadyConnected)
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, false)

	err := a.ConfigureNetworking(context.Background(), testRequest(t, false).Config, artifacts)
	assert.NoError(t, err)
}

func TestConfigureNetworking_RequiresDeployedContainer(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)

	err := a.ConfigureNetworking(context.Background(), testRequest(t, false).Config, domain.NewDeploymentArtifacts("acme-isp"))
	assert.ErrorIs(t, err, ErrNotDeployed)
}

func TestConfigureSSL_RecordsCertResolver(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, true)

	err := a.ConfigureSSL(context.Background(), testRequest(t, true).Config, artifacts)
	require.NoError(t, err)
	assert.Equal(t, "letsencrypt", artifacts.SSLCertSecret)
}

func TestConfigureSSL_FailsWithoutTLSLabels(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	// Provisioned without SSL: no TLS labels were written at create time
	artifacts := provisionAndDeploy(t, a, engine, false)

	err := a.ConfigureSSL(context.Background(), testRequest(t, true).Config, artifacts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls routing labels")
}

func TestConfigureMonitoring_VerifiesScrapeLabels(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, false)

	err := a.ConfigureMonitoring(context.Background(), testRequest(t, false).Config, artifacts)
	assert.NoError(t, err)
}

func TestConfigureMonitoring_FailsWhenContainerStopped(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, false)

	require.NoError(t, engine.StopContainer(context.Background(), artifacts.ContainerID, nil))

	err := a.ConfigureMonitoring(context.Background(), testRequest(t, false).Config, artifacts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited")
}

// =============================================================================
// Rollback Tests
// =============================================================================

func TestRollbackDeployment_ReverseOrder(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, false)
	require.NoError(t, a.ConfigureNetworking(context.Background(), testRequest(t, false).Config, artifacts))

	err := a.RollbackDeployment(context.Background(), artifacts)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"attachment/dotmac_edge",
		"container/dotmac_acme_isp_app",
		"volume/dotmac_acme_isp_data",
		"network/dotmac_acme_isp",
	}, engine.removedOrder)
	assert.Empty(t, engine.containers)
	assert.Empty(t, engine.networks)
	assert.Empty(t, engine.volumes)
}

func TestRollbackDeployment_ContinuesPastFailures(t *testing.T) {
	engine := newMockEngine()
	engine.removeVolumeErr = NewEngineError("RemoveVolume", "volume", "dotmac_acme_isp_data", "volume is in use", ErrVolumeInUse)
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, false)

	err := a.RollbackDeployment(context.Background(), artifacts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume/dotmac_acme_isp_data")

	// The network after the failed volume was still removed
	assert.Contains(t, engine.removedOrder, "network/dotmac_acme_isp")
}

func TestRollbackDeployment_MissingResourcesTolerated(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	artifacts := provisionAndDeploy(t, a, engine, false)

	// Simulate an operator cleaning up by hand before rollback runs
	engine.containers = map[string]*mockContainer{}
	engine.volumes = map[string]bool{}
	engine.networks = map[string]string{}

	err := a.RollbackDeployment(context.Background(), artifacts)
	assert.NoError(t, err)
}

func TestRollbackDeployment_EmptyLedger(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)

	err := a.RollbackDeployment(context.Background(), domain.NewDeploymentArtifacts("acme-isp"))
	assert.NoError(t, err)
}

// =============================================================================
// Readiness
// =============================================================================

func TestReady(t *testing.T) {
	engine := newMockEngine()
	a := newTestAdapter(engine)
	assert.NoError(t, a.Ready(context.Background()))

	engine.pingErr = NewEngineError("Ping", "", "", "daemon unreachable", ErrConnectionFailed)
	assert.ErrorIs(t, a.Ready(context.Background()), ErrConnectionFailed)
}
