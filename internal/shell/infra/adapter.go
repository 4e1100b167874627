// Package infra defines the adapter contract between the provisioning
// orchestrator and a container platform. One adapter instance is constructed
// at startup for the configured platform (Kubernetes or Docker) and used for
// every run; the orchestrator never switches platforms mid-run.
package infra

import (
	"context"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Provision Spec
// =============================================================================

// ProvisionSpec carries the inputs of the infrastructure phase. The secret
// bundle is already completed (missing values generated) by the orchestrator;
// adapters place the values into platform secret objects or the container
// environment and must never log them.
type ProvisionSpec struct {
	Request   *domain.ProvisioningRequest
	Resources domain.ResourceRequirements

	// Environment is the non-secret container environment derived from the
	// tenant config.
	Environment map[string]string

	// Secrets is the completed tenant secret bundle. Values must never be
	// logged or embedded in rendered templates.
	Secrets map[string]string
}

// =============================================================================
// Adapter Interface
// =============================================================================

// Adapter provisions, deploys, exposes and tears down one tenant stack on a
// specific container platform. Implementations record every object they
// create in the artifact ledger so rollback can walk it in reverse.
//
// All methods honor context cancellation. Rollback receives its own context
// from the orchestrator, independent of the (possibly already expired)
// provisioning context.
type Adapter interface {
	// Platform returns the infrastructure type this adapter serves.
	Platform() domain.InfrastructureType

	// Ready reports whether the backing platform is reachable. Called once
	// per run before any resource is created.
	Ready(ctx context.Context) error

	// ProvisionInfrastructure creates the tenant isolation boundary
	// (namespace or network), persistent storage, and the secret and
	// configuration objects holding the container environment. Partially
	// created resources are recorded in the returned artifacts even on
	// error so rollback can find them.
	ProvisionInfrastructure(ctx context.Context, spec ProvisionSpec) (*domain.DeploymentArtifacts, error)

	// DeployContainer submits the rendered deployment template to the
	// platform and waits up to wait for the workload to reach a running
	// state. On success the container identifiers and internal URL are
	// recorded in the artifacts.
	DeployContainer(ctx context.Context, rendered map[string]any, artifacts *domain.DeploymentArtifacts, wait time.Duration) error

	// ConfigureNetworking wires the deployed workload into the platform's
	// edge routing and records the externally reachable URL.
	ConfigureNetworking(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error

	// ConfigureSSL provisions TLS for the tenant hostname. Only called when
	// the tenant config enables SSL; the certificate reference is recorded
	// in the artifacts.
	ConfigureSSL(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error

	// ConfigureMonitoring registers the workload with the monitoring stack.
	// A failure here is reported to the caller, which treats it as a
	// degraded deployment rather than a fatal one.
	ConfigureMonitoring(ctx context.Context, cfg domain.ISPConfig, artifacts *domain.DeploymentArtifacts) error

	// RollbackDeployment removes the recorded resources in reverse creation
	// order. Individual failures are collected, not raised immediately, so
	// teardown gets as far as it can; the returned error summarizes any
	// resources left behind.
	RollbackDeployment(ctx context.Context, artifacts *domain.DeploymentArtifacts) error

	// Close releases the platform connection.
	Close() error
}
