// Package provision drives the six-phase tenant provisioning pipeline:
// validation, resource calculation, infrastructure, deployment,
// configuration and health validation, with rollback of recorded resources
// on failure. One Provisioner instance serves one platform adapter chosen
// at startup.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/crypto"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	corehealth "github.com/michaelayoade/dotmac-framework-sub020/internal/core/health"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/resources"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/template"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/validation"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/infra"
)

// =============================================================================
// Collaborator Contracts
// =============================================================================

// ErrNilRequest rejects a provisioning call without a request.
var ErrNilRequest = errors.New("provisioning request is required")

// HealthWaiter is the slice of the health validator the orchestrator needs.
// Satisfied by *health.Validator.
type HealthWaiter interface {
	WaitForHealthy(ctx context.Context, ispID, baseURL string, maxWait, interval time.Duration, extra ...corehealth.Check) (domain.ContainerHealth, error)
}

// MetricsRecorder receives provisioning lifecycle events. The metrics
// package implements it with prometheus collectors; NopMetrics is used when
// metrics are not wired.
type MetricsRecorder interface {
	OperationStarted(infraType domain.InfrastructureType)
	OperationFinished(infraType domain.InfrastructureType, status domain.ProvisioningStatus, stage domain.ProvisioningStage, duration time.Duration)
	RollbackRecorded(infraType domain.InfrastructureType, completed bool)
}

// NopMetrics discards every recording.
type NopMetrics struct{}

func (NopMetrics) OperationStarted(domain.InfrastructureType) {}
func (NopMetrics) OperationFinished(domain.InfrastructureType, domain.ProvisioningStatus, domain.ProvisioningStage, time.Duration) {
}
func (NopMetrics) RollbackRecorded(domain.InfrastructureType, bool) {}

// =============================================================================
// Provisioner
// =============================================================================

// Config configures the provisioning orchestrator.
type Config struct {
	// BaseDomain is the platform domain tenant hostnames are derived under.
	BaseDomain string

	// Image is the tenant application image deployed for every stack.
	Image string

	// TemplateName selects the deployment template.
	// Default: the built-in isp-framework template.
	TemplateName string

	// HealthWait is the per-attempt health wait budget. Default: 90 seconds.
	HealthWait time.Duration

	// HealthInterval is the pause between health polls. Default: 5 seconds.
	HealthInterval time.Duration

	// RollbackTimeout bounds the teardown of a failed run, independent of
	// the (possibly exhausted) provisioning budget. Default: 120 seconds.
	RollbackTimeout time.Duration

	// EnableMonitoring controls whether deployed stacks are registered with
	// the monitoring stack. Off means the result reports monitoring=skipped.
	EnableMonitoring bool
}

// DefaultConfig returns the orchestrator defaults. Monitoring is on.
func DefaultConfig() Config {
	return Config{
		TemplateName:     template.DefaultTemplateName,
		HealthWait:       90 * time.Second,
		HealthInterval:   5 * time.Second,
		RollbackTimeout:  domain.DefaultRollbackTimeout,
		EnableMonitoring: true,
	}
}

// Provisioner runs provisioning operations against one platform adapter.
// All collaborators are injected at construction; the zero value is not
// usable.
type Provisioner struct {
	adapter   infra.Adapter
	templates *template.Manager
	health    HealthWaiter
	secrets   *crypto.SecretsManager
	metrics   MetricsRecorder
	registry  *Registry
	config    Config
	logger    *slog.Logger

	// backoff paces health wait retries; stubbed in tests.
	backoff func(attempt int) time.Duration
}

// New creates a provisioning orchestrator. The adapter and health waiter
// are required; a nil secrets manager disables the encrypted secret
// snapshot, a nil metrics recorder discards metrics.
func New(
	adapter infra.Adapter,
	templates *template.Manager,
	healthValidator HealthWaiter,
	secrets *crypto.SecretsManager,
	metrics MetricsRecorder,
	config Config,
	logger *slog.Logger,
) *Provisioner {
	if templates == nil {
		templates = template.NewManager()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if config.TemplateName == "" {
		config.TemplateName = template.DefaultTemplateName
	}
	if config.HealthWait == 0 {
		config.HealthWait = 90 * time.Second
	}
	if config.HealthInterval == 0 {
		config.HealthInterval = 5 * time.Second
	}
	if config.RollbackTimeout == 0 {
		config.RollbackTimeout = domain.DefaultRollbackTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Provisioner{
		adapter:   adapter,
		templates: templates,
		health:    healthValidator,
		secrets:   secrets,
		metrics:   metrics,
		registry:  NewRegistry(),
		config:    config,
		logger:    logger.With("component", "provisioner"),
		backoff:   corehealth.Backoff,
	}
}

// Templates exposes the template registry for custom template registration.
func (p *Provisioner) Templates() *template.Manager {
	return p.templates
}

// Status returns the latest published snapshot of an in-flight run.
func (p *Provisioner) Status(ispID string) (*domain.ProvisioningResult, bool) {
	return p.registry.Get(ispID)
}

// ActiveOperations returns a snapshot of every in-flight run, oldest first.
func (p *Provisioner) ActiveOperations() []*domain.ProvisioningResult {
	return p.registry.Active()
}

// =============================================================================
// Entry Point
// =============================================================================

// ProvisionISPContainer runs the full pipeline for one request and always
// returns a result: expected failures are reported through
// result.Success=false, never as an error. The error return is reserved for
// pre-orchestration rejections - a nil request or a tenant that already has
// a run in flight.
func (p *Provisioner) ProvisionISPContainer(ctx context.Context, req *domain.ProvisioningRequest) (*domain.ProvisioningResult, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	result := domain.NewProvisioningResult(req)
	if err := p.registry.Begin(req.ISPID, result.Snapshot()); err != nil {
		return nil, err
	}
	defer p.registry.Finish(req.ISPID)

	logger := p.logger.With("isp_id", req.ISPID, "request_id", req.RequestID)
	logger.Info("provisioning started",
		"customer_count", req.CustomerCount,
		"plan", req.Config.PlanType,
		"infrastructure", req.InfrastructureType,
		"timeout", req.Timeout,
	)
	p.metrics.OperationStarted(req.InfrastructureType)

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	if err := p.run(runCtx, req, result, logger); err != nil {
		p.fail(req, result, err, logger)
	} else {
		p.transition(result, domain.StatusReady, logger)
		result.Complete(true)
		result.AppendLog("provisioning complete in %s, endpoint %s",
			result.Duration.Round(time.Millisecond), result.EndpointURL())
		p.publish(result)
		logger.Info("provisioning complete",
			"duration", result.Duration,
			"endpoint", result.EndpointURL(),
		)
	}

	p.metrics.OperationFinished(req.InfrastructureType, result.Status, result.ErrorStage, result.Duration)
	return result, nil
}

// run executes the six phases in order. Later phases depend on identifiers
// produced by earlier ones, so the first failure stops the pipeline.
func (p *Provisioner) run(ctx context.Context, req *domain.ProvisioningRequest, result *domain.ProvisioningResult, logger *slog.Logger) error {
	if err := p.stepValidate(ctx, req, result); err != nil {
		return err
	}
	if err := p.stepCalculateResources(req, result); err != nil {
		return err
	}
	if err := p.stepProvisionInfrastructure(ctx, req, result, logger); err != nil {
		return err
	}
	if err := p.stepDeploy(ctx, req, result, logger); err != nil {
		return err
	}
	if err := p.stepConfigure(ctx, req, result, logger); err != nil {
		return err
	}
	return p.stepValidateHealth(ctx, req, result, logger)
}

// =============================================================================
// Phases
// =============================================================================

// stepValidate re-checks the request bounds and probes platform readiness.
// Runs before any resource exists, so a failure here never needs rollback.
func (p *Provisioner) stepValidate(ctx context.Context, req *domain.ProvisioningRequest, result *domain.ProvisioningResult) error {
	result.AppendLog("validation: checking request parameters")

	if errs := validation.ValidateRequest(req); len(errs) > 0 {
		return domain.NewValidationError(req.ISPID, "request parameters out of contract", validation.Violations(errs)...)
	}
	if served := p.adapter.Platform(); req.InfrastructureType != served {
		return domain.NewValidationError(req.ISPID,
			fmt.Sprintf("infrastructure %q is not served by this provisioner (serving %q)", req.InfrastructureType, served))
	}
	if err := p.adapter.Ready(ctx); err != nil {
		return domain.NewValidationError(req.ISPID, fmt.Sprintf("infrastructure not ready: %v", err))
	}

	result.AppendLog("validation: passed")
	p.publish(result)
	return nil
}

// stepCalculateResources computes the allocation, or validates the
// caller-supplied one against the platform ceilings.
func (p *Provisioner) stepCalculateResources(req *domain.ProvisioningRequest, result *domain.ProvisioningResult) error {
	result.AppendLog("resource_calculation: sizing for %d customers on %s plan", req.CustomerCount, req.Config.PlanType)

	var allocated domain.ResourceRequirements
	if req.CustomResources != nil {
		allocated = *req.CustomResources
		result.AppendLog("resource_calculation: using caller-supplied resources")
	} else {
		flags := domain.DefaultFeatureFlags(req.Config.PlanType)
		if req.Config.FeatureFlags != nil {
			flags = *req.Config.FeatureFlags
		}
		allocated = resources.Calculate(req.CustomerCount, req.Config.PlanType, flags)
	}

	if err := resources.ValidateLimits(req.ISPID, allocated); err != nil {
		return err
	}

	result.AllocatedResources = &allocated
	result.AppendLog("resource_calculation: allocated %s", resources.Describe(allocated))
	p.publish(result)
	return nil
}

// stepProvisionInfrastructure creates the tenant isolation boundary,
// storage and secret objects. Partial artifacts are kept on the result even
// when the phase fails so rollback can find them.
func (p *Provisioner) stepProvisionInfrastructure(ctx context.Context, req *domain.ProvisioningRequest, result *domain.ProvisioningResult, logger *slog.Logger) error {
	p.transition(result, domain.StatusProvisioning, logger)
	result.AppendLog("infrastructure: provisioning %s resources", req.InfrastructureType)
	p.publish(result)

	secretBundle, err := crypto.CompleteTenantSecrets(req.Config.Secrets)
	if err != nil {
		return domain.NewInfrastructureError(req.ISPID, "tenant secret bundle", err)
	}
	p.snapshotSecrets(result, secretBundle, logger)

	artifacts, provErr := p.adapter.ProvisionInfrastructure(ctx, infra.ProvisionSpec{
		Request:     req,
		Resources:   *result.AllocatedResources,
		Environment: req.Config.EnvironmentVariables,
		Secrets:     secretBundle,
	})
	result.Artifacts = artifacts
	if provErr != nil {
		return domain.NewInfrastructureError(req.ISPID, "tenant infrastructure", provErr)
	}

	result.AppendLog("infrastructure: created %d resources", len(artifacts.CreatedResources))
	p.publish(result)
	return nil
}

// stepDeploy renders the deployment template and submits it to the
// platform. The workload start wait is drawn from the request's overall
// budget; only the run context enforces the hard limit.
func (p *Provisioner) stepDeploy(ctx context.Context, req *domain.ProvisioningRequest, result *domain.ProvisioningResult, logger *slog.Logger) error {
	p.transition(result, domain.StatusDeploying, logger)

	vars := template.PrepareVariables(req.InfrastructureType, template.VariableInput{
		ISPID:      req.ISPID,
		Config:     req.Config,
		Resources:  *result.AllocatedResources,
		BaseDomain: p.config.BaseDomain,
		Image:      p.config.Image,
	})
	rendered, err := p.templates.Render(req.ISPID, p.config.TemplateName, req.InfrastructureType, vars)
	if err != nil {
		return err
	}

	deployWait := req.Timeout / 2
	result.AppendLog("deployment: rendered template %s, waiting up to %s for workload start", p.config.TemplateName, deployWait)
	p.publish(result)

	if err := p.adapter.DeployContainer(ctx, rendered, result.Artifacts, deployWait); err != nil {
		return domain.NewDeploymentError(req.ISPID, "workload deployment failed", err)
	}

	result.AppendLog("deployment: workload running at %s", result.Artifacts.InternalURL)
	p.publish(result)
	return nil
}

// stepConfigure wires networking, SSL and monitoring. SSL is skipped for
// non-TLS tenants; a monitoring failure degrades the result instead of
// failing the run.
func (p *Provisioner) stepConfigure(ctx context.Context, req *domain.ProvisioningRequest, result *domain.ProvisioningResult, logger *slog.Logger) error {
	p.transition(result, domain.StatusConfiguring, logger)
	result.AppendLog("configuration: wiring tenant networking")
	p.publish(result)

	if err := p.adapter.ConfigureNetworking(ctx, req.Config, result.Artifacts); err != nil {
		return domain.NewConfigurationError(req.ISPID, "networking configuration failed", err)
	}
	result.AppendLog("configuration: stack reachable at %s", result.Artifacts.ExternalURL)

	if req.Config.NetworkConfig.SSLEnabled {
		if err := p.adapter.ConfigureSSL(ctx, req.Config, result.Artifacts); err != nil {
			return domain.NewConfigurationError(req.ISPID, "ssl configuration failed", err)
		}
		result.AppendLog("configuration: ssl certificate %s", result.Artifacts.SSLCertSecret)
	} else {
		result.AppendLog("configuration: ssl_mode=disabled, skipping certificate setup")
	}

	switch {
	case !p.config.EnableMonitoring:
		result.Monitoring = domain.MonitoringSkipped
		result.AppendLog("configuration: monitoring registration skipped")
	default:
		if err := p.adapter.ConfigureMonitoring(ctx, req.Config, result.Artifacts); err != nil {
			result.Monitoring = domain.MonitoringDegraded
			result.AppendLog("configuration: monitoring registration failed, stack runs unwatched: %v", err)
			logger.Warn("monitoring configuration failed", "error", err)
		} else {
			result.Monitoring = domain.MonitoringOK
			result.AppendLog("configuration: monitoring registered")
		}
	}

	p.publish(result)
	return nil
}

// stepValidateHealth waits for the stack to come up, retrying the whole
// wait up to MaxWaitAttempts times with exponential backoff between
// attempts. The last snapshot is kept on the result either way.
func (p *Provisioner) stepValidateHealth(ctx context.Context, req *domain.ProvisioningRequest, result *domain.ProvisioningResult, logger *slog.Logger) error {
	p.transition(result, domain.StatusValidating, logger)

	baseURL := result.Artifacts.ExternalURL
	if baseURL == "" {
		baseURL = result.Artifacts.InternalURL
	}

	var snapshot domain.ContainerHealth
	var healthErr error

	for attempt := 1; attempt <= corehealth.MaxWaitAttempts; attempt++ {
		result.AppendLog("health_validation: attempt %d/%d against %s", attempt, corehealth.MaxWaitAttempts, baseURL)
		p.publish(result)

		snapshot, healthErr = p.health.WaitForHealthy(ctx, req.ISPID, baseURL, p.config.HealthWait, p.config.HealthInterval)
		if healthErr == nil {
			break
		}

		logger.Warn("health wait attempt failed",
			"attempt", attempt,
			"failed_checks", snapshot.FailedChecks,
			"error", healthErr,
		)
		if attempt == corehealth.MaxWaitAttempts {
			break
		}

		backoff := p.backoff(attempt)
		result.AppendLog("health_validation: retrying in %s", backoff)
		select {
		case <-ctx.Done():
			result.Health = &snapshot
			return domain.NewHealthCheckError(req.ISPID,
				fmt.Sprintf("health validation interrupted: %v", ctx.Err()), snapshot.FailedChecks)
		case <-time.After(backoff):
		}
	}

	result.Health = &snapshot
	if healthErr != nil {
		return healthErr
	}

	result.AppendLog("health_validation: stack healthy")
	p.publish(result)
	return nil
}

// =============================================================================
// Failure Path
// =============================================================================

// fail records the failure on the result and, when enabled and anything was
// created, rolls the run back with a fresh context independent of the
// exhausted provisioning budget. The original error is never masked by a
// rollback error.
func (p *Provisioner) fail(req *domain.ProvisioningRequest, result *domain.ProvisioningResult, err error, logger *slog.Logger) {
	stage := domain.StageDeployment
	var perr *domain.ProvisionError
	if errors.As(err, &perr) {
		stage = perr.Stage
	}

	if markErr := result.MarkFailed(stage, err.Error()); markErr != nil {
		logger.Error("failed to mark result failed", "error", markErr)
	}
	result.AppendLog("%s: failed: %v", stage, err)
	p.publish(result)
	logger.Error("provisioning failed", "stage", stage, "error", err)

	switch {
	case !req.EnableRollback:
		result.AppendLog("rollback: disabled, resources left in place")
	case result.Artifacts == nil || len(result.Artifacts.CreatedResources) == 0:
		result.AppendLog("rollback: no resources created, nothing to undo")
	default:
		p.rollback(req, result, logger)
	}

	if perr != nil {
		perr.WithRollback(result.RollbackCompleted)
	}
	result.Complete(false)
	p.publish(result)
}

// rollback tears down the recorded resources in reverse order under the
// configured rollback budget.
func (p *Provisioner) rollback(req *domain.ProvisioningRequest, result *domain.ProvisioningResult, logger *slog.Logger) {
	p.transition(result, domain.StatusRollingBack, logger)
	result.AppendLog("rollback: removing %d resources", len(result.Artifacts.CreatedResources))
	p.publish(result)

	// The run context may already be expired; teardown gets its own budget.
	ctx, cancel := context.WithTimeout(context.Background(), p.config.RollbackTimeout)
	defer cancel()

	if rbErr := p.adapter.RollbackDeployment(ctx, result.Artifacts); rbErr != nil {
		result.RollbackCompleted = false
		result.AppendLog("rollback: partial: %v", rbErr)
		logger.Error("rollback incomplete", "error", domain.NewRollbackError(req.ISPID, nil, rbErr))
	} else {
		result.RollbackCompleted = true
		result.AppendLog("rollback: complete")
	}

	p.transition(result, domain.StatusRolledBack, logger)
	p.metrics.RollbackRecorded(req.InfrastructureType, result.RollbackCompleted)
	p.publish(result)
}

// =============================================================================
// Helpers
// =============================================================================

// transition applies a status change; an invalid transition is a
// programming error and is logged, not propagated.
func (p *Provisioner) transition(result *domain.ProvisioningResult, to domain.ProvisioningStatus, logger *slog.Logger) {
	if err := result.Transition(to); err != nil {
		logger.Error("status transition rejected", "to", to, "error", err)
	}
}

// publish stores a point-in-time copy of the result for status lookups.
func (p *Provisioner) publish(result *domain.ProvisioningResult) {
	p.registry.Publish(result.ISPID, result.Snapshot())
}

// snapshotSecrets encrypts the completed secret bundle for operator
// recovery. Best effort: a failure is logged (without values) and the run
// continues.
func (p *Provisioner) snapshotSecrets(result *domain.ProvisioningResult, bundle map[string]string, logger *slog.Logger) {
	if p.secrets == nil {
		return
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		logger.Warn("failed to serialize tenant secret bundle for snapshot", "error", err)
		return
	}
	ciphertext, err := p.secrets.EncryptString(string(raw))
	if err != nil {
		logger.Warn("failed to encrypt tenant secret snapshot", "error", err)
		return
	}
	result.EncryptedSecrets = ciphertext
}
