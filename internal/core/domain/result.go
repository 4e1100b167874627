package domain

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Provisioning Status
// =============================================================================

var ErrInvalidStatusTransition = errors.New("invalid provisioning status transition")

// ProvisioningStatus tracks a request through the provisioning pipeline.
type ProvisioningStatus string

const (
	StatusPending      ProvisioningStatus = "pending"
	StatusProvisioning ProvisioningStatus = "provisioning"
	StatusDeploying    ProvisioningStatus = "deploying"
	StatusConfiguring  ProvisioningStatus = "configuring"
	StatusValidating   ProvisioningStatus = "validating"
	StatusReady        ProvisioningStatus = "ready"
	StatusFailed       ProvisioningStatus = "failed"
	StatusRollingBack  ProvisioningStatus = "rolling_back"
	StatusRolledBack   ProvisioningStatus = "rolled_back"
)

// IsTerminal reports whether no further transition is possible.
func (s ProvisioningStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusRolledBack
}

// validStatusTransitions defines the allowed state transitions. Every
// in-flight state may fail; failed may only enter rollback.
var validStatusTransitions = map[ProvisioningStatus][]ProvisioningStatus{
	StatusPending:      {StatusProvisioning, StatusFailed},
	StatusProvisioning: {StatusDeploying, StatusFailed},
	StatusDeploying:    {StatusConfiguring, StatusFailed},
	StatusConfiguring:  {StatusValidating, StatusFailed},
	StatusValidating:   {StatusReady, StatusFailed},
	StatusFailed:       {StatusRollingBack},
	StatusRollingBack:  {StatusRolledBack},
	StatusReady:        {}, // Terminal state
	StatusRolledBack:   {}, // Terminal state
}

// ValidateStatusTransition checks if a status transition is valid.
func ValidateStatusTransition(from, to ProvisioningStatus) error {
	allowed, exists := validStatusTransitions[from]
	if !exists {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, from)
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}

// =============================================================================
// Provisioning Stages
// =============================================================================

// ProvisioningStage names the pipeline phase an error or log line belongs to.
type ProvisioningStage string

const (
	StageValidation          ProvisioningStage = "validation"
	StageResourceCalculation ProvisioningStage = "resource_calculation"
	StageInfrastructure      ProvisioningStage = "infrastructure"
	StageDeployment          ProvisioningStage = "deployment"
	StageConfiguration       ProvisioningStage = "configuration"
	StageHealthValidation    ProvisioningStage = "health_validation"
	StageRollback            ProvisioningStage = "rollback"
)

// =============================================================================
// Container Health
// =============================================================================

// HealthStatus represents the overall health of a deployed tenant stack.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusStarting  HealthStatus = "starting"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ContainerHealth is the aggregated result of one health validation pass.
// Liveness and database are the critical probes; cache and SSL failures are
// recorded but do not flip the overall status.
type ContainerHealth struct {
	OverallStatus HealthStatus `json:"overall_status"`

	APIHealthy      bool `json:"api_healthy"`
	DatabaseHealthy bool `json:"database_healthy"`
	CacheHealthy    bool `json:"cache_healthy"`
	SSLHealthy      bool `json:"ssl_healthy"`

	// ResponseTimes records the observed latency per check name.
	ResponseTimes map[string]time.Duration `json:"response_times,omitempty"`

	// FailedChecks lists the names of every check that did not pass,
	// critical or not.
	FailedChecks []string `json:"failed_checks,omitempty"`

	// Errors maps a failed check name to its error detail.
	Errors map[string]string `json:"errors,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// =============================================================================
// Monitoring State
// =============================================================================

// MonitoringState reports how monitoring registration ended for a run.
type MonitoringState string

const (
	// MonitoringOK means the tenant was registered with the monitoring stack.
	MonitoringOK MonitoringState = "ok"
	// MonitoringDegraded means registration failed; the stack runs unwatched.
	MonitoringDegraded MonitoringState = "degraded"
	// MonitoringSkipped means registration was not attempted.
	MonitoringSkipped MonitoringState = "skipped"
)

// =============================================================================
// Provisioning Result
// =============================================================================

// ProvisioningResult is the single source of truth for one provisioning
// run: status, artifacts, health, errors and an append-only log. Exactly one
// goroutine mutates a result while the run is in flight.
type ProvisioningResult struct {
	RequestID string `json:"request_id"`
	ISPID     string `json:"isp_id"`

	Success bool               `json:"success"`
	Status  ProvisioningStatus `json:"status"`

	AllocatedResources *ResourceRequirements `json:"allocated_resources,omitempty"`
	Artifacts          *DeploymentArtifacts  `json:"artifacts,omitempty"`
	Health             *ContainerHealth      `json:"health,omitempty"`
	Monitoring         MonitoringState       `json:"monitoring"`

	ErrorMessage      string            `json:"error_message,omitempty"`
	ErrorStage        ProvisioningStage `json:"error_stage,omitempty"`
	RollbackCompleted bool              `json:"rollback_completed"`

	// EncryptedSecrets is the AES-GCM ciphertext of the generated tenant
	// secret bundle, kept for operator recovery. Never serialized to API
	// responses; the result store persists it in its own column.
	EncryptedSecrets string `json:"-"`

	// Logs is the append-only audit trail, one timestamped line per event.
	Logs []string `json:"logs"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// NewProvisioningResult creates a pending result for a request.
func NewProvisioningResult(req *ProvisioningRequest) *ProvisioningResult {
	return &ProvisioningResult{
		RequestID:  req.RequestID,
		ISPID:      req.ISPID,
		Status:     StatusPending,
		Monitoring: MonitoringSkipped,
		StartedAt:  time.Now().UTC(),
	}
}

// Transition attempts to move the result to a new status.
func (r *ProvisioningResult) Transition(to ProvisioningStatus) error {
	if err := ValidateStatusTransition(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	return nil
}

// MarkFailed transitions to failed and records the failing stage. Failing
// is allowed from every non-terminal state, so this never reports an
// invalid transition for an in-flight run.
func (r *ProvisioningResult) MarkFailed(stage ProvisioningStage, errorMessage string) error {
	if err := r.Transition(StatusFailed); err != nil {
		return err
	}
	r.ErrorStage = stage
	r.ErrorMessage = errorMessage
	return nil
}

// Complete stamps the end time and duration and records the outcome.
func (r *ProvisioningResult) Complete(success bool) {
	now := time.Now().UTC()
	r.CompletedAt = &now
	r.Duration = now.Sub(r.StartedAt)
	r.Success = success
}

// AppendLog appends one timestamped line to the audit trail.
func (r *ProvisioningResult) AppendLog(format string, args ...any) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	r.Logs = append(r.Logs, line)
}

// EndpointURL returns the externally reachable URL of the tenant stack,
// empty until deployment produced one.
func (r *ProvisioningResult) EndpointURL() string {
	if r.Artifacts == nil {
		return ""
	}
	return r.Artifacts.ExternalURL
}

// Snapshot returns a point-in-time copy that stays valid while the run
// goroutine keeps mutating the original. Nested structs, slices and maps
// are copied; a published snapshot is never written again.
func (r *ProvisioningResult) Snapshot() *ProvisioningResult {
	s := *r

	s.Logs = append([]string(nil), r.Logs...)

	if r.AllocatedResources != nil {
		res := *r.AllocatedResources
		s.AllocatedResources = &res
	}
	if r.Artifacts != nil {
		a := *r.Artifacts
		a.CreatedResources = append([]CreatedResource(nil), r.Artifacts.CreatedResources...)
		s.Artifacts = &a
	}
	if r.Health != nil {
		h := *r.Health
		h.FailedChecks = append([]string(nil), r.Health.FailedChecks...)
		if r.Health.ResponseTimes != nil {
			h.ResponseTimes = make(map[string]time.Duration, len(r.Health.ResponseTimes))
			for k, v := range r.Health.ResponseTimes {
				h.ResponseTimes[k] = v
			}
		}
		if r.Health.Errors != nil {
			h.Errors = make(map[string]string, len(r.Health.Errors))
			for k, v := range r.Health.Errors {
				h.Errors[k] = v
			}
		}
		s.Health = &h
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		s.CompletedAt = &t
	}
	return &s
}
