package domain

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// Sentinel kinds for the provisioning error taxonomy. Callers branch with
// errors.Is(err, domain.ErrValidation) and friends; the carrying ProvisionError
// preserves the tenant, stage and rollback context.
var (
	ErrValidation          = errors.New("validation failed")
	ErrResourceCalculation = errors.New("resource calculation failed")
	ErrTemplate            = errors.New("template generation failed")
	ErrInfrastructure      = errors.New("infrastructure operation failed")
	ErrDeployment          = errors.New("deployment failed")
	ErrHealthCheck         = errors.New("health validation failed")
	ErrRollback            = errors.New("rollback failed")
)

// ProvisionError is the base error for every provisioning failure. It carries
// the tenant, the pipeline stage, and whether rollback ran to completion by
// the time the error surfaced.
type ProvisionError struct {
	Kind  error  // taxonomy sentinel, one of the Err* values above
	ISPID string // tenant the failure belongs to
	Stage ProvisioningStage

	Message string

	// Detail lists structured particulars: violated resource dimensions,
	// missing template variables, failed health check names, or resources
	// that could not be rolled back.
	Detail []string

	// RollbackCompleted is set after the orchestrator finished (or skipped)
	// rollback so the caller knows whether resources were left behind.
	RollbackCompleted bool

	Err error // underlying cause
}

func (e *ProvisionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provision %s: %s: %s", e.ISPID, e.Stage, e.Message)
	if len(e.Detail) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Detail, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause so
// errors.Is matches either.
func (e *ProvisionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// =============================================================================
// Constructors
// =============================================================================

// NewValidationError reports a rejected provisioning request.
func NewValidationError(ispID, message string, detail ...string) *ProvisionError {
	return &ProvisionError{
		Kind:    ErrValidation,
		ISPID:   ispID,
		Stage:   StageValidation,
		Message: message,
		Detail:  detail,
	}
}

// NewResourceCalculationError reports requirements outside platform limits.
// The violations name each dimension that failed.
func NewResourceCalculationError(ispID string, violations []string) *ProvisionError {
	return &ProvisionError{
		Kind:    ErrResourceCalculation,
		ISPID:   ispID,
		Stage:   StageResourceCalculation,
		Message: "requirements exceed platform limits",
		Detail:  violations,
	}
}

// NewTemplateError reports a failed deployment template render.
func NewTemplateError(ispID, message string, missingVariables []string) *ProvisionError {
	return &ProvisionError{
		Kind:    ErrTemplate,
		ISPID:   ispID,
		Stage:   StageDeployment,
		Message: message,
		Detail:  missingVariables,
	}
}

// NewInfrastructureError reports a failed infrastructure operation against
// a named resource.
func NewInfrastructureError(ispID, resource string, err error) *ProvisionError {
	return &ProvisionError{
		Kind:    ErrInfrastructure,
		ISPID:   ispID,
		Stage:   StageInfrastructure,
		Message: fmt.Sprintf("operation on %s failed", resource),
		Detail:  []string{resource},
		Err:     err,
	}
}

// NewDeploymentError reports a failed container deployment.
func NewDeploymentError(ispID, message string, err error) *ProvisionError {
	return &ProvisionError{
		Kind:    ErrDeployment,
		ISPID:   ispID,
		Stage:   StageDeployment,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError reports failed networking or SSL wiring for an
// already running workload. Same taxonomy kind as deployment failures; the
// stage tells them apart.
func NewConfigurationError(ispID, message string, err error) *ProvisionError {
	return &ProvisionError{
		Kind:    ErrDeployment,
		ISPID:   ispID,
		Stage:   StageConfiguration,
		Message: message,
		Err:     err,
	}
}

// NewHealthCheckError reports that a deployed stack never became healthy.
// The failed check names explain which probes did not pass.
func NewHealthCheckError(ispID, message string, failedChecks []string) *ProvisionError {
	return &ProvisionError{
		Kind:    ErrHealthCheck,
		ISPID:   ispID,
		Stage:   StageHealthValidation,
		Message: message,
		Detail:  failedChecks,
	}
}

// NewRollbackError reports a partial rollback. The detail names the
// resources that could not be removed and still exist.
func NewRollbackError(ispID string, failedResources []string, err error) *ProvisionError {
	return &ProvisionError{
		Kind:    ErrRollback,
		ISPID:   ispID,
		Stage:   StageRollback,
		Message: "teardown left resources behind",
		Detail:  failedResources,
		Err:     err,
	}
}

// WithRollback returns the error annotated with the rollback outcome.
func (e *ProvisionError) WithRollback(completed bool) *ProvisionError {
	e.RollbackCompleted = completed
	return e
}
