package validation

import (
	"fmt"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Request Validation Functions
// =============================================================================

// ValidateRequest checks every parameter of a provisioning request against
// its contract and returns all violations found, not just the first. A
// request that came through domain.NewProvisioningRequest already satisfies
// most of these; the orchestrator still re-checks because requests can be
// built directly by callers or deserialized from the API layer.
func ValidateRequest(req *domain.ProvisioningRequest) []error {
	var errs []error

	if req.ISPID == "" {
		errs = append(errs, domain.ErrISPIDRequired)
	}
	if req.CustomerCount < domain.MinCustomerCount || req.CustomerCount > domain.MaxCustomerCount {
		errs = append(errs, fmt.Errorf("%w: got %d", domain.ErrInvalidCustomerCount, req.CustomerCount))
	}
	if req.Timeout < domain.MinProvisioningTimeout || req.Timeout > domain.MaxProvisioningTimeout {
		errs = append(errs, fmt.Errorf("%w: got %s", domain.ErrInvalidTimeout, req.Timeout))
	}
	if !req.InfrastructureType.IsValid() {
		errs = append(errs, fmt.Errorf("%w: %q", domain.ErrInvalidInfrastructureType, req.InfrastructureType))
	}

	errs = append(errs, domain.ValidateISPConfig(req.Config)...)

	if req.CustomResources != nil {
		errs = append(errs, req.CustomResources.Validate()...)
	}

	return errs
}

// Violations flattens validation errors into messages suitable for the
// detail list of a ValidationError.
func Violations(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, len(errs))
	for i, err := range errs {
		messages[i] = err.Error()
	}
	return messages
}
