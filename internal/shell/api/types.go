package api

import "github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"

// =============================================================================
// Request Types
// =============================================================================

// ProvisionRequest is the request body for provisioning a tenant stack. The
// tenant ID comes from the URL; everything else from the body. Omitted
// fields fall back to the daemon defaults, including the platform the daemon
// was started for.
type ProvisionRequest struct {
	CustomerCount   int                          `json:"customer_count"`
	Config          domain.ISPConfig             `json:"config"`
	CustomResources *domain.ResourceRequirements `json:"custom_resources,omitempty"`

	InfrastructureType string `json:"infrastructure_type,omitempty"`
	Region             string `json:"region,omitempty"`
	TimeoutSeconds     int    `json:"timeout_seconds,omitempty"`

	// DisableRollback leaves partially created resources in place on
	// failure. Debugging aid; rollback stays on by default.
	DisableRollback bool `json:"disable_rollback,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// The provision, status and result endpoints return the
// domain.ProvisioningResult JSON shape directly; it is the wire format.

// OperationsResponse lists the in-flight provisioning operations.
type OperationsResponse struct {
	Operations []*domain.ProvisioningResult `json:"operations"`
	Total      int                          `json:"total"`
}

// ListResultsResponse is the response for listing persisted results.
type ListResultsResponse struct {
	Results []domain.ProvisioningResult `json:"results"`
	Total   int                         `json:"total"`
	Limit   int                         `json:"limit"`
	Offset  int                         `json:"offset"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
