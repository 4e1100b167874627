package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Provisioning Request
// =============================================================================

// Customer count and timeout bounds for a single provisioning request.
const (
	MinCustomerCount = 1
	MaxCustomerCount = 50000

	MinProvisioningTimeout = 120 * time.Second
	MaxProvisioningTimeout = 1800 * time.Second

	DefaultProvisioningTimeout = 600 * time.Second
	DefaultRollbackTimeout     = 120 * time.Second
)

var (
	ErrISPIDRequired        = errors.New("isp ID is required")
	ErrInvalidCustomerCount = errors.New("customer count must be between 1 and 50000")
	ErrInvalidTimeout       = errors.New("provisioning timeout must be between 120s and 1800s")
)

// GenerateRequestID generates a new provisioning request ID.
func GenerateRequestID() string {
	return "prov_" + uuid.New().String()[:8]
}

// ProvisioningRequest is the immutable input to one provisioning run.
type ProvisioningRequest struct {
	RequestID     string    `json:"request_id"`
	ISPID         string    `json:"isp_id"`
	CustomerCount int       `json:"customer_count"`
	Config        ISPConfig `json:"config"`

	// CustomResources bypasses the resource calculator when set. The
	// requirements are still validated against the platform ceilings.
	CustomResources *ResourceRequirements `json:"custom_resources,omitempty"`

	InfrastructureType InfrastructureType `json:"infrastructure_type"`
	Region             string             `json:"region"`
	Timeout            time.Duration      `json:"timeout"`

	// EnableRollback controls whether a failed run tears down the
	// resources it created. Disabled only for debugging.
	EnableRollback bool `json:"enable_rollback"`

	CreatedAt time.Time `json:"created_at"`
}

// RequestOptions carries the optional knobs of a provisioning request.
// The zero value is not usable directly; start from DefaultRequestOptions.
type RequestOptions struct {
	CustomResources    *ResourceRequirements
	InfrastructureType InfrastructureType
	Region             string
	Timeout            time.Duration
	EnableRollback     bool
}

// DefaultRequestOptions returns the option defaults: Docker infrastructure,
// a 10 minute budget and rollback enabled.
func DefaultRequestOptions() RequestOptions {
	return RequestOptions{
		InfrastructureType: InfraDocker,
		Region:             "us-east-1",
		Timeout:            DefaultProvisioningTimeout,
		EnableRollback:     true,
	}
}

// NewProvisioningRequest creates a provisioning request with validation.
// The config's feature flags are derived from the plan before anything else
// so every later stage sees the same effective feature set.
func NewProvisioningRequest(ispID string, customerCount int, config ISPConfig, opts RequestOptions) (*ProvisioningRequest, error) {
	if ispID == "" {
		return nil, ErrISPIDRequired
	}
	if customerCount < MinCustomerCount || customerCount > MaxCustomerCount {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCustomerCount, customerCount)
	}
	if opts.Timeout < MinProvisioningTimeout || opts.Timeout > MaxProvisioningTimeout {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTimeout, opts.Timeout)
	}
	if !opts.InfrastructureType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInfrastructureType, opts.InfrastructureType)
	}

	return &ProvisioningRequest{
		RequestID:          GenerateRequestID(),
		ISPID:              ispID,
		CustomerCount:      customerCount,
		Config:             config.WithDefaults(),
		CustomResources:    opts.CustomResources,
		InfrastructureType: opts.InfrastructureType,
		Region:             opts.Region,
		Timeout:            opts.Timeout,
		EnableRollback:     opts.EnableRollback,
		CreatedAt:          time.Now().UTC(),
	}, nil
}
