// Package domain contains the core provisioning domain types and validation
// logic. This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// Tenant name validation errors
	ErrTenantNameRequired     = errors.New("tenant name is required")
	ErrTenantNameTooShort     = errors.New("tenant name must be at least 3 characters")
	ErrTenantNameTooLong      = errors.New("tenant name must be at most 50 characters")
	ErrTenantNameInvalidChars = errors.New("tenant name must start and end with an alphanumeric character and contain only alphanumerics and hyphens")

	// Plan validation errors
	ErrInvalidPlanType = errors.New("invalid plan type")

	// Infrastructure validation errors
	ErrInvalidInfrastructureType = errors.New("invalid infrastructure type")

	// Network validation errors
	ErrInvalidPortMapping = errors.New("port mapping must use ports in range 1-65535")
)

// =============================================================================
// Plan Types
// =============================================================================

type PlanType string

const (
	PlanStandard   PlanType = "standard"
	PlanPremium    PlanType = "premium"
	PlanEnterprise PlanType = "enterprise"
)

// IsValid checks if the plan type is one of the supported tiers.
func (p PlanType) IsValid() bool {
	switch p {
	case PlanStandard, PlanPremium, PlanEnterprise:
		return true
	default:
		return false
	}
}

// Rank orders plan tiers for escalation comparisons.
// standard < premium < enterprise.
func (p PlanType) Rank() int {
	switch p {
	case PlanStandard:
		return 0
	case PlanPremium:
		return 1
	case PlanEnterprise:
		return 2
	default:
		return -1
	}
}

// =============================================================================
// Infrastructure Types
// =============================================================================

type InfrastructureType string

const (
	InfraKubernetes    InfrastructureType = "kubernetes"
	InfraDocker        InfrastructureType = "docker"
	InfraDockerCompose InfrastructureType = "docker_compose"
)

// IsValid checks if the infrastructure type is supported.
func (i InfrastructureType) IsValid() bool {
	switch i {
	case InfraKubernetes, InfraDocker, InfraDockerCompose:
		return true
	default:
		return false
	}
}

// =============================================================================
// Network Configuration
// =============================================================================

// PortMapping represents a container-to-host port mapping.
type PortMapping struct {
	ContainerPort int    `json:"container_port"`
	HostPort      int    `json:"host_port"`
	Protocol      string `json:"protocol"` // tcp, udp
}

// NetworkConfig holds the tenant-facing network settings.
type NetworkConfig struct {
	// Domain is the fully-qualified hostname the tenant stack is exposed at.
	// When empty, a subdomain under the platform base domain is derived.
	Domain string `json:"domain,omitempty"`

	// Subdomain is the tenant-chosen label used when Domain is empty.
	Subdomain string `json:"subdomain,omitempty"`

	SSLEnabled   bool          `json:"ssl_enabled"`
	PortMappings []PortMapping `json:"port_mappings,omitempty"`
	CORSOrigins  []string      `json:"cors_origins,omitempty"`
}

// =============================================================================
// Database Configuration
// =============================================================================

// DatabaseConfig holds the tenant database settings consumed by the template.
type DatabaseConfig struct {
	DedicatedDB        bool   `json:"dedicated_db"`
	SizeTier           string `json:"size_tier,omitempty"` // small, medium, large
	BackupEnabled      bool   `json:"backup_enabled"`
	ReplicationEnabled bool   `json:"replication_enabled"`
	PoolSize           int    `json:"pool_size,omitempty"`
}

// =============================================================================
// Feature Flags
// =============================================================================

// FeatureFlags holds the per-tenant feature toggles. The five resource-heavy
// features (analytics, webhooks, bulk operations, reporting, multi-language)
// also feed the resource calculator's multiplier table.
type FeatureFlags struct {
	AnalyticsDashboard bool `json:"analytics_dashboard"`
	APIWebhooks        bool `json:"api_webhooks"`
	BulkOperations     bool `json:"bulk_operations"`
	AdvancedReporting  bool `json:"advanced_reporting"`
	MultiLanguage      bool `json:"multi_language"`
	CustomerPortal     bool `json:"customer_portal"`
	WhiteLabel         bool `json:"white_label"`
	SSOIntegration     bool `json:"sso_integration"`
	PrioritySupport    bool `json:"priority_support"`
	CustomDomains      bool `json:"custom_domains"`
}

// DefaultFeatureFlags derives the feature set for a plan tier.
// The derivation is deterministic: the same plan always yields the same flags.
func DefaultFeatureFlags(plan PlanType) FeatureFlags {
	switch plan {
	case PlanEnterprise:
		return FeatureFlags{
			AnalyticsDashboard: true,
			APIWebhooks:        true,
			BulkOperations:     true,
			AdvancedReporting:  true,
			MultiLanguage:      true,
			CustomerPortal:     true,
			WhiteLabel:         true,
			SSOIntegration:     true,
			PrioritySupport:    true,
			CustomDomains:      true,
		}
	case PlanPremium:
		return FeatureFlags{
			AnalyticsDashboard: true,
			APIWebhooks:        true,
			BulkOperations:     true,
			CustomerPortal:     true,
			CustomDomains:      true,
		}
	default:
		return FeatureFlags{
			CustomerPortal: true,
		}
	}
}

// Enabled returns the names of all enabled features.
func (f FeatureFlags) Enabled() []string {
	var names []string
	for name, on := range map[string]bool{
		"analytics_dashboard": f.AnalyticsDashboard,
		"api_webhooks":        f.APIWebhooks,
		"bulk_operations":     f.BulkOperations,
		"advanced_reporting":  f.AdvancedReporting,
		"multi_language":      f.MultiLanguage,
		"customer_portal":     f.CustomerPortal,
		"white_label":         f.WhiteLabel,
		"sso_integration":     f.SSOIntegration,
		"priority_support":    f.PrioritySupport,
		"custom_domains":      f.CustomDomains,
	} {
		if on {
			names = append(names, name)
		}
	}
	return names
}

// =============================================================================
// Branding Configuration
// =============================================================================

// BrandingConfig holds tenant white-label settings passed through to the
// deployed stack's environment. Not interpreted by the provisioner.
type BrandingConfig struct {
	CompanyName    string `json:"company_name,omitempty"`
	LogoURL        string `json:"logo_url,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
}

// =============================================================================
// ISP Configuration
// =============================================================================

// ISPConfig is the tenant-level configuration for one provisioning request.
// It is created by the caller and treated as immutable for the life of the
// request; WithDefaults returns an adjusted copy rather than mutating.
type ISPConfig struct {
	// TenantName is the globally-unique tenant key (uniqueness is enforced by
	// the tenant registry upstream, not by the provisioner).
	TenantName  string   `json:"tenant_name"`
	DisplayName string   `json:"display_name,omitempty"`
	PlanType    PlanType `json:"plan_type"`

	NetworkConfig  NetworkConfig  `json:"network_config"`
	DatabaseConfig DatabaseConfig `json:"database_config"`

	// FeatureFlags may be nil, in which case the plan's default feature set
	// is derived before any other processing (see WithDefaults).
	FeatureFlags *FeatureFlags `json:"feature_flags,omitempty"`

	// EnvironmentVariables and Secrets are merged into the deployed
	// container's environment. Secret values must never be logged.
	EnvironmentVariables map[string]string `json:"environment_variables,omitempty"`
	Secrets              map[string]string `json:"secrets,omitempty"`

	BrandingConfig BrandingConfig `json:"branding_config,omitempty"`
}

// WithDefaults returns a copy of the config with the feature flags derived
// from the plan type when they were not supplied.
func (c ISPConfig) WithDefaults() ISPConfig {
	if c.FeatureFlags == nil {
		flags := DefaultFeatureFlags(c.PlanType)
		c.FeatureFlags = &flags
	}
	return c
}

// Features returns the effective feature flags, deriving plan defaults when
// none were supplied.
func (c ISPConfig) Features() FeatureFlags {
	if c.FeatureFlags != nil {
		return *c.FeatureFlags
	}
	return DefaultFeatureFlags(c.PlanType)
}

// =============================================================================
// Validation Functions (Pure)
// =============================================================================

var tenantNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$`)

// ValidateTenantName validates a tenant name against the naming contract.
func ValidateTenantName(name string) error {
	if name == "" {
		return ErrTenantNameRequired
	}
	if len(name) < 3 {
		return ErrTenantNameTooShort
	}
	if len(name) > 50 {
		return ErrTenantNameTooLong
	}
	if !tenantNameRegex.MatchString(name) {
		return ErrTenantNameInvalidChars
	}
	return nil
}

// ValidatePortMapping validates a single port mapping.
func ValidatePortMapping(p PortMapping) error {
	if p.ContainerPort < 1 || p.ContainerPort > 65535 {
		return fmt.Errorf("%w: container port %d", ErrInvalidPortMapping, p.ContainerPort)
	}
	if p.HostPort != 0 && (p.HostPort < 1 || p.HostPort > 65535) {
		return fmt.Errorf("%w: host port %d", ErrInvalidPortMapping, p.HostPort)
	}
	return nil
}

// ValidateISPConfig validates a tenant configuration and returns all
// validation errors found, not just the first.
func ValidateISPConfig(c ISPConfig) []error {
	var errs []error

	if err := ValidateTenantName(c.TenantName); err != nil {
		errs = append(errs, err)
	}
	if !c.PlanType.IsValid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidPlanType, c.PlanType))
	}
	for _, p := range c.NetworkConfig.PortMappings {
		if err := ValidatePortMapping(p); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}
