package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Tenant Name Tests
// =============================================================================

func TestValidateTenantName_Valid(t *testing.T) {
	assert.NoError(t, ValidateTenantName("acme-telecom"))
	assert.NoError(t, ValidateTenantName("isp42"))
	assert.NoError(t, ValidateTenantName("a1b"))
}

func TestValidateTenantName_Empty(t *testing.T) {
	assert.ErrorIs(t, ValidateTenantName(""), ErrTenantNameRequired)
}

func TestValidateTenantName_TooShort(t *testing.T) {
	assert.ErrorIs(t, ValidateTenantName("ab"), ErrTenantNameTooShort)
}

func TestValidateTenantName_TooLong(t *testing.T) {
	name := ""
	for i := 0; i < 51; i++ {
		name += "a"
	}
	assert.ErrorIs(t, ValidateTenantName(name), ErrTenantNameTooLong)
}

func TestValidateTenantName_TableDriven(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"simple", "fiberlink", nil},
		{"with hyphen", "fiber-link", nil},
		{"with digits", "isp-2024", nil},
		{"exactly 3 chars", "abc", nil},
		{"leading hyphen", "-fiberlink", ErrTenantNameInvalidChars},
		{"trailing hyphen", "fiberlink-", ErrTenantNameInvalidChars},
		{"underscore", "fiber_link", ErrTenantNameInvalidChars},
		{"space", "fiber link", ErrTenantNameInvalidChars},
		{"dot", "fiber.link", ErrTenantNameInvalidChars},
		{"uppercase allowed", "FiberLink", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantName(tt.input)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Plan Type Tests
// =============================================================================

func TestPlanType_IsValid(t *testing.T) {
	assert.True(t, PlanStandard.IsValid())
	assert.True(t, PlanPremium.IsValid())
	assert.True(t, PlanEnterprise.IsValid())
	assert.False(t, PlanType("platinum").IsValid())
	assert.False(t, PlanType("").IsValid())
}

func TestPlanType_Rank(t *testing.T) {
	assert.Less(t, PlanStandard.Rank(), PlanPremium.Rank())
	assert.Less(t, PlanPremium.Rank(), PlanEnterprise.Rank())
}

func TestInfrastructureType_IsValid(t *testing.T) {
	assert.True(t, InfraKubernetes.IsValid())
	assert.True(t, InfraDocker.IsValid())
	assert.True(t, InfraDockerCompose.IsValid())
	assert.False(t, InfrastructureType("nomad").IsValid())
}

// =============================================================================
// Feature Flag Tests
// =============================================================================

func TestDefaultFeatureFlags_Standard(t *testing.T) {
	flags := DefaultFeatureFlags(PlanStandard)

	assert.True(t, flags.CustomerPortal)
	assert.False(t, flags.AnalyticsDashboard)
	assert.False(t, flags.APIWebhooks)
	assert.False(t, flags.MultiLanguage)
}

func TestDefaultFeatureFlags_Premium(t *testing.T) {
	flags := DefaultFeatureFlags(PlanPremium)

	assert.True(t, flags.AnalyticsDashboard)
	assert.True(t, flags.APIWebhooks)
	assert.True(t, flags.BulkOperations)
	assert.False(t, flags.AdvancedReporting)
	assert.False(t, flags.MultiLanguage)
}

func TestDefaultFeatureFlags_Enterprise(t *testing.T) {
	flags := DefaultFeatureFlags(PlanEnterprise)

	assert.True(t, flags.AnalyticsDashboard)
	assert.True(t, flags.AdvancedReporting)
	assert.True(t, flags.MultiLanguage)
	assert.True(t, flags.WhiteLabel)
	assert.True(t, flags.SSOIntegration)
}

func TestDefaultFeatureFlags_Deterministic(t *testing.T) {
	for _, plan := range []PlanType{PlanStandard, PlanPremium, PlanEnterprise} {
		first := DefaultFeatureFlags(plan)
		second := DefaultFeatureFlags(plan)
		assert.Equal(t, first, second, "plan %s", plan)
	}
}

func TestISPConfig_WithDefaults_DerivesFlags(t *testing.T) {
	cfg := ISPConfig{TenantName: "acme-isp", PlanType: PlanPremium}
	require.Nil(t, cfg.FeatureFlags)

	out := cfg.WithDefaults()
	require.NotNil(t, out.FeatureFlags)
	assert.Equal(t, DefaultFeatureFlags(PlanPremium), *out.FeatureFlags)

	// Original is untouched
	assert.Nil(t, cfg.FeatureFlags)
}

func TestISPConfig_WithDefaults_KeepsSuppliedFlags(t *testing.T) {
	flags := FeatureFlags{MultiLanguage: true}
	cfg := ISPConfig{TenantName: "acme-isp", PlanType: PlanStandard, FeatureFlags: &flags}

	out := cfg.WithDefaults()
	require.NotNil(t, out.FeatureFlags)
	assert.True(t, out.FeatureFlags.MultiLanguage)
	assert.False(t, out.FeatureFlags.CustomerPortal)
}

func TestFeatureFlags_Enabled(t *testing.T) {
	flags := FeatureFlags{AnalyticsDashboard: true, MultiLanguage: true}

	enabled := flags.Enabled()
	assert.ElementsMatch(t, []string{"analytics_dashboard", "multi_language"}, enabled)
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestValidateISPConfig_Valid(t *testing.T) {
	cfg := ISPConfig{
		TenantName: "acme-telecom",
		PlanType:   PlanStandard,
	}

	assert.Empty(t, ValidateISPConfig(cfg))
}

func TestValidateISPConfig_CollectsAllErrors(t *testing.T) {
	cfg := ISPConfig{
		TenantName: "x",
		PlanType:   PlanType("platinum"),
		NetworkConfig: NetworkConfig{
			PortMappings: []PortMapping{{ContainerPort: 0, HostPort: 8080, Protocol: "tcp"}},
		},
	}

	errs := ValidateISPConfig(cfg)
	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[0], ErrTenantNameTooShort)
	assert.ErrorIs(t, errs[1], ErrInvalidPlanType)
	assert.ErrorIs(t, errs[2], ErrInvalidPortMapping)
}

func TestValidatePortMapping(t *testing.T) {
	assert.NoError(t, ValidatePortMapping(PortMapping{ContainerPort: 80, HostPort: 8080, Protocol: "tcp"}))
	assert.NoError(t, ValidatePortMapping(PortMapping{ContainerPort: 443, Protocol: "tcp"})) // ephemeral host port
	assert.ErrorIs(t, ValidatePortMapping(PortMapping{ContainerPort: 70000}), ErrInvalidPortMapping)
	assert.ErrorIs(t, ValidatePortMapping(PortMapping{ContainerPort: 80, HostPort: -1}), ErrInvalidPortMapping)
}
