package resources

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Base Table Tests
// =============================================================================

func TestBaseAllocation_PerPlan(t *testing.T) {
	standard := BaseAllocation(domain.PlanStandard)
	assert.Equal(t, 1.0, standard.CPUCores)
	assert.Equal(t, 2.0, standard.MemoryGB)
	assert.Equal(t, 10, standard.StorageGB)

	premium := BaseAllocation(domain.PlanPremium)
	assert.Equal(t, 2.0, premium.CPUCores)
	assert.Equal(t, 4.0, premium.MemoryGB)
	assert.Equal(t, 50, premium.StorageGB)

	enterprise := BaseAllocation(domain.PlanEnterprise)
	assert.Equal(t, 4.0, enterprise.CPUCores)
	assert.Equal(t, 8.0, enterprise.MemoryGB)
	assert.Equal(t, 200, enterprise.StorageGB)
}

// =============================================================================
// Calculation Tests
// =============================================================================

func TestCalculate_Premium500Customers(t *testing.T) {
	flags := domain.DefaultFeatureFlags(domain.PlanPremium)
	r := Calculate(500, domain.PlanPremium, flags)

	// base 2.0 + 0.1 customer scaling, then *1.2*1.1*1.15 for the three
	// heavy premium features, rounded to the nearest tenth
	assert.InDelta(t, 3.2, r.CPUCores, 1e-9)
	// base 4.0 + 0.5, multiplied and rounded up to the next half
	assert.InDelta(t, 7.0, r.MemoryGB, 1e-9)
	// base 50 + 1, multiplied and rounded up to a whole GB
	assert.Equal(t, 78, r.StorageGB)
	// connections and concurrency scale linearly but take no multiplier
	assert.Equal(t, 125, r.MaxConnections)
	assert.Equal(t, 60, r.MaxConcurrentRequests)
}

func TestCalculate_NoFeaturesNoMultiplier(t *testing.T) {
	r := Calculate(1000, domain.PlanStandard, domain.FeatureFlags{})

	assert.InDelta(t, 1.2, r.CPUCores, 1e-9)
	assert.InDelta(t, 3.0, r.MemoryGB, 1e-9)
	assert.Equal(t, 12, r.StorageGB)
	assert.Equal(t, 100, r.MaxConnections)
	assert.Equal(t, 45, r.MaxConcurrentRequests)
}

func TestCalculate_Deterministic(t *testing.T) {
	flags := domain.DefaultFeatureFlags(domain.PlanEnterprise)

	first := Calculate(12345, domain.PlanEnterprise, flags)
	second := Calculate(12345, domain.PlanEnterprise, flags)
	assert.Equal(t, first, second)
}

func TestCalculate_SaturatesAtCeilings(t *testing.T) {
	flags := domain.DefaultFeatureFlags(domain.PlanEnterprise)
	r := Calculate(domain.MaxCustomerCount, domain.PlanEnterprise, flags)

	assert.Equal(t, float64(domain.MaxCPUCores), r.CPUCores)
	assert.Equal(t, float64(domain.MaxMemoryGB), r.MemoryGB)
	assert.Equal(t, domain.MaxStorageGB, r.StorageGB)
	assert.Equal(t, domain.MaxConnections, r.MaxConnections)
	assert.Equal(t, domain.MaxConcurrentRequests, r.MaxConcurrentRequests)
}

func TestCalculate_MemoryRoundsUpNotNearest(t *testing.T) {
	// 0.5 GB per 500 customers: 100 customers adds 0.1 GB, which must
	// round UP to the next half step, never down.
	r := Calculate(100, domain.PlanStandard, domain.FeatureFlags{})
	assert.InDelta(t, 2.5, r.MemoryGB, 1e-9)
}

// Every envelope the calculator can produce respects the platform ceilings
// and the 0.1-core / 0.5 GB allocation granularity.
func TestCalculate_OutputAlwaysWithinLimits(t *testing.T) {
	counts := []int{1, 7, 99, 100, 101, 499, 500, 999, 1000, 1001, 2500, 9999, 25000, 49999, 50000}
	plans := []domain.PlanType{domain.PlanStandard, domain.PlanPremium, domain.PlanEnterprise}
	flagSets := map[string]domain.FeatureFlags{
		"none":       {},
		"analytics":  {AnalyticsDashboard: true},
		"webhooks":   {APIWebhooks: true},
		"bulk":       {BulkOperations: true},
		"reporting":  {AdvancedReporting: true},
		"languages":  {MultiLanguage: true},
		"all heavy":  {AnalyticsDashboard: true, APIWebhooks: true, BulkOperations: true, AdvancedReporting: true, MultiLanguage: true},
		"light only": {CustomerPortal: true, WhiteLabel: true},
	}

	for _, plan := range plans {
		for _, count := range counts {
			for name, flags := range flagSets {
				r := Calculate(count, plan, flags)
				label := fmt.Sprintf("plan=%s count=%d flags=%s", plan, count, name)

				assert.Empty(t, r.Validate(), label)
				assert.LessOrEqual(t, r.CPUCores, float64(domain.MaxCPUCores), label)
				assert.LessOrEqual(t, r.MemoryGB, float64(domain.MaxMemoryGB), label)
				assert.LessOrEqual(t, r.StorageGB, domain.MaxStorageGB, label)
			}
		}
	}
}

// More customers never means fewer resources.
func TestCalculate_MonotonicInCustomerCount(t *testing.T) {
	flags := domain.DefaultFeatureFlags(domain.PlanPremium)
	prev := Calculate(1, domain.PlanPremium, flags)

	for count := 1000; count <= 50000; count += 1000 {
		next := Calculate(count, domain.PlanPremium, flags)
		assert.GreaterOrEqual(t, next.CPUCores, prev.CPUCores, "count=%d", count)
		assert.GreaterOrEqual(t, next.MemoryGB, prev.MemoryGB, "count=%d", count)
		assert.GreaterOrEqual(t, next.StorageGB, prev.StorageGB, "count=%d", count)
		prev = next
	}
}

// =============================================================================
// Limit Validation Tests
// =============================================================================

func TestValidateLimits_Passes(t *testing.T) {
	r := Calculate(500, domain.PlanPremium, domain.FeatureFlags{})
	assert.NoError(t, ValidateLimits("acme", r))
}

func TestValidateLimits_ListsEveryViolation(t *testing.T) {
	custom := domain.ResourceRequirements{
		CPUCores:              32.0,
		MemoryGB:              128.0,
		StorageGB:             1000,
		MaxConnections:        100,
		MaxConcurrentRequests: 50,
	}

	err := ValidateLimits("acme", custom)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResourceCalculation)

	var pe *domain.ProvisionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "acme", pe.ISPID)
	assert.Len(t, pe.Detail, 3)
}

// =============================================================================
// Plan Recommendation Tests
// =============================================================================

func TestRecommendPlan_CustomerThresholds(t *testing.T) {
	tests := []struct {
		count int
		want  domain.PlanType
	}{
		{1, domain.PlanStandard},
		{100, domain.PlanStandard},
		{101, domain.PlanPremium},
		{1000, domain.PlanPremium},
		{1001, domain.PlanEnterprise},
		{50000, domain.PlanEnterprise},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("count=%d", tt.count), func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendPlan(tt.count, nil))
		})
	}
}

func TestRecommendPlan_FeatureForcesEscalation(t *testing.T) {
	assert.Equal(t, domain.PlanPremium, RecommendPlan(10, []string{"analytics_dashboard"}))
	assert.Equal(t, domain.PlanEnterprise, RecommendPlan(10, []string{"advanced_reporting"}))
	assert.Equal(t, domain.PlanEnterprise, RecommendPlan(10, []string{"white_label"}))
}

func TestRecommendPlan_FeatureNeverDowngrades(t *testing.T) {
	// A premium-tier feature on an enterprise-scale count stays enterprise.
	assert.Equal(t, domain.PlanEnterprise, RecommendPlan(5000, []string{"api_webhooks"}))
}

func TestRecommendPlan_UnknownFeatureIgnored(t *testing.T) {
	assert.Equal(t, domain.PlanStandard, RecommendPlan(50, []string{"holographic_ui"}))
}

func TestRecommendPlan_MonotonicInCustomerCount(t *testing.T) {
	features := []string{"analytics_dashboard"}
	for count := 1; count <= 25000; count += 250 {
		lower := RecommendPlan(count, features)
		higher := RecommendPlan(count*2, features)
		assert.GreaterOrEqual(t, higher.Rank(), lower.Rank(), "count=%d", count)
	}
}

// =============================================================================
// Cost Estimation Tests
// =============================================================================

func TestEstimateCost(t *testing.T) {
	r := domain.ResourceRequirements{CPUCores: 1.0, MemoryGB: 2.0, StorageGB: 10}

	cost := EstimateCost(r)
	assert.InDelta(t, 29.2, cost.CPUMonthly, 0.01)
	assert.InDelta(t, 14.6, cost.MemoryMonthly, 0.01)
	assert.InDelta(t, 1.0, cost.StorageMonthly, 0.01)
	assert.InDelta(t, 44.8, cost.TotalMonthly, 0.01)
	assert.Equal(t, "USD", cost.Currency)
}

func TestEstimateCost_ScalesWithResources(t *testing.T) {
	small := EstimateCost(Calculate(100, domain.PlanStandard, domain.FeatureFlags{}))
	large := EstimateCost(Calculate(10000, domain.PlanEnterprise, domain.DefaultFeatureFlags(domain.PlanEnterprise)))

	assert.Greater(t, large.TotalMonthly, small.TotalMonthly)
}
