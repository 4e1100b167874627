// Package resources computes the compute envelope for a tenant stack from
// customer count, plan tier and feature flags. This is part of the
// Functional Core - all functions are pure with no I/O.
package resources

import (
	"fmt"
	"math"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Base Allocation Table
// =============================================================================

// BaseAllocation returns the starting envelope for a plan tier before
// customer scaling and feature multipliers are applied.
func BaseAllocation(plan domain.PlanType) domain.ResourceRequirements {
	switch plan {
	case domain.PlanEnterprise:
		return domain.ResourceRequirements{
			CPUCores:              4.0,
			MemoryGB:              8.0,
			StorageGB:             200,
			MaxConnections:        200,
			MaxConcurrentRequests: 100,
		}
	case domain.PlanPremium:
		return domain.ResourceRequirements{
			CPUCores:              2.0,
			MemoryGB:              4.0,
			StorageGB:             50,
			MaxConnections:        100,
			MaxConcurrentRequests: 50,
		}
	default:
		return domain.ResourceRequirements{
			CPUCores:              1.0,
			MemoryGB:              2.0,
			StorageGB:             10,
			MaxConnections:        50,
			MaxConcurrentRequests: 25,
		}
	}
}

// Linear scaling terms applied per customer.
const (
	cpuCoresPerThousandCustomers  = 0.2
	memoryGBPerFiveHundred        = 0.5
	storageGBPerThousandCustomers = 2.0
	connectionsPerCustomer        = 0.05
	concurrentPerHundredCustomers = 2.0
)

// featureMultipliers lists the resource-heavy features and the factor each
// applies to CPU, memory and storage. Multipliers compound: a tenant with
// analytics and reporting enabled pays 1.2 * 1.25.
var featureMultipliers = map[string]float64{
	"analytics_dashboard": 1.20,
	"api_webhooks":        1.10,
	"bulk_operations":     1.15,
	"advanced_reporting":  1.25,
	"multi_language":      1.05,
}

// =============================================================================
// Calculation
// =============================================================================

// Calculate derives the optimal resource envelope for a tenant.
// Deterministic: the same inputs always produce the same output, and the
// output always respects the platform ceilings and allocation granularity.
func Calculate(customerCount int, plan domain.PlanType, flags domain.FeatureFlags) domain.ResourceRequirements {
	base := BaseAllocation(plan)
	customers := float64(customerCount)

	cpu := base.CPUCores + cpuCoresPerThousandCustomers*customers/1000
	memory := base.MemoryGB + memoryGBPerFiveHundred*customers/500
	storage := float64(base.StorageGB) + storageGBPerThousandCustomers*customers/1000
	connections := float64(base.MaxConnections) + connectionsPerCustomer*customers
	concurrent := float64(base.MaxConcurrentRequests) + concurrentPerHundredCustomers*customers/100

	multiplier := featureMultiplier(flags)
	cpu *= multiplier
	memory *= multiplier
	storage *= multiplier

	return domain.ResourceRequirements{
		CPUCores:              clampFloat(roundToTenth(cpu), domain.MinCPUCores, domain.MaxCPUCores),
		MemoryGB:              clampFloat(ceilToHalf(memory), domain.MinMemoryGB, domain.MaxMemoryGB),
		StorageGB:             clampInt(ceilToWhole(storage), domain.MinStorageGB, domain.MaxStorageGB),
		MaxConnections:        clampInt(ceilToWhole(connections), domain.MinConnections, domain.MaxConnections),
		MaxConcurrentRequests: clampInt(ceilToWhole(concurrent), domain.MinConcurrentRequests, domain.MaxConcurrentRequests),
	}
}

// featureMultiplier compounds the multipliers of every enabled heavy feature.
func featureMultiplier(flags domain.FeatureFlags) float64 {
	multiplier := 1.0
	for _, name := range flags.Enabled() {
		if m, ok := featureMultipliers[name]; ok {
			multiplier *= m
		}
	}
	return multiplier
}

// ValidateLimits checks an envelope against the platform limits and reports
// every violated dimension. Used for caller-supplied custom resources, which
// bypass Calculate and its clamping.
func ValidateLimits(ispID string, r domain.ResourceRequirements) error {
	errs := r.Validate()
	if len(errs) == 0 {
		return nil
	}

	violations := make([]string, len(errs))
	for i, err := range errs {
		violations[i] = err.Error()
	}
	return domain.NewResourceCalculationError(ispID, violations)
}

// =============================================================================
// Plan Recommendation
// =============================================================================

// Customer-count thresholds above which a higher plan tier is recommended.
const (
	premiumCustomerThreshold    = 100
	enterpriseCustomerThreshold = 1000
)

// featureMinimumPlan maps a feature to the lowest plan tier that carries it.
// Requesting the feature forces the recommendation up regardless of size.
var featureMinimumPlan = map[string]domain.PlanType{
	"analytics_dashboard": domain.PlanPremium,
	"api_webhooks":        domain.PlanPremium,
	"bulk_operations":     domain.PlanPremium,
	"custom_domains":      domain.PlanPremium,
	"advanced_reporting":  domain.PlanEnterprise,
	"multi_language":      domain.PlanEnterprise,
	"white_label":         domain.PlanEnterprise,
	"sso_integration":     domain.PlanEnterprise,
	"priority_support":    domain.PlanEnterprise,
}

// RecommendPlan suggests the smallest plan tier that fits a customer count
// and a set of required features. Advisory only; the caller may still
// provision any plan. Monotonic in customerCount.
func RecommendPlan(customerCount int, requiredFeatures []string) domain.PlanType {
	plan := domain.PlanStandard
	if customerCount > premiumCustomerThreshold {
		plan = domain.PlanPremium
	}
	if customerCount > enterpriseCustomerThreshold {
		plan = domain.PlanEnterprise
	}

	for _, feature := range requiredFeatures {
		if minimum, ok := featureMinimumPlan[feature]; ok && minimum.Rank() > plan.Rank() {
			plan = minimum
		}
	}

	return plan
}

// =============================================================================
// Cost Estimation
// =============================================================================

// Fixed unit rates in USD. Informational only.
const (
	cpuHourlyRate      = 0.04 // per core-hour
	memoryHourlyRate   = 0.01 // per GB-hour
	storageMonthlyRate = 0.10 // per GB-month
	hoursPerMonth      = 730
)

// CostEstimate is an advisory monthly cost breakdown for an envelope.
type CostEstimate struct {
	CPUMonthly     float64 `json:"cpu_monthly"`
	MemoryMonthly  float64 `json:"memory_monthly"`
	StorageMonthly float64 `json:"storage_monthly"`
	TotalMonthly   float64 `json:"total_monthly"`
	Currency       string  `json:"currency"`
}

// EstimateCost prices an envelope at the fixed unit rates. No invariant is
// enforced on the output; billing truth lives elsewhere.
func EstimateCost(r domain.ResourceRequirements) CostEstimate {
	cpu := r.CPUCores * cpuHourlyRate * hoursPerMonth
	memory := r.MemoryGB * memoryHourlyRate * hoursPerMonth
	storage := float64(r.StorageGB) * storageMonthlyRate

	return CostEstimate{
		CPUMonthly:     round2(cpu),
		MemoryMonthly:  round2(memory),
		StorageMonthly: round2(storage),
		TotalMonthly:   round2(cpu + memory + storage),
		Currency:       "USD",
	}
}

// =============================================================================
// Rounding Helpers
// =============================================================================

const epsilon = 1e-9

func roundToTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func ceilToHalf(v float64) float64 {
	return math.Ceil(v*2-epsilon) / 2
}

func ceilToWhole(v float64) int {
	return int(math.Ceil(v - epsilon))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Describe summarizes an envelope for log lines.
func Describe(r domain.ResourceRequirements) string {
	return fmt.Sprintf("%.1f cores, %.1f GB memory, %d GB storage, %d connections, %d concurrent",
		r.CPUCores, r.MemoryGB, r.StorageGB, r.MaxConnections, r.MaxConcurrentRequests)
}
