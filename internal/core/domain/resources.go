package domain

import (
	"errors"
	"fmt"
	"math"
)

// =============================================================================
// Resource Requirements
// =============================================================================

// Hard per-tenant ceilings. Requirements above these are rejected rather
// than clamped so the caller always knows what was actually requested.
const (
	MaxCPUCores           = 16.0
	MaxMemoryGB           = 64.0
	MaxStorageGB          = 500
	MaxConnections        = 2000
	MaxConcurrentRequests = 1000
)

// Floors below which a tenant stack cannot run.
const (
	MinCPUCores           = 0.1
	MinMemoryGB           = 0.5
	MinStorageGB          = 1
	MinConnections        = 10
	MinConcurrentRequests = 5
)

var (
	ErrResourceBelowMinimum = errors.New("resource requirement below minimum")
	ErrResourceAboveMaximum = errors.New("resource requirement above maximum")
	ErrResourceGranularity  = errors.New("resource requirement not on allocation granularity")
)

// ResourceRequirements describes the compute envelope allocated to one
// tenant stack. CPUCores is in whole cores with 0.1-core granularity,
// MemoryGB in gigabytes with 0.5 GB granularity.
type ResourceRequirements struct {
	CPUCores              float64 `json:"cpu_cores"`
	MemoryGB              float64 `json:"memory_gb"`
	StorageGB             int     `json:"storage_gb"`
	MaxConnections        int     `json:"max_connections"`
	MaxConcurrentRequests int     `json:"max_concurrent_requests"`
}

// floatEpsilon absorbs binary floating point error when checking that a
// value sits on a 0.1 or 0.5 step.
const floatEpsilon = 1e-9

func onStep(value, step float64) bool {
	scaled := value / step
	return math.Abs(scaled-math.Round(scaled)) < floatEpsilon
}

// Validate checks the requirements against the per-tenant floors, ceilings
// and allocation granularity. All violations are returned, not just the
// first, so a caller can report the full picture in one pass.
func (r ResourceRequirements) Validate() []error {
	var errs []error

	if r.CPUCores < MinCPUCores {
		errs = append(errs, fmt.Errorf("%w: cpu_cores %.2f < %.1f", ErrResourceBelowMinimum, r.CPUCores, MinCPUCores))
	}
	if r.CPUCores > MaxCPUCores {
		errs = append(errs, fmt.Errorf("%w: cpu_cores %.2f > %.0f", ErrResourceAboveMaximum, r.CPUCores, MaxCPUCores))
	}
	if !onStep(r.CPUCores, 0.1) {
		errs = append(errs, fmt.Errorf("%w: cpu_cores %v is not a multiple of 0.1", ErrResourceGranularity, r.CPUCores))
	}

	if r.MemoryGB < MinMemoryGB {
		errs = append(errs, fmt.Errorf("%w: memory_gb %.2f < %.1f", ErrResourceBelowMinimum, r.MemoryGB, MinMemoryGB))
	}
	if r.MemoryGB > MaxMemoryGB {
		errs = append(errs, fmt.Errorf("%w: memory_gb %.2f > %.0f", ErrResourceAboveMaximum, r.MemoryGB, MaxMemoryGB))
	}
	if !onStep(r.MemoryGB, 0.5) {
		errs = append(errs, fmt.Errorf("%w: memory_gb %v is not a multiple of 0.5", ErrResourceGranularity, r.MemoryGB))
	}

	if r.StorageGB < MinStorageGB {
		errs = append(errs, fmt.Errorf("%w: storage_gb %d < %d", ErrResourceBelowMinimum, r.StorageGB, MinStorageGB))
	}
	if r.StorageGB > MaxStorageGB {
		errs = append(errs, fmt.Errorf("%w: storage_gb %d > %d", ErrResourceAboveMaximum, r.StorageGB, MaxStorageGB))
	}

	if r.MaxConnections < MinConnections {
		errs = append(errs, fmt.Errorf("%w: max_connections %d < %d", ErrResourceBelowMinimum, r.MaxConnections, MinConnections))
	}
	if r.MaxConnections > MaxConnections {
		errs = append(errs, fmt.Errorf("%w: max_connections %d > %d", ErrResourceAboveMaximum, r.MaxConnections, MaxConnections))
	}

	if r.MaxConcurrentRequests < MinConcurrentRequests {
		errs = append(errs, fmt.Errorf("%w: max_concurrent_requests %d < %d", ErrResourceBelowMinimum, r.MaxConcurrentRequests, MinConcurrentRequests))
	}
	if r.MaxConcurrentRequests > MaxConcurrentRequests {
		errs = append(errs, fmt.Errorf("%w: max_concurrent_requests %d > %d", ErrResourceAboveMaximum, r.MaxConcurrentRequests, MaxConcurrentRequests))
	}

	return errs
}

// CPUMillicores converts the core count to Kubernetes millicore units.
func (r ResourceRequirements) CPUMillicores() int64 {
	return int64(math.Round(r.CPUCores * 1000))
}

// MemoryBytes converts the memory allocation to bytes.
func (r ResourceRequirements) MemoryBytes() int64 {
	return int64(math.Round(r.MemoryGB * 1024 * 1024 * 1024))
}

// StorageBytes converts the storage allocation to bytes.
func (r ResourceRequirements) StorageBytes() int64 {
	return int64(r.StorageGB) * 1024 * 1024 * 1024
}
