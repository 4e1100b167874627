// Package validation provides the pure pre-flight checks run before any
// infrastructure is touched.
//
// This package contains the functional core logic for validating
// provisioning requests. All functions are pure (no I/O, no side effects);
// the infrastructure-readiness half of pre-flight lives with the adapters,
// which own the platform connections.
//
// # Functions
//
//   - ValidateRequest: Check every request parameter against its bounds
//   - Violations: Flatten validation errors into report strings
//
// # Usage
//
// The orchestrator runs these checks as its first phase:
//
//	if errs := validation.ValidateRequest(req); len(errs) > 0 {
//	    // Fail the operation with a ValidationError listing every problem
//	}
package validation
