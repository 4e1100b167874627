// Package health contains the pure health-check policy: which probes run
// against a tenant stack, which of them are critical, and how individual
// probe outcomes aggregate into one verdict. Following ADR-002: Values as
// Boundaries - this package contains NO I/O; the HTTP probing lives in
// internal/shell/health.
package health

import (
	"strings"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Check Definitions
// =============================================================================

// Fixed check names. The two critical checks decide the overall verdict;
// cache and SSL degrade detail only.
const (
	CheckAPI      = "api_health"
	CheckDatabase = "database_health"
	CheckCache    = "cache_health"
	CheckSSL      = "ssl_health"
)

// Check describes one HTTP probe against the deployed stack.
type Check struct {
	Name     string
	Path     string
	Critical bool
}

// DefaultChecks returns the fixed probe set every tenant stack must expose.
func DefaultChecks() []Check {
	return []Check{
		{Name: CheckAPI, Path: "/health/live", Critical: true},
		{Name: CheckDatabase, Path: "/health/database", Critical: true},
		{Name: CheckCache, Path: "/health/cache", Critical: false},
		{Name: CheckSSL, Path: "/health/ssl", Critical: false},
	}
}

// CustomCheck builds a non-critical probe for a caller-supplied path.
func CustomCheck(name, path string) Check {
	return Check{Name: name, Path: path, Critical: false}
}

// SkipSSLCheck reports whether the SSL probe should auto-pass: a stack
// served over plain HTTP has no TLS termination to validate.
func SkipSSLCheck(baseURL string) bool {
	return !strings.HasPrefix(strings.ToLower(baseURL), "https://")
}

// =============================================================================
// Aggregation (Pure Functions)
// =============================================================================

// ProbeResult is the outcome of one probe attempt.
type ProbeResult struct {
	Check        Check
	Passed       bool
	StatusCode   int
	ResponseTime time.Duration
	Error        string
}

// Aggregate folds individual probe results into one ContainerHealth
// snapshot. The overall status is healthy only when every critical probe
// passed; non-critical failures are recorded in FailedChecks and Errors but
// do not flip the verdict. With no results at all the status is unknown.
func Aggregate(results []ProbeResult, checkedAt time.Time) domain.ContainerHealth {
	health := domain.ContainerHealth{
		OverallStatus: domain.HealthStatusUnknown,
		ResponseTimes: make(map[string]time.Duration, len(results)),
		CheckedAt:     checkedAt,
	}
	if len(results) == 0 {
		return health
	}

	criticalFailed := false
	for _, r := range results {
		health.ResponseTimes[r.Check.Name] = r.ResponseTime

		switch r.Check.Name {
		case CheckAPI:
			health.APIHealthy = r.Passed
		case CheckDatabase:
			health.DatabaseHealthy = r.Passed
		case CheckCache:
			health.CacheHealthy = r.Passed
		case CheckSSL:
			health.SSLHealthy = r.Passed
		}

		if r.Passed {
			continue
		}
		health.FailedChecks = append(health.FailedChecks, r.Check.Name)
		if r.Error != "" {
			if health.Errors == nil {
				health.Errors = make(map[string]string)
			}
			health.Errors[r.Check.Name] = r.Error
		}
		if r.Check.Critical {
			criticalFailed = true
		}
	}

	if criticalFailed {
		health.OverallStatus = domain.HealthStatusUnhealthy
	} else {
		health.OverallStatus = domain.HealthStatusHealthy
	}
	return health
}

// =============================================================================
// Retry Schedule
// =============================================================================

// Health-wait retry policy: attempts at the orchestrator level, with
// exponential backoff between them.
const (
	MaxWaitAttempts = 3
	baseBackoff     = 2 * time.Second
	maxBackoff      = 30 * time.Second
)

// Backoff returns the pause before retry number attempt (1-based): 2s, 4s,
// 8s, ... capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
