// Package health implements the HTTP probing half of health validation.
// The probe set, criticality and aggregation rules live in
// internal/core/health; this package only performs the GETs.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	corehealth "github.com/michaelayoade/dotmac-framework-sub020/internal/core/health"
)

// =============================================================================
// Validator
// =============================================================================

// Config configures the health validator.
type Config struct {
	// ProbeTimeout is the budget for one HTTP probe.
	// Default: 5 seconds.
	ProbeTimeout time.Duration

	// CheckInterval is the pause between polls when a wait call does not
	// specify one. Default: 5 seconds.
	CheckInterval time.Duration

	// MaxWait is the wait budget when a wait call does not specify one.
	// Default: 120 seconds.
	MaxWait time.Duration

	// Client overrides the probe HTTP client. When nil one is built with
	// ProbeTimeout.
	Client *http.Client
}

// DefaultConfig returns the default validator configuration.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:  5 * time.Second,
		CheckInterval: 5 * time.Second,
		MaxWait:       120 * time.Second,
	}
}

// Validator probes a deployed tenant stack over HTTP and aggregates the
// outcomes into a ContainerHealth snapshot.
type Validator struct {
	client *http.Client
	config Config
	logger *slog.Logger
}

// NewValidator creates a health validator.
func NewValidator(config Config, logger *slog.Logger) *Validator {
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = 5 * time.Second
	}
	if config.MaxWait == 0 {
		config.MaxWait = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.ProbeTimeout}
	}

	return &Validator{
		client: client,
		config: config,
		logger: logger.With("component", "health_validator"),
	}
}

// =============================================================================
// Validation
// =============================================================================

// Validate runs every probe once against baseURL and aggregates the
// outcomes. Probes are independent: one failing check never stops the
// others, so the snapshot always names every failing subsystem. Probe
// failures are data, not errors.
func (v *Validator) Validate(ctx context.Context, ispID, baseURL string, extra ...corehealth.Check) domain.ContainerHealth {
	checks := append(corehealth.DefaultChecks(), extra...)
	results := make([]corehealth.ProbeResult, 0, len(checks))

	for _, check := range checks {
		results = append(results, v.probe(ctx, baseURL, check))
	}

	snapshot := corehealth.Aggregate(results, time.Now().UTC())
	v.logger.Debug("health validated",
		"isp_id", ispID,
		"base_url", baseURL,
		"status", snapshot.OverallStatus,
		"failed_checks", snapshot.FailedChecks,
	)
	return snapshot
}

// probe performs one GET against baseURL+check.Path. The SSL probe
// auto-passes on plain-HTTP stacks, which have no TLS termination to
// validate.
func (v *Validator) probe(ctx context.Context, baseURL string, check corehealth.Check) corehealth.ProbeResult {
	if check.Name == corehealth.CheckSSL && corehealth.SkipSSLCheck(baseURL) {
		return corehealth.ProbeResult{Check: check, Passed: true}
	}

	result := corehealth.ProbeResult{Check: check}
	start := time.Now()

	url := strings.TrimRight(baseURL, "/") + check.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("build request: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}

	resp, err := v.client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.ResponseTime = time.Since(start)
	result.StatusCode = resp.StatusCode
	result.Passed = resp.StatusCode == http.StatusOK
	if !result.Passed {
		result.Error = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return result
}

// =============================================================================
// Wait Loop
// =============================================================================

// WaitForHealthy polls Validate at interval until the stack reports healthy
// or maxWait elapses. Per-poll failures are logged and retried, never
// raised; only budget exhaustion produces an error. Zero maxWait or
// interval fall back to the configured defaults.
func (v *Validator) WaitForHealthy(ctx context.Context, ispID, baseURL string, maxWait, interval time.Duration, extra ...corehealth.Check) (domain.ContainerHealth, error) {
	if maxWait <= 0 {
		maxWait = v.config.MaxWait
	}
	if interval <= 0 {
		interval = v.config.CheckInterval
	}

	v.logger.Info("waiting for stack to become healthy",
		"isp_id", ispID,
		"base_url", baseURL,
		"max_wait", maxWait,
		"interval", interval,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.Now().Add(maxWait)
	attempt := 0
	var last domain.ContainerHealth

	for {
		attempt++
		last = v.Validate(ctx, ispID, baseURL, extra...)
		if last.OverallStatus == domain.HealthStatusHealthy {
			v.logger.Info("stack healthy", "isp_id", ispID, "attempts", attempt)
			return last, nil
		}

		v.logger.Debug("stack not healthy yet",
			"isp_id", ispID,
			"attempt", attempt,
			"failed_checks", last.FailedChecks,
		)

		if time.Now().After(deadline) {
			return last, domain.NewHealthCheckError(ispID,
				fmt.Sprintf("not healthy after %s (%d attempts)", maxWait, attempt),
				last.FailedChecks)
		}

		select {
		case <-ctx.Done():
			return last, domain.NewHealthCheckError(ispID,
				fmt.Sprintf("health wait interrupted: %v", ctx.Err()),
				last.FailedChecks)
		case <-ticker.C:
		}
	}
}
