package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	// Clear environment
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "data/provisioner.db", cfg.Database.DSN)
	assert.Equal(t, "docker", cfg.Provisioning.Infrastructure)
	assert.Equal(t, "tenants.localhost", cfg.Provisioning.BaseDomain)
	assert.Equal(t, "dotmac/isp-framework:latest", cfg.Provisioning.Image)
	assert.Equal(t, 90*time.Second, cfg.Provisioning.HealthWait)
	assert.Equal(t, 5*time.Second, cfg.Provisioning.HealthInterval)
	assert.Equal(t, 120*time.Second, cfg.Provisioning.RollbackTimeout)
	assert.True(t, cfg.Provisioning.EnableMonitoring)
	assert.Empty(t, cfg.Provisioning.MasterSecret)
	assert.Equal(t, 720*time.Hour, cfg.Provisioning.ResultRetention)
	assert.Equal(t, "traefik", cfg.Kubernetes.IngressClass)
	assert.Equal(t, "dotmac_edge", cfg.Docker.EdgeNetwork)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	// Create temp config file
	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  write_timeout: 20m
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

provisioning:
  infrastructure: "kubernetes"
  base_domain: "tenants.dotmac.io"
  image: "dotmac/isp-framework:1.4.2"
  health_wait: 3m
  result_retention: 48h

kubernetes:
  kubeconfig: "/etc/dotmac/kubeconfig"
  storage_class: "fast-ssd"

log:
  level: "debug"
  format: "text"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 20*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "kubernetes", cfg.Provisioning.Infrastructure)
	assert.Equal(t, "tenants.dotmac.io", cfg.Provisioning.BaseDomain)
	assert.Equal(t, "dotmac/isp-framework:1.4.2", cfg.Provisioning.Image)
	assert.Equal(t, 3*time.Minute, cfg.Provisioning.HealthWait)
	assert.Equal(t, 48*time.Hour, cfg.Provisioning.ResultRetention)
	assert.Equal(t, "/etc/dotmac/kubeconfig", cfg.Kubernetes.Kubeconfig)
	assert.Equal(t, "fast-ssd", cfg.Kubernetes.StorageClass)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_FileKeepsDefaultsForOmittedKeys(t *testing.T) {
	clearEnv(t)

	configContent := `
provisioning:
  base_domain: "tenants.dotmac.io"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "tenants.dotmac.io", cfg.Provisioning.BaseDomain)
	assert.Equal(t, "docker", cfg.Provisioning.Infrastructure)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	// Set environment variables
	t.Setenv("DOTMAC_SERVER_HOST", "192.168.1.1")
	t.Setenv("DOTMAC_SERVER_PORT", "3000")
	t.Setenv("DOTMAC_DATABASE_DSN", "/custom/path.db")
	t.Setenv("DOTMAC_PROVISIONING_INFRASTRUCTURE", "docker_compose")
	t.Setenv("DOTMAC_PROVISIONING_MASTER_SECRET", "platform-master-secret")
	t.Setenv("DOTMAC_LOG_LEVEL", "warn")
	t.Setenv("DOTMAC_LOG_FORMAT", "text")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "docker_compose", cfg.Provisioning.Infrastructure)
	assert.Equal(t, "platform-master-secret", cfg.Provisioning.MasterSecret)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err) // Should not error, just use defaults

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	// Create invalid config file
	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestLoadConfig_InvalidInfrastructure(t *testing.T) {
	clearEnv(t)

	t.Setenv("DOTMAC_PROVISIONING_INFRASTRUCTURE", "openstack")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openstack")
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_JSONFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
	// Can't easily test JSON format, but at least ensure it's created
}

func TestSetupLogger_TextFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "invalid",
			Format: "json",
		},
	}

	// Should fall back to info level, not panic
	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_DebugLevel(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "debug",
			Format: "json",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_WarnLevel(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "json",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_ErrorLevel(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "error",
			Format: "json",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"DOTMAC_SERVER_HOST",
		"DOTMAC_SERVER_PORT",
		"DOTMAC_DATABASE_DSN",
		"DOTMAC_PROVISIONING_INFRASTRUCTURE",
		"DOTMAC_PROVISIONING_BASE_DOMAIN",
		"DOTMAC_PROVISIONING_MASTER_SECRET",
		"DOTMAC_LOG_LEVEL",
		"DOTMAC_LOG_FORMAT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
