package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Kubernetes   KubernetesConfig   `mapstructure:"kubernetes"`
	Docker       DockerConfig       `mapstructure:"docker"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout must exceed the longest provisioning budget because the
	// provision call is synchronous. Zero disables it; each run is bounded
	// by its own request timeout instead.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the result store configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ProvisioningConfig holds the orchestrator configuration.
type ProvisioningConfig struct {
	// Infrastructure selects the platform this daemon provisions against:
	// kubernetes, docker or docker_compose. One adapter is constructed at
	// startup; requests for other platforms are rejected.
	Infrastructure string `mapstructure:"infrastructure"`

	// BaseDomain is the platform domain tenant hostnames are derived under.
	BaseDomain string `mapstructure:"base_domain"`

	// Image is the tenant application image deployed for every stack.
	Image string `mapstructure:"image"`

	// TemplateName selects the deployment template. Empty uses the
	// built-in isp-framework template.
	TemplateName string `mapstructure:"template_name"`

	HealthWait       time.Duration `mapstructure:"health_wait"`
	HealthInterval   time.Duration `mapstructure:"health_interval"`
	RollbackTimeout  time.Duration `mapstructure:"rollback_timeout"`
	EnableMonitoring bool          `mapstructure:"enable_monitoring"`

	// MasterSecret is the platform secret tenant secret snapshots are
	// encrypted under. Set via DOTMAC_PROVISIONING_MASTER_SECRET; when
	// empty, snapshots are disabled.
	MasterSecret string `mapstructure:"master_secret"`

	// SecretsSalt feeds the key derivation together with the master secret.
	SecretsSalt string `mapstructure:"secrets_salt"`

	// ResultRetention bounds how long finished results are kept in the
	// store. Zero disables the retention sweep.
	ResultRetention time.Duration `mapstructure:"result_retention"`
}

// KubernetesConfig holds the Kubernetes adapter configuration.
type KubernetesConfig struct {
	// Kubeconfig is the path to a kubeconfig file. Empty tries in-cluster
	// config first, then the default kubeconfig location.
	Kubeconfig string `mapstructure:"kubeconfig"`

	IngressClass  string `mapstructure:"ingress_class"`
	ClusterIssuer string `mapstructure:"cluster_issuer"`
	StorageClass  string `mapstructure:"storage_class"`
}

// DockerConfig holds the Docker adapter configuration.
type DockerConfig struct {
	// Host is the Docker daemon address. Empty uses the environment.
	Host string `mapstructure:"host"`

	// EdgeNetwork is the shared reverse-proxy network tenant containers
	// are attached to.
	EdgeNetwork string `mapstructure:"edge_network"`

	// CertResolver names the ACME resolver used for tenant certificates.
	CertResolver string `mapstructure:"cert_resolver"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "120s")
	v.SetDefault("database.dsn", "data/provisioner.db")
	v.SetDefault("provisioning.infrastructure", "docker")
	v.SetDefault("provisioning.base_domain", "tenants.localhost")
	v.SetDefault("provisioning.image", "dotmac/isp-framework:latest")
	v.SetDefault("provisioning.template_name", "")
	v.SetDefault("provisioning.health_wait", "90s")
	v.SetDefault("provisioning.health_interval", "5s")
	v.SetDefault("provisioning.rollback_timeout", "120s")
	v.SetDefault("provisioning.enable_monitoring", true)
	v.SetDefault("provisioning.master_secret", "")
	v.SetDefault("provisioning.secrets_salt", "dotmac-provisioner")
	v.SetDefault("provisioning.result_retention", "720h")
	v.SetDefault("kubernetes.kubeconfig", "")
	v.SetDefault("kubernetes.ingress_class", "traefik")
	v.SetDefault("kubernetes.cluster_issuer", "letsencrypt")
	v.SetDefault("kubernetes.storage_class", "")
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.edge_network", "dotmac_edge")
	v.SetDefault("docker.cert_resolver", "letsencrypt")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("DOTMAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !domain.InfrastructureType(cfg.Provisioning.Infrastructure).IsValid() {
		return nil, fmt.Errorf("unsupported provisioning.infrastructure %q (want kubernetes, docker or docker_compose)",
			cfg.Provisioning.Infrastructure)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
