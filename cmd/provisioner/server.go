package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/crypto"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/api"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/health"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/infra"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/infra/dockerstack"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/infra/kube"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/metrics"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/provision"
	"github.com/michaelayoade/dotmac-framework-sub020/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitPlatformError   = 3
	ExitHTTPServerError = 4
)

// retentionSweepInterval is how often expired results are removed.
const retentionSweepInterval = time.Hour

// =============================================================================
// Server
// =============================================================================

// Server is the provisioning daemon: one HTTP surface over one platform
// adapter, a result store and the orchestrator.
type Server struct {
	config      *Config
	httpServer  *http.Server
	store       store.Store
	adapter     infra.Adapter
	provisioner *provision.Provisioner
	logger      *slog.Logger

	retentionStop chan struct{}
	retentionDone chan struct{}
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to the result store
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Construct the platform adapter selected for this daemon
	adapter, err := newAdapter(cfg, logger)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitPlatformError,
		}
	}

	// Verify the platform connection
	if err := adapter.Ready(context.Background()); err != nil {
		s.Close()
		adapter.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitPlatformError,
		}
	}

	// Secret snapshots need the platform master secret
	var secretsManager *crypto.SecretsManager
	if cfg.Provisioning.MasterSecret != "" {
		secretsManager, err = crypto.NewSecretsManager(cfg.Provisioning.MasterSecret, []byte(cfg.Provisioning.SecretsSalt))
		if err != nil {
			s.Close()
			adapter.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}
	} else {
		logger.Warn("provisioning.master_secret not configured, tenant secret snapshots disabled")
	}

	// Metrics on the process default registry
	recorder := metrics.New(nil)

	validator := health.NewValidator(health.Config{}, logger)

	provisioner := provision.New(
		adapter,
		nil,
		validator,
		secretsManager,
		recorder,
		provision.Config{
			BaseDomain:       cfg.Provisioning.BaseDomain,
			Image:            cfg.Provisioning.Image,
			TemplateName:     cfg.Provisioning.TemplateName,
			HealthWait:       cfg.Provisioning.HealthWait,
			HealthInterval:   cfg.Provisioning.HealthInterval,
			RollbackTimeout:  cfg.Provisioning.RollbackTimeout,
			EnableMonitoring: cfg.Provisioning.EnableMonitoring,
		},
		logger,
	)

	handler := api.NewHandler(provisioner, s, adapter, metrics.Handler(nil), logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:      cfg,
		httpServer:  httpServer,
		store:       s,
		adapter:     adapter,
		provisioner: provisioner,
		logger:      logger,
	}, nil
}

// newAdapter constructs the adapter for the configured platform.
func newAdapter(cfg *Config, logger *slog.Logger) (infra.Adapter, error) {
	platform := domain.InfrastructureType(cfg.Provisioning.Infrastructure)

	switch platform {
	case domain.InfraKubernetes:
		return kube.NewForConfig(cfg.Kubernetes.Kubeconfig, kube.Options{
			BaseDomain:    cfg.Provisioning.BaseDomain,
			IngressClass:  cfg.Kubernetes.IngressClass,
			ClusterIssuer: cfg.Kubernetes.ClusterIssuer,
			StorageClass:  cfg.Kubernetes.StorageClass,
		}, logger)

	case domain.InfraDocker, domain.InfraDockerCompose:
		client, err := dockerstack.NewEngineClient(cfg.Docker.Host)
		if err != nil {
			return nil, err
		}
		return dockerstack.New(client, platform, dockerstack.Options{
			BaseDomain:   cfg.Provisioning.BaseDomain,
			EdgeNetwork:  cfg.Docker.EdgeNetwork,
			CertResolver: cfg.Docker.CertResolver,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unsupported infrastructure %q", cfg.Provisioning.Infrastructure)
	}
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the result retention sweeper
	if s.config.Provisioning.ResultRetention > 0 {
		s.retentionStop = make(chan struct{})
		s.retentionDone = make(chan struct{})
		go s.runRetentionSweeper()
		s.logger.Info("result retention enabled",
			"retention", s.config.Provisioning.ResultRetention,
			"sweep_interval", retentionSweepInterval,
		)
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"platform", s.adapter.Platform(),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server. In-flight provisioning runs
// get until the shutdown timeout to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown",
		"active_operations", len(s.provisioner.ActiveOperations()),
	)

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the retention sweeper
	if s.retentionStop != nil {
		close(s.retentionStop)
		<-s.retentionDone
	}

	// Close the platform connection
	if err := s.adapter.Close(); err != nil {
		s.logger.Error("adapter close error", "error", err)
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// runRetentionSweeper periodically removes results older than the configured
// retention.
func (s *Server) runRetentionSweeper() {
	defer close(s.retentionDone)

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	// Clear any backlog from before the last restart
	s.sweepResults()

	for {
		select {
		case <-ticker.C:
			s.sweepResults()
		case <-s.retentionStop:
			return
		}
	}
}

func (s *Server) sweepResults() {
	cutoff := time.Now().UTC().Add(-s.config.Provisioning.ResultRetention)
	deleted, err := s.store.DeleteResultsBefore(context.Background(), cutoff)
	if err != nil {
		s.logger.Error("result retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("expired provisioning results removed",
			"count", deleted,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
