package store

import (
	"context"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for provisioning results. The
// orchestrator itself never touches the store; the API layer saves each
// finished run and serves lookups from here.
type Store interface {
	// CreateResult persists a finished provisioning result, including its
	// audit log and the encrypted secret snapshot.
	CreateResult(ctx context.Context, result *domain.ProvisioningResult) error

	// GetResult returns the result of one provisioning run by request ID.
	GetResult(ctx context.Context, requestID string) (*domain.ProvisioningResult, error)

	// GetLatestResultByISP returns the most recent result for a tenant.
	GetLatestResultByISP(ctx context.Context, ispID string) (*domain.ProvisioningResult, error)

	// ListResults returns stored results, newest first.
	ListResults(ctx context.Context, opts ListOptions) ([]domain.ProvisioningResult, error)

	// ListResultsByISP returns a tenant's provisioning history, newest first.
	ListResultsByISP(ctx context.Context, ispID string, opts ListOptions) ([]domain.ProvisioningResult, error)

	// DeleteResultsBefore removes results started before the cutoff and
	// reports how many were deleted. Retention housekeeping.
	DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// WithTx runs fn inside a transaction, committing on nil and rolling
	// back on error.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Close releases the database connection.
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns the default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize clamps list options to valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
