package provision

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Active Operation Registry
// =============================================================================

// ErrOperationInFlight is returned when a tenant already has a provisioning
// run in progress. The second call is rejected before any state changes.
var ErrOperationInFlight = errors.New("provisioning operation already in flight")

// Registry tracks in-flight provisioning runs keyed by tenant. The run
// goroutine publishes point-in-time snapshots at phase boundaries; readers
// only ever see a published snapshot, never the result being mutated, so
// status lookups need no coordination with the run itself.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*domain.ProvisioningResult
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*domain.ProvisioningResult)}
}

// Begin claims the tenant slot with the run's initial snapshot. A tenant
// with a run already in flight is rejected.
func (r *Registry) Begin(ispID string, snapshot *domain.ProvisioningResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[ispID]; exists {
		return fmt.Errorf("%w: %s", ErrOperationInFlight, ispID)
	}
	r.runs[ispID] = snapshot
	return nil
}

// Publish replaces the tenant's visible snapshot. Called by the run
// goroutine after every status change.
func (r *Registry) Publish(ispID string, snapshot *domain.ProvisioningResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[ispID] = snapshot
}

// Finish releases the tenant slot at the end of a run.
func (r *Registry) Finish(ispID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, ispID)
}

// Get returns the latest published snapshot for a tenant.
func (r *Registry) Get(ispID string) (*domain.ProvisioningResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot, ok := r.runs[ispID]
	return snapshot, ok
}

// Active returns the latest snapshot of every in-flight run, oldest first.
func (r *Registry) Active() []*domain.ProvisioningResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.ProvisioningResult, 0, len(r.runs))
	for _, snapshot := range r.runs {
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ISPID < out[j].ISPID
	})
	return out
}
