// Package store persists finished provisioning results for post-mortems
// and result lookups. SQLite via sqlx; schema managed by embedded
// golang-migrate migrations.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when no matching result exists.
	ErrNotFound = errors.New("result not found")

	// ErrDuplicateID is returned when saving a result whose request ID is
	// already stored.
	ErrDuplicateID = errors.New("result with this request ID already exists")

	// ErrConnectionFailed is returned when the database cannot be opened or
	// reached.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when schema migration fails.
	ErrMigrationFailed = errors.New("database migration failed")

	// ErrInvalidData is returned when a JSON column cannot be serialized or
	// parsed.
	ErrInvalidData = errors.New("invalid data format")

	// ErrTxFailed is returned when a transaction operation fails.
	ErrTxFailed = errors.New("transaction failed")
)

// StoreError wraps errors with the failing operation and entity context.
type StoreError struct {
	Op      string // operation that failed (e.g. "CreateResult")
	Entity  string // entity type (e.g. "result")
	ID      string // entity ID if applicable
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}
