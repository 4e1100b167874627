package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both a
// database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations applies the embedded SQL migrations.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Result Row
// =============================================================================

// resultRow represents a provisioning result row in the database. Nested
// structs and the log trail are stored as JSON text; times as RFC 3339.
type resultRow struct {
	RequestID          string  `db:"request_id"`
	ISPID              string  `db:"isp_id"`
	Success            bool    `db:"success"`
	Status             string  `db:"status"`
	Monitoring         string  `db:"monitoring"`
	AllocatedResources *string `db:"allocated_resources"`
	Artifacts          *string `db:"artifacts"`
	Health             *string `db:"health"`
	ErrorMessage       string  `db:"error_message"`
	ErrorStage         string  `db:"error_stage"`
	RollbackCompleted  bool    `db:"rollback_completed"`
	SecretsCiphertext  string  `db:"secrets_ciphertext"`
	Logs               *string `db:"logs"`
	StartedAt          string  `db:"started_at"`
	CompletedAt        *string `db:"completed_at"`
	DurationNS         int64   `db:"duration_ns"`
}

// =============================================================================
// Store Interface Implementation
// =============================================================================

func (s *SQLiteStore) CreateResult(ctx context.Context, result *domain.ProvisioningResult) error {
	return createResult(ctx, s.db, result)
}

func (s *SQLiteStore) GetResult(ctx context.Context, requestID string) (*domain.ProvisioningResult, error) {
	return getResult(ctx, s.db, requestID)
}

func (s *SQLiteStore) GetLatestResultByISP(ctx context.Context, ispID string) (*domain.ProvisioningResult, error) {
	return getLatestResultByISP(ctx, s.db, ispID)
}

func (s *SQLiteStore) ListResults(ctx context.Context, opts ListOptions) ([]domain.ProvisioningResult, error) {
	return listResults(ctx, s.db, opts)
}

func (s *SQLiteStore) ListResultsByISP(ctx context.Context, ispID string, opts ListOptions) ([]domain.ProvisioningResult, error) {
	return listResultsByISP(ctx, s.db, ispID, opts)
}

func (s *SQLiteStore) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteResultsBefore(ctx, s.db, cutoff)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateResult(ctx context.Context, result *domain.ProvisioningResult) error {
	return createResult(ctx, s.tx, result)
}

func (s *txSQLiteStore) GetResult(ctx context.Context, requestID string) (*domain.ProvisioningResult, error) {
	return getResult(ctx, s.tx, requestID)
}

func (s *txSQLiteStore) GetLatestResultByISP(ctx context.Context, ispID string) (*domain.ProvisioningResult, error) {
	return getLatestResultByISP(ctx, s.tx, ispID)
}

func (s *txSQLiteStore) ListResults(ctx context.Context, opts ListOptions) ([]domain.ProvisioningResult, error) {
	return listResults(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListResultsByISP(ctx context.Context, ispID string, opts ListOptions) ([]domain.ProvisioningResult, error) {
	return listResultsByISP(ctx, s.tx, ispID, opts)
}

func (s *txSQLiteStore) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteResultsBefore(ctx, s.tx, cutoff)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createResult(ctx context.Context, exec executor, result *domain.ProvisioningResult) error {
	// Serialize JSON fields
	var allocatedJSON any
	if result.AllocatedResources != nil {
		b, err := json.Marshal(result.AllocatedResources)
		if err != nil {
			return NewStoreError("CreateResult", "result", result.RequestID, "failed to serialize allocated resources", ErrInvalidData)
		}
		allocatedJSON = string(b)
	}
	var artifactsJSON any
	if result.Artifacts != nil {
		b, err := json.Marshal(result.Artifacts)
		if err != nil {
			return NewStoreError("CreateResult", "result", result.RequestID, "failed to serialize artifacts", ErrInvalidData)
		}
		artifactsJSON = string(b)
	}
	var healthJSON any
	if result.Health != nil {
		b, err := json.Marshal(result.Health)
		if err != nil {
			return NewStoreError("CreateResult", "result", result.RequestID, "failed to serialize health", ErrInvalidData)
		}
		healthJSON = string(b)
	}
	logsJSON, err := json.Marshal(result.Logs)
	if err != nil {
		return NewStoreError("CreateResult", "result", result.RequestID, "failed to serialize logs", ErrInvalidData)
	}

	var completedAt any
	if result.CompletedAt != nil {
		completedAt = result.CompletedAt.UTC().Format(time.RFC3339)
	}

	query := `
		INSERT INTO provisioning_results (
			request_id, isp_id, success, status, monitoring,
			allocated_resources, artifacts, health,
			error_message, error_stage, rollback_completed,
			secrets_ciphertext, logs, started_at, completed_at, duration_ns
		) VALUES (
			:request_id, :isp_id, :success, :status, :monitoring,
			:allocated_resources, :artifacts, :health,
			:error_message, :error_stage, :rollback_completed,
			:secrets_ciphertext, :logs, :started_at, :completed_at, :duration_ns
		)`

	row := map[string]any{
		"request_id":          result.RequestID,
		"isp_id":              result.ISPID,
		"success":             result.Success,
		"status":              string(result.Status),
		"monitoring":          string(result.Monitoring),
		"allocated_resources": allocatedJSON,
		"artifacts":           artifactsJSON,
		"health":              healthJSON,
		"error_message":       result.ErrorMessage,
		"error_stage":         string(result.ErrorStage),
		"rollback_completed":  result.RollbackCompleted,
		"secrets_ciphertext":  result.EncryptedSecrets,
		"logs":                string(logsJSON),
		"started_at":          result.StartedAt.UTC().Format(time.RFC3339),
		"completed_at":        completedAt,
		"duration_ns":         int64(result.Duration),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: provisioning_results.request_id") {
			return NewStoreError("CreateResult", "result", result.RequestID, "result with this request ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateResult", "result", result.RequestID, err.Error(), err)
	}

	return nil
}

func getResult(ctx context.Context, exec executor, requestID string) (*domain.ProvisioningResult, error) {
	query := `SELECT * FROM provisioning_results WHERE request_id = ?`

	var row resultRow
	err := exec.GetContext(ctx, &row, query, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetResult", "result", requestID, "result not found", ErrNotFound)
		}
		return nil, NewStoreError("GetResult", "result", requestID, err.Error(), err)
	}

	return rowToResult(&row)
}

func getLatestResultByISP(ctx context.Context, exec executor, ispID string) (*domain.ProvisioningResult, error) {
	query := `
		SELECT * FROM provisioning_results
		WHERE isp_id = ?
		ORDER BY started_at DESC, request_id DESC
		LIMIT 1`

	var row resultRow
	err := exec.GetContext(ctx, &row, query, ispID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetLatestResultByISP", "result", ispID, "no results for tenant", ErrNotFound)
		}
		return nil, NewStoreError("GetLatestResultByISP", "result", ispID, err.Error(), err)
	}

	return rowToResult(&row)
}

func listResults(ctx context.Context, exec executor, opts ListOptions) ([]domain.ProvisioningResult, error) {
	opts = opts.Normalize()
	query := `
		SELECT * FROM provisioning_results
		ORDER BY started_at DESC, request_id DESC
		LIMIT ? OFFSET ?`

	var rows []resultRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListResults", "result", "", err.Error(), err)
	}

	return rowsToResults(rows)
}

func listResultsByISP(ctx context.Context, exec executor, ispID string, opts ListOptions) ([]domain.ProvisioningResult, error) {
	opts = opts.Normalize()
	query := `
		SELECT * FROM provisioning_results
		WHERE isp_id = ?
		ORDER BY started_at DESC, request_id DESC
		LIMIT ? OFFSET ?`

	var rows []resultRow
	err := exec.SelectContext(ctx, &rows, query, ispID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListResultsByISP", "result", ispID, err.Error(), err)
	}

	return rowsToResults(rows)
}

func deleteResultsBefore(ctx context.Context, exec executor, cutoff time.Time) (int64, error) {
	query := `DELETE FROM provisioning_results WHERE started_at < ?`

	res, err := exec.ExecContext(ctx, query, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, NewStoreError("DeleteResultsBefore", "result", "", err.Error(), err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, NewStoreError("DeleteResultsBefore", "result", "", err.Error(), err)
	}
	return deleted, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func rowsToResults(rows []resultRow) ([]domain.ProvisioningResult, error) {
	results := make([]domain.ProvisioningResult, 0, len(rows))
	for i := range rows {
		result, err := rowToResult(&rows[i])
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func rowToResult(row *resultRow) (*domain.ProvisioningResult, error) {
	startedAt, _ := time.Parse(time.RFC3339, row.StartedAt)

	result := &domain.ProvisioningResult{
		RequestID:         row.RequestID,
		ISPID:             row.ISPID,
		Success:           row.Success,
		Status:            domain.ProvisioningStatus(row.Status),
		Monitoring:        domain.MonitoringState(row.Monitoring),
		ErrorMessage:      row.ErrorMessage,
		ErrorStage:        domain.ProvisioningStage(row.ErrorStage),
		RollbackCompleted: row.RollbackCompleted,
		EncryptedSecrets:  row.SecretsCiphertext,
		StartedAt:         startedAt,
		Duration:          time.Duration(row.DurationNS),
	}

	if row.CompletedAt != nil && *row.CompletedAt != "" {
		completedAt, _ := time.Parse(time.RFC3339, *row.CompletedAt)
		result.CompletedAt = &completedAt
	}

	if row.AllocatedResources != nil && *row.AllocatedResources != "" && *row.AllocatedResources != "null" {
		var allocated domain.ResourceRequirements
		if err := json.Unmarshal([]byte(*row.AllocatedResources), &allocated); err != nil {
			return nil, NewStoreError("rowToResult", "result", row.RequestID, "failed to parse allocated resources", ErrInvalidData)
		}
		result.AllocatedResources = &allocated
	}

	if row.Artifacts != nil && *row.Artifacts != "" && *row.Artifacts != "null" {
		var artifacts domain.DeploymentArtifacts
		if err := json.Unmarshal([]byte(*row.Artifacts), &artifacts); err != nil {
			return nil, NewStoreError("rowToResult", "result", row.RequestID, "failed to parse artifacts", ErrInvalidData)
		}
		result.Artifacts = &artifacts
	}

	if row.Health != nil && *row.Health != "" && *row.Health != "null" {
		var health domain.ContainerHealth
		if err := json.Unmarshal([]byte(*row.Health), &health); err != nil {
			return nil, NewStoreError("rowToResult", "result", row.RequestID, "failed to parse health", ErrInvalidData)
		}
		result.Health = &health
	}

	if row.Logs != nil && *row.Logs != "" && *row.Logs != "null" {
		if err := json.Unmarshal([]byte(*row.Logs), &result.Logs); err != nil {
			return nil, NewStoreError("rowToResult", "result", row.RequestID, "failed to parse logs", ErrInvalidData)
		}
	}

	return result, nil
}
