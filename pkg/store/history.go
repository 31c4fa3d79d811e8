package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// HistoryStore keeps differential operation history in SQLite.
type HistoryStore struct {
	db   *sql.DB
	path string
}

// HistoryConfig holds SQLite connection settings.
type HistoryConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewHistoryStore creates a history store instance. Init must be called
// before use.
func NewHistoryStore(cfg HistoryConfig) (*HistoryStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &HistoryStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *HistoryStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded source.
func (s *HistoryStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateOperation inserts a new operation row. Zero audit timestamps are
// filled in so the row never carries a 0001-01-01 created_at.
func (s *HistoryStore) CreateOperation(ctx context.Context, op *OperationRecord) error {
	now := time.Now().UTC()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	if op.UpdatedAt.IsZero() {
		op.UpdatedAt = now
	}

	query := `
		INSERT INTO operations (
			id, target, domain, status, what_if, started_at, completed_at, error,
			baseline_path, delta_path, verification_path,
			creates, updates, deletes, unchanged, matches, mismatches, not_found,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		op.ID,
		op.Target,
		op.Domain,
		op.Status,
		op.WhatIf,
		op.StartedAt,
		op.CompletedAt,
		op.Error,
		op.BaselinePath,
		op.DeltaPath,
		op.VerificationPath,
		op.Creates,
		op.Updates,
		op.Deletes,
		op.Unchanged,
		op.Matches,
		op.Mismatches,
		op.NotFound,
		op.CreatedAt,
		op.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// FinishOperation records the terminal state of an operation.
func (s *HistoryStore) FinishOperation(ctx context.Context, op *OperationRecord) error {
	query := `
		UPDATE operations
		SET status = ?, error = ?, completed_at = ?,
			baseline_path = ?, delta_path = ?, verification_path = ?,
			creates = ?, updates = ?, deletes = ?, unchanged = ?,
			matches = ?, mismatches = ?, not_found = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	now := time.Now()
	completedAt := op.CompletedAt
	if completedAt == nil {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query,
		op.Status,
		op.Error,
		completedAt,
		op.BaselinePath,
		op.DeltaPath,
		op.VerificationPath,
		op.Creates,
		op.Updates,
		op.Deletes,
		op.Unchanged,
		op.Matches,
		op.Mismatches,
		op.NotFound,
		op.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("operation not found: %s", op.ID)
	}

	return nil
}

// GetOperation retrieves one operation by ID.
func (s *HistoryStore) GetOperation(ctx context.Context, id string) (*OperationRecord, error) {
	query := `
		SELECT id, target, domain, status, what_if, started_at, completed_at, error,
			   baseline_path, delta_path, verification_path,
			   creates, updates, deletes, unchanged, matches, mismatches, not_found,
			   created_at, updated_at
		FROM operations
		WHERE id = ?
	`

	op := &OperationRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&op.ID,
		&op.Target,
		&op.Domain,
		&op.Status,
		&op.WhatIf,
		&op.StartedAt,
		&op.CompletedAt,
		&op.Error,
		&op.BaselinePath,
		&op.DeltaPath,
		&op.VerificationPath,
		&op.Creates,
		&op.Updates,
		&op.Deletes,
		&op.Unchanged,
		&op.Matches,
		&op.Mismatches,
		&op.NotFound,
		&op.CreatedAt,
		&op.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return op, nil
}

// ListOperations lists operations most recent first.
func (s *HistoryStore) ListOperations(ctx context.Context, limit, offset int) ([]*OperationRecord, error) {
	query := `
		SELECT id, target, domain, status, what_if, started_at, completed_at, error,
			   baseline_path, delta_path, verification_path,
			   creates, updates, deletes, unchanged, matches, mismatches, not_found,
			   created_at, updated_at
		FROM operations
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*OperationRecord{}
	for rows.Next() {
		op := &OperationRecord{}
		err := rows.Scan(
			&op.ID,
			&op.Target,
			&op.Domain,
			&op.Status,
			&op.WhatIf,
			&op.StartedAt,
			&op.CompletedAt,
			&op.Error,
			&op.BaselinePath,
			&op.DeltaPath,
			&op.VerificationPath,
			&op.Creates,
			&op.Updates,
			&op.Deletes,
			&op.Unchanged,
			&op.Matches,
			&op.Mismatches,
			&op.NotFound,
			&op.CreatedAt,
			&op.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// AppendStepResult appends one step outcome to an operation's trail.
func (s *HistoryStore) AppendStepResult(ctx context.Context, step *StepRecord) error {
	query := `
		INSERT INTO step_results (operation_id, name, status, message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		step.OperationID,
		step.Name,
		step.Status,
		step.Message,
		step.StartedAt,
		step.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append step result: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get step result ID: %w", err)
	}

	step.ID = id
	return nil
}

// ListStepResults lists the step trail for one operation in insertion order.
func (s *HistoryStore) ListStepResults(ctx context.Context, operationID string) ([]*StepRecord, error) {
	query := `
		SELECT id, operation_id, name, status, message, started_at, completed_at
		FROM step_results
		WHERE operation_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step results: %w", err)
	}
	defer rows.Close()

	steps := []*StepRecord{}
	for rows.Next() {
		step := &StepRecord{}
		err := rows.Scan(
			&step.ID,
			&step.OperationID,
			&step.Name,
			&step.Status,
			&step.Message,
			&step.StartedAt,
			&step.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step results: %w", err)
	}

	return steps, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *HistoryStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
