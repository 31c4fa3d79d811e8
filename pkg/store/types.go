package store

import (
	"time"
)

// OperationStatus is the terminal (or in-flight) classification of one
// differential operation.
type OperationStatus string

const (
	OperationStatusRunning             OperationStatus = "running"
	OperationStatusNoChanges           OperationStatus = "no_changes"
	OperationStatusWhatIf              OperationStatus = "what_if"
	OperationStatusApplied             OperationStatus = "applied"
	OperationStatusAppliedWithFailures OperationStatus = "applied_with_failures"
	OperationStatusDriftDetected       OperationStatus = "drift_detected"
	OperationStatusFailed              OperationStatus = "failed"
)

// OperationRecord is one row of differential operation history.
type OperationRecord struct {
	ID          string          `json:"id"`
	Target      string          `json:"target"`
	Domain      string          `json:"domain"`
	Status      OperationStatus `json:"status"`
	WhatIf      bool            `json:"what_if"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`

	BaselinePath     *string `json:"baseline_path,omitempty"`
	DeltaPath        *string `json:"delta_path,omitempty"`
	VerificationPath *string `json:"verification_path,omitempty"`

	Creates   int `json:"creates"`
	Updates   int `json:"updates"`
	Deletes   int `json:"deletes"`
	Unchanged int `json:"unchanged"`

	Matches    int `json:"matches"`
	Mismatches int `json:"mismatches"`
	NotFound   int `json:"not_found"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepRecord is one workflow step outcome attached to an operation.
type StepRecord struct {
	ID          int64      `json:"id"`
	OperationID string     `json:"operation_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Message     *string    `json:"message,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
