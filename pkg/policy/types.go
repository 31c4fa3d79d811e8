package policy

import (
	"time"
)

// Severity represents the severity level of a guard violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block an apply.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the apply in enforcing
	// mode.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never be applied.
	SeverityCritical Severity = "critical"
)

// Mode controls how guard violations affect the workflow.
type Mode string

const (
	// ModeAdvisory reports violations but never blocks an apply.
	ModeAdvisory Mode = "advisory"

	// ModeEnforcing blocks the apply on error or critical violations.
	ModeEnforcing Mode = "enforcing"
)

// Policy represents one guard rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source records where the policy came from (builtin or a file path).
	Source string `json:"source,omitempty"`
}

// Violation represents a single guard violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// ObjectKey identifies the delta object, when the violation is
	// object-scoped.
	ObjectKey string `json:"object_key,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// GuardResult is the outcome of evaluating a delta against the guard.
type GuardResult struct {
	// Allowed indicates whether the apply may proceed.
	Allowed bool `json:"allowed"`

	// Violations lists all findings, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems (a policy that failed to run);
	// they never block.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// DeltaObject is one delta entry presented to policies.
type DeltaObject struct {
	Action     string         `json:"action"`
	Key        string         `json:"key"`
	ObjectType string         `json:"object_type"`
	Object     map[string]any `json:"object,omitempty"`
}

// DeltaInput is the input document policies evaluate against.
type DeltaInput struct {
	Summary struct {
		Creates int `json:"creates"`
		Updates int `json:"updates"`
		Deletes int `json:"deletes"`
	} `json:"summary"`
	Objects []DeltaObject `json:"objects"`
	Context struct {
		Target    string    `json:"target"`
		Domain    string    `json:"domain,omitempty"`
		WhatIf    bool      `json:"what_if"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"context"`
}
