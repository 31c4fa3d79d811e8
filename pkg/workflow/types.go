package workflow

import (
	"time"

	"github.com/policydelta/policydelta/pkg/compare"
	"github.com/policydelta/policydelta/pkg/policy"
	"github.com/policydelta/policydelta/pkg/store"
)

// Workflow step names, in execution order.
const (
	StepFetchExisting    = "fetch_existing"
	StepSaveBaseline     = "save_baseline"
	StepLoadProposed     = "load_proposed"
	StepCompare          = "compare"
	StepSaveDelta        = "save_delta"
	StepGuard            = "guard"
	StepApply            = "apply"
	StepFetchNew         = "fetch_new"
	StepVerify           = "verify"
	StepSaveVerification = "save_verification"
)

// StepStatus is the outcome of one workflow step.
type StepStatus string

const (
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult records the outcome and timing of one workflow step.
type StepResult struct {
	Name        string        `json:"name"`
	Status      StepStatus    `json:"status"`
	Message     string        `json:"message,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// Request describes one differential operation.
type Request struct {
	// Target names the remote endpoint, used for artifact naming and history.
	Target string

	// Domain is the policy domain scope. Empty means the full tree.
	Domain string

	// ProposedPath is the path of the proposed-configuration JSON document.
	ProposedPath string

	// WhatIf stops the workflow after the delta is computed and saved.
	WhatIf bool

	// ApplyMethod overrides the HTTP method for the apply call. Empty means
	// the applier's default (PATCH).
	ApplyMethod string
}

// VerificationOutcome classifies one delta object after apply.
type VerificationOutcome string

const (
	OutcomeMatch    VerificationOutcome = "MATCH"
	OutcomeMismatch VerificationOutcome = "MISMATCH"
	OutcomeNotFound VerificationOutcome = "NOT_FOUND"
)

// VerificationResult is the post-apply classification of one delta object.
type VerificationResult struct {
	Key        string              `json:"key"`
	ObjectType string              `json:"object_type"`
	Action     string              `json:"action"`
	Outcome    VerificationOutcome `json:"outcome"`
	Detail     string              `json:"detail,omitempty"`
}

// VerificationSummary counts verification outcomes.
type VerificationSummary struct {
	TotalDeltaObjects int `json:"total_delta_objects"`
	Matches           int `json:"matches"`
	Mismatches        int `json:"mismatches"`
	NotFound          int `json:"not_found"`
}

// VerificationReport is the persisted post-apply verification artifact.
type VerificationReport struct {
	Summary VerificationSummary  `json:"summary"`
	Results []VerificationResult `json:"results"`
}

// Drift reports whether any delta object failed to converge.
func (r *VerificationReport) Drift() bool {
	return r.Summary.Mismatches > 0 || r.Summary.NotFound > 0
}

// OperationContext carries the full state of one differential operation. It
// is built up step by step and returned even on failure so callers can see
// how far the operation got.
type OperationContext struct {
	ID        string    `json:"id"`
	Target    string    `json:"target"`
	Domain    string    `json:"domain,omitempty"`
	WhatIf    bool      `json:"what_if"`
	StartedAt time.Time `json:"started_at"`

	Status store.OperationStatus `json:"status"`
	Error  string                `json:"error,omitempty"`

	Steps []StepResult `json:"steps"`

	BaselinePath     string `json:"baseline_path,omitempty"`
	DeltaPath        string `json:"delta_path,omitempty"`
	VerificationPath string `json:"verification_path,omitempty"`

	Diff         *compare.DifferenceSet `json:"diff,omitempty"`
	GuardResult  *policy.GuardResult    `json:"guard_result,omitempty"`
	Verification *VerificationReport    `json:"verification,omitempty"`
}

// StepByName returns the recorded result for a step, or nil if the step was
// never reached.
func (c *OperationContext) StepByName(name string) *StepResult {
	for i := range c.Steps {
		if c.Steps[i].Name == name {
			return &c.Steps[i]
		}
	}
	return nil
}
