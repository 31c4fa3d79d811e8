// Package workflow runs the differential operation end to end: export the
// existing configuration, diff it against a proposed document, apply the
// delta, and verify convergence. The workflow is linear with a what-if
// branch; each operation builds its own OperationContext and two operations
// against the same target must be serialized by the caller.
package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/compare"
	"github.com/policydelta/policydelta/pkg/hierarchy"
	"github.com/policydelta/policydelta/pkg/node"
	"github.com/policydelta/policydelta/pkg/policy"
	"github.com/policydelta/policydelta/pkg/remote"
	"github.com/policydelta/policydelta/pkg/store"
	"github.com/policydelta/policydelta/pkg/telemetry"
)

// Config wires the orchestrator's collaborators. Exporter, Applier,
// Comparator, Builder, and Artifacts are required; the rest are optional.
type Config struct {
	Exporter   remote.Exporter
	Applier    remote.Applier
	Schemas    remote.SchemaSource
	Comparator *compare.Comparator
	Builder    *hierarchy.Builder
	Artifacts  *store.ArtifactStore

	// History persists operation and step records when set.
	History *store.HistoryStore

	// Guard gates the delta before apply when set.
	Guard *policy.Guard

	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
	Logger  zerolog.Logger
}

// Orchestrator executes differential operations.
type Orchestrator struct {
	exporter   remote.Exporter
	applier    remote.Applier
	schemas    remote.SchemaSource
	comparator *compare.Comparator
	builder    *hierarchy.Builder
	artifacts  *store.ArtifactStore
	history    *store.HistoryStore
	guard      *policy.Guard
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
	verifier   *Verifier
	logger     zerolog.Logger
}

// NewOrchestrator creates an orchestrator, failing fast on missing required
// collaborators.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Exporter == nil:
		return nil, fmt.Errorf("exporter is required")
	case cfg.Applier == nil:
		return nil, fmt.Errorf("applier is required")
	case cfg.Comparator == nil:
		return nil, fmt.Errorf("comparator is required")
	case cfg.Builder == nil:
		return nil, fmt.Errorf("builder is required")
	case cfg.Artifacts == nil:
		return nil, fmt.Errorf("artifact store is required")
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		var err error
		tracer, err = telemetry.NewTracer(telemetry.TracingConfig{}, "policydelta", "", "")
		if err != nil {
			return nil, fmt.Errorf("failed to create no-op tracer: %w", err)
		}
	}

	logger := cfg.Logger.With().Str("component", "workflow").Logger()
	return &Orchestrator{
		exporter:   cfg.Exporter,
		applier:    cfg.Applier,
		schemas:    cfg.Schemas,
		comparator: cfg.Comparator,
		builder:    cfg.Builder,
		artifacts:  cfg.Artifacts,
		history:    cfg.History,
		guard:      cfg.Guard,
		metrics:    metrics,
		tracer:     tracer,
		verifier:   NewVerifier(cfg.Logger),
		logger:     logger,
	}, nil
}

// Execute runs one differential operation to completion. The returned
// OperationContext is populated as far as the workflow got, including on
// failure.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*OperationContext, error) {
	opCtx := &OperationContext{
		ID:        uuid.New().String(),
		Target:    req.Target,
		Domain:    req.Domain,
		WhatIf:    req.WhatIf,
		StartedAt: time.Now().UTC(),
		Status:    store.OperationStatusRunning,
	}

	ctx, span := o.tracer.StartOperationSpan(ctx, opCtx.ID, req.Target)
	defer span.End()

	o.metrics.RecordOperationStarted(req.Target)
	o.recordOperationStart(ctx, opCtx)

	if req.Target == "" {
		return o.fail(ctx, opCtx, "", NewInputError("target is required", nil))
	}
	if req.ProposedPath == "" {
		return o.fail(ctx, opCtx, "", NewInputError("proposed configuration path is required", nil))
	}

	logger := o.logger.With().Str("operation_id", opCtx.ID).Str("target", req.Target).Logger()
	logger.Info().Str("domain", req.Domain).Bool("what_if", req.WhatIf).Msg("Differential operation started")

	var (
		existing *node.Node
		proposed *node.Node
		payload  *node.Node
		entries  []DeltaEntry
	)

	err := o.runStep(ctx, opCtx, StepFetchExisting, func(ctx context.Context) (string, error) {
		tree, err := o.exporter.GetConfiguration(ctx, req.Domain)
		if err != nil {
			return "", NewTransientError("failed to fetch existing configuration", err)
		}
		existing = tree
		return "", nil
	})
	if err != nil {
		return o.fail(ctx, opCtx, StepFetchExisting, err)
	}

	// Baseline write failures are logged, not fatal; the snapshot is for
	// diagnostics, not a workflow input.
	_ = o.runStep(ctx, opCtx, StepSaveBaseline, func(context.Context) (string, error) {
		name := store.GenerateFileName(req.Target, req.Domain, store.FunctionBaseline, opCtx.StartedAt, "json")
		path, err := o.artifacts.SaveNode(existing, name)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to save baseline artifact")
			return "", NewPermanentError("failed to save baseline", err)
		}
		opCtx.BaselinePath = path
		return path, nil
	})

	err = o.runStep(ctx, opCtx, StepLoadProposed, func(context.Context) (string, error) {
		tree, err := o.loadProposed(req)
		if err != nil {
			return "", err
		}
		proposed = tree
		return "", nil
	})
	if err != nil {
		return o.fail(ctx, opCtx, StepLoadProposed, err)
	}

	err = o.runStep(ctx, opCtx, StepCompare, func(ctx context.Context) (string, error) {
		diff, err := o.comparator.Compare(ctx, existing, proposed)
		if err != nil {
			return "", NewPermanentError("comparison failed", err)
		}
		opCtx.Diff = diff
		o.recordDiffMetrics(diff)
		return diff.Summary(), nil
	})
	if err != nil {
		return o.fail(ctx, opCtx, StepCompare, err)
	}

	// The delta file must exist before apply, so this write is fatal.
	err = o.runStep(ctx, opCtx, StepSaveDelta, func(context.Context) (string, error) {
		payload, entries = BuildDeltaPayload(o.builder, opCtx.Diff)
		name := store.GenerateFileName(req.Target, req.Domain, store.FunctionDelta, opCtx.StartedAt, "json")
		path, err := o.artifacts.SaveNode(payload, name)
		if err != nil {
			return "", NewPermanentError("failed to save delta", err)
		}
		opCtx.DeltaPath = path
		return fmt.Sprintf("delta objects: %d", len(entries)), nil
	})
	if err != nil {
		return o.fail(ctx, opCtx, StepSaveDelta, err)
	}

	if req.WhatIf {
		logger.Info().Str("delta", opCtx.DeltaPath).Msg("What-if requested, stopping before apply")
		return o.finish(ctx, opCtx, store.OperationStatusWhatIf)
	}

	// Deletes are never submitted, so a delete-only diff is a no-op too.
	if !opCtx.Diff.Actionable() {
		o.appendStep(ctx, opCtx, StepResult{
			Name:      StepApply,
			Status:    StepStatusSkipped,
			Message:   "No changes required",
			StartedAt: time.Now().UTC(),
		})
		return o.finish(ctx, opCtx, store.OperationStatusNoChanges)
	}

	if o.guard != nil {
		err = o.runStep(ctx, opCtx, StepGuard, func(ctx context.Context) (string, error) {
			input, err := policy.BuildInput(opCtx.Diff, req.Target, req.Domain, req.WhatIf)
			if err != nil {
				return "", NewPermanentError("failed to build guard input", err)
			}
			result, err := o.guard.EvaluateDelta(ctx, input)
			if err != nil {
				return "", NewPermanentError("guard evaluation failed", err)
			}
			opCtx.GuardResult = result
			if !result.Allowed {
				return "", NewGuardError(fmt.Sprintf("delta blocked by policy guard: %d violation(s)", len(result.Violations)))
			}
			return fmt.Sprintf("policies: %d, violations: %d", len(result.EvaluatedPolicies), len(result.Violations)), nil
		})
		if err != nil {
			return o.fail(ctx, opCtx, StepGuard, err)
		}
	}

	applyFailed := false
	err = o.runStep(ctx, opCtx, StepApply, func(ctx context.Context) (string, error) {
		result, err := o.applier.ApplyDelta(ctx, payload, req.ApplyMethod)
		if err != nil {
			return "", NewTransientError("apply request failed", err)
		}
		if !result.Success {
			// A remote rejection is surfaced, not rolled back; verification
			// still runs to report what actually landed.
			applyFailed = true
			o.metrics.RecordApplyFailure()
			logger.Error().Str("remote_error", result.Error).Msg("Remote rejected delta")
			return "remote apply failed: " + result.Error, nil
		}
		return fmt.Sprintf("applied %d object(s)", len(entries)), nil
	})
	if err != nil {
		return o.fail(ctx, opCtx, StepApply, err)
	}

	var newTree *node.Node
	err = o.runStep(ctx, opCtx, StepFetchNew, func(ctx context.Context) (string, error) {
		tree, err := o.exporter.GetConfiguration(ctx, req.Domain)
		if err != nil {
			return "", NewTransientError("failed to fetch post-apply configuration", err)
		}
		newTree = tree
		return "", nil
	})
	if err != nil {
		return o.fail(ctx, opCtx, StepFetchNew, err)
	}

	err = o.runStep(ctx, opCtx, StepVerify, func(ctx context.Context) (string, error) {
		report := o.verifier.Verify(entries, newTree, o.fetchSchemaIndex(ctx))
		opCtx.Verification = report
		for _, r := range report.Results {
			o.metrics.RecordVerificationResult(string(r.Outcome))
		}
		return fmt.Sprintf("matches=%d mismatches=%d not_found=%d",
			report.Summary.Matches, report.Summary.Mismatches, report.Summary.NotFound), nil
	})
	if err != nil {
		return o.fail(ctx, opCtx, StepVerify, err)
	}

	_ = o.runStep(ctx, opCtx, StepSaveVerification, func(context.Context) (string, error) {
		name := store.GenerateFileName(req.Target, req.Domain, store.FunctionVerification, opCtx.StartedAt, "json")
		path, err := o.artifacts.SaveReport(opCtx.Verification, name)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to save verification artifact")
			return "", NewPermanentError("failed to save verification report", err)
		}
		opCtx.VerificationPath = path
		return path, nil
	})

	status := store.OperationStatusApplied
	switch {
	case applyFailed:
		status = store.OperationStatusAppliedWithFailures
	case opCtx.Verification.Drift():
		status = store.OperationStatusDriftDetected
	}
	return o.finish(ctx, opCtx, status)
}

// loadProposed reads and normalizes the proposed-configuration document into
// an Infra-rooted tree. Documents already rooted at Infra pass through;
// export-style result lists and single raw objects are wrapped.
func (o *Orchestrator) loadProposed(req Request) (*node.Node, error) {
	data, err := os.ReadFile(req.ProposedPath)
	if err != nil {
		return nil, NewInputError("failed to read proposed configuration", err)
	}
	doc, err := node.Parse(data)
	if err != nil {
		return nil, NewInputError("failed to parse proposed configuration", err)
	}

	if doc.ResourceType() == node.RootResourceType {
		if err := hierarchy.ValidateTree(doc); err != nil {
			o.logger.Warn().Err(err).Msg("Proposed tree failed structural validation")
		}
		return doc, nil
	}

	domain := req.Domain
	if domain == "" {
		domain = "default"
	}

	if results, ok := doc.GetArray("results"); ok {
		objects := make([]*node.Node, 0, len(results))
		for _, v := range results {
			if obj, ok := v.(*node.Node); ok {
				objects = append(objects, obj)
			}
		}
		return o.builder.BuildTree(objects, domain), nil
	}

	return o.builder.BuildTree([]*node.Node{doc}, domain), nil
}

// fetchSchemaIndex retrieves schemas best-effort for verification equality.
// Returns nil on any failure, degrading verification to non-schema equality.
func (o *Orchestrator) fetchSchemaIndex(ctx context.Context) *compare.SchemaIndex {
	if o.schemas == nil {
		return nil
	}
	docs, err := o.schemas.GetSchemas(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Schema fetch failed, verifying without schema")
		return nil
	}
	return compare.BuildSchemaIndex(docs)
}

// runStep executes one workflow step, recording its result, duration metric,
// span, and history row. The returned error is the step's own classified
// error; callers decide whether it is fatal.
func (o *Orchestrator) runStep(ctx context.Context, opCtx *OperationContext, name string, fn func(context.Context) (string, error)) error {
	stepCtx, span := o.tracer.StartStepSpan(ctx, name)
	defer span.End()

	result := StepResult{
		Name:      name,
		Status:    StepStatusSucceeded,
		StartedAt: time.Now().UTC(),
	}

	message, err := fn(stepCtx)
	result.CompletedAt = time.Now().UTC()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Message = message
	if err != nil {
		result.Status = StepStatusFailed
		result.Message = err.Error()
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}

	o.metrics.RecordStepDuration(name, result.Duration)
	o.appendStep(ctx, opCtx, result)
	return err
}

// appendStep records a step result in the context and, when configured, in
// the history store.
func (o *Orchestrator) appendStep(ctx context.Context, opCtx *OperationContext, result StepResult) {
	opCtx.Steps = append(opCtx.Steps, result)

	if o.history == nil {
		return
	}
	record := &store.StepRecord{
		OperationID: opCtx.ID,
		Name:        result.Name,
		Status:      string(result.Status),
		StartedAt:   result.StartedAt,
	}
	if result.Message != "" {
		record.Message = &result.Message
	}
	if !result.CompletedAt.IsZero() {
		completed := result.CompletedAt
		record.CompletedAt = &completed
	}
	if err := o.history.AppendStepResult(ctx, record); err != nil {
		o.logger.Warn().Err(err).Str("step", result.Name).Msg("Failed to record step result")
	}
}

func (o *Orchestrator) recordDiffMetrics(diff *compare.DifferenceSet) {
	for _, ref := range diff.Create {
		o.metrics.RecordDiffObject("create", ref.ObjectType)
	}
	for _, u := range diff.Update {
		o.metrics.RecordDiffObject("update", u.ObjectType)
	}
	for _, ref := range diff.Delete {
		o.metrics.RecordDiffObject("delete", ref.ObjectType)
	}
	for _, ref := range diff.Unchanged {
		o.metrics.RecordDiffObject("unchanged", ref.ObjectType)
	}
	for _, ve := range diff.ValidationErrors {
		o.metrics.RecordValidationError(ve.ObjectType)
	}
}

func (o *Orchestrator) recordOperationStart(ctx context.Context, opCtx *OperationContext) {
	if o.history == nil {
		return
	}
	record := &store.OperationRecord{
		ID:        opCtx.ID,
		Target:    opCtx.Target,
		Domain:    opCtx.Domain,
		Status:    store.OperationStatusRunning,
		WhatIf:    opCtx.WhatIf,
		StartedAt: opCtx.StartedAt,
	}
	if err := o.history.CreateOperation(ctx, record); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to record operation start")
	}
}

// finish marks the operation's terminal status and persists it.
func (o *Orchestrator) finish(ctx context.Context, opCtx *OperationContext, status store.OperationStatus) (*OperationContext, error) {
	opCtx.Status = status
	o.metrics.RecordOperationCompleted(string(status), time.Since(opCtx.StartedAt))
	o.recordOperationEnd(ctx, opCtx)
	o.logger.Info().
		Str("operation_id", opCtx.ID).
		Str("status", string(status)).
		Dur("duration", time.Since(opCtx.StartedAt)).
		Msg("Differential operation finished")
	return opCtx, nil
}

// fail marks the operation failed and returns both the partially-populated
// context and the classified error.
func (o *Orchestrator) fail(ctx context.Context, opCtx *OperationContext, step string, err error) (*OperationContext, error) {
	var opErr *OpError
	if oe, ok := err.(*OpError); ok {
		opErr = oe.WithStep(step)
	} else {
		opErr = NewPermanentError("operation failed", err).WithStep(step)
	}

	opCtx.Status = store.OperationStatusFailed
	opCtx.Error = opErr.Error()
	o.metrics.RecordOperationCompleted(string(store.OperationStatusFailed), time.Since(opCtx.StartedAt))
	o.recordOperationEnd(ctx, opCtx)
	o.logger.Error().
		Str("operation_id", opCtx.ID).
		Str("step", step).
		Err(opErr).
		Msg("Differential operation failed")
	return opCtx, opErr
}

func (o *Orchestrator) recordOperationEnd(ctx context.Context, opCtx *OperationContext) {
	if o.history == nil {
		return
	}
	record := &store.OperationRecord{
		ID:     opCtx.ID,
		Status: opCtx.Status,
	}
	completed := time.Now().UTC()
	record.CompletedAt = &completed
	if opCtx.Error != "" {
		record.Error = &opCtx.Error
	}
	if opCtx.BaselinePath != "" {
		record.BaselinePath = &opCtx.BaselinePath
	}
	if opCtx.DeltaPath != "" {
		record.DeltaPath = &opCtx.DeltaPath
	}
	if opCtx.VerificationPath != "" {
		record.VerificationPath = &opCtx.VerificationPath
	}
	if opCtx.Diff != nil {
		record.Creates = len(opCtx.Diff.Create)
		record.Updates = len(opCtx.Diff.Update)
		record.Deletes = len(opCtx.Diff.Delete)
		record.Unchanged = len(opCtx.Diff.Unchanged)
	}
	if opCtx.Verification != nil {
		record.Matches = opCtx.Verification.Summary.Matches
		record.Mismatches = opCtx.Verification.Summary.Mismatches
		record.NotFound = opCtx.Verification.Summary.NotFound
	}
	if err := o.history.FinishOperation(ctx, record); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to record operation end")
	}
}
