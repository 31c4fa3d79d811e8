// Package policy implements the pre-apply guard: Rego policies evaluated
// against a computed delta before it is submitted to the remote side. The
// guard runs in advisory mode (report only) or enforcing mode (block on
// error and critical violations).
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/compare"
)

// Guard evaluates deltas against loaded Rego policies.
type Guard struct {
	mu       sync.RWMutex
	mode     Mode
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy pairs a policy with its prepared deny query.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewGuard creates a guard with the built-in policies loaded.
func NewGuard(mode Mode, logger zerolog.Logger) (*Guard, error) {
	if mode == "" {
		mode = ModeAdvisory
	}

	g := &Guard{
		mode:     mode,
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-guard").Logger(),
	}

	for _, p := range GetBuiltinPolicies() {
		p := p
		if err := g.compileAndStore(context.Background(), &p); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	g.logger.Info().
		Int("count", len(g.policies)).
		Str("mode", string(mode)).
		Msg("Built-in policies loaded")
	return g, nil
}

// Mode returns the guard's evaluation mode.
func (g *Guard) Mode() Mode {
	return g.mode
}

// LoadPolicies loads and compiles policies from files or directories,
// alongside the built-ins.
func (g *Guard) LoadPolicies(ctx context.Context, paths []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	loader := NewLoader(g.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for i := range policies {
		if err := g.compileAndStore(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	g.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// ReplacePolicies swaps every file-sourced policy for the given set,
// keeping the built-ins. Used by the watch-driven reload path.
func (g *Guard) ReplacePolicies(ctx context.Context, policies []Policy) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for name, cp := range g.policies {
		if cp.policy.Source != "builtin" {
			delete(g.policies, name)
		}
	}
	for i := range policies {
		if err := g.compileAndStore(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	return nil
}

// BuildInput converts a difference set into the input document policies see.
func BuildInput(diff *compare.DifferenceSet, target, domain string, whatIf bool) (*DeltaInput, error) {
	input := &DeltaInput{}
	input.Summary.Creates = len(diff.Create)
	input.Summary.Updates = len(diff.Update)
	input.Summary.Deletes = len(diff.Delete)
	input.Context.Target = target
	input.Context.Domain = domain
	input.Context.WhatIf = whatIf
	input.Context.Timestamp = time.Now().UTC()

	for _, ref := range diff.Create {
		obj, err := toMap(ref.Object)
		if err != nil {
			return nil, err
		}
		input.Objects = append(input.Objects, DeltaObject{
			Action: "create", Key: ref.Key, ObjectType: ref.ObjectType, Object: obj,
		})
	}
	for _, u := range diff.Update {
		obj, err := toMap(u.Proposed)
		if err != nil {
			return nil, err
		}
		input.Objects = append(input.Objects, DeltaObject{
			Action: "update", Key: u.Key, ObjectType: u.ObjectType, Object: obj,
		})
	}
	for _, ref := range diff.Delete {
		obj, err := toMap(ref.Object)
		if err != nil {
			return nil, err
		}
		input.Objects = append(input.Objects, DeltaObject{
			Action: "delete", Key: ref.Key, ObjectType: ref.ObjectType, Object: obj,
		})
	}
	return input, nil
}

func toMap(v json.Marshaler) (map[string]any, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode delta object: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode delta object: %w", err)
	}
	return out, nil
}

// EvaluateDelta runs every enabled policy against the input. A policy that
// fails to evaluate becomes a warning, never a hard failure.
func (g *Guard) EvaluateDelta(ctx context.Context, input *DeltaInput) (*GuardResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Round-trip through JSON so policies see plain maps.
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode guard input: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode guard input: %w", err)
	}

	result := &GuardResult{
		Allowed:     true,
		EvaluatedAt: time.Now(),
	}

	for _, cp := range g.policies {
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := g.evaluatePolicy(ctx, cp, doc)
		if err != nil {
			g.logger.Error().Err(err).Str("policy", cp.policy.Name).Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	if g.mode == ModeEnforcing {
		for i := range result.Violations {
			if result.Violations[i].Severity == SeverityError || result.Violations[i].Severity == SeverityCritical {
				result.Allowed = false
				break
			}
		}
	}

	g.logger.Info().
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Msg("Delta guard evaluation complete")
	return result, nil
}

func (g *Guard) evaluatePolicy(ctx context.Context, cp *compiledPolicy, doc map[string]any) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, g.makeViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

func (g *Guard) makeViolation(policy *Policy, result any) Violation {
	v := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]any:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if key, ok := r["object_key"].(string); ok {
			v.ObjectKey = key
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

func (g *Guard) compileAndStore(ctx context.Context, policy *Policy) error {
	query := fmt.Sprintf("data.%s.deny", extractPackageName(policy.Rego))

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(query),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	g.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		query:    prepared,
		compiled: time.Now(),
	}

	g.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled")
	return nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "policydelta.guard"
}

// GetPolicy returns a policy by name.
func (g *Guard) GetPolicy(name string) (*Policy, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cp, exists := g.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies.
func (g *Guard) ListPolicies() []Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()

	policies := make([]Policy, 0, len(g.policies))
	for _, cp := range g.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// SetPolicyEnabled toggles a policy by name.
func (g *Guard) SetPolicyEnabled(name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cp, exists := g.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	g.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
