package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const customRego = `# Blocks services without entries
# severity: error
package custom.services

import rego.v1

deny contains violation if {
	some obj in input.objects
	obj.action == "create"
	obj.object_type == "Service"
	not obj.object.service_entries
	violation := {
		"message": sprintf("Service %s has no service entries", [obj.key]),
		"severity": "error",
		"object_key": obj.key,
	}
}
`

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadFromPathsRego(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "service-entries.rego", customRego)
	writePolicyFile(t, dir, "ignored.txt", "not a policy")

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}
	p := policies[0]
	if p.Name != "service-entries" {
		t.Errorf("Unexpected name %q", p.Name)
	}
	if p.Severity != SeverityError {
		t.Errorf("Expected severity from marker, got %q", p.Severity)
	}
	if p.Description == "" {
		t.Error("Expected description from leading comments")
	}
	if !p.Enabled {
		t.Error("Expected loaded policy to be enabled")
	}
}

func TestLoadFromPathsJSON(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "custom.json", `{
		"name": "json-policy",
		"rego": "package custom.x\n\nimport rego.v1\n\ndeny contains msg if { input.summary.deletes > 0; msg := \"no deletes\" }",
		"enabled": true
	}`)

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "json-policy" {
		t.Fatalf("Unexpected policies %+v", policies)
	}
	if policies[0].Severity != SeverityWarning {
		t.Errorf("Expected default severity warning, got %q", policies[0].Severity)
	}
}

func TestLoadFromPathsMissing(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent"}); err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestLoadedPolicyEvaluates(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "service-entries.rego", customRego)

	g, err := NewGuard(ModeEnforcing, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	if err := g.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	input := &DeltaInput{
		Objects: []DeltaObject{{
			Action:     "create",
			Key:        "Service|bare",
			ObjectType: "Service",
			Object:     map[string]any{"resource_type": "Service", "id": "bare", "display_name": "bare"},
		}},
	}
	input.Summary.Creates = 1

	result, err := g.EvaluateDelta(context.Background(), input)
	if err != nil {
		t.Fatalf("EvaluateDelta failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected file-loaded policy to block")
	}
}

func TestReplacePoliciesKeepsBuiltins(t *testing.T) {
	g, err := NewGuard(ModeAdvisory, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}

	loaded := Policy{
		Name:     "transient",
		Rego:     "package custom.t\n\nimport rego.v1\n\ndeny contains msg if { false; msg := \"never\" }",
		Severity: SeverityWarning,
		Enabled:  true,
		Source:   "/tmp/transient.rego",
	}
	if err := g.ReplacePolicies(context.Background(), []Policy{loaded}); err != nil {
		t.Fatalf("ReplacePolicies failed: %v", err)
	}
	if _, err := g.GetPolicy("transient"); err != nil {
		t.Errorf("Expected replaced policy present: %v", err)
	}
	if _, err := g.GetPolicy("protected-domain"); err != nil {
		t.Errorf("Expected builtin to survive replace: %v", err)
	}

	if err := g.ReplacePolicies(context.Background(), nil); err != nil {
		t.Fatalf("ReplacePolicies failed: %v", err)
	}
	if _, err := g.GetPolicy("transient"); err == nil {
		t.Error("Expected file-sourced policy to be dropped")
	}
}
