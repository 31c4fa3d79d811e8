package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const sampleYAML = `
object_rule_groups:
  - name: system-objects
    rules:
      - property: _system_owned
        match_type: exact
        value: true
      - property: id
        match_type: prefix
        value: default
        applies_to_object_types: ["Group"]
        enabled: false
exclusion_rules:
  - property: "_*"
    match_type: wildcard
settings:
  case_sensitive: false
  remove_null_values: true
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadRuleSetYAML(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", sampleYAML)

	rs, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("LoadRuleSet failed: %v", err)
	}

	if len(rs.ObjectGroups) != 1 {
		t.Fatalf("Expected 1 object group, got %d", len(rs.ObjectGroups))
	}
	group := rs.ObjectGroups[0]
	if group.Name != "system-objects" {
		t.Errorf("Unexpected group name %q", group.Name)
	}
	if !group.Rules[0].IsEnabled() {
		t.Error("Expected omitted enabled to default to true")
	}
	if group.Rules[1].IsEnabled() {
		t.Error("Expected explicit enabled: false to be honored")
	}
	if rs.Settings.MaxNestingDepth != DefaultMaxNestingDepth {
		t.Errorf("Expected default max nesting depth, got %d", rs.Settings.MaxNestingDepth)
	}

	// Loaded rule set drives the engine end to end.
	e := NewEngine(rs, zerolog.Nop())
	obj := mustParse(t, `{"resource_type":"Group","id":"g1","_system_owned":true}`)
	if !e.ShouldFilterObject(obj) {
		t.Error("Expected loaded rules to filter system-owned object")
	}
}

func TestLoadRuleSetNormalizesNestedLevels(t *testing.T) {
	path := writeTempFile(t, "rules.yaml", `
steps:
  - step_order: 1
    target_level: -1
    exclusion_rules:
      - property: marker
        match_type: exact
      - property: other
        match_type: exact
        nested_levels: 2
`)

	rs, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("LoadRuleSet failed: %v", err)
	}

	rules := rs.Steps[0].Exclusions
	if rules[0].NestedLevels != -1 {
		t.Errorf("Expected omitted nested_levels to normalize to -1, got %d", rules[0].NestedLevels)
	}
	if rules[1].NestedLevels != 2 {
		t.Errorf("Expected explicit nested_levels to survive, got %d", rules[1].NestedLevels)
	}
}

func TestLoadRuleSetJSON(t *testing.T) {
	path := writeTempFile(t, "rules.json", `{
		"exclusion_rules":[{"property":"_revision","match_type":"exact"}]
	}`)

	rs, err := LoadRuleSet(path)
	if err != nil {
		t.Fatalf("LoadRuleSet failed: %v", err)
	}
	if len(rs.Exclusions) != 1 {
		t.Errorf("Expected 1 exclusion rule, got %d", len(rs.Exclusions))
	}
}

func TestLoadRuleSetRejectsBadInput(t *testing.T) {
	if _, err := LoadRuleSet(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	badExt := writeTempFile(t, "rules.toml", "x = 1")
	if _, err := LoadRuleSet(badExt); err == nil {
		t.Error("Expected error for unsupported extension")
	}

	badYAML := writeTempFile(t, "rules.yaml", "object_rule_groups: {not: a list}")
	if _, err := LoadRuleSet(badYAML); err == nil {
		t.Error("Expected error for malformed YAML")
	}

	missingProperty := writeTempFile(t, "rules2.yaml", `
exclusion_rules:
  - match_type: exact
`)
	if _, err := LoadRuleSet(missingProperty); err == nil {
		t.Error("Expected validation error for rule without property")
	}
}
