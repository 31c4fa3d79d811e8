package filter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LoadRuleSet reads a rule set from a YAML or JSON file (by extension),
// applies defaults, and validates it.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set: %w", err)
	}

	var rs RuleSet
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &rs); err != nil {
			return nil, fmt.Errorf("failed to parse rule set %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, fmt.Errorf("failed to parse rule set %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule set format %q", ext)
	}

	applyDefaults(&rs)
	if err := ValidateRuleSet(&rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

func applyDefaults(rs *RuleSet) {
	if rs.Settings.MaxNestingDepth == 0 {
		rs.Settings.MaxNestingDepth = DefaultMaxNestingDepth
	}
	for i := range rs.Steps {
		normalizeNestedLevels(rs.Steps[i].Inclusions)
		normalizeNestedLevels(rs.Steps[i].Exclusions)
	}
}

// normalizeNestedLevels maps the unset zero value to the -1 unlimited
// sentinel so evaluation only deals with one convention.
func normalizeNestedLevels(rules []Rule) {
	for i := range rules {
		if rules[i].NestedLevels == 0 {
			rules[i].NestedLevels = -1
		}
	}
}

// ValidateRuleSet checks structural validity of a rule set. Unknown match
// types are not rejected here: they degrade to non-matching at evaluation
// time so a stale rule file cannot break a run.
func ValidateRuleSet(rs *RuleSet) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(rs); err != nil {
		return fmt.Errorf("invalid rule set: %w", err)
	}
	return nil
}
