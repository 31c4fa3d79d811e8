// Package filter removes platform-managed objects and properties from
// configuration trees before they reach comparison. Filtering is a pure
// function of (object, ruleset): rule state is never mutated and malformed
// rules degrade to non-matching instead of failing the run.
package filter

// MatchType selects how a rule value is compared against a property value.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchPattern  MatchType = "pattern"
	MatchRegex    MatchType = "regex"
	MatchPartial  MatchType = "partial"
	MatchWildcard MatchType = "wildcard"
	MatchPrefix   MatchType = "prefix"
	MatchSuffix   MatchType = "suffix"
)

// ExecutionOrder controls how inclusion and exclusion rules combine.
type ExecutionOrder string

const (
	InclusionsFirst ExecutionOrder = "inclusions_first"
	ExclusionsFirst ExecutionOrder = "exclusions_first"
	InclusionsOnly  ExecutionOrder = "inclusions_only"
	ExclusionsOnly  ExecutionOrder = "exclusions_only"
)

// Rule is a single object- or property-level matching rule.
//
// Enabled defaults to true when omitted; a pointer distinguishes "not set"
// from an explicit false in rule files.
type Rule struct {
	// Property is the property name (or name pattern, for property-level
	// rules) the rule applies to.
	Property string `json:"property" yaml:"property" validate:"required"`

	// MatchType selects the comparison. Unknown values are logged and treated
	// as non-matching.
	MatchType MatchType `json:"match_type" yaml:"match_type"`

	// Value is the expected value for object-level matching. Property-level
	// rules ignore it.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	// ObjectTypes restricts the rule to objects of these resource types.
	// Empty or "*" applies to all types.
	ObjectTypes []string `json:"applies_to_object_types,omitempty" yaml:"applies_to_object_types,omitempty"`

	// AdditionalProperty and AdditionalValue form a compound AND condition:
	// both the primary and the secondary condition must hold.
	AdditionalProperty string `json:"additional_property,omitempty" yaml:"additional_property,omitempty"`
	AdditionalValue    any    `json:"additional_value,omitempty" yaml:"additional_value,omitempty"`

	// NestedLevels bounds how deep the rule applies in multi-step filtering.
	// -1 means unlimited depth; 0 (unset) is normalized to -1 at load time.
	NestedLevels int `json:"nested_levels,omitempty" yaml:"nested_levels,omitempty"`

	// ParentResourceType restricts the rule to objects whose parent carries
	// this resource type.
	ParentResourceType string `json:"parent_resource_type,omitempty" yaml:"parent_resource_type,omitempty"`

	// Conditional gates: the rule only applies when the candidate object
	// satisfies them.
	IfPropertyExists string `json:"if_property_exists,omitempty" yaml:"if_property_exists,omitempty"`
	IfPropertyValue  *PropertyCondition `json:"if_property_value,omitempty" yaml:"if_property_value,omitempty"`
	IfResourceType   string `json:"if_resource_type,omitempty" yaml:"if_resource_type,omitempty"`

	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// PropertyCondition is a property/value pair used by conditional gating.
type PropertyCondition struct {
	Property string `json:"property" yaml:"property" validate:"required"`
	Value    any    `json:"value" yaml:"value"`
}

// IsEnabled reports whether the rule participates in matching.
func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// AppliesToType reports whether the rule covers the given resource type.
func (r *Rule) AppliesToType(resourceType string) bool {
	if len(r.ObjectTypes) == 0 {
		return true
	}
	for _, t := range r.ObjectTypes {
		if t == "*" || t == resourceType {
			return true
		}
	}
	return false
}

// RuleGroup is a named set of object-level rules. A disabled group never
// matches. TargetPath optionally redirects matching to a nested object.
type RuleGroup struct {
	Name       string `json:"name" yaml:"name"`
	TargetPath string `json:"target_path,omitempty" yaml:"target_path,omitempty"`
	Rules      []Rule `json:"rules" yaml:"rules" validate:"dive"`
	Enabled    *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the group participates in matching.
func (g *RuleGroup) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

// Step is one stage of multi-step filtering. Steps run in Order at tree
// depths matching TargetLevel (-1 for any depth), recursing into children.
type Step struct {
	Order          int            `json:"step_order" yaml:"step_order"`
	TargetLevel    int            `json:"target_level" yaml:"target_level"`
	ExecutionOrder ExecutionOrder `json:"execution_order,omitempty" yaml:"execution_order,omitempty"`
	Inclusions     []Rule         `json:"inclusion_rules,omitempty" yaml:"inclusion_rules,omitempty" validate:"dive"`
	Exclusions     []Rule         `json:"exclusion_rules,omitempty" yaml:"exclusion_rules,omitempty" validate:"dive"`

	// ParentPropertyFilter and ParentResourceTypeFilter gate the step on the
	// parent object the candidate was reached through.
	ParentPropertyFilter     string `json:"parent_property_filter,omitempty" yaml:"parent_property_filter,omitempty"`
	ParentResourceTypeFilter string `json:"parent_resource_type_filter,omitempty" yaml:"parent_resource_type_filter,omitempty"`

	// Conditional gates, same semantics as on Rule.
	IfPropertyExists string             `json:"if_property_exists,omitempty" yaml:"if_property_exists,omitempty"`
	IfPropertyValue  *PropertyCondition `json:"if_property_value,omitempty" yaml:"if_property_value,omitempty"`
	IfResourceType   string             `json:"if_resource_type,omitempty" yaml:"if_resource_type,omitempty"`

	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the step participates in filtering.
func (s *Step) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Settings are global knobs for property-level filtering.
type Settings struct {
	// CaseSensitive controls string comparisons in object-level matching.
	CaseSensitive bool `json:"case_sensitive" yaml:"case_sensitive"`

	// IncludeNullValues and IncludeEmptyArrays let inclusion rules copy
	// null-valued and empty-array properties, which are skipped by default.
	IncludeNullValues  bool `json:"include_null_values" yaml:"include_null_values"`
	IncludeEmptyArrays bool `json:"include_empty_arrays" yaml:"include_empty_arrays"`

	// RemoveNullValues, RemoveEmptyArrays and RemoveEmptyObjects strip the
	// corresponding properties after exclusion rules run.
	RemoveNullValues  bool `json:"remove_null_values" yaml:"remove_null_values"`
	RemoveEmptyArrays bool `json:"remove_empty_arrays" yaml:"remove_empty_arrays"`
	RemoveEmptyObjects bool `json:"remove_empty_objects" yaml:"remove_empty_objects"`

	// ExecutionOrder controls combined inclusion/exclusion application.
	ExecutionOrder ExecutionOrder `json:"execution_order,omitempty" yaml:"execution_order,omitempty" validate:"omitempty,oneof=inclusions_first exclusions_first inclusions_only exclusions_only"`

	// MaxNestingDepth bounds multi-step recursion. Branches past the bound
	// are left as-is and logged, never failed.
	MaxNestingDepth int `json:"max_nesting_depth" yaml:"max_nesting_depth" validate:"omitempty,gte=-1"`
}

// DefaultMaxNestingDepth is used when MaxNestingDepth is unset.
const DefaultMaxNestingDepth = 10

// RuleSet is a complete filtering configuration.
type RuleSet struct {
	// ObjectGroups hold object-level rules deciding whether a whole object is
	// platform-managed and must be excluded.
	ObjectGroups []RuleGroup `json:"object_rule_groups,omitempty" yaml:"object_rule_groups,omitempty" validate:"dive"`

	// Inclusions and Exclusions are property-level rules.
	Inclusions []Rule `json:"inclusion_rules,omitempty" yaml:"inclusion_rules,omitempty" validate:"dive"`
	Exclusions []Rule `json:"exclusion_rules,omitempty" yaml:"exclusion_rules,omitempty" validate:"dive"`

	// Steps enable multi-step nested filtering.
	Steps []Step `json:"steps,omitempty" yaml:"steps,omitempty" validate:"dive"`

	Settings Settings `json:"settings" yaml:"settings"`
}
