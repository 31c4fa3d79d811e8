package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/node"
)

// Engine evaluates a RuleSet against configuration objects. It holds no
// mutable state beyond its configuration and is safe for concurrent use.
type Engine struct {
	rules  *RuleSet
	logger zerolog.Logger
}

// NewEngine creates a filter engine for the given rule set. A nil rule set
// behaves as an empty one: nothing is filtered.
func NewEngine(rules *RuleSet, logger zerolog.Logger) *Engine {
	if rules == nil {
		rules = &RuleSet{}
	}
	return &Engine{
		rules:  rules,
		logger: logger.With().Str("component", "filter").Logger(),
	}
}

// RuleSet returns the engine's configuration.
func (e *Engine) RuleSet() *RuleSet {
	return e.rules
}

// ShouldFilterObject reports whether the object is platform-managed per the
// object-level rule groups and must be excluded from comparison and mutation.
func (e *Engine) ShouldFilterObject(obj *node.Node) bool {
	return e.shouldFilter(obj, nil)
}

// ShouldFilterObjectWithParent is ShouldFilterObject with the parent object
// available for parent_resource_type guarded rules.
func (e *Engine) ShouldFilterObjectWithParent(obj, parent *node.Node) bool {
	return e.shouldFilter(obj, parent)
}

func (e *Engine) shouldFilter(obj, parent *node.Node) bool {
	if obj == nil {
		return false
	}
	view := evaluationView(obj)
	for gi := range e.rules.ObjectGroups {
		group := &e.rules.ObjectGroups[gi]
		if !group.IsEnabled() {
			continue
		}
		target := view
		if group.TargetPath != "" {
			nested, ok := view.GetObject(group.TargetPath)
			if !ok {
				continue
			}
			target = nested
		}
		for ri := range group.Rules {
			rule := &group.Rules[ri]
			if !rule.IsEnabled() {
				continue
			}
			if !e.ruleGatesPass(rule, target, parent) {
				continue
			}
			if !appliesToObject(rule, obj) {
				continue
			}
			if e.ruleMatches(rule, target) {
				e.logger.Debug().
					Str("group", group.Name).
					Str("property", rule.Property).
					Str("id", obj.Unwrap().ID()).
					Msg("Object matched filter rule")
				return true
			}
		}
	}
	return false
}

// evaluationView flattens a Child-wrapper for matching: the payload's
// properties with the wrapper's resource type, so rules can address metadata
// on the inner object and the wrapped type in one condition.
func evaluationView(obj *node.Node) *node.Node {
	inner := obj.Inner()
	if inner == nil {
		return obj
	}
	view := inner.Clone()
	view.Set(node.PropResourceType, obj.ResourceType())
	return view
}

// appliesToObject checks the rule's object-type restriction against both the
// wrapped and unwrapped resource type.
func appliesToObject(rule *Rule, obj *node.Node) bool {
	if rule.AppliesToType(obj.ResourceType()) {
		return true
	}
	if inner := obj.Inner(); inner != nil {
		return rule.AppliesToType(inner.ResourceType())
	}
	return false
}

// ruleGatesPass evaluates the conditional gates shared by rules and steps.
func (e *Engine) ruleGatesPass(rule *Rule, obj, parent *node.Node) bool {
	if rule.IfPropertyExists != "" && !obj.Has(rule.IfPropertyExists) {
		return false
	}
	if rule.IfPropertyValue != nil {
		v, ok := obj.Get(rule.IfPropertyValue.Property)
		if !ok || !e.looseEqual(v, rule.IfPropertyValue.Value) {
			return false
		}
	}
	if rule.IfResourceType != "" && !typeMatches(obj, rule.IfResourceType) {
		return false
	}
	if rule.ParentResourceType != "" {
		if parent == nil || !typeMatches(parent, rule.ParentResourceType) {
			return false
		}
	}
	return true
}

func typeMatches(obj *node.Node, resourceType string) bool {
	if obj.ResourceType() == resourceType {
		return true
	}
	if inner := obj.Inner(); inner != nil {
		return inner.ResourceType() == resourceType
	}
	return false
}

// ruleMatches evaluates the rule's primary and, when present, compound
// condition against the target object.
func (e *Engine) ruleMatches(rule *Rule, target *node.Node) bool {
	actual, ok := target.Get(rule.Property)
	if !ok {
		return false
	}
	if !e.matchValue(rule.MatchType, rule.Value, actual) {
		return false
	}
	if rule.AdditionalProperty != "" {
		additional, ok := target.Get(rule.AdditionalProperty)
		if !ok || !e.looseEqual(additional, rule.AdditionalValue) {
			return false
		}
	}
	return true
}

// matchValue compares an actual property value against a rule value under
// the rule's match type. Unknown match types never match.
func (e *Engine) matchValue(mt MatchType, ruleValue, actual any) bool {
	switch mt {
	case MatchExact, "":
		if rb, ok := ruleValue.(bool); ok {
			ab, ok := actual.(bool)
			return ok && rb == ab
		}
		return e.looseEqual(actual, ruleValue)
	case MatchPattern, MatchWildcard:
		return node.WildcardMatch(e.fold(valueString(ruleValue)), e.fold(valueString(actual)))
	case MatchRegex:
		re, err := regexp.Compile(valueString(ruleValue))
		if err != nil {
			e.logger.Warn().Err(err).Str("pattern", valueString(ruleValue)).Msg("Invalid regex in filter rule")
			return false
		}
		return re.MatchString(valueString(actual))
	case MatchPartial:
		return strings.Contains(e.fold(valueString(actual)), e.fold(valueString(ruleValue)))
	case MatchPrefix:
		return strings.HasPrefix(e.fold(valueString(actual)), e.fold(valueString(ruleValue)))
	case MatchSuffix:
		return strings.HasSuffix(e.fold(valueString(actual)), e.fold(valueString(ruleValue)))
	default:
		e.logger.Warn().Str("match_type", string(mt)).Msg("Unknown match type, treating as non-matching")
		return false
	}
}

// looseEqual is structural equality with the configured case sensitivity
// applied to strings.
func (e *Engine) looseEqual(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok && !e.rules.Settings.CaseSensitive {
		return strings.EqualFold(as, bs)
	}
	return node.ValueEqual(a, b)
}

// fold lowercases when matching is case insensitive.
func (e *Engine) fold(s string) string {
	if e.rules.Settings.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ApplyInclusions builds a new object containing only the properties named
// by enabled inclusion rules. With no applicable rules the object is returned
// unchanged (as a copy), so a ruleset without inclusions never empties
// objects.
func (e *Engine) ApplyInclusions(obj *node.Node) *node.Node {
	return e.applyInclusionRules(obj, e.rules.Inclusions)
}

func (e *Engine) applyInclusionRules(obj *node.Node, rules []Rule) *node.Node {
	if obj == nil {
		return nil
	}
	applicable := e.applicableRules(rules, obj)
	if len(applicable) == 0 {
		return obj.Clone()
	}

	result := node.New()
	for _, rule := range applicable {
		mode := keyMode(rule.MatchType)
		for _, key := range obj.MatchKeys(rule.Property, mode) {
			if result.Has(key) {
				continue
			}
			v, _ := obj.Get(key)
			if v == nil && !e.rules.Settings.IncludeNullValues {
				continue
			}
			if arr, ok := v.([]any); ok && len(arr) == 0 && !e.rules.Settings.IncludeEmptyArrays {
				continue
			}
			result.Set(key, cloneAny(v))
		}
	}
	return result
}

// ApplyExclusions returns a copy of the object with properties named by
// enabled exclusion rules removed, then applies the global null/empty
// stripping settings.
func (e *Engine) ApplyExclusions(obj *node.Node) *node.Node {
	return e.applyExclusionRules(obj, e.rules.Exclusions)
}

func (e *Engine) applyExclusionRules(obj *node.Node, rules []Rule) *node.Node {
	if obj == nil {
		return nil
	}
	result := obj.Clone()
	for _, rule := range e.applicableRules(rules, obj) {
		mode := keyMode(rule.MatchType)
		for _, key := range result.MatchKeys(rule.Property, mode) {
			result.Delete(key)
		}
	}
	e.applyGlobalStripping(result)
	return result
}

func (e *Engine) applyGlobalStripping(obj *node.Node) {
	s := e.rules.Settings
	if !s.RemoveNullValues && !s.RemoveEmptyArrays && !s.RemoveEmptyObjects {
		return
	}
	for _, key := range obj.Keys() {
		v, _ := obj.Get(key)
		switch t := v.(type) {
		case nil:
			if s.RemoveNullValues {
				obj.Delete(key)
			}
		case []any:
			if s.RemoveEmptyArrays && len(t) == 0 {
				obj.Delete(key)
			}
		case *node.Node:
			if s.RemoveEmptyObjects && t.Len() == 0 {
				obj.Delete(key)
			}
		}
	}
}

// applicableRules returns the enabled rules whose type restriction and gates
// match the object.
func (e *Engine) applicableRules(rules []Rule, obj *node.Node) []*Rule {
	var out []*Rule
	for i := range rules {
		rule := &rules[i]
		if !rule.IsEnabled() {
			continue
		}
		if !appliesToObject(rule, obj) {
			continue
		}
		if !e.ruleGatesPass(rule, obj, nil) {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// Apply runs the configured combination of inclusion and exclusion rules.
func (e *Engine) Apply(obj *node.Node) *node.Node {
	switch e.executionOrder() {
	case ExclusionsFirst:
		return e.ApplyInclusions(e.ApplyExclusions(obj))
	case InclusionsOnly:
		return e.ApplyInclusions(obj)
	case ExclusionsOnly:
		return e.ApplyExclusions(obj)
	default:
		return e.ApplyExclusions(e.ApplyInclusions(obj))
	}
}

func (e *Engine) executionOrder() ExecutionOrder {
	if e.rules.Settings.ExecutionOrder != "" {
		return e.rules.Settings.ExecutionOrder
	}
	return InclusionsFirst
}

// keyMode maps a rule match type to a property-name lookup mode.
func keyMode(mt MatchType) node.KeyMatchMode {
	switch mt {
	case MatchWildcard, MatchPattern:
		return node.KeyMatchWildcard
	case MatchRegex:
		return node.KeyMatchRegex
	case MatchPrefix:
		return node.KeyMatchPrefix
	case MatchSuffix:
		return node.KeyMatchSuffix
	default:
		return node.KeyMatchExact
	}
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case *node.Node:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

// FilterTree returns a copy of the configuration tree with platform-managed
// objects removed. Container children (Infra, Domain payloads) are traversed
// recursively; the tree passed in is never mutated.
func (e *Engine) FilterTree(root *node.Node) *node.Node {
	if root == nil {
		return nil
	}
	out := root.Clone()
	e.filterChildren(out)
	return out
}

func (e *Engine) filterChildren(container *node.Node) {
	children := container.Children()
	if len(children) == 0 {
		return
	}
	kept := make([]*node.Node, 0, len(children))
	for _, child := range children {
		if e.shouldFilter(child, container) {
			continue
		}
		if inner := child.Inner(); inner != nil {
			e.filterChildren(inner)
		} else {
			e.filterChildren(child)
		}
		kept = append(kept, child)
	}
	container.SetChildren(kept)
}
