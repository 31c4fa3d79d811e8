package filter

import (
	"sort"

	"github.com/policydelta/policydelta/pkg/node"
)

// ApplyMultiStep runs the configured filter steps over the object tree.
// At each depth, every enabled step whose target level matches (or is -1)
// runs in step order; recursion then descends into children. Branches deeper
// than the configured max nesting depth are left unfiltered and logged.
// The input tree is never mutated.
func (e *Engine) ApplyMultiStep(obj *node.Node) *node.Node {
	if obj == nil {
		return nil
	}
	steps := e.enabledSteps()
	if len(steps) == 0 {
		return obj.Clone()
	}
	return e.applySteps(obj, nil, 0, e.maxNestingDepth(), steps)
}

func (e *Engine) maxNestingDepth() int {
	d := e.rules.Settings.MaxNestingDepth
	if d == 0 {
		return DefaultMaxNestingDepth
	}
	return d
}

func (e *Engine) enabledSteps() []*Step {
	var steps []*Step
	for i := range e.rules.Steps {
		if e.rules.Steps[i].IsEnabled() {
			steps = append(steps, &e.rules.Steps[i])
		}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	return steps
}

// applySteps filters one node and recurses into its children. Child-wrappers
// are transparent: steps operate on the unwrapped payload and the wrapper is
// rebuilt around the result.
func (e *Engine) applySteps(obj, parent *node.Node, depth, maxDepth int, steps []*Step) *node.Node {
	wrapper := obj
	target := obj.Unwrap()
	isWrapped := target != obj
	current := target.Clone()

	for _, step := range steps {
		if step.TargetLevel != -1 && step.TargetLevel != depth {
			continue
		}
		if !e.stepGatesPass(step, current, parent) {
			continue
		}
		current = e.runStep(step, current, depth)
	}

	if children := current.Children(); len(children) > 0 {
		if depth+1 > maxDepth && maxDepth != -1 {
			e.logger.Warn().
				Int("depth", depth+1).
				Int("max_depth", maxDepth).
				Str("id", current.ID()).
				Msg("Max nesting depth reached, leaving branch unfiltered")
		} else {
			filtered := make([]*node.Node, 0, len(children))
			for _, c := range children {
				filtered = append(filtered, e.applySteps(c, current, depth+1, maxDepth, steps))
			}
			current.SetChildren(filtered)
		}
	}

	if isWrapped {
		out := wrapper.Clone()
		out.Set(wrapper.WrappedType(), current)
		return out
	}
	return current
}

// stepGatesPass evaluates the step's conditional and parent gates against
// the candidate object.
func (e *Engine) stepGatesPass(step *Step, obj, parent *node.Node) bool {
	if step.IfPropertyExists != "" && !obj.Has(step.IfPropertyExists) {
		return false
	}
	if step.IfPropertyValue != nil {
		v, ok := obj.Get(step.IfPropertyValue.Property)
		if !ok || !e.looseEqual(v, step.IfPropertyValue.Value) {
			return false
		}
	}
	if step.IfResourceType != "" && !typeMatches(obj, step.IfResourceType) {
		return false
	}
	if step.ParentPropertyFilter != "" {
		if parent == nil || !parent.Has(step.ParentPropertyFilter) {
			return false
		}
	}
	if step.ParentResourceTypeFilter != "" {
		if parent == nil || !typeMatches(parent, step.ParentResourceTypeFilter) {
			return false
		}
	}
	return true
}

// runStep applies the step's rule lists in the step's execution order,
// falling back to the global order when unset.
func (e *Engine) runStep(step *Step, obj *node.Node, depth int) *node.Node {
	incl := rulesForDepth(step.Inclusions, depth)
	excl := rulesForDepth(step.Exclusions, depth)

	order := step.ExecutionOrder
	if order == "" {
		order = e.executionOrder()
	}
	switch order {
	case ExclusionsFirst:
		return e.applyInclusionRules(e.applyExclusionRules(obj, excl), incl)
	case InclusionsOnly:
		return e.applyInclusionRules(obj, incl)
	case ExclusionsOnly:
		return e.applyExclusionRules(obj, excl)
	default:
		return e.applyExclusionRules(e.applyInclusionRules(obj, incl), excl)
	}
}

// rulesForDepth keeps the rules whose nested-levels bound covers the depth.
// The loader normalizes the unset zero value to -1; zero is still accepted
// here so rule sets built in code behave the same.
func rulesForDepth(rules []Rule, depth int) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.NestedLevels == 0 || r.NestedLevels == -1 || depth <= r.NestedLevels {
			out = append(out, r)
		}
	}
	return out
}
