package filter

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestMultiStepRunsStepsAtMatchingDepth(t *testing.T) {
	rs := &RuleSet{
		Steps: []Step{
			{
				Order:       1,
				TargetLevel: 0,
				Exclusions:  []Rule{{Property: "root_only", MatchType: MatchExact}},
			},
			{
				Order:       2,
				TargetLevel: 1,
				Exclusions:  []Rule{{Property: "child_only", MatchType: MatchExact}},
			},
		},
	}
	e := NewEngine(rs, zerolog.Nop())

	root := mustParse(t, `{
		"resource_type":"Infra","id":"infra","root_only":1,"child_only":1,
		"children":[
			{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g1","root_only":1,"child_only":1}}
		]
	}`)

	got := e.ApplyMultiStep(root)

	if got.Has("root_only") {
		t.Error("Expected level-0 step to strip root_only at the root")
	}
	if !got.Has("child_only") {
		t.Error("Expected level-1 step not to run at the root")
	}
	child := got.Children()[0].Unwrap()
	if child.Has("child_only") {
		t.Error("Expected level-1 step to strip child_only on children")
	}
	if !child.Has("root_only") {
		t.Error("Expected level-0 step not to run on children")
	}
}

func TestMultiStepAnyDepthStep(t *testing.T) {
	rs := &RuleSet{
		Steps: []Step{
			{
				Order:       1,
				TargetLevel: -1,
				Exclusions:  []Rule{{Property: "_*", MatchType: MatchWildcard}},
			},
		},
	}
	e := NewEngine(rs, zerolog.Nop())

	root := mustParse(t, `{
		"resource_type":"Infra","id":"infra","_revision":1,
		"children":[
			{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g1","_revision":2}}
		]
	}`)

	got := e.ApplyMultiStep(root)

	if got.Has("_revision") {
		t.Error("Expected any-depth step to run at the root")
	}
	if got.Children()[0].Unwrap().Has("_revision") {
		t.Error("Expected any-depth step to run on children")
	}
}

func TestMultiStepOrdering(t *testing.T) {
	// The first step (by order) strips "a"; the second includes only what is
	// left. With the orders swapped the result would keep "a".
	rs := &RuleSet{
		Steps: []Step{
			{
				Order:          2,
				TargetLevel:    0,
				ExecutionOrder: InclusionsOnly,
				Inclusions: []Rule{
					{Property: "a", MatchType: MatchExact},
					{Property: "b", MatchType: MatchExact},
				},
			},
			{
				Order:          1,
				TargetLevel:    0,
				ExecutionOrder: ExclusionsOnly,
				Exclusions:     []Rule{{Property: "a", MatchType: MatchExact}},
			},
		},
	}
	e := NewEngine(rs, zerolog.Nop())

	obj := mustParse(t, `{"a":1,"b":2,"c":3}`)
	got := e.ApplyMultiStep(obj)

	if got.Has("a") {
		t.Error("Expected step order 1 to strip a before inclusion step ran")
	}
	if !got.Has("b") {
		t.Error("Expected b to survive both steps")
	}
	if got.Has("c") {
		t.Error("Expected inclusion step to drop c")
	}
}

func TestMultiStepDisabledStepSkipped(t *testing.T) {
	rs := &RuleSet{
		Steps: []Step{
			{
				Order:       1,
				TargetLevel: -1,
				Enabled:     boolPtr(false),
				Exclusions:  []Rule{{Property: "id", MatchType: MatchExact}},
			},
		},
	}
	e := NewEngine(rs, zerolog.Nop())

	obj := mustParse(t, `{"id":"keep"}`)
	if got := e.ApplyMultiStep(obj); !got.Has("id") {
		t.Error("Expected disabled step to be skipped")
	}
}

func TestMultiStepDepthBound(t *testing.T) {
	rs := &RuleSet{
		Settings: Settings{MaxNestingDepth: 1},
		Steps: []Step{
			{
				Order:       1,
				TargetLevel: -1,
				Exclusions:  []Rule{{Property: "marker", MatchType: MatchExact}},
			},
		},
	}
	e := NewEngine(rs, zerolog.Nop())

	root := mustParse(t, `{
		"resource_type":"Infra","id":"infra","marker":1,
		"children":[
			{"resource_type":"ChildDomain","Domain":{
				"resource_type":"Domain","id":"d","marker":1,
				"children":[
					{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g","marker":1}}
				]
			}}
		]
	}`)

	got := e.ApplyMultiStep(root)

	if got.Has("marker") {
		t.Error("Expected root to be filtered")
	}
	domain := got.Children()[0].Unwrap()
	if domain.Has("marker") {
		t.Error("Expected depth-1 object to be filtered")
	}
	group := domain.Children()[0].Unwrap()
	if !group.Has("marker") {
		t.Error("Expected branch past max depth to be left unfiltered")
	}
}

func TestMultiStepParentGates(t *testing.T) {
	rs := &RuleSet{
		Steps: []Step{
			{
				Order:                    1,
				TargetLevel:              -1,
				ParentResourceTypeFilter: "Domain",
				Exclusions:               []Rule{{Property: "marker", MatchType: MatchExact}},
			},
		},
	}
	e := NewEngine(rs, zerolog.Nop())

	root := mustParse(t, `{
		"resource_type":"Infra","id":"infra","marker":1,
		"children":[
			{"resource_type":"ChildService","Service":{"resource_type":"Service","id":"s","marker":1}},
			{"resource_type":"ChildDomain","Domain":{
				"resource_type":"Domain","id":"d",
				"children":[
					{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g","marker":1}}
				]
			}}
		]
	}`)

	got := e.ApplyMultiStep(root)

	if !got.Has("marker") {
		t.Error("Expected root (no parent) to be untouched")
	}
	svc := got.Children()[0].Unwrap()
	if !svc.Has("marker") {
		t.Error("Expected service under Infra to be untouched")
	}
	group := got.Children()[1].Unwrap().Children()[0].Unwrap()
	if group.Has("marker") {
		t.Error("Expected group under Domain to be filtered")
	}
}

func TestMultiStepNestedLevelBoundOnRule(t *testing.T) {
	rs := &RuleSet{
		Steps: []Step{
			{
				Order:       1,
				TargetLevel: -1,
				Exclusions:  []Rule{{Property: "marker", MatchType: MatchExact, NestedLevels: 1}},
			},
		},
	}
	e := NewEngine(rs, zerolog.Nop())

	root := mustParse(t, `{
		"resource_type":"Infra","id":"infra","marker":1,
		"children":[
			{"resource_type":"ChildDomain","Domain":{
				"resource_type":"Domain","id":"d","marker":1,
				"children":[
					{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g","marker":1}}
				]
			}}
		]
	}`)

	got := e.ApplyMultiStep(root)

	domain := got.Children()[0].Unwrap()
	group := domain.Children()[0].Unwrap()
	if got.Has("marker") || domain.Has("marker") {
		t.Error("Expected rule to apply within its nested level bound")
	}
	if !group.Has("marker") {
		t.Error("Expected rule not to apply past its nested level bound")
	}
}

func TestMultiStepWithoutStepsIsIdentity(t *testing.T) {
	e := NewEngine(&RuleSet{}, zerolog.Nop())
	obj := mustParse(t, `{"id":"x","nested":{"a":1}}`)

	got := e.ApplyMultiStep(obj)
	if !got.Equal(obj) {
		t.Error("Expected no-step multi-step filtering to be identity")
	}
}
