package compare

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/filter"
	"github.com/policydelta/policydelta/pkg/node"
)

type stubSchemaSource struct {
	docs map[string]*node.Node
	err  error
}

func (s *stubSchemaSource) GetSchemas(_ context.Context) (map[string]*node.Node, error) {
	return s.docs, s.err
}

func mustParse(t *testing.T, raw string) *node.Node {
	t.Helper()
	n, err := node.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return n
}

func newComparator(t *testing.T, rules *filter.RuleSet, docs map[string]*node.Node) *Comparator {
	t.Helper()
	var schemas *stubSchemaSource
	if docs != nil {
		schemas = &stubSchemaSource{docs: docs}
	}
	engine := filter.NewEngine(rules, zerolog.Nop())
	if schemas == nil {
		return NewComparator(engine, nil, zerolog.Nop())
	}
	return NewComparator(engine, schemas, zerolog.Nop())
}

func infraTree(t *testing.T, children string) *node.Node {
	t.Helper()
	return mustParse(t, `{"resource_type":"Infra","id":"infra","children":[`+children+`]}`)
}

func TestCompareIdenticalTreesIsEmpty(t *testing.T) {
	tree := `{"resource_type":"ChildService","Service":{"resource_type":"Service","id":"s1","display_name":"web","service_entries":[{"resource_type":"L4PortSetServiceEntry","id":"e1","destination_ports":["443"]}]}}`
	c := newComparator(t, nil, nil)

	result, err := c.Compare(context.Background(), infraTree(t, tree), infraTree(t, tree))
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if !result.Empty() {
		t.Errorf("Expected empty difference set, got %s", result.Summary())
	}
	// service_entries is a property array, not a child, so only the service
	// itself counts as an object.
	if len(result.Unchanged) != 1 {
		t.Errorf("Expected 1 unchanged object, got %d", len(result.Unchanged))
	}
}

func TestCompareMetadataDifferencesAreUnchanged(t *testing.T) {
	existing := infraTree(t, `{"resource_type":"ChildService","Service":{
		"resource_type":"Service","id":"s1","display_name":"web",
		"_create_time":1000,"_last_modified_user":"system","_revision":4,"path":"/infra/services/s1"
	}}`)
	proposed := infraTree(t, `{"resource_type":"ChildService","Service":{
		"resource_type":"Service","id":"s1","display_name":"web"
	}}`)

	c := newComparator(t, nil, nil)
	result, err := c.Compare(context.Background(), existing, proposed)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if !result.Empty() {
		t.Errorf("Expected metadata-only differences to compare equal, got %s", result.Summary())
	}
}

func TestCompareDeltaMinimality(t *testing.T) {
	existing := infraTree(t, `{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g1","display_name":"old","expression":[]}}`)
	proposed := infraTree(t, `{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g1","display_name":"new","expression":[]}}`)

	c := newComparator(t, nil, nil)
	result, err := c.Compare(context.Background(), existing, proposed)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if len(result.Update) != 1 {
		t.Fatalf("Expected exactly 1 update, got %d", len(result.Update))
	}
	u := result.Update[0]
	if u.Key != "Group|g1" {
		t.Errorf("Unexpected update key %q", u.Key)
	}
	if len(u.Changes.ModifiedProperties) != 1 || u.Changes.ModifiedProperties[0] != "display_name" {
		t.Errorf("Expected only display_name modified, got %v", u.Changes.ModifiedProperties)
	}
	if len(u.Changes.AddedProperties) != 0 || len(u.Changes.RemovedProperties) != 0 {
		t.Errorf("Expected no added/removed properties, got %v / %v",
			u.Changes.AddedProperties, u.Changes.RemovedProperties)
	}
}

func TestCompareCreateAndDelete(t *testing.T) {
	existing := infraTree(t, `{"resource_type":"ChildService","Service":{"resource_type":"Service","id":"old","display_name":"old"}}`)
	proposed := infraTree(t, `{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"new","display_name":"new"}}`)

	c := newComparator(t, nil, nil)
	result, err := c.Compare(context.Background(), existing, proposed)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if len(result.Create) != 1 || result.Create[0].Key != "Group|new" {
		t.Errorf("Unexpected creates %+v", result.Create)
	}
	if len(result.Delete) != 1 || result.Delete[0].Key != "Service|old" {
		t.Errorf("Unexpected deletes %+v", result.Delete)
	}
	if result.Stats["Group"].Creates != 1 || result.Stats["Service"].Deletes != 1 {
		t.Errorf("Unexpected stats %+v", result.Stats)
	}
}

func TestObjectKeyStability(t *testing.T) {
	wrapped := mustParse(t, `{"resource_type":"ChildService","Service":{"resource_type":"Service","id":"s1"}}`)
	raw := mustParse(t, `{"resource_type":"Service","id":"s1"}`)

	if got := ObjectKey(wrapped); got != "Service|s1" {
		t.Errorf("Wrapped key = %q, want Service|s1", got)
	}
	if ObjectKey(wrapped) != ObjectKey(raw) {
		t.Error("Expected wrapped and raw forms to share a key")
	}
}

func TestCompareFiltersSystemObjects(t *testing.T) {
	rules := &filter.RuleSet{
		ObjectGroups: []filter.RuleGroup{{
			Name:  "system",
			Rules: []filter.Rule{{Property: "_system_owned", MatchType: filter.MatchExact, Value: true}},
		}},
	}
	existing := infraTree(t, `{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"default","_system_owned":true}}`)
	proposed := infraTree(t, ``)

	c := newComparator(t, rules, nil)
	result, err := c.Compare(context.Background(), existing, proposed)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if !result.Empty() {
		t.Errorf("Expected system object to never reach the diff, got %s", result.Summary())
	}
}

func TestCompareSchemaPruning(t *testing.T) {
	docs := map[string]*node.Node{
		"policy": mustParse(t, `{"components":{"schemas":{
			"Service":{"type":"object","properties":{"resource_type":{},"id":{},"display_name":{}},"required":["id"]}
		}}}`),
	}
	// The existing side carries a property outside the schema; the proposed
	// side does not. Pruning must make them equal.
	existing := infraTree(t, `{"resource_type":"ChildService","Service":{"resource_type":"Service","id":"s1","display_name":"web","vendor_extension":"x"}}`)
	proposed := infraTree(t, `{"resource_type":"ChildService","Service":{"resource_type":"Service","id":"s1","display_name":"web"}}`)

	c := newComparator(t, nil, docs)
	result, err := c.Compare(context.Background(), existing, proposed)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if !result.Empty() {
		t.Errorf("Expected schema pruning to equalize trees, got %s", result.Summary())
	}
}

func TestCompareValidationErrorsExcludeObjects(t *testing.T) {
	docs := map[string]*node.Node{
		"policy": mustParse(t, `{"components":{"schemas":{
			"Group":{"type":"object","properties":{"resource_type":{},"id":{},"expression":{}},"required":["expression"]}
		}}}`),
	}
	existing := infraTree(t, ``)
	proposed := infraTree(t, `{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g1"}}`)

	c := newComparator(t, nil, docs)
	result, err := c.Compare(context.Background(), existing, proposed)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if len(result.Create) != 0 {
		t.Errorf("Expected invalid object to be excluded from creates, got %d", len(result.Create))
	}
	if len(result.ValidationErrors) != 1 {
		t.Fatalf("Expected 1 validation error, got %d", len(result.ValidationErrors))
	}
	ve := result.ValidationErrors[0]
	if ve.Key != "Group|g1" || ve.Side != "proposed" {
		t.Errorf("Unexpected validation error %+v", ve)
	}
	if result.Stats["Group"].Invalid != 1 {
		t.Errorf("Expected invalid count in stats, got %+v", result.Stats["Group"])
	}
}

func TestCompareSchemaFetchErrorDegradesGracefully(t *testing.T) {
	engine := filter.NewEngine(nil, zerolog.Nop())
	schemas := &stubSchemaSource{err: errors.New("endpoint unreachable")}
	c := NewComparator(engine, schemas, zerolog.Nop())

	tree := `{"resource_type":"ChildService","Service":{"resource_type":"Service","id":"s1"}}`
	result, err := c.Compare(context.Background(), infraTree(t, tree), infraTree(t, tree))
	if err != nil {
		t.Fatalf("Schema fetch failure must not fail comparison: %v", err)
	}
	if !result.Empty() {
		t.Errorf("Expected unconstrained comparison to succeed, got %s", result.Summary())
	}
}

func TestCompareDescendsIntoDomains(t *testing.T) {
	existing := infraTree(t, `{"resource_type":"ChildDomain","Domain":{
		"resource_type":"Domain","id":"default",
		"children":[{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g1","display_name":"a"}}]
	}}`)
	proposed := infraTree(t, `{"resource_type":"ChildDomain","Domain":{
		"resource_type":"Domain","id":"default",
		"children":[{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g1","display_name":"b"}}]
	}}`)

	c := newComparator(t, nil, nil)
	result, err := c.Compare(context.Background(), existing, proposed)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if len(result.Update) != 1 || result.Update[0].Key != "Group|g1" {
		t.Fatalf("Expected domain-nested group update, got %+v", result.Update)
	}
	// The domain containers themselves compare equal once children are
	// stripped by normalization.
	for _, u := range result.Update {
		if u.Key == "Domain|default" {
			t.Error("Expected domain container to be unchanged")
		}
	}
}

func TestCompareNilTreeRejected(t *testing.T) {
	c := newComparator(t, nil, nil)
	if _, err := c.Compare(context.Background(), nil, node.New()); err == nil {
		t.Error("Expected error for nil existing tree")
	}
}
