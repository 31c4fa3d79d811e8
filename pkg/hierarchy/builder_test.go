package hierarchy

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/node"
)

func testBuilder() *Builder {
	return NewBuilder(zerolog.Nop())
}

func mustParse(t *testing.T, doc string) *node.Node {
	t.Helper()
	n, err := node.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return n
}

func TestIsHierarchical(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"wrapper", `{"resource_type":"ChildService","Service":{}}`, true},
		{"raw service", `{"resource_type":"Service","id":"s1"}`, false},
		{"container with wrapped children", `{"resource_type":"Infra","children":[{"resource_type":"ChildGroup","Group":{}}]}`, true},
		{"container with raw children", `{"resource_type":"Infra","children":[{"resource_type":"Group"}]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHierarchical(mustParse(t, tt.doc)); got != tt.want {
				t.Errorf("IsHierarchical = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInferResourceType(t *testing.T) {
	tests := []struct {
		doc  string
		want string
	}{
		{`{"expression":[]}`, "Group"},
		{`{"criteria":[]}`, "Group"},
		{`{"service_entries":[]}`, "Service"},
		{`{"rules":[]}`, "SecurityPolicy"},
		{`{"category":"Application"}`, "SecurityPolicy"},
		{`{"connectivity_path":"/infra/t1"}`, "Segment"},
		{`{"scope":"env","tag":"prod"}`, "Tag"},
		{`{"attributes":[]}`, "PolicyContextProfile"},
		{`{"app_id":"SSL"}`, "PolicyContextProfile"},
		{`{"something_else":true}`, "Unknown"},
	}

	for _, tt := range tests {
		if got := InferResourceType(mustParse(t, tt.doc)); got != tt.want {
			t.Errorf("InferResourceType(%s) = %q, want %q", tt.doc, got, tt.want)
		}
	}
}

func TestWrapRawObject(t *testing.T) {
	b := testBuilder()
	raw := mustParse(t, `{"resource_type":"Service","id":"svc1","display_name":"web"}`)

	wrapped := b.Wrap(raw)

	if wrapped.ResourceType() != "ChildService" {
		t.Fatalf("Expected ChildService wrapper, got %s", wrapped.ResourceType())
	}
	inner, ok := wrapped.GetObject("Service")
	if !ok {
		t.Fatal("Expected Service payload property")
	}
	if inner.ID() != "svc1" {
		t.Errorf("Expected payload id svc1, got %s", inner.ID())
	}
	// Input must not be mutated.
	if raw.IsWrapper() {
		t.Error("Wrap mutated its input")
	}
}

func TestWrapInfersMissingResourceType(t *testing.T) {
	b := testBuilder()
	raw := mustParse(t, `{"id":"g1","expression":[{"member_type":"VirtualMachine"}]}`)

	wrapped := b.Wrap(raw)

	if wrapped.ResourceType() != "ChildGroup" {
		t.Fatalf("Expected ChildGroup, got %s", wrapped.ResourceType())
	}
	inner := wrapped.Unwrap()
	if inner.ResourceType() != "Group" {
		t.Errorf("Expected inferred Group, got %s", inner.ResourceType())
	}
}

func TestWrapUnknownTypeGetsGenericWrapper(t *testing.T) {
	b := testBuilder()
	raw := mustParse(t, `{"resource_type":"Tier1","id":"t1"}`)

	wrapped := b.Wrap(raw)

	if wrapped.ResourceType() != "ChildTier1" {
		t.Fatalf("Expected ChildTier1, got %s", wrapped.ResourceType())
	}
	if _, ok := wrapped.GetObject("Tier1"); !ok {
		t.Error("Expected payload under property Tier1")
	}
}

func TestWrapAlreadyHierarchicalRecursesIntoChildren(t *testing.T) {
	b := testBuilder()
	doc := mustParse(t, `{
		"resource_type":"ChildDomain",
		"Domain":{
			"resource_type":"Domain","id":"default",
			"children":[{"resource_type":"Group","id":"g1","expression":[]}]
		}
	}`)

	wrapped := b.Wrap(doc)

	inner := wrapped.Unwrap()
	children := inner.Children()
	if len(children) != 1 {
		t.Fatalf("Expected 1 child, got %d", len(children))
	}
	if children[0].ResourceType() != "ChildGroup" {
		t.Errorf("Expected raw domain child to be wrapped, got %s", children[0].ResourceType())
	}
}

func TestWrapIsIdempotentForKnownTypes(t *testing.T) {
	b := testBuilder()
	raw := mustParse(t, `{"resource_type":"Group","id":"g1","expression":[]}`)

	once := b.Wrap(raw)
	again := b.Wrap(once.Unwrap().Clone())

	if !once.Equal(again) {
		t.Error("Expected wrap(unwrap(wrap(x))) to equal wrap(x)")
	}
}

func TestConvertChildResourceReference(t *testing.T) {
	b := testBuilder()
	ref := mustParse(t, `{
		"resource_type":"ChildResourceReference",
		"target_type":"Domain",
		"id":"default",
		"children":[{"resource_type":"Group","id":"g1","expression":[]}]
	}`)

	converted := b.Wrap(ref)

	if converted.ResourceType() != "ChildDomain" {
		t.Fatalf("Expected ChildDomain, got %s", converted.ResourceType())
	}
	inner, ok := converted.GetObject("Domain")
	if !ok {
		t.Fatal("Expected Domain payload")
	}
	if inner.ID() != "default" {
		t.Errorf("Expected id default, got %s", inner.ID())
	}
	if inner.DisplayName() != "default" {
		t.Errorf("Expected display_name defaulted to id, got %s", inner.DisplayName())
	}
	children := inner.Children()
	if len(children) != 1 || children[0].ResourceType() != "ChildGroup" {
		t.Errorf("Expected reference children to be wrapped, got %v", children)
	}
}

func TestBuildTreeRoutesTypes(t *testing.T) {
	b := testBuilder()
	objects := []*node.Node{
		mustParse(t, `{"resource_type":"Service","id":"svc1","service_entries":[]}`),
		mustParse(t, `{"resource_type":"Group","id":"g1","expression":[]}`),
		mustParse(t, `{"resource_type":"SecurityPolicy","id":"p1","rules":[]}`),
	}

	root := b.BuildTree(objects, "default")

	if err := ValidateTree(root); err != nil {
		t.Fatalf("Built tree failed validation: %v", err)
	}

	children := root.Children()
	if len(children) != 2 {
		t.Fatalf("Expected service + domain at root, got %d children", len(children))
	}
	if children[0].ResourceType() != "ChildService" {
		t.Errorf("Expected ChildService first, got %s", children[0].ResourceType())
	}
	domainWrapper := children[1]
	if domainWrapper.ResourceType() != "ChildDomain" {
		t.Fatalf("Expected ChildDomain, got %s", domainWrapper.ResourceType())
	}
	domain := domainWrapper.Unwrap()
	if domain.ID() != "default" {
		t.Errorf("Expected domain id default, got %s", domain.ID())
	}
	if got := len(domain.Children()); got != 2 {
		t.Errorf("Expected 2 domain children, got %d", got)
	}
}

func TestValidateTree(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"valid", `{"resource_type":"Infra","children":[{"resource_type":"ChildService","Service":{}}]}`, false},
		{"empty children", `{"resource_type":"Infra","children":[]}`, false},
		{"wrong root type", `{"resource_type":"Domain","children":[]}`, true},
		{"missing children", `{"resource_type":"Infra"}`, true},
		{"raw child", `{"resource_type":"Infra","children":[{"resource_type":"Service","id":"s1"}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTree(mustParse(t, tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTree error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTreeNilRoot(t *testing.T) {
	if err := ValidateTree(nil); err == nil {
		t.Error("Expected error for nil root")
	}
}
