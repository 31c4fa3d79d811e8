package node

import (
	"encoding/json"
	"testing"
)

func TestParsePreservesKeyOrder(t *testing.T) {
	data := []byte(`{"resource_type":"Service","id":"svc1","display_name":"A","service_entries":[{"l4_protocol":"TCP","destination_ports":["443"]}]}`)

	n, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	keys := n.Keys()
	want := []string{"resource_type", "id", "display_name", "service_entries"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %d", len(want), len(keys))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("Key %d: expected %q, got %q", i, k, keys[i])
		}
	}

	out, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != string(data) {
		t.Errorf("Round trip changed document:\n in: %s\nout: %s", data, out)
	}
}

func TestParseKeepsNumbersStable(t *testing.T) {
	n, err := Parse([]byte(`{"sequence_number":10,"weight":0.5}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	num, ok := n.GetNumber("sequence_number")
	if !ok {
		t.Fatal("Expected sequence_number to be numeric")
	}
	if num.String() != "10" {
		t.Errorf("Expected 10, got %s", num)
	}

	out, _ := json.Marshal(n)
	if string(out) != `{"sequence_number":10,"weight":0.5}` {
		t.Errorf("Number formatting drifted: %s", out)
	}
}

func TestEqualIgnoresKeyOrder(t *testing.T) {
	a, _ := Parse([]byte(`{"id":"x","display_name":"n","tags":[1,2]}`))
	b, _ := Parse([]byte(`{"display_name":"n","tags":[1,2],"id":"x"}`))

	if !a.Equal(b) {
		t.Error("Expected nodes with reordered keys to be equal")
	}
}

func TestEqualIsOrderSensitiveForArrays(t *testing.T) {
	a, _ := Parse([]byte(`{"tags":[1,2]}`))
	b, _ := Parse([]byte(`{"tags":[2,1]}`))

	if a.Equal(b) {
		t.Error("Expected array order to matter")
	}
}

func TestEqualNestedObjects(t *testing.T) {
	a, _ := Parse([]byte(`{"entry":{"port":443,"proto":"TCP"}}`))
	b, _ := Parse([]byte(`{"entry":{"proto":"TCP","port":443}}`))
	c, _ := Parse([]byte(`{"entry":{"proto":"TCP","port":80}}`))

	if !a.Equal(b) {
		t.Error("Expected nested objects with reordered keys to be equal")
	}
	if a.Equal(c) {
		t.Error("Expected differing nested values to be unequal")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig, _ := Parse([]byte(`{"id":"x","entry":{"port":443},"tags":["a"]}`))
	clone := orig.Clone()

	inner, _ := clone.GetObject("entry")
	inner.Set("port", json.Number("80"))
	arr, _ := clone.GetArray("tags")
	arr[0] = "b"

	origInner, _ := orig.GetObject("entry")
	if num, _ := origInner.GetNumber("port"); num.String() != "443" {
		t.Error("Clone shares nested object with original")
	}
	origArr, _ := orig.GetArray("tags")
	if origArr[0] != "a" {
		t.Error("Clone shares array with original")
	}
}

func TestDeleteKeepsOrder(t *testing.T) {
	n, _ := Parse([]byte(`{"a":1,"b":2,"c":3}`))
	if !n.Delete("b") {
		t.Fatal("Expected delete to report existing key")
	}
	keys := n.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Errorf("Expected [a c], got %v", keys)
	}
	if n.Delete("b") {
		t.Error("Expected delete of missing key to report false")
	}
}

func TestWrapperAccessors(t *testing.T) {
	wrapped, _ := Parse([]byte(`{"resource_type":"ChildService","Service":{"resource_type":"Service","id":"svc1"}}`))

	if !wrapped.IsWrapper() {
		t.Fatal("Expected ChildService to be a wrapper")
	}
	if wrapped.WrappedType() != "Service" {
		t.Errorf("Expected wrapped type Service, got %s", wrapped.WrappedType())
	}
	inner := wrapped.Unwrap()
	if inner.ID() != "svc1" {
		t.Errorf("Expected unwrapped id svc1, got %s", inner.ID())
	}

	raw, _ := Parse([]byte(`{"resource_type":"Service","id":"svc1"}`))
	if raw.IsWrapper() {
		t.Error("Expected plain Service not to be a wrapper")
	}
	if raw.Unwrap() != raw {
		t.Error("Expected Unwrap of a raw object to return itself")
	}
}

func TestChildrenRoundTrip(t *testing.T) {
	root := NewResource(RootResourceType, "infra")
	c1 := NewResource("ChildService", "")
	c2 := NewResource("ChildGroup", "")
	root.SetChildren([]*Node{c1, c2})

	children := root.Children()
	if len(children) != 2 {
		t.Fatalf("Expected 2 children, got %d", len(children))
	}
	if children[0].ResourceType() != "ChildService" {
		t.Errorf("Unexpected first child type: %s", children[0].ResourceType())
	}
}

func TestMatchKeys(t *testing.T) {
	n, _ := Parse([]byte(`{"_create_time":1,"_revision":2,"display_name":"x","tag_scope":"s"}`))

	tests := []struct {
		pattern string
		mode    KeyMatchMode
		want    int
	}{
		{"_create_time", KeyMatchExact, 1},
		{"_*", KeyMatchWildcard, 2},
		{"^_.*", KeyMatchRegex, 2},
		{"tag", KeyMatchPrefix, 1},
		{"_name", KeyMatchSuffix, 1},
		{"[invalid", KeyMatchRegex, 0},
	}

	for _, tt := range tests {
		got := n.MatchKeys(tt.pattern, tt.mode)
		if len(got) != tt.want {
			t.Errorf("MatchKeys(%q, %s): expected %d matches, got %v", tt.pattern, tt.mode, tt.want, got)
		}
	}
}

func TestValueEqualNumericCrossTypes(t *testing.T) {
	if !ValueEqual(json.Number("10"), 10) {
		t.Error("Expected json.Number(10) to equal int 10")
	}
	if ValueEqual(json.Number("10"), "10") {
		t.Error("Expected number not to equal string")
	}
	if !ValueEqual(nil, nil) {
		t.Error("Expected nil to equal nil")
	}
	if ValueEqual(nil, false) {
		t.Error("Expected nil not to equal false")
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	if _, err := Parse([]byte(`[1,2]`)); err == nil {
		t.Error("Expected error for array document")
	}
	if _, err := Parse([]byte(`"text"`)); err == nil {
		t.Error("Expected error for scalar document")
	}
}
