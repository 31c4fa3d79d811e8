// Package node provides the configuration tree data model shared by every
// other package: an ordered, string-keyed property map with typed accessors,
// deep cloning, structural equality, and order-preserving JSON round-trips.
//
// Every JSON object in a configuration document decodes to a *Node, so a
// resource, a Child-wrapper, and a nested sub-object (a service entry, a rule)
// are all the same shape. Numbers are kept as json.Number so that equality is
// not disturbed by float formatting.
package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Well-known property names used across the configuration model.
const (
	PropResourceType = "resource_type"
	PropID           = "id"
	PropDisplayName  = "display_name"
	PropDescription  = "description"
	PropChildren     = "children"
)

// ChildPrefix marks hierarchical wrapper resource types (e.g. "ChildService").
const ChildPrefix = "Child"

// RootResourceType is the required resource type of a configuration root.
const RootResourceType = "Infra"

// Node is a single configuration object: an insertion-ordered map from
// property name to value. Values are one of nil, bool, string, json.Number,
// []any, or *Node.
type Node struct {
	keys   []string
	values map[string]any
}

// New returns an empty node.
func New() *Node {
	return &Node{values: make(map[string]any)}
}

// NewResource returns a node pre-populated with resource_type and id.
func NewResource(resourceType, id string) *Node {
	n := New()
	n.Set(PropResourceType, resourceType)
	n.Set(PropID, id)
	return n
}

// Len returns the number of properties.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

// Keys returns the property names in insertion order.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Has reports whether the property exists.
func (n *Node) Has(key string) bool {
	if n == nil {
		return false
	}
	_, ok := n.values[key]
	return ok
}

// Get returns the raw value for key.
func (n *Node) Get(key string) (any, bool) {
	if n == nil {
		return nil, false
	}
	v, ok := n.values[key]
	return v, ok
}

// Set stores a value, preserving the position of existing keys and appending
// new ones.
func (n *Node) Set(key string, value any) {
	if n.values == nil {
		n.values = make(map[string]any)
	}
	if _, ok := n.values[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.values[key] = value
}

// Delete removes a property. It reports whether the property existed.
func (n *Node) Delete(key string) bool {
	if n == nil {
		return false
	}
	if _, ok := n.values[key]; !ok {
		return false
	}
	delete(n.values, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
	return true
}

// GetString returns the property as a string.
func (n *Node) GetString(key string) (string, bool) {
	v, ok := n.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool returns the property as a bool.
func (n *Node) GetBool(key string) (bool, bool) {
	v, ok := n.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetNumber returns the property as a json.Number.
func (n *Node) GetNumber(key string) (json.Number, bool) {
	v, ok := n.Get(key)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case json.Number:
		return t, true
	case float64:
		return json.Number(fmt.Sprintf("%g", t)), true
	case int:
		return json.Number(fmt.Sprintf("%d", t)), true
	case int64:
		return json.Number(fmt.Sprintf("%d", t)), true
	}
	return "", false
}

// GetArray returns the property as an array value.
func (n *Node) GetArray(key string) ([]any, bool) {
	v, ok := n.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.([]any)
	return a, ok
}

// GetObject returns the property as a nested node.
func (n *Node) GetObject(key string) (*Node, bool) {
	v, ok := n.Get(key)
	if !ok {
		return nil, false
	}
	o, ok := v.(*Node)
	return o, ok
}

// ResourceType returns the resource_type property, or "" if absent.
func (n *Node) ResourceType() string {
	s, _ := n.GetString(PropResourceType)
	return s
}

// ID returns the id property, or "" if absent.
func (n *Node) ID() string {
	s, _ := n.GetString(PropID)
	return s
}

// DisplayName returns the display_name property, or "" if absent.
func (n *Node) DisplayName() string {
	s, _ := n.GetString(PropDisplayName)
	return s
}

// IsWrapper reports whether this node is a Child-wrapper.
func (n *Node) IsWrapper() bool {
	rt := n.ResourceType()
	return strings.HasPrefix(rt, ChildPrefix) && len(rt) > len(ChildPrefix)
}

// WrappedType returns the inner type name of a Child-wrapper ("Service" for
// "ChildService"), or "" if the node is not a wrapper.
func (n *Node) WrappedType() string {
	if !n.IsWrapper() {
		return ""
	}
	return strings.TrimPrefix(n.ResourceType(), ChildPrefix)
}

// Inner returns the payload object of a Child-wrapper: the property named
// after the wrapped type. Returns nil if the node is not a wrapper or the
// payload is missing.
func (n *Node) Inner() *Node {
	wt := n.WrappedType()
	if wt == "" {
		return nil
	}
	inner, _ := n.GetObject(wt)
	return inner
}

// Unwrap returns the wrapper payload when the node is a Child-wrapper with a
// payload, otherwise the node itself.
func (n *Node) Unwrap() *Node {
	if inner := n.Inner(); inner != nil {
		return inner
	}
	return n
}

// Children returns the node entries of the children property. Non-object
// entries are skipped.
func (n *Node) Children() []*Node {
	arr, ok := n.GetArray(PropChildren)
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(arr))
	for _, v := range arr {
		if c, ok := v.(*Node); ok {
			out = append(out, c)
		}
	}
	return out
}

// SetChildren replaces the children property.
func (n *Node) SetChildren(children []*Node) {
	arr := make([]any, len(children))
	for i, c := range children {
		arr[i] = c
	}
	n.Set(PropChildren, arr)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		keys:   make([]string, len(n.keys)),
		values: make(map[string]any, len(n.values)),
	}
	copy(out.keys, n.keys)
	for k, v := range n.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Node:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Equal reports structural equality: key order does not matter for objects,
// element order does matter for arrays.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n.Len() == 0 && other.Len() == 0
	}
	if len(n.values) != len(other.values) {
		return false
	}
	for k, v := range n.values {
		ov, ok := other.values[k]
		if !ok || !ValueEqual(v, ov) {
			return false
		}
	}
	return true
}

// ValueEqual reports structural equality of two property values.
func ValueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := numericValue(a); aok {
		bf, bok := numericValue(b)
		return bok && af == bf
	}
	switch at := a.(type) {
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !ValueEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	case *Node:
		bt, ok := b.(*Node)
		return ok && at.Equal(bt)
	}
	return false
}

func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// MarshalJSON writes properties in insertion order so that serialized
// artifacts are deterministic.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range n.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := marshalValue(&buf, n.values[k]); err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case *Node:
		b, err := t.MarshalJSON()
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		if t == "" {
			buf.WriteString("0")
			return nil
		}
		buf.WriteString(string(t))
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

// UnmarshalJSON decodes a JSON object preserving key order. Nested objects
// become *Node values and numbers stay json.Number.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	obj, ok := v.(*Node)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*n = *obj
	return nil
}

// Parse decodes a JSON document into a node tree.
func Parse(data []byte) (*Node, error) {
	n := New()
	if err := n.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return n, nil
}

// Decode reads a single JSON object from r into a node tree.
func Decode(r io.Reader) (*Node, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Node)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return obj, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := New()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // closing '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := make([]any, 0)
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // closing ']'
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}
