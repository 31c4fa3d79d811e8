package compare

import (
	"sort"

	"github.com/policydelta/policydelta/pkg/node"
)

// metadataBlocklist lists the platform-managed properties stripped before
// any equality check. These are set by the remote side and never represent
// user intent.
var metadataBlocklist = map[string]bool{
	"_create_time":        true,
	"_create_user":        true,
	"_last_modified_time": true,
	"_last_modified_user": true,
	"_system_owned":       true,
	"_protection":         true,
	"_revision":           true,
	"path":                true,
	"parent_path":         true,
	"relative_path":       true,
	"realization_id":      true,
	"unique_id":           true,
	"overridden":          true,
	"marked_for_delete":   true,
}

// nestedCollections names the array properties whose object elements carry
// their own remote metadata and need the same stripping.
var nestedCollections = []string{"service_entries", "expression", "rules"}

// Normalize produces the comparison form of an unwrapped object: remote
// metadata stripped, child containers removed (membership is handled by
// flattening), and, when a schema fragment exists for the type, properties
// outside the schema pruned unless required. The input is never mutated.
func Normalize(obj *node.Node, idx *SchemaIndex) *node.Node {
	out := obj.Unwrap().Clone()
	normalizeInPlace(out, idx)
	return out
}

// NormalizeBasic is the degraded path: metadata stripping only, no schema
// pruning.
func NormalizeBasic(obj *node.Node) *node.Node {
	return Normalize(obj, nil)
}

func normalizeInPlace(n *node.Node, idx *SchemaIndex) {
	for key := range metadataBlocklist {
		n.Delete(key)
	}
	n.Delete(node.PropChildren)

	var frag *SchemaFragment
	if idx != nil {
		frag, _ = idx.Fragment(n.ResourceType())
	}
	if frag != nil {
		for _, key := range n.Keys() {
			if !frag.Properties[key] && !frag.Required[key] {
				n.Delete(key)
			}
		}
	}

	for _, collection := range nestedCollections {
		arr, ok := n.GetArray(collection)
		if !ok {
			continue
		}
		for _, elem := range arr {
			child, ok := elem.(*node.Node)
			if !ok {
				continue
			}
			normalizeInPlace(child, idx)
		}
	}

	// A wrapper nested as a plain property normalizes with its own type's
	// fragment.
	for _, key := range n.Keys() {
		v, _ := n.Get(key)
		if child, ok := v.(*node.Node); ok && child.IsWrapper() {
			normalizeInPlace(child.Inner(), idx)
		}
	}
}

// computeChanges diffs two normalized objects property by property.
func computeChanges(existing, proposed *node.Node) ChangeSet {
	var cs ChangeSet
	for _, key := range proposed.Keys() {
		pv, _ := proposed.Get(key)
		ev, ok := existing.Get(key)
		if !ok {
			cs.AddedProperties = append(cs.AddedProperties, key)
			continue
		}
		if !node.ValueEqual(ev, pv) {
			cs.ModifiedProperties = append(cs.ModifiedProperties, key)
		}
	}
	for _, key := range existing.Keys() {
		if !proposed.Has(key) {
			cs.RemovedProperties = append(cs.RemovedProperties, key)
		}
	}
	sortStrings(cs.ModifiedProperties)
	sortStrings(cs.AddedProperties)
	sortStrings(cs.RemovedProperties)
	return cs
}

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}
