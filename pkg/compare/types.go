// Package compare computes the differential between an existing and a
// proposed configuration tree. Comparison is schema-aware when an OpenAPI
// document is available and degrades to plain structural comparison when it
// is not.
package compare

import (
	"fmt"

	"github.com/policydelta/policydelta/pkg/node"
)

// ObjectRef identifies one unwrapped resource object in a difference set.
type ObjectRef struct {
	Key        string     `json:"key"`
	ObjectType string     `json:"object_type"`
	Object     *node.Node `json:"object"`
}

// ChangeSet records the property-level differences behind one update,
// computed on the normalized forms of both sides.
type ChangeSet struct {
	ModifiedProperties []string `json:"modified_properties"`
	AddedProperties    []string `json:"added_properties"`
	RemovedProperties  []string `json:"removed_properties"`
}

// Update pairs an existing object with its proposed replacement.
type Update struct {
	Key        string     `json:"key"`
	ObjectType string     `json:"object_type"`
	Existing   *node.Node `json:"existing"`
	Proposed   *node.Node `json:"proposed"`
	Changes    ChangeSet  `json:"changes"`
}

// ValidationError records an object excluded from comparison because it
// failed schema validation. Excluded objects are reported, never silently
// dropped.
type ValidationError struct {
	Key        string `json:"key"`
	ObjectType string `json:"object_type"`
	Side       string `json:"side"`
	Detail     string `json:"detail"`
}

// TypeStats counts outcomes per resource type.
type TypeStats struct {
	Creates   int `json:"creates"`
	Updates   int `json:"updates"`
	Deletes   int `json:"deletes"`
	Unchanged int `json:"unchanged"`
	Invalid   int `json:"invalid"`
}

// DifferenceSet is the full result of one comparison. It is rebuilt on every
// run and never mutated after being returned.
type DifferenceSet struct {
	Create           []ObjectRef          `json:"create"`
	Update           []Update             `json:"update"`
	Delete           []ObjectRef          `json:"delete"`
	Unchanged        []ObjectRef          `json:"unchanged"`
	ValidationErrors []ValidationError    `json:"validation_errors,omitempty"`
	Stats            map[string]TypeStats `json:"stats,omitempty"`

	// Degraded reports that a fallback comparison path was taken.
	Degraded bool `json:"degraded,omitempty"`
}

// Empty reports whether the comparison found no differences at all.
func (d *DifferenceSet) Empty() bool {
	return len(d.Create) == 0 && len(d.Update) == 0 && len(d.Delete) == 0
}

// Actionable reports whether the difference set requires a remote mutation.
// Deletes are reported only; the apply payload carries creates and updates.
func (d *DifferenceSet) Actionable() bool {
	return len(d.Create) > 0 || len(d.Update) > 0
}

// Summary renders the headline counts for logs and step results.
func (d *DifferenceSet) Summary() string {
	return fmt.Sprintf("create=%d update=%d delete=%d unchanged=%d invalid=%d",
		len(d.Create), len(d.Update), len(d.Delete), len(d.Unchanged), len(d.ValidationErrors))
}

// ObjectKey derives the lookup key for a resource object. Wrappers are
// unwrapped first so both wrapped and raw forms of the same object yield the
// same key.
func ObjectKey(n *node.Node) string {
	inner := n.Unwrap()
	return inner.ResourceType() + "|" + inner.ID()
}
