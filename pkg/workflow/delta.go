package workflow

import (
	"github.com/policydelta/policydelta/pkg/compare"
	"github.com/policydelta/policydelta/pkg/hierarchy"
	"github.com/policydelta/policydelta/pkg/node"
)

// DeltaEntry tracks one object that went into the delta payload, with the
// intended (unwrapped) form kept for post-apply verification.
type DeltaEntry struct {
	Action     string
	Key        string
	ObjectType string
	Intended   *node.Node
}

// BuildDeltaPayload assembles the Infra-rooted submission payload from the
// create and update halves of a difference set. Entries are deduplicated by
// object key with updates winning over creates; a key appearing in both
// halves indicates an upstream comparison bug and must not double-emit.
func BuildDeltaPayload(builder *hierarchy.Builder, diff *compare.DifferenceSet) (*node.Node, []DeltaEntry) {
	entries := make([]DeltaEntry, 0, len(diff.Create)+len(diff.Update))
	index := make(map[string]int, len(diff.Create)+len(diff.Update))

	for _, ref := range diff.Create {
		index[ref.Key] = len(entries)
		entries = append(entries, DeltaEntry{
			Action:     "create",
			Key:        ref.Key,
			ObjectType: ref.ObjectType,
			Intended:   ref.Object,
		})
	}
	for _, u := range diff.Update {
		entry := DeltaEntry{
			Action:     "update",
			Key:        u.Key,
			ObjectType: u.ObjectType,
			Intended:   u.Proposed,
		}
		if i, dup := index[u.Key]; dup {
			entries[i] = entry
			continue
		}
		index[u.Key] = len(entries)
		entries = append(entries, entry)
	}

	root := node.New()
	root.Set(node.PropResourceType, node.RootResourceType)
	root.Set(node.PropID, "infra")
	root.Set(node.PropDisplayName, "infra")

	children := make([]*node.Node, 0, len(entries))
	for _, e := range entries {
		children = append(children, builder.Wrap(e.Intended))
	}
	root.SetChildren(children)

	return root, entries
}
