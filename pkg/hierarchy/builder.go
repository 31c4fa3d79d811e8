// Package hierarchy normalizes arbitrary policy resource objects into the
// canonical hierarchical submission format: an Infra root whose children are
// Child<Type> wrappers, each holding the actual payload under a property
// named after the wrapped type.
package hierarchy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/node"
)

// knownTypes are resource types with a dedicated Child<Type> wrapper in the
// target API. Unknown types get the same naming convention generically.
var knownTypes = map[string]bool{
	"Service":              true,
	"Group":                true,
	"SecurityPolicy":       true,
	"Domain":               true,
	"PolicyContextProfile": true,
	"ContextProfile":       true,
	"Rule":                 true,
	"Segment":              true,
	"Tag":                  true,
}

// domainScopedTypes are routed under a ChildDomain wrapper when building a
// tree from a flat object list. Service lives at the Infra root.
var domainScopedTypes = map[string]bool{
	"Group":                true,
	"SecurityPolicy":       true,
	"ContextProfile":       true,
	"PolicyContextProfile": true,
	"Rule":                 true,
	"Segment":              true,
	"Domain":               true,
}

// resourceReferenceType is the legacy reference wrapper converted by
// ConvertChildResourceReference.
const resourceReferenceType = "ChildResourceReference"

// Builder converts raw objects into the wrapped tree shape.
type Builder struct {
	logger zerolog.Logger
}

// NewBuilder creates a structure builder.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{logger: logger.With().Str("component", "hierarchy").Logger()}
}

// IsHierarchical reports whether the object is already in hierarchical form:
// its resource type is a Child-wrapper, or any of its children is.
func IsHierarchical(n *node.Node) bool {
	if n == nil {
		return false
	}
	if n.IsWrapper() {
		return true
	}
	for _, c := range n.Children() {
		if c.IsWrapper() {
			return true
		}
	}
	return false
}

// InferResourceType guesses the resource type of an object without one from
// structural fingerprints. Returns "Unknown" when nothing matches.
func InferResourceType(n *node.Node) string {
	switch {
	case n.Has("expression") || n.Has("criteria"):
		return "Group"
	case n.Has("service_entries"):
		return "Service"
	case n.Has("rules") || n.Has("category"):
		return "SecurityPolicy"
	case n.Has("connectivity_path"):
		return "Segment"
	case n.Has("scope") && n.Has("tag"):
		return "Tag"
	case n.Has("attributes") || n.Has("app_id"):
		return "PolicyContextProfile"
	}
	return "Unknown"
}

// Wrap converts an object into its hierarchical form. Objects that are
// already hierarchical are processed recursively; raw objects are wrapped
// into Child<Type> with the payload under a property named after the type.
// Objects without a resource type have one inferred first.
func (b *Builder) Wrap(n *node.Node) *node.Node {
	if n == nil {
		return nil
	}
	out := n.Clone()

	if out.ResourceType() == "" {
		inferred := InferResourceType(out)
		if inferred == "Unknown" {
			b.logger.Warn().
				Str("id", out.ID()).
				Msg("Could not infer resource type, wrapping as Unknown")
		}
		out.Set(node.PropResourceType, inferred)
	}

	if out.ResourceType() == resourceReferenceType {
		return b.ConvertChildResourceReference(out)
	}

	if IsHierarchical(out) {
		b.wrapChildrenInPlace(out)
		if out.IsWrapper() {
			if inner := out.Inner(); inner != nil {
				b.wrapChildrenInPlace(inner)
			}
		}
		return out
	}

	return b.wrapRaw(out)
}

// wrapRaw puts a non-hierarchical object into a Child<Type> envelope,
// wrapping its own children first.
func (b *Builder) wrapRaw(n *node.Node) *node.Node {
	rt := n.ResourceType()
	if !knownTypes[rt] {
		b.logger.Debug().
			Str("resource_type", rt).
			Str("id", n.ID()).
			Msg("Wrapping unknown resource type with generic wrapper")
	}
	b.wrapChildrenInPlace(n)

	wrapper := node.New()
	wrapper.Set(node.PropResourceType, node.ChildPrefix+rt)
	wrapper.Set(rt, n)
	return wrapper
}

// wrapChildrenInPlace replaces the children of n with their wrapped forms.
func (b *Builder) wrapChildrenInPlace(n *node.Node) {
	children := n.Children()
	if len(children) == 0 {
		return
	}
	wrapped := make([]*node.Node, 0, len(children))
	for _, c := range children {
		wrapped = append(wrapped, b.Wrap(c))
	}
	n.SetChildren(wrapped)
}

// ConvertChildResourceReference converts a legacy reference node
// {resource_type: ChildResourceReference, target_type: T, id, children} into
// a Child<T> wrapper with the referenced object reconstructed.
func (b *Builder) ConvertChildResourceReference(n *node.Node) *node.Node {
	targetType, ok := n.GetString("target_type")
	if !ok || targetType == "" {
		b.logger.Warn().
			Str("id", n.ID()).
			Msg("ChildResourceReference without target_type, passing through")
		return n.Clone()
	}

	inner := node.New()
	inner.Set(node.PropResourceType, targetType)
	inner.Set(node.PropID, n.ID())
	displayName := n.DisplayName()
	if displayName == "" {
		displayName = n.ID()
	}
	inner.Set(node.PropDisplayName, displayName)

	if children := n.Children(); len(children) > 0 {
		wrapped := make([]*node.Node, 0, len(children))
		for _, c := range children {
			wrapped = append(wrapped, b.Wrap(c))
		}
		inner.SetChildren(wrapped)
	}

	wrapper := node.New()
	wrapper.Set(node.PropResourceType, node.ChildPrefix+targetType)
	wrapper.Set(targetType, inner)
	return wrapper
}

// BuildTree assembles a full Infra root from a flat list of mixed raw
// objects. Services are attached at the root; domain-scoped types go under a
// single ChildDomain wrapper for domainID. Wrapper types that fit neither
// rule are routed to the domain with a warning.
func (b *Builder) BuildTree(objects []*node.Node, domainID string) *node.Node {
	root := node.New()
	root.Set(node.PropResourceType, node.RootResourceType)
	root.Set(node.PropID, "infra")
	root.Set(node.PropDisplayName, "infra")

	var rootChildren []*node.Node
	var domainChildren []*node.Node

	for _, obj := range objects {
		wrapped := b.Wrap(obj)
		inner := wrapped.Unwrap()
		switch rt := inner.ResourceType(); {
		case rt == "Service":
			rootChildren = append(rootChildren, wrapped)
		case domainScopedTypes[rt]:
			domainChildren = append(domainChildren, wrapped)
		default:
			b.logger.Warn().
				Str("resource_type", rt).
				Str("id", inner.ID()).
				Str("domain", domainID).
				Msg("Unrecognized wrapper type routed to domain")
			domainChildren = append(domainChildren, wrapped)
		}
	}

	if len(domainChildren) > 0 {
		domain := node.New()
		domain.Set(node.PropResourceType, "Domain")
		domain.Set(node.PropID, domainID)
		domain.Set(node.PropDisplayName, domainID)
		domain.SetChildren(domainChildren)

		domainWrapper := node.New()
		domainWrapper.Set(node.PropResourceType, "ChildDomain")
		domainWrapper.Set("Domain", domain)
		rootChildren = append(rootChildren, domainWrapper)
	}

	root.SetChildren(rootChildren)
	return root
}

// ValidateTree checks the structural invariants of a configuration root: the
// resource type must be Infra, a children property must be present, and every
// immediate child must be a Child-wrapper. Failures are reported to the
// caller, who decides whether they are fatal.
func ValidateTree(root *node.Node) error {
	if root == nil {
		return fmt.Errorf("configuration root is nil")
	}
	if rt := root.ResourceType(); rt != node.RootResourceType {
		return fmt.Errorf("configuration root must be %s, got %q", node.RootResourceType, rt)
	}
	if !root.Has(node.PropChildren) {
		return fmt.Errorf("configuration root has no children property")
	}
	for i, c := range root.Children() {
		if !c.IsWrapper() {
			return fmt.Errorf("child %d has non-wrapper resource type %q", i, c.ResourceType())
		}
	}
	return nil
}
