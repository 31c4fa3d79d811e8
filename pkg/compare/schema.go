package compare

import (
	"fmt"
	"strings"

	"github.com/policydelta/policydelta/pkg/node"
)

// SchemaFragment is the slice of an OpenAPI document relevant to one
// resource type: its declared property set and which of those are required.
type SchemaFragment struct {
	Properties map[string]bool
	Required   map[string]bool
}

// SchemaIndex resolves resource types to schema fragments across every
// fetched OpenAPI document. A nil or empty index means unconstrained
// comparison.
type SchemaIndex struct {
	fragments map[string]*SchemaFragment
}

// BuildSchemaIndex extracts type fragments from OpenAPI documents, reading
// both components.schemas (v3) and definitions (v2). Later documents do not
// override earlier fragments for the same type.
func BuildSchemaIndex(docs map[string]*node.Node) *SchemaIndex {
	idx := &SchemaIndex{fragments: make(map[string]*SchemaFragment)}
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if components, ok := doc.GetObject("components"); ok {
			if schemas, ok := components.GetObject("schemas"); ok {
				idx.addDefinitions(schemas)
			}
		}
		if definitions, ok := doc.GetObject("definitions"); ok {
			idx.addDefinitions(definitions)
		}
	}
	return idx
}

func (idx *SchemaIndex) addDefinitions(defs *node.Node) {
	for _, name := range defs.Keys() {
		if _, exists := idx.fragments[name]; exists {
			continue
		}
		def, ok := defs.GetObject(name)
		if !ok {
			continue
		}
		frag := &SchemaFragment{
			Properties: make(map[string]bool),
			Required:   make(map[string]bool),
		}
		if props, ok := def.GetObject("properties"); ok {
			for _, p := range props.Keys() {
				frag.Properties[p] = true
			}
		}
		if required, ok := def.GetArray("required"); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					frag.Required[s] = true
				}
			}
		}
		if len(frag.Properties) > 0 || len(frag.Required) > 0 {
			idx.fragments[name] = frag
		}
	}
}

// Fragment returns the schema fragment for a resource type, if any.
func (idx *SchemaIndex) Fragment(resourceType string) (*SchemaFragment, bool) {
	if idx == nil {
		return nil, false
	}
	frag, ok := idx.fragments[resourceType]
	return frag, ok
}

// Len reports how many type fragments the index holds.
func (idx *SchemaIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.fragments)
}

// ValidateObject checks an unwrapped object against its type's fragment.
// With no fragment available every object is valid.
func (idx *SchemaIndex) ValidateObject(obj *node.Node) error {
	frag, ok := idx.Fragment(obj.ResourceType())
	if !ok {
		return nil
	}
	var missing []string
	for req := range frag.Required {
		if !obj.Has(req) {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required properties: %s", strings.Join(sortStrings(missing), ", "))
	}
	return nil
}
