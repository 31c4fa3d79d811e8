package compare

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/filter"
	"github.com/policydelta/policydelta/pkg/node"
	"github.com/policydelta/policydelta/pkg/remote"
)

// typeOrder is the fixed dependency order for per-type diffing. Downstream
// types reference upstream ones, so keeping the order stable keeps the diff
// consumable by appliers that apply in sequence.
var typeOrder = []string{"Service", "Group", "ContextProfile", "SecurityPolicy", "Domain"}

// Comparator produces difference sets between configuration trees. All
// collaborators are injected at construction; a nil schema source means the
// comparison runs unconstrained.
type Comparator struct {
	engine  *filter.Engine
	schemas remote.SchemaSource
	logger  zerolog.Logger
}

// NewComparator creates a comparator using the given filter engine and
// optional schema source.
func NewComparator(engine *filter.Engine, schemas remote.SchemaSource, logger zerolog.Logger) *Comparator {
	return &Comparator{
		engine:  engine,
		schemas: schemas,
		logger:  logger.With().Str("component", "compare").Logger(),
	}
}

// Compare filters both trees, then diffs them type by type in dependency
// order. Schema absence is not an error; a failing schema-aware path falls
// back to a whole-tree comparison and is reported as degraded.
func (c *Comparator) Compare(ctx context.Context, existing, proposed *node.Node) (*DifferenceSet, error) {
	if existing == nil || proposed == nil {
		return nil, fmt.Errorf("both existing and proposed trees are required")
	}

	idx := c.fetchSchemaIndex(ctx)
	filteredExisting := c.safeFilter(existing)
	filteredProposed := c.safeFilter(proposed)

	result, err := c.compareWithSchema(filteredExisting, filteredProposed, idx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Schema-aware comparison failed, degrading to whole-tree comparison")
		result = c.compareBasic(filteredExisting, filteredProposed)
		result.Degraded = true
	}

	c.logger.Info().
		Int("creates", len(result.Create)).
		Int("updates", len(result.Update)).
		Int("deletes", len(result.Delete)).
		Int("unchanged", len(result.Unchanged)).
		Int("validation_errors", len(result.ValidationErrors)).
		Bool("degraded", result.Degraded).
		Msg("Comparison complete")
	return result, nil
}

func (c *Comparator) fetchSchemaIndex(ctx context.Context) *SchemaIndex {
	if c.schemas == nil {
		return nil
	}
	docs, err := c.schemas.GetSchemas(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Schema fetch failed, comparing without schema")
		return nil
	}
	if len(docs) == 0 {
		return nil
	}
	idx := BuildSchemaIndex(docs)
	c.logger.Debug().Int("fragments", idx.Len()).Msg("Schema index built")
	return idx
}

// safeFilter applies the filter engine and falls back to a clone of the
// unfiltered tree if filtering panics. Filtering must never abort a
// comparison.
func (c *Comparator) safeFilter(tree *node.Node) (out *node.Node) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().Interface("panic", r).Msg("Tree filtering failed, using unfiltered tree")
			out = tree.Clone()
		}
	}()
	if c.engine == nil {
		return tree.Clone()
	}
	return c.engine.FilterTree(tree)
}

func (c *Comparator) compareWithSchema(existing, proposed *node.Node, idx *SchemaIndex) (result *DifferenceSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("comparison panicked: %v", r)
		}
	}()

	existingByType := groupByType(flatten(existing))
	proposedByType := groupByType(flatten(proposed))

	result = &DifferenceSet{Stats: make(map[string]TypeStats)}
	for _, resourceType := range orderedTypes(existingByType, proposedByType) {
		c.compareType(result, resourceType, existingByType[resourceType], proposedByType[resourceType], idx)
	}
	return result, nil
}

func (c *Comparator) compareType(result *DifferenceSet, resourceType string, existing, proposed []*node.Node, idx *SchemaIndex) {
	stats := result.Stats[resourceType]

	existingLookup := c.buildLookup(result, &stats, resourceType, "existing", existing, idx)
	proposedLookup := c.buildLookup(result, &stats, resourceType, "proposed", proposed, idx)

	for _, key := range sortedKeys(proposedLookup) {
		proposedObj := proposedLookup[key]
		existingObj, found := existingLookup[key]
		if !found {
			result.Create = append(result.Create, ObjectRef{Key: key, ObjectType: resourceType, Object: proposedObj})
			stats.Creates++
			continue
		}
		normExisting := c.safeNormalize(existingObj, idx)
		normProposed := c.safeNormalize(proposedObj, idx)
		if normExisting.Equal(normProposed) {
			result.Unchanged = append(result.Unchanged, ObjectRef{Key: key, ObjectType: resourceType, Object: proposedObj})
			stats.Unchanged++
			continue
		}
		result.Update = append(result.Update, Update{
			Key:        key,
			ObjectType: resourceType,
			Existing:   existingObj,
			Proposed:   proposedObj,
			Changes:    computeChanges(normExisting, normProposed),
		})
		stats.Updates++
	}

	for _, key := range sortedKeys(existingLookup) {
		if _, found := proposedLookup[key]; !found {
			result.Delete = append(result.Delete, ObjectRef{Key: key, ObjectType: resourceType, Object: existingLookup[key]})
			stats.Deletes++
		}
	}

	result.Stats[resourceType] = stats
}

func (c *Comparator) buildLookup(result *DifferenceSet, stats *TypeStats, resourceType, side string, objects []*node.Node, idx *SchemaIndex) map[string]*node.Node {
	lookup := make(map[string]*node.Node, len(objects))
	for _, obj := range objects {
		key := ObjectKey(obj)
		if err := idx.ValidateObject(obj); err != nil {
			result.ValidationErrors = append(result.ValidationErrors, ValidationError{
				Key:        key,
				ObjectType: resourceType,
				Side:       side,
				Detail:     err.Error(),
			})
			stats.Invalid++
			c.logger.Warn().Str("key", key).Str("side", side).Err(err).Msg("Object excluded by schema validation")
			continue
		}
		if _, dup := lookup[key]; dup {
			c.logger.Warn().Str("key", key).Str("side", side).Msg("Duplicate object key, keeping first occurrence")
			continue
		}
		lookup[key] = obj
	}
	return lookup
}

// safeNormalize falls back to the non-schema normalization path if the
// schema-aware one panics for an object.
func (c *Comparator) safeNormalize(obj *node.Node, idx *SchemaIndex) (out *node.Node) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().Str("key", ObjectKey(obj)).Interface("panic", r).
				Msg("Schema-aware normalization failed, using basic normalization")
			out = NormalizeBasic(obj)
		}
	}()
	return Normalize(obj, idx)
}

// compareBasic is the whole-tree fallback: no schema, no per-type grouping,
// one flat key space.
func (c *Comparator) compareBasic(existing, proposed *node.Node) *DifferenceSet {
	result := &DifferenceSet{Stats: make(map[string]TypeStats)}

	existingLookup := make(map[string]*node.Node)
	for _, obj := range flatten(existing) {
		existingLookup[ObjectKey(obj)] = obj
	}
	proposedLookup := make(map[string]*node.Node)
	for _, obj := range flatten(proposed) {
		proposedLookup[ObjectKey(obj)] = obj
	}

	for _, key := range sortedKeys(proposedLookup) {
		proposedObj := proposedLookup[key]
		resourceType := proposedObj.ResourceType()
		stats := result.Stats[resourceType]
		existingObj, found := existingLookup[key]
		switch {
		case !found:
			result.Create = append(result.Create, ObjectRef{Key: key, ObjectType: resourceType, Object: proposedObj})
			stats.Creates++
		case NormalizeBasic(existingObj).Equal(NormalizeBasic(proposedObj)):
			result.Unchanged = append(result.Unchanged, ObjectRef{Key: key, ObjectType: resourceType, Object: proposedObj})
			stats.Unchanged++
		default:
			result.Update = append(result.Update, Update{
				Key:        key,
				ObjectType: resourceType,
				Existing:   existingObj,
				Proposed:   proposedObj,
				Changes:    computeChanges(NormalizeBasic(existingObj), NormalizeBasic(proposedObj)),
			})
			stats.Updates++
		}
		result.Stats[resourceType] = stats
	}

	for _, key := range sortedKeys(existingLookup) {
		if _, found := proposedLookup[key]; !found {
			obj := existingLookup[key]
			resourceType := obj.ResourceType()
			stats := result.Stats[resourceType]
			result.Delete = append(result.Delete, ObjectRef{Key: key, ObjectType: resourceType, Object: obj})
			stats.Deletes++
			result.Stats[resourceType] = stats
		}
	}
	return result
}

// flatten walks a tree and returns every unwrapped resource object beneath
// the root, descending through container children (Domain and the like).
// The root container itself is not a comparable object.
func flatten(root *node.Node) []*node.Node {
	var out []*node.Node
	var walk func(children []*node.Node)
	walk = func(children []*node.Node) {
		for _, child := range children {
			inner := child.Unwrap()
			out = append(out, inner)
			walk(inner.Children())
		}
	}
	walk(root.Children())
	return out
}

func groupByType(objects []*node.Node) map[string][]*node.Node {
	grouped := make(map[string][]*node.Node)
	for _, obj := range objects {
		grouped[obj.ResourceType()] = append(grouped[obj.ResourceType()], obj)
	}
	return grouped
}

// orderedTypes yields the fixed dependency order first, then any remaining
// types sorted for deterministic output.
func orderedTypes(groups ...map[string][]*node.Node) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range typeOrder {
		for _, g := range groups {
			if _, ok := g[t]; ok && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	var rest []string
	for _, g := range groups {
		for t := range g {
			if !seen[t] {
				seen[t] = true
				rest = append(rest, t)
			}
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func sortedKeys(m map[string]*node.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
