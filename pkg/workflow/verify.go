package workflow

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/compare"
	"github.com/policydelta/policydelta/pkg/node"
)

// Verifier checks the post-apply tree against the delta that was submitted.
// It reports; it never retries or reverts on a mismatch.
type Verifier struct {
	logger zerolog.Logger
}

// NewVerifier creates a verifier.
func NewVerifier(logger zerolog.Logger) *Verifier {
	return &Verifier{logger: logger.With().Str("component", "verify").Logger()}
}

// Verify classifies every delta object against the freshly fetched tree:
// MATCH when the found object is equal to the intended one after
// normalization, MISMATCH when found but different, NOT_FOUND when absent.
// A nil schema index degrades to non-schema normalization for both sides.
func (v *Verifier) Verify(entries []DeltaEntry, newTree *node.Node, idx *compare.SchemaIndex) *VerificationReport {
	report := &VerificationReport{
		Results: make([]VerificationResult, 0, len(entries)),
	}
	report.Summary.TotalDeltaObjects = len(entries)

	lookup := make(map[string]*node.Node)
	for _, obj := range flattenTree(newTree) {
		key := compare.ObjectKey(obj)
		if _, dup := lookup[key]; !dup {
			lookup[key] = obj
		}
	}

	for _, e := range entries {
		result := VerificationResult{
			Key:        e.Key,
			ObjectType: e.ObjectType,
			Action:     e.Action,
		}

		found, ok := lookup[e.Key]
		switch {
		case !ok:
			result.Outcome = OutcomeNotFound
			report.Summary.NotFound++
		case v.normalize(e.Intended, idx).Equal(v.normalize(found, idx)):
			result.Outcome = OutcomeMatch
			report.Summary.Matches++
		default:
			result.Outcome = OutcomeMismatch
			result.Detail = mismatchDetail(v.normalize(e.Intended, idx), v.normalize(found, idx))
			report.Summary.Mismatches++
		}

		if result.Outcome != OutcomeMatch {
			v.logger.Warn().
				Str("key", e.Key).
				Str("outcome", string(result.Outcome)).
				Msg("Delta object did not converge")
		}
		report.Results = append(report.Results, result)
	}

	return report
}

// normalize falls back to the non-schema path if schema-aware normalization
// panics for an object.
func (v *Verifier) normalize(obj *node.Node, idx *compare.SchemaIndex) (out *node.Node) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn().
				Str("key", compare.ObjectKey(obj)).
				Interface("panic", r).
				Msg("Schema-aware normalization failed during verification, using basic normalization")
			out = compare.NormalizeBasic(obj)
		}
	}()
	return compare.Normalize(obj, idx)
}

// mismatchDetail names the properties that differ between the intended and
// found forms of one object.
func mismatchDetail(intended, found *node.Node) string {
	var diffs []string
	for _, k := range intended.Keys() {
		iv, _ := intended.Get(k)
		fv, ok := found.Get(k)
		if !ok || !node.ValueEqual(iv, fv) {
			diffs = append(diffs, k)
		}
	}
	for _, k := range found.Keys() {
		if !intended.Has(k) {
			diffs = append(diffs, k)
		}
	}
	if len(diffs) == 0 {
		return "objects differ"
	}
	return fmt.Sprintf("differing properties: %v", diffs)
}

// flattenTree collects every non-wrapper resource object in the tree,
// unwrapping Child-wrappers and descending through children. The root
// container itself is excluded.
func flattenTree(root *node.Node) []*node.Node {
	if root == nil {
		return nil
	}
	var out []*node.Node
	var walk func(n *node.Node, isRoot bool)
	walk = func(n *node.Node, isRoot bool) {
		obj := n.Unwrap()
		if !isRoot && obj.ResourceType() != "" && obj.ResourceType() != node.RootResourceType {
			out = append(out, obj)
		}
		for _, c := range obj.Children() {
			walk(c, false)
		}
	}
	walk(root, true)
	return out
}
