package validators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kgraph-io/plater-automat/internal/graph"
)

// Summary is the full-label-set summary shape persisted between builds.
type Summary = graph.Summary

// BuildComparisonValidator compares the current graph summary against the
// last persisted one, flagging any structural or count divergence.
type BuildComparisonValidator struct {
	graphInterface *graph.Interface
	logDir         string
}

// NewBuildComparisonValidator constructs a BuildComparisonValidator that
// persists its summary snapshot and diffs under logDir.
func NewBuildComparisonValidator(gi *graph.Interface, logDir string) *BuildComparisonValidator {
	return &BuildComparisonValidator{graphInterface: gi, logDir: logDir}
}

func (v *BuildComparisonValidator) summaryFile() string { return filepath.Join(v.logDir, "graph_summary.json") }
func (v *BuildComparisonValidator) diffFile() string    { return filepath.Join(v.logDir, "graph_diff.json") }

// Validate compares the current graph summary against the previously
// persisted one. It returns true (no diff) when there is nothing to compare
// against yet, persisting the current summary as the new baseline.
func (v *BuildComparisonValidator) Validate(ctx context.Context, resetSummary bool) (bool, error) {
	summary, err := v.graphInterface.GetSummary(ctx)
	if err != nil {
		return false, err
	}

	if resetSummary {
		if err := v.writeSummary(summary); err != nil {
			return false, err
		}
	}

	previous, err := v.readPreviousSummary()
	if err != nil {
		return false, err
	}
	if previous == nil {
		return true, v.writeSummary(summary)
	}

	diff, valid := Diff(summary, previous)
	if !valid {
		if err := v.writeDiff(diff); err != nil {
			return false, err
		}
	}
	return valid, nil
}

func (v *BuildComparisonValidator) readPreviousSummary() (Summary, error) {
	data, err := os.ReadFile(v.summaryFile())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (v *BuildComparisonValidator) writeSummary(summary Summary) error {
	if err := os.MkdirAll(v.logDir, 0o755); err != nil {
		return err
	}
	return writeJSONFile(v.summaryFile(), summary)
}

func (v *BuildComparisonValidator) writeDiff(diff map[string]interface{}) error {
	if err := os.MkdirAll(v.logDir, 0o755); err != nil {
		return err
	}
	return writeJSONFile(v.diffFile(), diff)
}

// Diff compares two graph summaries, returning a structural-diff document
// (suitable for JSON serialization) and whether the two summaries agree.
func Diff(current, previous Summary) (map[string]interface{}, bool) {
	valid := true

	typesInPreviousOnly := keysNotIn(previous, current)
	typesInCurrentOnly := keysNotIn(current, previous)
	disjoint := appendAll(typesInPreviousOnly, typesInCurrentOnly)
	if len(disjoint) > 0 {
		valid = false
	}

	result := map[string]interface{}{
		"types_in_previous_build_only": typesInPreviousOnly,
		"types_in_current_build_only":  typesInCurrentOnly,
	}

	disjointSet := toSet(disjoint)

	for sourceType, currentEntry := range current {
		if disjointSet[sourceType] {
			continue
		}
		previousEntry := previous[sourceType]
		currentTargets := currentEntry.Targets
		previousTargets := previousEntry.Targets

		targetsInPreviousOnly := keysNotIn(previousTargets, currentTargets)
		targetsInCurrentOnly := keysNotIn(currentTargets, previousTargets)
		perTypeDisjoint := appendAll(targetsInPreviousOnly, targetsInCurrentOnly)
		if len(perTypeDisjoint) > 0 {
			valid = false
		}
		perTypeDisjointSet := toSet(perTypeDisjoint)

		perType := map[string]interface{}{
			"target_nodes_in_previous_build_only": targetsInPreviousOnly,
			"target_nodes_in_current_build_only":  targetsInCurrentOnly,
		}

		for targetType, currentEdges := range currentTargets {
			if perTypeDisjointSet[targetType] {
				continue
			}
			previousEdges := previousTargets[targetType]

			edgesInPreviousOnly := keysNotIn(previousEdges, currentEdges)
			edgesInCurrentOnly := keysNotIn(currentEdges, previousEdges)
			edgesDisjoint := toSet(appendAll(edgesInPreviousOnly, edgesInCurrentOnly))
			if len(edgesDisjoint) > 0 {
				valid = false
			}

			edgeSet := map[string]interface{}{}
			if len(edgesInPreviousOnly) > 0 {
				edgeSet["edges_in_previous_build_only"] = map[string]interface{}{
					"description": fmt.Sprintf("from %s --> %s", sourceType, targetType),
					"edges":       edgesInPreviousOnly,
				}
			}
			if len(edgesInCurrentOnly) > 0 {
				edgeSet["edges_in_current_build_only"] = map[string]interface{}{
					"description": fmt.Sprintf("from %s --> %s", sourceType, targetType),
					"edges":       edgesInCurrentOnly,
				}
			}

			var countDiffMessages []string
			for edge, currentCount := range currentEdges {
				if edgesDisjoint[edge] {
					continue
				}
				previousCount := previousEdges[edge]
				delta := previousCount - currentCount
				switch {
				case delta > 0:
					valid = false
					countDiffMessages = append(countDiffMessages, fmt.Sprintf(
						"Old build had %d more `%s` edges. %s --> %s", delta, edge, sourceType, targetType))
				case delta < 0:
					valid = false
					countDiffMessages = append(countDiffMessages, fmt.Sprintf(
						"New build has %d more `%s` edges. %s --> %s", -delta, edge, sourceType, targetType))
				default:
					countDiffMessages = append(countDiffMessages, "No edge diff")
				}
			}
			edgeSet["edge_count_diff"] = countDiffMessages

			perType[targetType] = edgeSet
		}

		// nodes_count lives on the entry itself rather than as a target-type
		// key, so it never needs special-casing out of the target-type loop
		// above the way the original dict-shaped summary required.
		if currentEntry.NodesCount != previousEntry.NodesCount {
			valid = false
			perType["nodes_count_diff"] = fmt.Sprintf(
				"previous build had %d `%s` nodes, current build has %d",
				previousEntry.NodesCount, sourceType, currentEntry.NodesCount,
			)
		}

		result[sourceType] = perType
	}

	return result, valid
}

func keysNotIn[K comparable, V any](present map[K]V, reference map[K]V) []K {
	var out []K
	for k := range present {
		if _, ok := reference[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func appendAll[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func toSet[T comparable](items []T) map[T]bool {
	out := make(map[T]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}
