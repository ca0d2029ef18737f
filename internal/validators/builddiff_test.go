package validators

import (
	"testing"

	"github.com/kgraph-io/plater-automat/internal/graph"
)

func TestDiff_IdenticalSummariesAreValid(t *testing.T) {
	summary := Summary{
		"gene": graph.SummaryEntry{NodesCount: 5, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 10},
		}},
	}

	_, valid := Diff(summary, summary)
	if !valid {
		t.Fatal("expected identical summaries to produce a valid diff")
	}
}

func TestDiff_DetectsNewNodeType(t *testing.T) {
	previous := Summary{
		"gene": graph.SummaryEntry{NodesCount: 5, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 10},
		}},
	}
	current := Summary{
		"gene": graph.SummaryEntry{NodesCount: 5, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 10},
		}},
		"disease": graph.SummaryEntry{NodesCount: 2, Targets: map[string]map[string]int{
			"gene": {"associated_with": 3},
		}},
	}

	diff, valid := Diff(current, previous)
	if valid {
		t.Fatal("expected a new node type to invalidate the diff")
	}
	types, _ := diff["types_in_current_build_only"].([]string)
	if len(types) != 1 || types[0] != "disease" {
		t.Errorf("types_in_current_build_only = %v, want [disease]", types)
	}
}

func TestDiff_DetectsEdgeCountDelta(t *testing.T) {
	previous := Summary{
		"gene": graph.SummaryEntry{NodesCount: 5, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 10},
		}},
	}
	current := Summary{
		"gene": graph.SummaryEntry{NodesCount: 5, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 7},
		}},
	}

	_, valid := Diff(current, previous)
	if valid {
		t.Fatal("expected an edge count delta to invalidate the diff")
	}
}

func TestDiff_DetectsRemovedPredicate(t *testing.T) {
	previous := Summary{
		"gene": graph.SummaryEntry{NodesCount: 5, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 10, "regulates": 4},
		}},
	}
	current := Summary{
		"gene": graph.SummaryEntry{NodesCount: 5, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 10},
		}},
	}

	_, valid := Diff(current, previous)
	if valid {
		t.Fatal("expected a removed predicate to invalidate the diff")
	}
}

func TestDiff_DetectsNodeCountDelta(t *testing.T) {
	previous := Summary{
		"gene": graph.SummaryEntry{NodesCount: 5, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 10},
		}},
	}
	current := Summary{
		"gene": graph.SummaryEntry{NodesCount: 8, Targets: map[string]map[string]int{
			"chemical_substance": {"affects": 10},
		}},
	}

	diff, valid := Diff(current, previous)
	if valid {
		t.Fatal("expected a node count delta to invalidate the diff")
	}
	if _, ok := diff["gene"].(map[string]interface{})["nodes_count_diff"]; !ok {
		t.Error("expected a nodes_count_diff entry under the gene source type")
	}
}
