// Package overlay implements the support-edge overlay engine: given a set of
// answered query results, it finds additional edges connecting the nodes
// bound within each individual answer and folds them in as synthetic
// "s_N" query-graph bindings.
package overlay

import (
	"context"
	"fmt"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
	"github.com/kgraph-io/plater-automat/internal/graph"
	"github.com/kgraph-io/plater-automat/internal/question"
)

// Overlay computes support edges over answered TrAPI messages.
type Overlay struct {
	graphInterface *graph.Interface
}

// New constructs an Overlay bound to gi.
func New(gi *graph.Interface) *Overlay {
	return &Overlay{graphInterface: gi}
}

// OverlaySupportEdges finds edges connecting the nodes bound within each
// answer of msg and appends them as support bindings, returning a new
// message with the enriched results and knowledge graph.
//
// Unlike the reference implementation, which silently skipped overlay
// enrichment when the backend lacked the APOC procedure library, this
// returns OverlayUnsupported so callers see a clear failure instead of a
// quietly unenriched response.
func (o *Overlay) OverlaySupportEdges(ctx context.Context, msg *question.Message) (*question.Message, error) {
	if !o.graphInterface.SupportsAPOC(ctx) {
		return nil, svcerrors.OverlayUnsupported()
	}

	addedEdgeIDs := map[string]bool{}
	var edgesToAdd []map[string]interface{}
	overlayedAnswers := make([]question.Answer, 0, len(msg.Results))

	for _, answer := range msg.Results {
		nodeIDs := make([]string, 0, len(answer.NodeBindings))
		seen := map[string]bool{}
		for _, nb := range answer.NodeBindings {
			if !seen[nb.KgID] {
				seen[nb.KgID] = true
				nodeIDs = append(nodeIDs, nb.KgID)
			}
		}

		coverEdges, err := o.graphInterface.RunAPOCCover(ctx, nodeIDs)
		if err != nil {
			return nil, err
		}
		lookup := structureForLookup(coverEdges)

		supportSuffix := 0
		for _, nodeID := range nodeIDs {
			relations := lookup[nodeID]
			for _, otherNodeID := range nodeIDs {
				if otherNodeID == nodeID {
					continue
				}
				for _, supportEdge := range relations[otherNodeID] {
					qgID := fmt.Sprintf("s_%d", supportSuffix)
					supportSuffix++
					kgID, _ := supportEdge["id"].(string)

					answer.EdgeBindings = append(answer.EdgeBindings, question.EdgeBinding{
						QgID: qgID,
						KgID: kgID,
					})

					if kgID != "" && !addedEdgeIDs[kgID] {
						addedEdgeIDs[kgID] = true
						edgesToAdd = append(edgesToAdd, supportEdge)
					}
				}
			}
		}

		overlayedAnswers = append(overlayedAnswers, answer)
	}

	result := &question.Message{
		QueryGraph: msg.QueryGraph,
		Results:    overlayedAnswers,
	}
	if msg.KnowledgeGraph != nil {
		kg := &question.KnowledgeGraph{
			Nodes: msg.KnowledgeGraph.Nodes,
			Edges: append(append([]map[string]interface{}{}, msg.KnowledgeGraph.Edges...), edgesToAdd...),
		}
		result.KnowledgeGraph = kg
	} else if len(edgesToAdd) > 0 {
		result.KnowledgeGraph = &question.KnowledgeGraph{Edges: edgesToAdd}
	}

	return result, nil
}

// structureForLookup converts a flat cover-edge list into a
// source_id -> target_id -> []edge mini-graph for fast answer-local lookup.
func structureForLookup(edges []graph.CoverEdge) map[string]map[string][]map[string]interface{} {
	result := map[string]map[string][]map[string]interface{}{}
	for _, e := range edges {
		edgeProps := map[string]interface{}{}
		for k, v := range e.Edge {
			edgeProps[k] = v
		}
		edgeProps["source_id"] = e.SourceID
		edgeProps["target_id"] = e.TargetID

		targets, ok := result[e.SourceID]
		if !ok {
			targets = map[string][]map[string]interface{}{}
			result[e.SourceID] = targets
		}
		targets[e.TargetID] = append(targets[e.TargetID], edgeProps)
	}
	return result
}
