package question

import (
	"fmt"
	"strings"
)

// QueryGraph is a TrAPI query graph: the nodes and edges a question asks to
// match, each represented as a loosely-typed property map so that arbitrary
// inline property filters (anything beyond id/type/curie/name/set) pass
// through untouched to the cypher compiler.
type QueryGraph struct {
	Nodes []map[string]interface{} `json:"nodes"`
	Edges []map[string]interface{} `json:"edges"`
}

// CompileOptions configures cypher generation.
type CompileOptions struct {
	MaxConnectivity int
	RelationshipID  string // "property" (default) or "internal"
	Skip            *int
	Limit           *int
}

func nodeID(node map[string]interface{}) string {
	id, _ := node["id"].(string)
	return id
}

func edgeID(edge map[string]interface{}) string {
	id, _ := edge["id"].(string)
	return id
}

func edgeEndpoints(edge map[string]interface{}) (string, string) {
	source, _ := edge["source_id"].(string)
	target, _ := edge["target_id"].(string)
	return source, target
}

func isSetNode(node map[string]interface{}) bool {
	set, _ := node["set"].(bool)
	return set
}

// CypherQueryFragmentMatch generates the MATCH/WHERE fragment that binds
// every node and edge in qgraph. It is shared by CypherQueryAnswerMap and
// any future knowledge-graph-only query.
func CypherQueryFragmentMatch(qgraph QueryGraph, maxConnectivity int) (string, error) {
	nodeRefs := make(map[string]*NodeReference, len(qgraph.Nodes))
	for _, n := range qgraph.Nodes {
		ref, err := NewNodeReference(n, false)
		if err != nil {
			return "", err
		}
		nodeRefs[nodeID(n)] = ref
	}

	edgeRefs := make([]*EdgeReference, len(qgraph.Edges))
	for i, e := range qgraph.Edges {
		edgeRefs[i] = NewEdgeReference(e, false)
	}

	var matchStrings []string

	referenced := map[string]bool{}
	for _, e := range qgraph.Edges {
		source, target := edgeEndpoints(e)
		referenced[source] = true
		referenced[target] = true
	}
	for _, n := range qgraph.Nodes {
		id := nodeID(n)
		if referenced[id] {
			continue
		}
		ref := nodeRefs[id]
		clause := fmt.Sprintf("MATCH (%s)", ref.String())
		clause += ref.Extras()
		matchStrings = append(matchStrings, clause)
		if f := ref.Filters(); f != "" {
			matchStrings = append(matchStrings, "WHERE "+f)
		}
	}

	for i, e := range qgraph.Edges {
		eref := edgeRefs[i]
		source, target := edgeEndpoints(e)
		sourceRef, ok := nodeRefs[source]
		if !ok {
			return "", fmt.Errorf("edge %q references unknown source node %q", edgeID(e), source)
		}
		targetRef, ok := nodeRefs[target]
		if !ok {
			return "", fmt.Errorf("edge %q references unknown target node %q", edgeID(e), target)
		}

		clause := fmt.Sprintf("MATCH (%s)%s(%s)", sourceRef.String(), eref.String(), targetRef.String())
		clause += sourceRef.Extras() + targetRef.Extras()
		matchStrings = append(matchStrings, clause)

		var filterParts []string
		for _, f := range []string{sourceRef.Filters(), targetRef.Filters(), eref.Filters()} {
			if f != "" {
				filterParts = append(filterParts, "("+f+")")
			}
		}
		if maxConnectivity > -1 {
			filterParts = append(filterParts, fmt.Sprintf("(size( (%s)-[]-() ) < %d)", targetRef.Name, maxConnectivity))
		}
		if len(filterParts) > 0 {
			matchStrings = append(matchStrings, "WHERE "+strings.Join(filterParts, " AND "))
		}
	}

	return strings.Join(matchStrings, " "), nil
}

// CypherQueryAnswerMap generates the full cypher query that extracts answer
// maps (node/edge bindings keyed by query-graph id) for qgraph.
func CypherQueryAnswerMap(qgraph QueryGraph, opts CompileOptions) (string, error) {
	var clauses []string

	matchString, err := CypherQueryFragmentMatch(qgraph, opts.MaxConnectivity)
	if err != nil {
		return "", err
	}
	if matchString != "" {
		clauses = append(clauses, matchString)
	}

	nodeNames := make([]string, len(qgraph.Nodes))
	for i, n := range qgraph.Nodes {
		nodeNames[i] = nodeID(n)
	}
	edgeNames := make([]string, len(qgraph.Edges))
	for i, e := range qgraph.Edges {
		edgeNames[i] = edgeID(e)
	}

	var accessors []string
	for _, n := range qgraph.Nodes {
		id := nodeID(n)
		if isSetNode(n) {
			accessors = append(accessors, fmt.Sprintf("collect(DISTINCT %s) AS %s", id, id))
		} else {
			accessors = append(accessors, fmt.Sprintf("[%s] AS %s", id, id))
		}
	}
	for _, e := range qgraph.Edges {
		id := edgeID(e)
		if opts.RelationshipID == "internal" {
			accessors = append(accessors, fmt.Sprintf("collect(DISTINCT toString(id(%s))) AS %s", id, id))
		} else {
			accessors = append(accessors, fmt.Sprintf("collect(DISTINCT %s) AS %s", id, id))
		}
	}
	if len(accessors) > 0 {
		clauses = append(clauses, "WITH "+strings.Join(accessors, ", "))
	}

	nodeDicts := make([]string, len(nodeNames))
	for i, n := range nodeNames {
		nodeDicts[i] = fmt.Sprintf("[ni IN %s | {qg_id:'%s', kg_id:ni.id, node: ni, type: labels(ni)}]", n, n)
	}
	edgeDicts := make([]string, len(edgeNames))
	for i, e := range edgeNames {
		edgeDicts[i] = fmt.Sprintf("[ei IN %s | {qg_id:'%s', kg_id:ei.id, edge: ei, type: type(ei)}]", e, e)
	}

	nodesExpr := "[]"
	if len(nodeDicts) > 0 {
		nodesExpr = strings.Join(nodeDicts, " + ")
	}
	edgesExpr := "[]"
	if len(edgeDicts) > 0 {
		edgesExpr = strings.Join(edgeDicts, " + ")
	}
	clauses = append(clauses, fmt.Sprintf("RETURN %s AS nodes, %s AS edges", nodesExpr, edgesExpr))

	query := strings.Join(clauses, " ")
	if opts.Skip != nil {
		query += fmt.Sprintf(" SKIP %d", *opts.Skip)
	}
	if opts.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *opts.Limit)
	}
	return query, nil
}

// FlattenSemilist converts a list of (list-or-scalar) values to one flat
// list of strings, as kg_id bindings on a "set" node arrive as nested lists.
func FlattenSemilist(values []interface{}) []string {
	var out []string
	for _, v := range values {
		switch inner := v.(type) {
		case []interface{}:
			for _, item := range inner {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		case string:
			out = append(out, inner)
		}
	}
	return out
}
