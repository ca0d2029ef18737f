package graph

import "fmt"

// nodeFromRow builds a Node from a zipped row that has "c" and "c_labels"
// columns, the convention used by every node-returning query in this
// package.
func nodeFromRow(row map[string]interface{}) (Node, error) {
	return nodeFromColumns(row, "c", "c_labels")
}

func nodeFromColumns(row map[string]interface{}, nodeCol, labelsCol string) (Node, error) {
	raw, ok := row[nodeCol]
	if !ok {
		return nil, fmt.Errorf("row missing column %q", nodeCol)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("column %q is not a node object", nodeCol)
	}
	node := Node{}
	for k, v := range props {
		node[k] = v
	}
	if labels, ok := toStringSlice(row[labelsCol]); ok {
		node["type"] = labels
	}
	return node, nil
}

// edgeFromRow builds an Edge from a zipped row with "e" and "e_type" columns.
func edgeFromRow(row map[string]interface{}) (Edge, error) {
	raw, ok := row["e"]
	if !ok {
		return nil, fmt.Errorf("row missing column \"e\"")
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("column \"e\" is not a relationship object")
	}
	edge := Edge{}
	for k, v := range props {
		edge[k] = v
	}
	if edgeType, ok := row["e_type"].(string); ok {
		edge["type"] = edgeType
	}
	return edge, nil
}
