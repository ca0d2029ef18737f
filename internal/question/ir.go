// Package question implements the Question Compiler: a structured
// intermediate representation for TrAPI query graphs, cypher compilation
// from that IR, and the answer/yank pipeline that turns cypher rows back
// into TrAPI answers and a knowledge graph.
package question

import (
	"fmt"
	"sort"
	"strings"
)

// cypherPropString renders a single property value as a cypher literal.
// Only booleans and strings are supported properties on a query graph node
// or edge filter; any other type is a query-graph validation error.
func cypherPropString(value interface{}) (string, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case string:
		return "'" + strings.ReplaceAll(v, "'", "\\'") + "'", nil
	default:
		return "", fmt.Errorf("unsupported property type: %T", value)
	}
}

// stringOrSlice normalizes a JSON value that may be either a single string
// or a list of strings (node "type"/"curie", edge "type").
func stringOrSlice(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case string:
		return []string{v}, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case []string:
		return v, true
	default:
		return nil, false
	}
}

// NodeReference is the cypher IR node for one query-graph node: its match
// variable, labels, inline property map, and WHERE-clause filter fragment.
type NodeReference struct {
	Name      string
	Labels    []string
	PropsStr  string
	filters   string
	extras    string
	num       int
}

// NewNodeReference builds a NodeReference from a query-graph node map,
// mirroring the Python compiler's popping of id/type/curie/name/set before
// treating whatever remains as inline match properties.
func NewNodeReference(node map[string]interface{}, anonymous bool) (*NodeReference, error) {
	node = cloneMap(node)

	idVal, _ := node["id"].(string)
	delete(node, "id")
	name := idVal
	if anonymous {
		name = ""
	}

	labels := []string{"named_thing"}
	if raw, ok := node["type"]; ok {
		if parsed, ok := stringOrSlice(raw); ok && len(parsed) > 0 {
			labels = parsed
		}
	}
	delete(node, "type")

	props := map[string]interface{}{}
	filters := ""
	hasCurie := false

	if raw, ok := node["curie"]; ok {
		hasCurie = true
		switch c := raw.(type) {
		case string:
			props["id"] = c
		case []interface{}:
			parts := make([]string, 0, len(c))
			for _, item := range c {
				if s, ok := item.(string); ok {
					parts = append(parts, fmt.Sprintf("%s.id = '%s'", name, strings.ReplaceAll(s, "'", "\\'")))
				}
			}
			filters = strings.Join(parts, " OR ")
		default:
			return nil, fmt.Errorf("node %q: curie must be a string or list of strings", idVal)
		}
	}
	delete(node, "curie")
	delete(node, "name")
	delete(node, "set")

	for k, v := range node {
		props[k] = v
	}

	propKeys := make([]string, 0, len(props))
	for k := range props {
		propKeys = append(propKeys, k)
	}
	sort.Strings(propKeys)

	parts := make([]string, 0, len(propKeys))
	for _, k := range propKeys {
		rendered, err := cypherPropString(props[k])
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", idVal, err)
		}
		parts = append(parts, fmt.Sprintf("`%s`: %s", k, rendered))
	}
	propsStr := " {" + strings.Join(parts, ", ") + "}"

	extras := ""
	if hasCurie {
		extras = fmt.Sprintf(" USING INDEX %s:`%s`(id)", name, labels[0])
	}

	return &NodeReference{Name: name, Labels: labels, PropsStr: propsStr, filters: filters, extras: extras}, nil
}

// String renders the cypher node pattern. The first call returns the full
// labeled, propertied form; every subsequent call (a second reference to the
// same node in a later MATCH clause) returns just the bare variable name, as
// cypher requires for repeated pattern variables.
func (n *NodeReference) String() string {
	n.num++
	if n.num == 1 {
		labelPart := ""
		for _, l := range n.Labels {
			labelPart += fmt.Sprintf(":`%s`", l)
		}
		return n.Name + labelPart + n.PropsStr
	}
	return n.Name
}

// Filters returns the WHERE-clause fragment for this node, valid only
// immediately after the first String() call that emitted the full pattern.
func (n *NodeReference) Filters() string {
	if n.num == 1 {
		return n.filters
	}
	return ""
}

// Extras returns the USING INDEX hint appended to this node's MATCH clause.
func (n *NodeReference) Extras() string {
	if n.num == 1 {
		return n.extras
	}
	return ""
}

// EdgeReference is the cypher IR edge for one query-graph edge: its match
// variable, relationship type, direction, and WHERE-clause filter fragment.
type EdgeReference struct {
	Name     string
	Label    string
	Directed bool
	filters  string
	num      int
}

// NewEdgeReference builds an EdgeReference from a query-graph edge map.
func NewEdgeReference(edge map[string]interface{}, anonymous bool) *EdgeReference {
	idVal, _ := edge["id"].(string)
	name := idVal
	if anonymous {
		name = ""
	}

	label := ""
	filters := ""
	hasType := false

	if raw, ok := edge["type"]; ok && raw != nil {
		hasType = true
		switch t := raw.(type) {
		case string:
			label = t
		case []interface{}:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				if s, ok := item.(string); ok {
					parts = append(parts, fmt.Sprintf(`type(%s) = "%s"`, name, s))
				}
			}
			filters = strings.Join(parts, " OR ")
			label = ""
		}
	}

	directed := hasType
	if raw, ok := edge["directed"].(bool); ok {
		directed = raw
	}

	return &EdgeReference{Name: name, Label: label, Directed: directed, filters: filters}
}

// String renders the cypher relationship pattern, following the same
// first-call-vs-later-reference rule as NodeReference.String.
func (e *EdgeReference) String() string {
	e.num++
	var innards string
	if e.num == 1 {
		innards = e.Name
		if e.Label != "" {
			innards += ":" + e.Label
		}
	} else {
		innards = e.Name
	}
	if e.Directed {
		return fmt.Sprintf("-[%s]->", innards)
	}
	return fmt.Sprintf("-[%s]-", innards)
}

// Filters returns the WHERE-clause fragment for this edge.
func (e *EdgeReference) Filters() string {
	if e.num == 1 {
		return e.filters
	}
	return ""
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
