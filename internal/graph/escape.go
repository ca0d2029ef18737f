package graph

import "strings"

// escapeCypherString escapes single quotes in a string destined for a
// single-quoted cypher literal. The Question Compiler builds its queries
// from a structured IR instead of string interpolation; this is used for the
// direct curie lookups (node, hop, mini-schema) that take a literal value
// straight from a path parameter, and for the literals of the edge-index
// bootstrap and the APOC cover query.
func escapeCypherString(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
