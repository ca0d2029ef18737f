package question

import "github.com/kgraph-io/plater-automat/internal/graph"

// TransformSchemaToQuestionTemplates enumerates every source_label ->
// target_label -> predicate triple in schema and emits a one-hop TrAPI query
// template for each, used by GET /reasonerapi and by the OpenAPI example
// builder.
func TransformSchemaToQuestionTemplates(schema graph.Schema) []Message {
	var templates []Message
	for sourceType, targets := range schema {
		for targetType, predicates := range targets {
			for _, predicate := range predicates {
				templates = append(templates, Message{
					QueryGraph: QueryGraph{
						Nodes: []map[string]interface{}{
							{"id": "n0", "type": sourceType},
							{"id": "n1", "type": targetType},
						},
						Edges: []map[string]interface{}{
							{"id": "e0", "source_id": "n0", "target_id": "n1", "type": predicate},
						},
					},
				})
			}
		}
	}
	return templates
}
