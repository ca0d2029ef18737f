package endpoints

import (
	"context"
	"fmt"

	"github.com/kgraph-io/plater-automat/internal/graph"
	"github.com/kgraph-io/plater-automat/internal/question"
)

// OpenAPIPathItem is a loosely-typed OpenAPI path object; only the fields the
// assembly pass actually sets are given real structure.
type OpenAPIPathItem map[string]interface{}

// OpenAPISpec is the document served at /openapi.json.
type OpenAPISpec struct {
	OpenAPI string                     `json:"openapi"`
	Info    map[string]interface{}     `json:"info"`
	Paths   map[string]OpenAPIPathItem `json:"paths"`
}

// BuildOpenAPISpec assembles the OpenAPI document for the live schema: one
// path per synthesized hop/node route, plus /cypher, /about, /graph/schema,
// /graph/summary and /query. The other fixed routes get no path entry. The
// /query entry carries one example query graph; no example answer is built.
func (f *Factory) BuildOpenAPISpec(ctx context.Context) (*OpenAPISpec, error) {
	schema, err := f.graphInterface.GetSchema(ctx)
	if err != nil {
		return nil, err
	}

	spec := &OpenAPISpec{
		OpenAPI: "3.0.2",
		Info: map[string]interface{}{
			"title":   "PLATER",
			"version": f.buildTag,
		},
		Paths: map[string]OpenAPIPathItem{},
	}

	nodeTypes := map[string]bool{}
	for sourceType, targets := range schema {
		nodeTypes[sourceType] = true
		for targetType := range targets {
			nodeTypes[targetType] = true
			path := fmt.Sprintf("/%s/%s/{curie}", sourceType, targetType)
			spec.Paths[path] = hopPathItem(sourceType, targetType, f.buildTag)
		}
	}
	for nodeType := range nodeTypes {
		path := fmt.Sprintf("/%s/{curie}", nodeType)
		spec.Paths[path] = nodePathItem(nodeType, f.buildTag)
	}

	spec.Paths["/cypher"] = cypherPathItem()
	spec.Paths["/about"] = aboutPathItem(f.buildTag)
	spec.Paths["/graph/schema"] = schemaPathItem()
	spec.Paths["/graph/summary"] = summaryPathItem()
	spec.Paths["/query"] = queryPathItem(f.exampleQueryAnswer(schema))

	return spec, nil
}

// exampleQueryAnswer builds one illustrative one-hop query graph template for
// the gene -> chemical_substance pairing of schema, falling back to the first
// pairing met in map iteration order if that exact pair is absent. It
// compiles and runs nothing, so the result carries no answer.
func (f *Factory) exampleQueryAnswer(schema graph.Schema) question.Message {
	sourceType, targetType := "gene", "chemical_substance"
	if _, ok := schema[sourceType][targetType]; !ok {
		for s, targets := range schema {
			for t := range targets {
				sourceType, targetType = s, t
				break
			}
			break
		}
	}

	templates := question.TransformSchemaToQuestionTemplates(graph.Schema{
		sourceType: {targetType: schema[sourceType][targetType]},
	})
	if len(templates) == 0 {
		return question.Message{}
	}
	return templates[0]
}

func hopPathItem(sourceType, targetType, buildTag string) OpenAPIPathItem {
	return OpenAPIPathItem{
		"get": map[string]interface{}{
			"description": fmt.Sprintf("Returns one-hop paths between `%s` and `%s`.", sourceType, targetType),
			"operationId": fmt.Sprintf("get_%s_%s%s", sourceType, targetType, buildTag),
			"tags":        []string{"hop"},
			"parameters": []map[string]interface{}{
				{"name": "curie", "in": "path", "required": true, "schema": map[string]string{"type": "string"}},
			},
		},
	}
}

func nodePathItem(nodeType, buildTag string) OpenAPIPathItem {
	return OpenAPIPathItem{
		"get": map[string]interface{}{
			"description": fmt.Sprintf("Returns `%s` nodes matching `curie`.", nodeType),
			"operationId": fmt.Sprintf("get_%s%s", nodeType, buildTag),
			"tags":        []string{"node"},
			"parameters": []map[string]interface{}{
				{"name": "curie", "in": "path", "required": true, "schema": map[string]string{"type": "string"}},
			},
		},
	}
}

func cypherPathItem() OpenAPIPathItem {
	return OpenAPIPathItem{
		"post": map[string]interface{}{
			"description": "Runs an arbitrary cypher statement against the graph database.",
			"operationId": "run_cypher",
			"tags":        []string{"cypher"},
		},
	}
}

func aboutPathItem(buildTag string) OpenAPIPathItem {
	return OpenAPIPathItem{
		"get": map[string]interface{}{
			"description": "Returns a json describing dataset.",
			"operationId": "about_dataset" + buildTag,
			"tags":        []string{"about"},
		},
	}
}

func schemaPathItem() OpenAPIPathItem {
	return OpenAPIPathItem{
		"get": map[string]interface{}{
			"description": "Returns the source_label -> target_label -> predicates schema map.",
			"operationId": "get_schema",
			"tags":        []string{"schema"},
		},
	}
}

func summaryPathItem() OpenAPIPathItem {
	return OpenAPIPathItem{
		"get": map[string]interface{}{
			"description": "Returns the full-label-set edge count summary.",
			"operationId": "get_summary",
			"tags":        []string{"schema"},
		},
	}
}

func queryPathItem(example question.Message) OpenAPIPathItem {
	return OpenAPIPathItem{
		"post": map[string]interface{}{
			"description": "Accepts a TrAPI query graph and returns an answer document.",
			"operationId": "answer_query",
			"tags":        []string{"query"},
			"requestBody": map[string]interface{}{
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": map[string]interface{}{
							"example": example,
						},
					},
				},
			},
		},
	}
}

func swaggerUIHTML(buildTag string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>PLATER %s</title></head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@3/swagger-ui-bundle.js"></script>
<script>
window.onload = function() {
  SwaggerUIBundle({ url: "./openapi.json", dom_id: "#swagger-ui" });
};
</script>
</body>
</html>`, buildTag)
}
