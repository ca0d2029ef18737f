package graph

import (
	"context"
	"fmt"
)

// Schema is the symmetric source-type -> target-type -> predicate list map
// describing every node-type pairing observed in the graph.
type Schema map[string]map[string][]string

// excludedLabels are the catch-all labels every node carries; they would
// otherwise dominate every schema entry and are never useful as a source or
// target type on their own.
var excludedLabels = map[string]bool{
	"named_thing": true,
	"Concept":     true,
}

const graphSchemaQuery = `
MATCH (a)-[x]->(b)
WITH
  filter(la IN labels(a) WHERE NOT la IN ['named_thing', 'Concept']) AS las,
  filter(lb IN labels(b) WHERE NOT lb IN ['named_thing', 'Concept']) AS lbs,
  type(x) AS predicate
UNWIND las AS la
UNWIND lbs AS lb
RETURN DISTINCT predicate, la, lb
`

// fetchSchema runs the graph-schema discovery query and folds the resulting
// (predicate, source_label, target_label) triples into a Schema.
func (gi *Interface) fetchSchema(ctx context.Context) (Schema, error) {
	resp, err := gi.driver.Run(ctx, graphSchemaQuery)
	if err != nil {
		return nil, err
	}

	schema := Schema{}
	for _, result := range resp.Results {
		for _, rec := range result.Data {
			if len(rec.Row) < 3 {
				continue
			}
			predicate, ok1 := rec.Row[0].(string)
			sourceLabel, ok2 := rec.Row[1].(string)
			targetLabel, ok3 := rec.Row[2].(string)
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			if excludedLabels[sourceLabel] || excludedLabels[targetLabel] {
				continue
			}
			addPredicate(schema, sourceLabel, targetLabel, predicate)
			addPredicate(schema, targetLabel, sourceLabel, predicate)
		}
	}
	return schema, nil
}

func addPredicate(schema Schema, source, target, predicate string) {
	targets, ok := schema[source]
	if !ok {
		targets = map[string][]string{}
		schema[source] = targets
	}
	for _, existing := range targets[target] {
		if existing == predicate {
			return
		}
	}
	targets[target] = append(targets[target], predicate)
}

// MiniSchemaRow is one (source_label, predicate, target_label) triple
// restricted to the hops reachable from/to a specific curie.
type MiniSchemaRow struct {
	SourceLabel string
	Predicate   string
	TargetLabel string
}

// fetchMiniSchema finds every predicate connecting sourceCurie (if set) or
// targetCurie (if set) to the rest of the graph, used by the simple_spec
// endpoint when a curie filter is supplied.
func (gi *Interface) fetchMiniSchema(ctx context.Context, sourceCurie, targetCurie string) ([]MiniSchemaRow, error) {
	var cypher string
	switch {
	case sourceCurie != "" && targetCurie != "":
		cypher = fmt.Sprintf(
			"MATCH (a {id: '%s'})-[x]->(b {id: '%s'}) RETURN DISTINCT labels(a) AS source_label, type(x) AS predicate, labels(b) AS target_label",
			escapeCypherString(sourceCurie), escapeCypherString(targetCurie),
		)
	case sourceCurie != "":
		cypher = fmt.Sprintf(
			"MATCH (a {id: '%s'})-[x]->(b) RETURN DISTINCT labels(a) AS source_label, type(x) AS predicate, labels(b) AS target_label",
			escapeCypherString(sourceCurie),
		)
	case targetCurie != "":
		cypher = fmt.Sprintf(
			"MATCH (a)-[x]->(b {id: '%s'}) RETURN DISTINCT labels(a) AS source_label, type(x) AS predicate, labels(b) AS target_label",
			escapeCypherString(targetCurie),
		)
	default:
		return nil, nil
	}

	resp, err := gi.driver.Run(ctx, cypher)
	if err != nil {
		return nil, err
	}

	var rows []MiniSchemaRow
	for _, result := range resp.Results {
		for _, rec := range result.Data {
			if len(rec.Row) < 3 {
				continue
			}
			sourceLabels, _ := toStringSlice(rec.Row[0])
			predicate, _ := rec.Row[1].(string)
			targetLabels, _ := toStringSlice(rec.Row[2])
			for _, sl := range sourceLabels {
				for _, tl := range targetLabels {
					if excludedLabels[sl] || excludedLabels[tl] {
						continue
					}
					rows = append(rows, MiniSchemaRow{SourceLabel: sl, Predicate: predicate, TargetLabel: tl})
				}
			}
		}
	}
	return rows, nil
}

func toStringSlice(v interface{}) ([]string, bool) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}
