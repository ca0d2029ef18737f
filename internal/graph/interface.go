package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
)

// Node is a single graph node: its labels plus all declared properties,
// flattened into one map the way the TrAPI knowledge graph expects.
type Node map[string]interface{}

// Edge is a single graph relationship: id, source/target, type, plus any
// declared properties.
type Edge map[string]interface{}

// Interface is the schema-aware query layer over a Driver: it memoizes the
// graph schema and summary (both expensive full-graph scans) behind a
// sync.Once latch, matching the once-computed-many-times-read access
// pattern every endpoint needs.
type Interface struct {
	driver *Driver

	edgeIndexName string

	schemaOnce sync.Once
	schema     Schema
	schemaErr  error

	summaryOnce sync.Once
	summary     Summary
	summaryErr  error

	apocOnce    sync.Once
	apocSupport bool
}

// NewInterface constructs an Interface around driver. edgeIndexName names
// the fulltext relationship index the yank phase queries for bulk edge
// fetches.
func NewInterface(driver *Driver, edgeIndexName string) *Interface {
	return &Interface{driver: driver, edgeIndexName: edgeIndexName}
}

// EdgeIndexName returns the configured fulltext relationship index name.
func (gi *Interface) EdgeIndexName() string {
	return gi.edgeIndexName
}

// GetSchema returns the memoized source-type -> target-type -> predicates
// map, computing it once on first call.
func (gi *Interface) GetSchema(ctx context.Context) (Schema, error) {
	gi.schemaOnce.Do(func() {
		gi.schema, gi.schemaErr = gi.fetchSchema(ctx)
	})
	return gi.schema, gi.schemaErr
}

// ResetSchema forces the next GetSchema call to recompute the schema, for
// example after a failed first attempt.
func (gi *Interface) ResetSchema() {
	gi.schemaOnce = sync.Once{}
	gi.schema = nil
	gi.schemaErr = nil
}

// GetMiniSchema returns the predicate triples connecting sourceCurie and/or
// targetCurie to the rest of the graph, unmemoized since it is curie-scoped.
func (gi *Interface) GetMiniSchema(ctx context.Context, sourceCurie, targetCurie string) ([]MiniSchemaRow, error) {
	return gi.fetchMiniSchema(ctx, sourceCurie, targetCurie)
}

// GetNode fetches the single node of nodeType with the given curie.
func (gi *Interface) GetNode(ctx context.Context, nodeType, curie string) (Node, error) {
	cypher := fmt.Sprintf(
		"MATCH (c:`%s` {id: '%s'}) RETURN c, labels(c) AS c_labels",
		escapeLabel(nodeType), escapeCypherString(curie),
	)
	resp, err := gi.driver.Run(ctx, cypher)
	if err != nil {
		return nil, err
	}
	rows := resp.FirstRows()
	if len(rows) == 0 {
		return nil, svcerrors.NotFound(curie)
	}
	return nodeFromRow(rows[0])
}

// HopRecord is one matched (source, edge, target) triple from GetSingleHops.
type HopRecord struct {
	Source Node
	Edge   Edge
	Target Node
}

// MarshalJSON renders a hop as the three-element list [source, edge, target].
func (h HopRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{h.Source, h.Edge, h.Target})
}

// GetSingleHops returns every one-hop path between a node of sourceType
// (matching curie) and nodes of targetType, in both directions
// unconditionally: PLATER does not attempt to infer predicate directionality
// from the schema, so both the forward and reverse traversal are queried and
// concatenated.
func (gi *Interface) GetSingleHops(ctx context.Context, sourceType, targetType, curie string) ([]HopRecord, error) {
	forward, err := gi.runHopQuery(ctx, sourceType, targetType, curie, true)
	if err != nil {
		return nil, err
	}
	backward, err := gi.runHopQuery(ctx, sourceType, targetType, curie, false)
	if err != nil {
		return nil, err
	}
	return append(forward, backward...), nil
}

func (gi *Interface) runHopQuery(ctx context.Context, sourceType, targetType, curie string, forward bool) ([]HopRecord, error) {
	var cypher string
	if forward {
		cypher = fmt.Sprintf(
			"MATCH (c:`%s` {id: '%s'})-[e]->(b:`%s`) RETURN DISTINCT c, labels(c) AS c_labels, e, type(e) AS e_type, b, labels(b) AS b_labels",
			escapeLabel(sourceType), escapeCypherString(curie), escapeLabel(targetType),
		)
	} else {
		cypher = fmt.Sprintf(
			"MATCH (b:`%s`)-[e]->(c:`%s` {id: '%s'}) RETURN DISTINCT c, labels(c) AS c_labels, e, type(e) AS e_type, b, labels(b) AS b_labels",
			escapeLabel(targetType), escapeLabel(sourceType), escapeCypherString(curie),
		)
	}

	resp, err := gi.driver.Run(ctx, cypher)
	if err != nil {
		return nil, err
	}

	rows := resp.FirstRows()
	records := make([]HopRecord, 0, len(rows))
	for _, row := range rows {
		source, err := nodeFromRow(row)
		if err != nil {
			continue
		}
		target, err := nodeFromColumns(row, "b", "b_labels")
		if err != nil {
			continue
		}
		edge, err := edgeFromRow(row)
		if err != nil {
			continue
		}
		records = append(records, HopRecord{Source: source, Edge: edge, Target: target})
	}
	return records, nil
}

// GetExamples returns up to limit sample nodes (or one-hop paths, when
// targetType is non-empty) used to build OpenAPI response examples.
func (gi *Interface) GetExamples(ctx context.Context, sourceType, targetType string, limit int) ([]map[string]interface{}, error) {
	if limit <= 0 {
		limit = 1
	}
	var cypher string
	if targetType == "" {
		cypher = fmt.Sprintf("MATCH (c:`%s`) RETURN c, labels(c) AS c_labels LIMIT %d", escapeLabel(sourceType), limit)
	} else {
		cypher = fmt.Sprintf(
			"MATCH (c:`%s`)-[e]->(b:`%s`) RETURN c, labels(c) AS c_labels, e, type(e) AS e_type, b, labels(b) AS b_labels LIMIT %d",
			escapeLabel(sourceType), escapeLabel(targetType), limit,
		)
	}
	resp, err := gi.driver.Run(ctx, cypher)
	if err != nil {
		return nil, err
	}
	rows := resp.FirstRows()
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	return out, nil
}

// RunCypher executes an arbitrary cypher statement and returns the raw
// transaction response, used by the unauthenticated /cypher endpoint.
func (gi *Interface) RunCypher(ctx context.Context, cypher string) (*TransactionResponse, error) {
	return gi.driver.Run(ctx, cypher)
}

// summaryQuery mirrors graphSchemaQuery but additionally counts edges per
// (full source label set, full target label set, predicate) triple, giving
// the richer graph/summary endpoint its counts.
const summaryQuery = `
MATCH (a)-[x]->(b)
RETURN labels(a) AS source_labels, type(x) AS predicate, labels(b) AS target_labels, count(*) AS edge_count
`

// summaryNodeCountQuery counts nodes per full label set, giving each summary
// entry its nodes_count sibling.
const summaryNodeCountQuery = `
MATCH (a) RETURN labels(a) AS source_labels, count(*) AS node_count
`

// SummaryEntry is one source label set's entry in a graph summary: the total
// number of nodes carrying that label set, plus outgoing edges grouped by
// target label set and predicate.
type SummaryEntry struct {
	NodesCount int
	Targets    map[string]map[string]int
}

// MarshalJSON flattens NodesCount alongside the target label set keys into a
// single object, matching the persisted graph_summary.json shape:
// {"nodes_count": N, "<target labels>": {"<predicate>": count, ...}, ...}.
func (e SummaryEntry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(e.Targets)+1)
	flat["nodes_count"] = e.NodesCount
	for target, predicates := range e.Targets {
		flat[target] = predicates
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON: every key but "nodes_count" is treated
// as a target label set.
func (e *SummaryEntry) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	e.Targets = map[string]map[string]int{}
	for key, raw := range flat {
		if key == "nodes_count" {
			if err := json.Unmarshal(raw, &e.NodesCount); err != nil {
				return err
			}
			continue
		}
		var predicates map[string]int
		if err := json.Unmarshal(raw, &predicates); err != nil {
			return err
		}
		e.Targets[key] = predicates
	}
	return nil
}

// Summary is the full-label-set graph summary: source label set (labels
// joined by ':' and sorted) -> SummaryEntry.
type Summary map[string]SummaryEntry

// GetSummary returns the memoized full-label-set summary, computing it once
// on first call.
func (gi *Interface) GetSummary(ctx context.Context) (Summary, error) {
	gi.summaryOnce.Do(func() {
		gi.summary, gi.summaryErr = gi.fetchSummary(ctx)
	})
	return gi.summary, gi.summaryErr
}

// ResetSummary forces the next GetSummary call to recompute.
func (gi *Interface) ResetSummary() {
	gi.summaryOnce = sync.Once{}
	gi.summary = nil
	gi.summaryErr = nil
}

func (gi *Interface) fetchSummary(ctx context.Context) (Summary, error) {
	resp, err := gi.driver.Run(ctx, summaryQuery)
	if err != nil {
		return nil, err
	}

	summary := Summary{}
	entryFor := func(sourceKey string) SummaryEntry {
		entry, ok := summary[sourceKey]
		if !ok {
			entry = SummaryEntry{Targets: map[string]map[string]int{}}
		}
		return entry
	}

	for _, result := range resp.Results {
		for _, rec := range result.Data {
			if len(rec.Row) < 4 {
				continue
			}
			sourceLabels, _ := toStringSlice(rec.Row[0])
			predicate, _ := rec.Row[1].(string)
			targetLabels, _ := toStringSlice(rec.Row[2])
			count := toInt(rec.Row[3])

			sourceKey := joinLabels(sourceLabels)
			targetKey := joinLabels(targetLabels)

			entry := entryFor(sourceKey)
			predicates, ok := entry.Targets[targetKey]
			if !ok {
				predicates = map[string]int{}
				entry.Targets[targetKey] = predicates
			}
			predicates[predicate] += count
			summary[sourceKey] = entry
		}
	}

	nodeResp, err := gi.driver.Run(ctx, summaryNodeCountQuery)
	if err != nil {
		return nil, err
	}
	for _, result := range nodeResp.Results {
		for _, rec := range result.Data {
			if len(rec.Row) < 2 {
				continue
			}
			sourceLabels, _ := toStringSlice(rec.Row[0])
			count := toInt(rec.Row[1])
			sourceKey := joinLabels(sourceLabels)

			entry := entryFor(sourceKey)
			entry.NodesCount += count
			summary[sourceKey] = entry
		}
	}

	return summary, nil
}

func joinLabels(labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	key := ""
	for i, l := range sorted {
		if i > 0 {
			key += ":"
		}
		key += l
	}
	return key
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func escapeLabel(label string) string {
	return strings.ReplaceAll(label, "`", "")
}

// CoverEdge is one relationship reported by RunAPOCCover: an edge whose
// endpoints are both members of the queried node set.
type CoverEdge struct {
	SourceID string
	TargetID string
	Edge     Edge
}

// SupportsAPOC reports whether the backing database exposes the APOC
// procedure library, probed once and memoized for the life of the process.
func (gi *Interface) SupportsAPOC(ctx context.Context) bool {
	gi.apocOnce.Do(func() {
		_, err := gi.driver.Run(ctx, "RETURN apoc.version() AS version")
		gi.apocSupport = err == nil
	})
	return gi.apocSupport
}

// RunAPOCCover returns every relationship connecting two nodes that both
// appear in ids, via the APOC apoc.algo.cover procedure. Callers must check
// SupportsAPOC first; calling this against a database without APOC returns
// the underlying query error.
func (gi *Interface) RunAPOCCover(ctx context.Context, ids []string) ([]CoverEdge, error) {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "'" + escapeCypherString(id) + "'"
	}
	idList := "[" + strings.Join(quoted, ", ") + "]"

	cypher := fmt.Sprintf(
		"MATCH (n) WHERE n.id IN %s WITH collect(n) AS nodes "+
			"CALL apoc.algo.cover(nodes) YIELD rel "+
			"RETURN startNode(rel).id AS source_id, endNode(rel).id AS target_id, "+
			"rel{.*, type: type(rel), id: rel.id} AS edge",
		idList,
	)

	resp, err := gi.driver.Run(ctx, cypher)
	if err != nil {
		return nil, err
	}

	rows := resp.FirstRows()
	out := make([]CoverEdge, 0, len(rows))
	for _, row := range rows {
		sourceID, _ := row["source_id"].(string)
		targetID, _ := row["target_id"].(string)
		edgeProps, _ := row["edge"].(map[string]interface{})
		edge := Edge{}
		for k, v := range edgeProps {
			edge[k] = v
		}
		out = append(out, CoverEdge{SourceID: sourceID, TargetID: targetID, Edge: edge})
	}
	return out, nil
}
