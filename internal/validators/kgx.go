// Package validators implements offline data-quality checks over the loaded
// graph: disconnected ("island") nodes and every edge are paged through and
// checked against the minimal property conventions the knowledge graph
// exchange format expects (a node needs an id, at least one category and a
// non-empty name; an edge needs an id, a predicate, and resolvable endpoints).
package validators

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kgraph-io/plater-automat/internal/graph"
	"github.com/kgraph-io/plater-automat/internal/logging"
)

const pageSize = 1000

// Report is the validator's output: every encountered error grouped by the
// offending node's category set or edge's predicate.
type Report struct {
	NodeErrors map[string][]string `json:"node_errors"`
	EdgeErrors map[string][]string `json:"edge_errors"`
}

// OK reports whether the validated graph raised no errors.
func (r *Report) OK() bool {
	return len(r.NodeErrors) == 0 && len(r.EdgeErrors) == 0
}

// KGXValidator pages through every disconnected node and every edge in the
// graph, checking each against minimal structural conventions.
type KGXValidator struct {
	graphInterface *graph.Interface
	logger         *logging.Logger
}

// NewKGXValidator constructs a KGXValidator bound to gi.
func NewKGXValidator(gi *graph.Interface, logger *logging.Logger) *KGXValidator {
	return &KGXValidator{graphInterface: gi, logger: logger}
}

// Validate pages through every island node and every edge in the graph,
// returning a Report of every structural violation found. When reportDir is
// non-empty, the report is additionally written as node_errors.json and
// edge_errors.json under that directory.
func (v *KGXValidator) Validate(ctx context.Context, reportDir string) (*Report, error) {
	islandCount, pathCount, err := v.counts(ctx)
	if err != nil {
		return nil, err
	}
	if v.logger != nil {
		v.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"island_nodes": islandCount,
			"paths":        pathCount,
		}).Info("starting graph validation")
	}

	report := &Report{NodeErrors: map[string][]string{}, EdgeErrors: map[string][]string{}}

	for start := 0; start < islandCount; start += pageSize {
		nodes, err := v.islandNodesPage(ctx, start, pageSize)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			validateNode(node, report)
		}
	}

	for start := 0; start < pathCount; start += pageSize {
		edges, err := v.pathsPage(ctx, start, pageSize)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			validateEdge(edge, report)
		}
	}

	for k, msgs := range report.NodeErrors {
		report.NodeErrors[k] = dedupe(msgs)
	}
	for k, msgs := range report.EdgeErrors {
		report.EdgeErrors[k] = dedupe(msgs)
	}

	if reportDir != "" {
		if err := writeReportFiles(reportDir, report); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (v *KGXValidator) counts(ctx context.Context) (islandCount, pathCount int, err error) {
	islandResp, err := v.graphInterface.RunCypher(ctx, "MATCH (n) WHERE NOT (n)--() RETURN count(n) AS node_count")
	if err != nil {
		return 0, 0, err
	}
	if rows := islandResp.FirstRows(); len(rows) > 0 {
		islandCount = toInt(rows[0]["node_count"])
	}

	pathResp, err := v.graphInterface.RunCypher(ctx, "MATCH p=()-->() RETURN count(p) AS path_count")
	if err != nil {
		return 0, 0, err
	}
	if rows := pathResp.FirstRows(); len(rows) > 0 {
		pathCount = toInt(rows[0]["path_count"])
	}

	return islandCount, pathCount, nil
}

func (v *KGXValidator) islandNodesPage(ctx context.Context, start, size int) ([]map[string]interface{}, error) {
	cypher := fmt.Sprintf(
		"MATCH (node) WHERE NOT (node)--() RETURN node, labels(node) AS category, ID(node) AS internal_id ORDER BY internal_id SKIP %d LIMIT %d",
		start, size,
	)
	resp, err := v.graphInterface.RunCypher(ctx, cypher)
	if err != nil {
		return nil, err
	}
	return resp.FirstRows(), nil
}

func (v *KGXValidator) pathsPage(ctx context.Context, start, size int) ([]map[string]interface{}, error) {
	cypher := fmt.Sprintf(`
		MATCH (source)-[predicate]->(target)
		RETURN source, predicate, target, TYPE(predicate) AS predicate_type,
			ID(source) AS internal_source_id, ID(predicate) AS internal_predicate_id, ID(target) AS internal_target_id
		ORDER BY internal_predicate_id
		SKIP %d LIMIT %d
	`, start, size)
	resp, err := v.graphInterface.RunCypher(ctx, cypher)
	if err != nil {
		return nil, err
	}
	return resp.FirstRows(), nil
}

func validateNode(row map[string]interface{}, report *Report) {
	node, _ := row["node"].(map[string]interface{})
	categories, _ := toStringSlice(row["category"])
	label := joinOrDefault(categories, "unidentified")

	if node == nil {
		report.NodeErrors[label] = append(report.NodeErrors[label], "node has no property map")
		return
	}
	if _, ok := node["id"]; !ok {
		report.NodeErrors[label] = append(report.NodeErrors[label], "node is missing `id`")
	}
	if len(categories) == 0 {
		report.NodeErrors[label] = append(report.NodeErrors[label], "node has no category labels")
	}
	if name, ok := node["name"].(string); !ok || name == "" {
		report.NodeErrors[label] = append(report.NodeErrors[label], "node is missing a non-empty `name`")
	}
}

func validateEdge(row map[string]interface{}, report *Report) {
	predicateType, _ := row["predicate_type"].(string)
	label := predicateType
	if label == "" {
		label = "unidentified"
	}

	predicate, _ := row["predicate"].(map[string]interface{})
	if predicate == nil {
		report.EdgeErrors[label] = append(report.EdgeErrors[label], "edge has no property map")
		return
	}
	if _, ok := predicate["id"]; !ok {
		report.EdgeErrors[label] = append(report.EdgeErrors[label], "edge is missing `id`")
	}
	if predicateType == "" {
		report.EdgeErrors[label] = append(report.EdgeErrors[label], "edge has no predicate type")
	}
	source, _ := row["source"].(map[string]interface{})
	target, _ := row["target"].(map[string]interface{})
	if source == nil || source["id"] == nil {
		report.EdgeErrors[label] = append(report.EdgeErrors[label], "edge source node is missing `id`")
	}
	if target == nil || target["id"] == nil {
		report.EdgeErrors[label] = append(report.EdgeErrors[label], "edge target node is missing `id`")
	}
}

func writeReportFiles(dir string, report *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(dir, "node_errors.json"), report.NodeErrors); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, "edge_errors.json"), report.EdgeErrors)
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func dedupe(items []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func joinOrDefault(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	out := items[0]
	for _, item := range items[1:] {
		out += "," + item
	}
	return out
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
