package question

import (
	"context"
	"fmt"
	"sync"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
	"github.com/kgraph-io/plater-automat/internal/graph"
)

// edgeFetchChunkSize is the maximum number of edge ids batched into a single
// fulltext relationship index lookup during the yank phase.
const edgeFetchChunkSize = 1024

// Question wraps a validated TrAPI message and drives it through
// compile -> answer -> yank.
type Question struct {
	message Message
}

// New validates msg and wraps it as a Question.
func New(msg Message) (*Question, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	return &Question{message: msg}, nil
}

func validate(msg Message) error {
	if msg.QueryGraph.Nodes == nil {
		return svcerrors.InvalidQuery("query graph has no nodes")
	}
	if msg.QueryGraph.Edges == nil {
		return svcerrors.InvalidQuery("query graph has no edges")
	}

	nodeIDs := map[string]bool{}
	for _, n := range msg.QueryGraph.Nodes {
		id, _ := n["id"].(string)
		if id == "" {
			return svcerrors.InvalidQuery("every query graph node requires an `id`")
		}
		if _, ok := n["type"]; !ok {
			return svcerrors.InvalidQuery(fmt.Sprintf("node %q is missing `type`", id))
		}
		nodeIDs[id] = true
	}

	for _, e := range msg.QueryGraph.Edges {
		id, _ := e["id"].(string)
		if id == "" {
			return svcerrors.InvalidQuery("every query graph edge requires an `id`")
		}
		source, _ := e["source_id"].(string)
		target, _ := e["target_id"].(string)
		if source == "" {
			return svcerrors.InvalidQuery(fmt.Sprintf("edge %q is missing `source_id`", id))
		}
		if target == "" {
			return svcerrors.InvalidQuery(fmt.Sprintf("edge %q is missing `target_id`", id))
		}
		if !nodeIDs[source] {
			return svcerrors.InvalidQuery(fmt.Sprintf("edge %q references unknown node %q", id, source))
		}
		if !nodeIDs[target] {
			return svcerrors.InvalidQuery(fmt.Sprintf("edge %q references unknown node %q", id, target))
		}
	}

	return nil
}

// CompileCypher compiles the question's query graph into the answer-map
// cypher query.
func (q *Question) CompileCypher() (string, error) {
	return CypherQueryAnswerMap(q.message.QueryGraph, CompileOptions{MaxConnectivity: -1})
}

// Answer executes the compiled query against gi, populates answer bindings,
// and (unless yank is false) fetches full node/edge properties into the
// knowledge graph. It returns the completed message.
func (q *Question) Answer(ctx context.Context, gi *graph.Interface, yank bool) (*Message, error) {
	cypher, err := q.CompileCypher()
	if err != nil {
		return nil, svcerrors.InvalidQuery(err.Error())
	}

	resp, err := gi.RunCypher(ctx, cypher)
	if err != nil {
		return nil, err
	}

	answers := bindingsFromResponse(resp)
	q.message.Results = answers

	if yank {
		kg, err := q.yank(ctx, gi, answers)
		if err != nil {
			return nil, err
		}
		q.message.KnowledgeGraph = kg
	}

	return &q.message, nil
}

func bindingsFromResponse(resp *graph.TransactionResponse) []Answer {
	var answers []Answer
	for _, result := range resp.Results {
		for _, rec := range result.Data {
			row := zipColumns(result.Columns, rec.Row)

			var answer Answer
			if rawNodes, ok := row["nodes"].([]interface{}); ok {
				for _, rn := range rawNodes {
					if m, ok := rn.(map[string]interface{}); ok {
						answer.NodeBindings = append(answer.NodeBindings, NodeBinding{
							KgID: stringField(m, "kg_id"),
							QgID: stringField(m, "qg_id"),
						})
					}
				}
			}
			if rawEdges, ok := row["edges"].([]interface{}); ok {
				for _, re := range rawEdges {
					if m, ok := re.(map[string]interface{}); ok {
						answer.EdgeBindings = append(answer.EdgeBindings, EdgeBinding{
							KgID: stringField(m, "kg_id"),
							QgID: stringField(m, "qg_id"),
						})
					}
				}
			}
			answers = append(answers, answer)
		}
	}
	return answers
}

func zipColumns(columns []string, row []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		if i < len(row) {
			out[col] = row[i]
		}
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// yank collects the distinct node and edge ids bound across every answer and
// fetches their full properties from the graph.
func (q *Question) yank(ctx context.Context, gi *graph.Interface, answers []Answer) (*KnowledgeGraph, error) {
	nodeIDSet := map[string]bool{}
	edgeIDSet := map[string]bool{}
	for _, a := range answers {
		for _, nb := range a.NodeBindings {
			nodeIDSet[nb.KgID] = true
		}
		for _, eb := range a.EdgeBindings {
			edgeIDSet[eb.KgID] = true
		}
	}

	nodeIDs := make([]string, 0, len(nodeIDSet))
	for id := range nodeIDSet {
		nodeIDs = append(nodeIDs, id)
	}
	edgeIDs := make([]string, 0, len(edgeIDSet))
	for id := range edgeIDSet {
		edgeIDs = append(edgeIDs, id)
	}

	return GetProperties(ctx, gi, nodeIDs, edgeIDs)
}

// GetProperties fetches full node and edge property objects for the given
// knowledge-graph ids.
func GetProperties(ctx context.Context, gi *graph.Interface, nodeIDs, edgeIDs []string) (*KnowledgeGraph, error) {
	nodes, err := getNodeProperties(ctx, gi, nodeIDs)
	if err != nil {
		return nil, err
	}
	edges, err := GetEdgeProperties(ctx, gi, edgeIDs)
	if err != nil {
		return nil, err
	}
	return &KnowledgeGraph{Nodes: nodes, Edges: edges}, nil
}

func getNodeProperties(ctx context.Context, gi *graph.Interface, nodeIDs []string) ([]map[string]interface{}, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	cypher := buildNodeFetchCypher(nodeIDs)
	resp, err := gi.RunCypher(ctx, cypher)
	if err != nil {
		return nil, err
	}

	rows := resp.FirstRows()
	if len(rows) == 0 {
		return nil, nil
	}
	rawNodes, _ := rows[0]["nodes"].([]interface{})
	nodes := make([]map[string]interface{}, 0, len(rawNodes))
	for _, rn := range rawNodes {
		entry, ok := rn.(map[string]interface{})
		if !ok {
			continue
		}
		node, _ := entry["node"].(map[string]interface{})
		if node == nil {
			continue
		}
		merged := cloneMap(node)
		if labels, ok := toStringSlice(entry["type"]); ok {
			merged["type"] = labels
		}
		nodes = append(nodes, merged)
	}
	return nodes, nil
}

func buildNodeFetchCypher(nodeIDs []string) string {
	quoted := make([]string, len(nodeIDs))
	for i, id := range nodeIDs {
		quoted[i] = "'" + escapeCypherLiteral(id) + "'"
	}
	idList := "[" + joinComma(quoted) + "]"
	return fmt.Sprintf(
		"MATCH (node) WHERE node.id IN %s RETURN collect({node: node, type: labels(node)}) AS nodes",
		idList,
	)
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

// GetEdgeProperties fetches full edge property objects for the given
// knowledge-graph ids, chunking the id list into batches of
// edgeFetchChunkSize and fetching every chunk concurrently via the
// configured fulltext relationship index.
func GetEdgeProperties(ctx context.Context, gi *graph.Interface, edgeIDs []string) ([]map[string]interface{}, error) {
	if len(edgeIDs) == 0 {
		return nil, nil
	}

	var chunks [][]string
	for start := 0; start < len(edgeIDs); start += edgeFetchChunkSize {
		end := start + edgeFetchChunkSize
		if end > len(edgeIDs) {
			end = len(edgeIDs)
		}
		chunks = append(chunks, edgeIDs[start:end])
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		edges    []map[string]interface{}
		firstErr error
	)

	for _, chunk := range chunks {
		wg.Add(1)
		go func(ids []string) {
			defer wg.Done()
			cypher := buildEdgeFetchCypher(gi.EdgeIndexName(), ids)
			resp, err := gi.RunCypher(ctx, cypher)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			rows := resp.FirstRows()
			if len(rows) == 0 {
				return
			}
			rawEdges, _ := rows[0]["edges"].([]interface{})
			for _, re := range rawEdges {
				if m, ok := re.(map[string]interface{}); ok {
					edges = append(edges, m)
				}
			}
		}(chunk)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return edges, nil
}

func buildEdgeFetchCypher(indexName string, ids []string) string {
	batch := joinSpace(ids)
	propString := "source_id: startNode(e).id, target_id: endNode(e).id, type: type(e), .*"
	return fmt.Sprintf(
		"CALL db.index.fulltext.queryRelationships('%s', '%s') YIELD relationship WITH relationship AS e RETURN collect(e{%s}) AS edges",
		indexName, escapeCypherLiteral(batch), propString,
	)
}

func escapeCypherLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\\', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func joinComma(items []string) string {
	return joinSep(items, ", ")
}

func joinSpace(items []string) string {
	return joinSep(items, " ")
}

func joinSep(items []string, sep string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += sep
		}
		out += item
	}
	return out
}
