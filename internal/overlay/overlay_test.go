package overlay

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/kgraph-io/plater-automat/internal/graph"
	"github.com/kgraph-io/plater-automat/internal/question"
)

// fakeGraphBackend serves just enough of the transactional HTTP protocol for
// SupportsAPOC and RunAPOCCover to exercise the overlay engine end to end.
func fakeGraphBackend(t *testing.T, apocAvailable bool, coverEdges []graph.CoverEdge) *graph.Interface {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Statements []struct {
				Statement string `json:"statement"`
			} `json:"statements"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		statement := ""
		if len(req.Statements) > 0 {
			statement = req.Statements[0].Statement
		}

		if strings.Contains(statement, "apoc.version") {
			if !apocAvailable {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{Columns: []string{"version"}, Data: []graph.RowResult{{Row: []interface{}{"5.0"}}}}},
			})
			return
		}

		if strings.Contains(statement, "apoc.algo.cover") {
			data := make([]graph.RowResult, 0, len(coverEdges))
			for _, e := range coverEdges {
				edgeMap := map[string]interface{}{}
				for k, v := range e.Edge {
					edgeMap[k] = v
				}
				data = append(data, graph.RowResult{Row: []interface{}{e.SourceID, e.TargetID, edgeMap}})
			}
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{Columns: []string{"source_id", "target_id", "edge"}, Data: data}},
			})
			return
		}

		_ = json.NewEncoder(w).Encode(graph.TransactionResponse{Results: []graph.StatementResult{{}}})
	}))
	t.Cleanup(server.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to split test server address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("failed to parse test server port: %v", err)
	}

	driver := graph.NewDriver(host, port, "neo4j", "password", 0, nil)
	return graph.NewInterface(driver, "edge_index")
}

func TestOverlaySupportEdges_ReturnsUnsupportedWithoutAPOC(t *testing.T) {
	gi := fakeGraphBackend(t, false, nil)
	o := New(gi)

	msg := &question.Message{
		Results: []question.Answer{{NodeBindings: []question.NodeBinding{{QgID: "n0", KgID: "HGNC:1"}}}},
	}

	_, err := o.OverlaySupportEdges(context.Background(), msg)
	if err == nil {
		t.Fatal("expected an error when APOC is unsupported")
	}
}

func TestOverlaySupportEdges_AddsSupportBindingsAndKnowledgeGraphEdges(t *testing.T) {
	coverEdges := []graph.CoverEdge{
		{SourceID: "HGNC:1", TargetID: "CHEBI:2", Edge: graph.Edge{"id": "support-edge-1", "type": "related_to"}},
	}
	gi := fakeGraphBackend(t, true, coverEdges)
	o := New(gi)

	msg := &question.Message{
		Results: []question.Answer{{
			NodeBindings: []question.NodeBinding{
				{QgID: "n0", KgID: "HGNC:1"},
				{QgID: "n1", KgID: "CHEBI:2"},
			},
		}},
	}

	result, err := o.OverlaySupportEdges(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Results[0].EdgeBindings) == 0 {
		t.Fatal("expected at least one support edge binding to be added")
	}
	if result.KnowledgeGraph == nil || len(result.KnowledgeGraph.Edges) != 1 {
		t.Fatalf("expected the support edge to be added to the knowledge graph, got %+v", result.KnowledgeGraph)
	}
}

func TestOverlaySupportEdges_DoesNotDuplicateSharedSupportEdgesAcrossAnswers(t *testing.T) {
	coverEdges := []graph.CoverEdge{
		{SourceID: "HGNC:1", TargetID: "CHEBI:2", Edge: graph.Edge{"id": "shared-edge", "type": "related_to"}},
	}
	gi := fakeGraphBackend(t, true, coverEdges)
	o := New(gi)

	answer := question.Answer{NodeBindings: []question.NodeBinding{
		{QgID: "n0", KgID: "HGNC:1"},
		{QgID: "n1", KgID: "CHEBI:2"},
	}}
	msg := &question.Message{Results: []question.Answer{answer, answer}}

	result, err := o.OverlaySupportEdges(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.KnowledgeGraph.Edges) != 1 {
		t.Errorf("expected the shared support edge to be added to the knowledge graph exactly once, got %d", len(result.KnowledgeGraph.Edges))
	}
}
