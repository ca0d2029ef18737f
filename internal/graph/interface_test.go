package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestInterface(t *testing.T, handler http.HandlerFunc) (*Interface, *httptest.Server) {
	t.Helper()
	driver, server := newTestDriver(t, handler)
	return NewInterface(driver, "edge_index"), server
}

func TestGetSchema_IsRecordedSymmetrically(t *testing.T) {
	gi, server := newTestInterface(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TransactionResponse{
			Results: []StatementResult{{
				Columns: []string{"predicate", "la", "lb"},
				Data: []RowResult{
					{Row: []interface{}{"affects", "gene", "chemical_substance"}},
				},
			}},
		})
	})
	defer server.Close()

	schema, err := gi.GetSchema(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := schema["gene"]["chemical_substance"]; len(got) != 1 || got[0] != "affects" {
		t.Errorf("forward direction missing: %v", schema["gene"])
	}
	if got := schema["chemical_substance"]["gene"]; len(got) != 1 || got[0] != "affects" {
		t.Errorf("expected schema to also record the reverse direction, got %v", schema["chemical_substance"])
	}
}

func TestGetSchema_ExcludesCatchAllLabels(t *testing.T) {
	gi, server := newTestInterface(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TransactionResponse{
			Results: []StatementResult{{
				Columns: []string{"predicate", "la", "lb"},
				Data: []RowResult{
					{Row: []interface{}{"affects", "named_thing", "gene"}},
				},
			}},
		})
	})
	defer server.Close()

	schema, err := gi.GetSchema(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schema) != 0 {
		t.Errorf("expected excluded labels to be dropped entirely, got %v", schema)
	}
}

func TestGetSchema_IsMemoizedAfterFirstCall(t *testing.T) {
	calls := 0
	gi, server := newTestInterface(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(TransactionResponse{Results: []StatementResult{{}}})
	})
	defer server.Close()

	ctx := context.Background()
	if _, err := gi.GetSchema(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := gi.GetSchema(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 underlying query, got %d", calls)
	}
}

func TestGetSummary_JoinsMultiLabelSetsSorted(t *testing.T) {
	gi, server := newTestInterface(t, func(w http.ResponseWriter, r *http.Request) {
		var req transactionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		cypher := req.Statements[0].Statement
		if strings.Contains(cypher, "node_count") {
			_ = json.NewEncoder(w).Encode(TransactionResponse{
				Results: []StatementResult{{
					Columns: []string{"source_labels", "node_count"},
					Data: []RowResult{
						{Row: []interface{}{[]interface{}{"gene", "named_thing"}, float64(42)}},
					},
				}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(TransactionResponse{
			Results: []StatementResult{{
				Columns: []string{"source_labels", "predicate", "target_labels", "edge_count"},
				Data: []RowResult{
					{Row: []interface{}{
						[]interface{}{"gene", "named_thing"}, "affects",
						[]interface{}{"chemical_substance"}, float64(5),
					}},
				},
			}},
		})
	})
	defer server.Close()

	summary, err := gi.GetSummary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := summary["gene:named_thing"]
	if count := entry.Targets["chemical_substance"]["affects"]; count != 5 {
		t.Errorf("expected joined+sorted label key with edge count 5, got %v", summary)
	}
	if entry.NodesCount != 42 {
		t.Errorf("expected nodes_count 42 for the same source label set, got %d", entry.NodesCount)
	}
}

func TestSupportsAPOC_FalseWhenProcedureMissing(t *testing.T) {
	gi, server := newTestInterface(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer server.Close()

	if gi.SupportsAPOC(context.Background()) {
		t.Fatal("expected SupportsAPOC to be false when the procedure call errors")
	}
}

func TestRunAPOCCover_ParsesCoverEdges(t *testing.T) {
	gi, server := newTestInterface(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TransactionResponse{
			Results: []StatementResult{{
				Columns: []string{"source_id", "target_id", "edge"},
				Data: []RowResult{
					{Row: []interface{}{"HGNC:1", "CHEBI:2", map[string]interface{}{"type": "affects", "id": "e1"}}},
				},
			}},
		})
	})
	defer server.Close()

	edges, err := gi.RunAPOCCover(context.Background(), []string{"HGNC:1", "CHEBI:2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(edges) != 1 || edges[0].SourceID != "HGNC:1" || edges[0].TargetID != "CHEBI:2" {
		t.Errorf("unexpected cover edges: %+v", edges)
	}
}
