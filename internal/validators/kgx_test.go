package validators

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kgraph-io/plater-automat/internal/graph"
)

func newTestGraphInterface(t *testing.T, handler http.HandlerFunc) *graph.Interface {
	t.Helper()
	server := httptest.NewServer(handler)
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

func TestKGXValidator_Validate_FlagsIslandNodeMissingID(t *testing.T) {
	gi := newTestGraphInterface(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Statements []struct {
				Statement string `json:"statement"`
			} `json:"statements"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		statement := req.Statements[0].Statement

		switch {
		case strings.Contains(statement, "count(n)"):
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{Columns: []string{"node_count"}, Data: []graph.RowResult{{Row: []interface{}{float64(1)}}}}},
			})
		case strings.Contains(statement, "count(p)"):
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{Columns: []string{"path_count"}, Data: []graph.RowResult{{Row: []interface{}{float64(0)}}}}},
			})
		case strings.Contains(statement, "NOT (node)--()"):
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{
					Columns: []string{"node", "category", "internal_id"},
					Data: []graph.RowResult{{Row: []interface{}{
						map[string]interface{}{"name": "orphan"}, // missing id
						[]interface{}{"gene"},
						float64(1),
					}}},
				}},
			})
		default:
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{Results: []graph.StatementResult{{}}})
		}
	})

	v := NewKGXValidator(gi, nil)
	report, err := v.Validate(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OK() {
		t.Fatal("expected a node validation error for a node missing `id`")
	}
	if msgs := report.NodeErrors["gene"]; len(msgs) == 0 {
		t.Errorf("expected node errors under the `gene` category, got %v", report.NodeErrors)
	}
}

func TestKGXValidator_Validate_FlagsEdgeMissingEndpointID(t *testing.T) {
	gi := newTestGraphInterface(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Statements []struct {
				Statement string `json:"statement"`
			} `json:"statements"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		statement := req.Statements[0].Statement

		switch {
		case strings.Contains(statement, "count(n)"):
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{Columns: []string{"node_count"}, Data: []graph.RowResult{{Row: []interface{}{float64(0)}}}}},
			})
		case strings.Contains(statement, "count(p)"):
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{Columns: []string{"path_count"}, Data: []graph.RowResult{{Row: []interface{}{float64(1)}}}}},
			})
		case strings.Contains(statement, "source"):
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{
					Columns: []string{"source", "predicate", "target", "predicate_type", "internal_source_id", "internal_predicate_id", "internal_target_id"},
					Data: []graph.RowResult{{Row: []interface{}{
						map[string]interface{}{"id": "HGNC:1"},
						map[string]interface{}{"id": "e1"},
						map[string]interface{}{}, // target missing id
						"affects",
						float64(1), float64(2), float64(3),
					}}},
				}},
			})
		default:
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{Results: []graph.StatementResult{{}}})
		}
	})

	v := NewKGXValidator(gi, nil)
	report, err := v.Validate(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OK() {
		t.Fatal("expected an edge validation error for a missing target id")
	}
	if msgs := report.EdgeErrors["affects"]; len(msgs) == 0 {
		t.Errorf("expected edge errors under the `affects` predicate, got %v", report.EdgeErrors)
	}
}

func TestKGXValidator_Validate_WritesReportFilesWhenDirGiven(t *testing.T) {
	gi := newTestGraphInterface(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
			Results: []graph.StatementResult{{Columns: []string{"node_count"}, Data: []graph.RowResult{{Row: []interface{}{float64(0)}}}}},
		})
	})

	dir := t.TempDir()
	v := NewKGXValidator(gi, nil)
	if _, err := v.Validate(context.Background(), dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"node_errors.json", "edge_errors.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be written: %v", name, err)
		}
	}
}
