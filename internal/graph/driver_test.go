package graph

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func newTestDriver(t *testing.T, handler http.HandlerFunc) (*Driver, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to split test server address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("failed to parse test server port: %v", err)
	}

	return NewDriver(host, port, "neo4j", "password", 0, nil), server
}

func TestDriver_Run_ParsesRowsIntoColumns(t *testing.T) {
	driver, server := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != transactionCommitPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Basic ") {
			t.Errorf("expected Basic auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TransactionResponse{
			Results: []StatementResult{{
				Columns: []string{"c", "c_labels"},
				Data:    []RowResult{{Row: []interface{}{map[string]interface{}{"id": "HGNC:1"}, []interface{}{"gene"}}}},
			}},
		})
	})
	defer server.Close()

	resp, err := driver.Run(context.Background(), "MATCH (c:`gene` {id: 'HGNC:1'}) RETURN c, labels(c) AS c_labels")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := resp.FirstRows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["c_labels"] == nil {
		t.Error("expected c_labels to be present in zipped row")
	}
}

func TestDriver_Run_SurfacesStatementErrors(t *testing.T) {
	driver, server := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TransactionResponse{
			Errors: []ResultError{{Code: "Neo.ClientError.Statement.SyntaxError", Message: "bad cypher"}},
		})
	})
	defer server.Close()

	if _, err := driver.Run(context.Background(), "NOT CYPHER"); err == nil {
		t.Fatal("expected an error when the response contains statement errors")
	}
}

func TestDriver_Run_SurfacesServerErrorStatus(t *testing.T) {
	driver, server := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	defer server.Close()

	if _, err := driver.Run(context.Background(), "MATCH (n) RETURN n"); err == nil {
		t.Fatal("expected an error for a 5xx response")
	}
}

func TestDriver_Ping_UsesLightweightStatement(t *testing.T) {
	var seenStatement string
	driver, server := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		var req transactionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Statements) > 0 {
			seenStatement = req.Statements[0].Statement
		}
		_ = json.NewEncoder(w).Encode(TransactionResponse{Results: []StatementResult{{}}})
	})
	defer server.Close()

	if err := driver.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(seenStatement, "LIMIT 1") {
		t.Errorf("expected a bounded ping statement, got %q", seenStatement)
	}
}

func TestDriver_Bootstrap_CreatesIndexWhenMissing(t *testing.T) {
	var createdCypher string
	driver, server := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == labelsPath {
			w.WriteHeader(http.StatusOK)
			return
		}

		var req transactionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		stmt := req.Statements[0].Statement
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(stmt, "db.indexes()"):
			_ = json.NewEncoder(w).Encode(TransactionResponse{
				Results: []StatementResult{{Columns: []string{"name", "type"}}},
			})
		case strings.Contains(stmt, "db.relationshipTypes()"):
			_ = json.NewEncoder(w).Encode(TransactionResponse{
				Results: []StatementResult{{
					Columns: []string{"relationshipType"},
					Data: []RowResult{
						{Row: []interface{}{"affects"}},
						{Row: []interface{}{"related_to"}},
					},
				}},
			})
		default:
			createdCypher = stmt
			_ = json.NewEncoder(w).Encode(TransactionResponse{Results: []StatementResult{{}}})
		}
	})
	defer server.Close()

	if err := driver.Bootstrap(context.Background(), "edge_id_index"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(createdCypher, "createRelationshipIndex('edge_id_index'") {
		t.Errorf("expected an index creation call, got %q", createdCypher)
	}
	if !strings.Contains(createdCypher, "'affects'") || !strings.Contains(createdCypher, "'related_to'") {
		t.Errorf("expected every relationship type in the creation call, got %q", createdCypher)
	}
	if !strings.Contains(createdCypher, "analyzer: 'whitespace'") || !strings.Contains(createdCypher, "eventually_consistent: 'true'") {
		t.Errorf("expected whitespace analyzer and eventually_consistent options, got %q", createdCypher)
	}
}

func TestDriver_Bootstrap_SkipsCreationWhenIndexAlreadyExists(t *testing.T) {
	called := false
	driver, server := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == labelsPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		var req transactionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		stmt := req.Statements[0].Statement
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(stmt, "db.indexes()") {
			_ = json.NewEncoder(w).Encode(TransactionResponse{
				Results: []StatementResult{{
					Columns: []string{"name", "type"},
					Data:    []RowResult{{Row: []interface{}{"edge_id_index", "relationship_fulltext"}}},
				}},
			})
			return
		}
		called = true
		_ = json.NewEncoder(w).Encode(TransactionResponse{Results: []StatementResult{{}}})
	})
	defer server.Close()

	if err := driver.Bootstrap(context.Background(), "edge_id_index"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("expected no further statements once a matching index was found")
	}
}

func TestDriver_Bootstrap_FailsWhenExistingIndexHasWrongType(t *testing.T) {
	driver, server := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == labelsPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TransactionResponse{
			Results: []StatementResult{{
				Columns: []string{"name", "type"},
				Data:    []RowResult{{Row: []interface{}{"edge_id_index", "btree"}}},
			}},
		})
	})
	defer server.Close()

	if err := driver.Bootstrap(context.Background(), "edge_id_index"); err == nil {
		t.Fatal("expected an error for an existing non-fulltext index under the same name")
	}
}

func TestDriver_Bootstrap_FailsFastWhenLabelsEndpointUnreachable(t *testing.T) {
	driver, server := newTestDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == labelsPath {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(TransactionResponse{Results: []StatementResult{{}}})
	})
	defer server.Close()

	if err := driver.Bootstrap(context.Background(), "edge_id_index"); err == nil {
		t.Fatal("expected an error when the labels endpoint returns a non-2xx status")
	}
}
