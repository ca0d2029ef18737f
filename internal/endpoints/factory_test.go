package endpoints

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/kgraph-io/plater-automat/internal/graph"
	"github.com/kgraph-io/plater-automat/internal/overlay"
)

// newTestFactory wires a Factory against a fake graph database backend that
// answers the schema-discovery query with one gene<->chemical_substance
// edge, plus enough node/hop responses to exercise the synthesized routes.
func newTestFactory(t *testing.T, manifest map[string]interface{}) (*Factory, *mux.Router) {
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

		switch {
		case strings.Contains(statement, "UNWIND las"):
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{
					Columns: []string{"predicate", "la", "lb"},
					Data:    []graph.RowResult{{Row: []interface{}{"affects", "gene", "chemical_substance"}}},
				}},
			})
		case strings.Contains(statement, "MATCH (c:`gene`"):
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{
				Results: []graph.StatementResult{{
					Columns: []string{"c", "c_labels"},
					Data:    []graph.RowResult{{Row: []interface{}{map[string]interface{}{"id": "HGNC:1"}, []interface{}{"gene"}}}},
				}},
			})
		default:
			_ = json.NewEncoder(w).Encode(graph.TransactionResponse{Results: []graph.StatementResult{{}}})
		}
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
	gi := graph.NewInterface(driver, "edge_index")
	ov := overlay.New(gi)

	factory := New(gi, ov, "test-build", manifest, nil)
	router := mux.NewRouter()
	if err := factory.RegisterRoutes(context.Background(), router); err != nil {
		t.Fatalf("unexpected error registering routes: %v", err)
	}
	return factory, router
}

func TestRegisterRoutes_SynthesizesHopAndNodeRoutesFromSchema(t *testing.T) {
	_, router := newTestFactory(t, nil)

	var match mux.RouteMatch
	if !router.Match(httptest.NewRequest(http.MethodGet, "/gene/chemical_substance/HGNC:1", nil), &match) {
		t.Error("expected a synthesized hop route for gene -> chemical_substance")
	}
	if !router.Match(httptest.NewRequest(http.MethodGet, "/gene/HGNC:1", nil), &match) {
		t.Error("expected a synthesized node route for gene")
	}
	if !router.Match(httptest.NewRequest(http.MethodPost, "/cypher", nil), &match) {
		t.Error("expected the fixed /cypher route to be registered")
	}
}

func TestHandleAbout_ReturnsConfiguredManifest(t *testing.T) {
	_, router := newTestFactory(t, map[string]interface{}{"build_tag": "test-build"})

	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["build_tag"] != "test-build" {
		t.Errorf("build_tag = %v, want test-build", body["build_tag"])
	}
}

func TestHandleCypher_RejectsEmptyQuery(t *testing.T) {
	_, router := newTestFactory(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/cypher", strings.NewReader(`{"query":""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an empty query", rec.Code)
	}
}

func TestHandleCypher_RunsValidQuery(t *testing.T) {
	_, router := newTestFactory(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/cypher", strings.NewReader(`{"query":"MATCH (n) RETURN n LIMIT 1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHandleSimpleSpec_FlattensFullSchemaWhenUnfiltered(t *testing.T) {
	_, router := newTestFactory(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/simple_spec", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var rows []simpleSpecRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both schema directions flattened, got %d rows: %+v", len(rows), rows)
	}
}
