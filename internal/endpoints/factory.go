// Package endpoints implements the Endpoint Factory: it reads the live graph
// schema and synthesizes hop/node routes on top of the fixed PLATER routes,
// dispatching each by a tagged EndpointKind the way the teacher's gateway
// dispatches proxy routes by service name.
package endpoints

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
	"github.com/kgraph-io/plater-automat/internal/graph"
	"github.com/kgraph-io/plater-automat/internal/httputil"
	"github.com/kgraph-io/plater-automat/internal/logging"
	"github.com/kgraph-io/plater-automat/internal/overlay"
	"github.com/kgraph-io/plater-automat/internal/question"
)

// EndpointKind tags each synthesized or fixed route for logging and for the
// OpenAPI assembly pass.
type EndpointKind string

const (
	KindHop        EndpointKind = "hop"
	KindNode       EndpointKind = "node"
	KindCypher     EndpointKind = "cypher"
	KindOpenAPI    EndpointKind = "open_api"
	KindSchema     EndpointKind = "graph_schema"
	KindSwaggerUI  EndpointKind = "swagger_ui"
	KindTrAPI      EndpointKind = "reasonerapi"
	KindSimple     EndpointKind = "simple"
	KindSummary    EndpointKind = "graph_summary"
	KindOverlay    EndpointKind = "overlay"
	KindAbout      EndpointKind = "about"
	KindPredicates EndpointKind = "predicates"
	KindQuery      EndpointKind = "query"
)

// Factory builds and registers PLATER's HTTP surface from a live graph
// schema plus a fixed set of non-schema-dependent routes.
type Factory struct {
	graphInterface *graph.Interface
	overlay        *overlay.Overlay
	buildTag       string
	aboutManifest  map[string]interface{}
	logger         *logging.Logger
}

// New constructs a Factory. aboutManifest is the document served verbatim by
// /about.
func New(gi *graph.Interface, ov *overlay.Overlay, buildTag string, aboutManifest map[string]interface{}, logger *logging.Logger) *Factory {
	return &Factory{
		graphInterface: gi,
		overlay:        ov,
		buildTag:       buildTag,
		aboutManifest:  aboutManifest,
		logger:         logger,
	}
}

// RegisterRoutes reads the graph schema and wires every hop/node route plus
// the fixed routes onto router.
func (f *Factory) RegisterRoutes(ctx context.Context, router *mux.Router) error {
	schema, err := f.graphInterface.GetSchema(ctx)
	if err != nil {
		return err
	}

	nodeTypes := map[string]bool{}
	for sourceType, targets := range schema {
		nodeTypes[sourceType] = true
		for targetType := range targets {
			nodeTypes[targetType] = true
			f.registerHopRoute(router, sourceType, targetType)
		}
	}
	for nodeType := range nodeTypes {
		f.registerNodeRoute(router, nodeType)
	}

	router.HandleFunc("/cypher", f.handleCypher).Methods(http.MethodPost)
	router.HandleFunc("/graph/schema", f.handleSchema).Methods(http.MethodGet)
	router.HandleFunc("/predicates", f.handleSchema).Methods(http.MethodGet)
	router.HandleFunc("/graph/summary", f.handleSummary).Methods(http.MethodGet)
	router.HandleFunc("/simple_spec", f.handleSimpleSpec).Methods(http.MethodGet)
	router.HandleFunc("/reasonerapi", f.handleTrAPIQuery).Methods(http.MethodPost)
	router.HandleFunc("/query", f.handleTrAPIQuery).Methods(http.MethodPost)
	router.HandleFunc("/reasonerapi", f.handleTrAPITemplates).Methods(http.MethodGet)
	router.HandleFunc("/overlay", f.handleOverlay).Methods(http.MethodPost)
	router.HandleFunc("/about", f.handleAbout).Methods(http.MethodGet)
	router.HandleFunc("/apidocs", f.handleSwaggerUI).Methods(http.MethodGet)
	router.HandleFunc("/openapi.json", f.handleOpenAPI).Methods(http.MethodGet)

	return nil
}

func (f *Factory) registerHopRoute(router *mux.Router, sourceType, targetType string) {
	route := "/" + sourceType + "/" + targetType + "/{curie}"
	router.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		curie := mux.Vars(r)["curie"]
		start := time.Now()
		hops, err := f.graphInterface.GetSingleHops(r.Context(), sourceType, targetType, curie)
		f.logResult(r, KindHop, route, start, err)
		if err != nil {
			httputil.WriteErrorResponse(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, hops)
	}).Methods(http.MethodGet)
}

func (f *Factory) registerNodeRoute(router *mux.Router, nodeType string) {
	route := "/" + nodeType + "/{curie}"
	router.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		curie := mux.Vars(r)["curie"]
		start := time.Now()
		node, err := f.graphInterface.GetNode(r.Context(), nodeType, curie)
		f.logResult(r, KindNode, route, start, err)
		if err != nil {
			httputil.WriteErrorResponse(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, node)
	}).Methods(http.MethodGet)
}

type cypherRequest struct {
	Query string `json:"query"`
}

func (f *Factory) handleCypher(w http.ResponseWriter, r *http.Request) {
	var req cypherRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteErrorResponse(w, r, svcerrors.InvalidQuery("malformed request body"))
		return
	}
	if req.Query == "" {
		httputil.WriteErrorResponse(w, r, svcerrors.InvalidQuery("`query` is required"))
		return
	}

	start := time.Now()
	resp, err := f.graphInterface.RunCypher(r.Context(), req.Query)
	f.logResult(r, KindCypher, "/cypher", start, err)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (f *Factory) handleSchema(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	schema, err := f.graphInterface.GetSchema(r.Context())
	f.logResult(r, KindSchema, r.URL.Path, start, err)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schema)
}

func (f *Factory) handleSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	summary, err := f.graphInterface.GetSummary(r.Context())
	f.logResult(r, KindSummary, "/graph/summary", start, err)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

type simpleSpecRow struct {
	SourceType string `json:"source_type"`
	TargetType string `json:"target_type"`
	EdgeType   string `json:"edge_type"`
}

func (f *Factory) handleSimpleSpec(w http.ResponseWriter, r *http.Request) {
	source := httputil.QueryString(r, "source", "")
	target := httputil.QueryString(r, "target", "")
	start := time.Now()

	var rows []simpleSpecRow
	var err error
	if source == "" && target == "" {
		rows, err = f.flattenSchema(r.Context())
	} else {
		rows, err = f.flattenMiniSchema(r.Context(), source, target)
	}
	f.logResult(r, KindSimple, "/simple_spec", start, err)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (f *Factory) flattenSchema(ctx context.Context) ([]simpleSpecRow, error) {
	schema, err := f.graphInterface.GetSchema(ctx)
	if err != nil {
		return nil, err
	}
	var rows []simpleSpecRow
	for sourceType, targets := range schema {
		for targetType, predicates := range targets {
			for _, predicate := range predicates {
				rows = append(rows, simpleSpecRow{SourceType: sourceType, TargetType: targetType, EdgeType: predicate})
			}
		}
	}
	sortSimpleSpecRows(rows)
	return rows, nil
}

func (f *Factory) flattenMiniSchema(ctx context.Context, source, target string) ([]simpleSpecRow, error) {
	miniRows, err := f.graphInterface.GetMiniSchema(ctx, source, target)
	if err != nil {
		return nil, err
	}
	seen := map[simpleSpecRow]bool{}
	var rows []simpleSpecRow
	for _, m := range miniRows {
		row := simpleSpecRow{SourceType: m.SourceLabel, TargetType: m.TargetLabel, EdgeType: m.Predicate}
		if !seen[row] {
			seen[row] = true
			rows = append(rows, row)
		}
	}
	sortSimpleSpecRows(rows)
	return rows, nil
}

func sortSimpleSpecRows(rows []simpleSpecRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SourceType != rows[j].SourceType {
			return rows[i].SourceType < rows[j].SourceType
		}
		if rows[i].TargetType != rows[j].TargetType {
			return rows[i].TargetType < rows[j].TargetType
		}
		return rows[i].EdgeType < rows[j].EdgeType
	})
}

func (f *Factory) handleTrAPIQuery(w http.ResponseWriter, r *http.Request) {
	var msg question.Message
	if err := httputil.DecodeJSON(r, &msg); err != nil {
		httputil.WriteErrorResponse(w, r, svcerrors.InvalidQuery("malformed query graph document"))
		return
	}

	q, err := question.New(msg)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}

	yank := httputil.QueryBool(r, "yank", true)
	start := time.Now()
	result, err := q.Answer(r.Context(), f.graphInterface, yank)
	f.logResult(r, KindQuery, r.URL.Path, start, err)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (f *Factory) handleTrAPITemplates(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	schema, err := f.graphInterface.GetSchema(r.Context())
	f.logResult(r, KindTrAPI, "/reasonerapi", start, err)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, question.TransformSchemaToQuestionTemplates(schema))
}

func (f *Factory) handleOverlay(w http.ResponseWriter, r *http.Request) {
	var msg question.Message
	if err := httputil.DecodeJSON(r, &msg); err != nil {
		httputil.WriteErrorResponse(w, r, svcerrors.InvalidQuery("malformed answer document"))
		return
	}

	start := time.Now()
	result, err := f.overlay.OverlaySupportEdges(r.Context(), &msg)
	f.logResult(r, KindOverlay, "/overlay", start, err)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (f *Factory) handleAbout(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, f.aboutManifest)
}

func (f *Factory) handleSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(swaggerUIHTML(f.buildTag)))
}

func (f *Factory) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	spec, err := f.BuildOpenAPISpec(r.Context())
	f.logResult(r, KindOpenAPI, "/openapi.json", start, err)
	if err != nil {
		httputil.WriteErrorResponse(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, spec)
}

func (f *Factory) logResult(r *http.Request, kind EndpointKind, path string, start time.Time, err error) {
	if f.logger == nil {
		return
	}
	status := http.StatusOK
	if err != nil {
		status = svcerrors.GetHTTPStatus(err)
	}
	f.logger.LogEndpoint(r.Context(), string(kind), path, time.Since(start), status)
}
