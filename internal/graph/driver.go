// Package graph implements the Graph Driver and Graph Interface: the
// transactional-HTTP client for a Neo4j-compatible graph database and the
// schema-aware query layer built on top of it.
package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	svcerrors "github.com/kgraph-io/plater-automat/internal/errors"
	"github.com/kgraph-io/plater-automat/internal/httputil"
	"github.com/kgraph-io/plater-automat/internal/logging"
)

const transactionCommitPath = "/db/data/transaction/commit"

// labelsPath is pinged at startup to fail fast on an unreachable database
// before bootstrap attempts any cypher.
const labelsPath = "/db/data/labels"

// pingLatencyWarnThreshold is the labels-ping latency above which bootstrap
// logs a warning but still proceeds.
const pingLatencyWarnThreshold = 5 * time.Second

// relationshipFulltextIndexType is the index type db.indexes() reports for a
// relationship fulltext index.
const relationshipFulltextIndexType = "relationship_fulltext"

// maxResponseBodyBytes caps how much of a graph database error body gets
// read into a log line or error detail.
const maxResponseBodyBytes = 64 << 10 // 64KiB

// Statement is a single cypher statement in a transactional HTTP request.
type Statement struct {
	Statement string `json:"statement"`
}

type transactionRequest struct {
	Statements []Statement `json:"statements"`
}

// ResultError is one entry of the graph database's "errors" response array.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatementResult is one entry of the "results" response array: the columns
// named in the RETURN clause, and one "row"+"meta" pair per matched record.
type StatementResult struct {
	Columns []string    `json:"columns"`
	Data    []RowResult `json:"data"`
}

// RowResult is a single matched record's row values and graph metadata.
type RowResult struct {
	Row  []interface{} `json:"row"`
	Meta []interface{} `json:"meta,omitempty"`
}

// TransactionResponse is the full transactional HTTP commit response.
type TransactionResponse struct {
	Results []StatementResult `json:"results"`
	Errors  []ResultError     `json:"errors"`
}

// HasErrors reports whether the graph database reported any statement errors.
func (r *TransactionResponse) HasErrors() bool {
	return len(r.Errors) > 0
}

// FirstRows returns the row values of the first statement's first result
// columns zipped into column-name keyed maps, or nil if there were none.
func (r *TransactionResponse) FirstRows() []map[string]interface{} {
	if len(r.Results) == 0 {
		return nil
	}
	return zipRows(r.Results[0])
}

func zipRows(result StatementResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(result.Data))
	for _, row := range result.Data {
		record := make(map[string]interface{}, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(row.Row) {
				record[col] = row.Row[i]
			}
		}
		out = append(out, record)
	}
	return out
}

// Driver is a thin transactional-HTTP client for a Neo4j-compatible graph
// database, modeled directly on the transaction/commit endpoint.
type Driver struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewDriver constructs a Driver targeting host:port over HTTP with basic
// auth credentials.
func NewDriver(host string, port int, username, password string, timeout time.Duration, logger *logging.Logger) *Driver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := httputil.DefaultTransportWithMinTLS12()
	if t, ok := transport.(*http.Transport); ok {
		t.MaxIdleConnsPerHost = 60 // one shared pool of about 60 connections to the graph database
	}
	client := httputil.CopyHTTPClientWithTimeout(&http.Client{Transport: transport}, timeout, true)

	credentials := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", username, password)))

	return &Driver{
		baseURL:    fmt.Sprintf("http://%s:%d%s", host, port, transactionCommitPath),
		authHeader: "Basic " + credentials,
		httpClient: client,
		logger:     logger,
	}
}

// Run executes a single cypher statement against the transaction/commit
// endpoint and returns the parsed response.
func (d *Driver) Run(ctx context.Context, cypher string) (*TransactionResponse, error) {
	start := time.Now()
	resp, err := d.run(ctx, cypher)
	duration := time.Since(start)

	rowCount := 0
	if resp != nil && len(resp.Results) > 0 {
		rowCount = len(resp.Results[0].Data)
	}
	if d.logger != nil {
		d.logger.LogCypherQuery(ctx, cypher, duration, rowCount, err)
	}
	if err != nil {
		return nil, err
	}
	if resp.HasErrors() {
		return nil, svcerrors.QueryError(cypher, fmt.Errorf("%s", resp.Errors[0].Message))
	}
	return resp, nil
}

func (d *Driver) run(ctx context.Context, cypher string) (*TransactionResponse, error) {
	payload, err := json.Marshal(transactionRequest{Statements: []Statement{{Statement: cypher}}})
	if err != nil {
		return nil, svcerrors.BackendError("failed to encode cypher payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, svcerrors.BackendError("failed to build graph database request", err)
	}
	req.Header.Set("Accept", "application/json; charset=UTF-8")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", d.authHeader)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, svcerrors.BackendError("graph database request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _, _ := httputil.ReadAllWithLimit(resp.Body, maxResponseBodyBytes)
		return nil, svcerrors.BackendError(fmt.Sprintf("graph database returned status %d", resp.StatusCode), fmt.Errorf("%s", string(errBody)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, svcerrors.BackendError("failed to read graph database response", err)
	}

	var txResp TransactionResponse
	if err := json.Unmarshal(body, &txResp); err != nil {
		return nil, svcerrors.BackendError("failed to decode graph database response", err)
	}

	return &txResp, nil
}

// Ping executes a lightweight statement to verify connectivity. Startup
// bootstrap does not call it; Bootstrap probes the labels endpoint instead.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.Run(ctx, "MATCH (n) RETURN n LIMIT 1")
	return err
}

// Bootstrap runs once at PLATER startup: it fails fast if the database is
// unreachable, then ensures a relationship fulltext index named
// edgeIndexName exists over the `id` property of every edge type, creating
// it if absent. The yank phase's bulk edge fetch depends on this index
// existing before the first query is served.
func (d *Driver) Bootstrap(ctx context.Context, edgeIndexName string) error {
	if err := d.pingLabels(ctx); err != nil {
		return err
	}
	return d.ensureEdgeIndex(ctx, edgeIndexName)
}

// pingLabels synchronously probes the legacy labels endpoint: unreachable or
// a non-2xx status is fatal, latency over 5s is only a warning.
func (d *Driver) pingLabels(ctx context.Context) error {
	url := strings.TrimSuffix(d.baseURL, transactionCommitPath) + labelsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return svcerrors.BackendError("failed to build labels ping request", err)
	}
	req.Header.Set("Accept", "application/json; charset=UTF-8")
	req.Header.Set("Authorization", d.authHeader)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return svcerrors.BackendError("graph database is unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if latency > pingLatencyWarnThreshold && d.logger != nil {
		d.logger.WithContext(ctx).WithField("latency", latency.String()).Warn("graph database labels ping exceeded 5s")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return svcerrors.BackendError(
			fmt.Sprintf("graph database labels endpoint returned status %d", resp.StatusCode),
			fmt.Errorf("labels ping failed"),
		)
	}
	return nil
}

// ensureEdgeIndex enumerates existing indexes and, if edgeIndexName is
// missing, creates it as a relationship fulltext index over every edge type
// currently in the graph. An existing index under that name of a different
// type is a fatal configuration conflict.
func (d *Driver) ensureEdgeIndex(ctx context.Context, edgeIndexName string) error {
	resp, err := d.Run(ctx, "CALL db.indexes() YIELD name, type RETURN name, type")
	if err != nil {
		return err
	}
	for _, row := range resp.FirstRows() {
		name, _ := row["name"].(string)
		if name != edgeIndexName {
			continue
		}
		indexType, _ := row["type"].(string)
		if !strings.EqualFold(indexType, relationshipFulltextIndexType) {
			return svcerrors.BackendError(
				fmt.Sprintf("index %q already exists but is not a relationship fulltext index (type %q)", edgeIndexName, indexType),
				fmt.Errorf("edge index type conflict"),
			)
		}
		return nil
	}

	relResp, err := d.Run(ctx, "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType")
	if err != nil {
		return err
	}
	var quotedTypes []string
	for _, row := range relResp.FirstRows() {
		if relType, ok := row["relationshipType"].(string); ok {
			quotedTypes = append(quotedTypes, "'"+escapeCypherString(relType)+"'")
		}
	}

	createCypher := fmt.Sprintf(
		"CALL db.index.fulltext.createRelationshipIndex('%s', [%s], ['id'], {analyzer: 'whitespace', eventually_consistent: 'true'})",
		escapeCypherString(edgeIndexName), strings.Join(quotedTypes, ", "),
	)
	_, err = d.Run(ctx, createCypher)
	return err
}
