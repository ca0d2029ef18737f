package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kgraph-io/plater-automat/internal/httputil"
	"github.com/kgraph-io/plater-automat/internal/logging"
	"github.com/kgraph-io/plater-automat/internal/registry"
)

// openAPISpecPath is the path every PLATER backend serves its OpenAPI spec at.
const openAPISpecPath = "/openapi.json"

// OpenAPISpec is a loosely-typed OpenAPI document: only openapi, info and
// paths are decoded. Each path item round-trips through RawMessage
// untouched; any other top-level field of a backend spec is dropped.
type OpenAPISpec struct {
	OpenAPI string                     `json:"openapi"`
	Info    map[string]interface{}     `json:"info"`
	Paths   map[string]json.RawMessage `json:"paths"`
}

// Aggregator fetches and merges the OpenAPI specs of every backend currently
// registered, prefixing each backend's paths with its tag so the merged
// document can still route requests back through the proxy.
type Aggregator struct {
	registry   *registry.Registry
	httpClient *http.Client
	logger     *logging.Logger
}

// NewAggregator constructs an Aggregator. fetchTimeout bounds each
// individual backend's spec fetch; a slow or dead backend is skipped rather
// than failing the whole aggregation.
func NewAggregator(reg *registry.Registry, fetchTimeout time.Duration, logger *logging.Logger) *Aggregator {
	transport := httputil.DefaultTransportWithMinTLS12()
	client := httputil.CopyHTTPClientWithTimeout(&http.Client{Transport: transport}, fetchTimeout, true)
	return &Aggregator{registry: reg, httpClient: client, logger: logger}
}

// Merge fetches every registered backend's OpenAPI spec concurrently and
// returns one merged document, plus a synthetic /registry path describing
// the aggregator's own listing endpoint.
func (a *Aggregator) Merge(ctx context.Context) *OpenAPISpec {
	snapshot := a.registry.GetRegistry()

	type fetched struct {
		tag   string
		paths map[string]json.RawMessage
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []fetched
	)

	for tag, entry := range snapshot {
		wg.Add(1)
		go func(tag, url string) {
			defer wg.Done()
			paths, err := a.fetchPaths(ctx, url)
			if err != nil {
				if a.logger != nil {
					a.logger.LogServiceCall(ctx, url, http.MethodGet, 0, 0, err)
				}
				return
			}
			mu.Lock()
			results = append(results, fetched{tag: tag, paths: paths})
			mu.Unlock()
		}(tag, entry.URL)
	}
	wg.Wait()

	merged := &OpenAPISpec{
		OpenAPI: "3.0.2",
		Info:    map[string]interface{}{"title": "Automat"},
		Paths:   map[string]json.RawMessage{},
	}

	for _, r := range results {
		for path, spec := range r.paths {
			merged.Paths[fmt.Sprintf("/%s%s", r.tag, path)] = spec
		}
	}

	merged.Paths["/registry"] = json.RawMessage(`{
		"get": {
			"description": "Returns the list of available PLATER instances. An entry from this list can prefix a request path to route it to that specific backend.",
			"operationId": "get_registered_backends",
			"tags": ["automat"],
			"responses": {"200": {"description": "OK"}}
		}
	}`)

	return merged
}

func (a *Aggregator) fetchPaths(ctx context.Context, backendAddr string) (map[string]json.RawMessage, error) {
	url := fmt.Sprintf("http://%s%s", backendAddr, openAPISpecPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend %s returned status %d", backendAddr, resp.StatusCode)
	}

	var spec OpenAPISpec
	if err := json.NewDecoder(resp.Body).Decode(&spec); err != nil {
		return nil, err
	}
	return spec.Paths, nil
}
