package proxy

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kgraph-io/plater-automat/internal/registry"
)

func TestAggregator_MergesBackendPathsUnderTagPrefix(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"openapi":"3.0.2","paths":{"/cypher":{"post":{}}}}`))
	}))
	defer backend.Close()

	reg := registry.New(0, time.Minute, 2*time.Minute, time.Hour)
	host, port, err := net.SplitHostPort(strings.TrimPrefix(backend.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to split backend address: %v", err)
	}
	reg.Refresh(registry.Heartbeat{Host: host, Port: port, Tag: "robokop"})

	agg := NewAggregator(reg, 2*time.Second, nil)
	merged := agg.Merge(context.Background())

	if _, ok := merged.Paths["/robokop/cypher"]; !ok {
		t.Fatalf("expected /robokop/cypher in merged paths, got %v", merged.Paths)
	}
	if _, ok := merged.Paths["/registry"]; !ok {
		t.Error("expected a synthetic /registry path in the merged document")
	}
}

func TestAggregator_SkipsUnreachableBackends(t *testing.T) {
	reg := registry.New(0, time.Minute, 2*time.Minute, time.Hour)
	reg.Refresh(registry.Heartbeat{Host: "127.0.0.1", Port: "1", Tag: "dead"})

	agg := NewAggregator(reg, 200*time.Millisecond, nil)
	merged := agg.Merge(context.Background())

	for path := range merged.Paths {
		if strings.HasPrefix(path, "/dead/") {
			t.Errorf("expected the unreachable backend's paths to be skipped, found %q", path)
		}
	}
}
