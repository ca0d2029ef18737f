package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeResolver map[string]string

func (f fakeResolver) GetHostByTag(tag string) string { return f[tag] }

func TestRouter_ForwardsToResolvedBackendStrippingTag(t *testing.T) {
	var gotPath, gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	rt := &Router{registry: fakeResolver{"robokop": strings.TrimPrefix(backend.URL, "http://")}}

	req := httptest.NewRequest(http.MethodGet, "/robokop/cypher?limit=5", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req, "robokop", "/cypher")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotPath != "/cypher" {
		t.Errorf("path = %q, want /cypher", gotPath)
	}
	if gotQuery != "limit=5" {
		t.Errorf("query = %q, want limit=5", gotQuery)
	}
}

func TestRouter_ReturnsNotFoundForUnknownTag(t *testing.T) {
	rt := &Router{registry: fakeResolver{}}

	req := httptest.NewRequest(http.MethodGet, "/unknown/cypher", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req, "unknown", "/cypher")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_DefaultsEmptyRemainderToSlash(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	rt := &Router{registry: fakeResolver{"robokop": strings.TrimPrefix(backend.URL, "http://")}}

	req := httptest.NewRequest(http.MethodGet, "/robokop", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req, "robokop", "")

	if gotPath != "/" {
		t.Errorf("path = %q, want /", gotPath)
	}
}
