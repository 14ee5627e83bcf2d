package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aictl/internal/health"
	"aictl/internal/imageindex"
)

type fakeSearcher struct {
	matches []imageindex.Match
	err     error
	lastOpt imageindex.SearchOptions
}

func (f *fakeSearcher) Search(_ context.Context, _ string, opts imageindex.SearchOptions) ([]imageindex.Match, error) {
	f.lastOpt = opts
	return f.matches, f.err
}

func (f *fakeSearcher) Count() int { return len(f.matches) }

func newTestServer(searcher Searcher, reg *health.Registry) *Server {
	return New(Config{Addr: "127.0.0.1:0", Searcher: searcher, Health: reg})
}

func TestHealthEndpoint(t *testing.T) {
	reg := health.NewRegistry()
	reg.Register("lmstudio", "http://localhost:1234", nil)
	reg.RecordLatency("lmstudio", 20*time.Millisecond)

	srv := newTestServer(&fakeSearcher{}, reg)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var resp struct {
		Status   string `json:"status"`
		Services []struct {
			Service string `json:"service"`
			State   string `json:"state"`
		} `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("unexpected status field: %q", resp.Status)
	}
	if len(resp.Services) != 1 || resp.Services[0].Service != "lmstudio" || resp.Services[0].State != "healthy" {
		t.Fatalf("unexpected services: %+v", resp.Services)
	}
}

func TestSearchEndpoint(t *testing.T) {
	searcher := &fakeSearcher{matches: []imageindex.Match{
		{Path: "/photos/cat.jpg", Similarity: 0.9, Summary: "a cat"},
	}}
	srv := newTestServer(searcher, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=cat&top=3&person=alice", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Count   int `json:"count"`
		Results []struct {
			Path string `json:"path"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Results[0].Path != "/photos/cat.jpg" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if searcher.lastOpt.TopK != 3 || searcher.lastOpt.Person != "alice" {
		t.Fatalf("query parameters not passed through: %+v", searcher.lastOpt)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchWithoutIndexReturns503(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=cat", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSearchErrorReturns500(t *testing.T) {
	srv := newTestServer(&fakeSearcher{err: errors.New("boom")}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=cat", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeSearcher{}, nil)

	// A search first so the counters have values.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=cat", nil))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "aictl_http_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
	if !strings.Contains(body, "aictl_image_searches_total 1") {
		t.Fatalf("metrics output missing search counter:\n%s", body)
	}
}
