package lmstudio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func embeddingServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		calls.Add(1)

		var payload struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(payload.Input))
		for i := range payload.Input {
			data[i] = item{Embedding: []float32{float32(i), 1, 2}, Index: i}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestEmbedderCachesResults(t *testing.T) {
	var calls atomic.Int64
	server := embeddingServer(t, &calls)
	client := New(Config{BaseURL: server.URL, Model: "test-model"})
	embedder, err := NewEmbedder(client, "embed-model", 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := embedder.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := embedder.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 API call, got %d", calls.Load())
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("unexpected embedding lengths: %d, %d", len(first), len(second))
	}
	if embedder.Dimensions() != 3 {
		t.Fatalf("unexpected dimensions: %d", embedder.Dimensions())
	}
}

func TestEmbedBatchMixesCachedAndFresh(t *testing.T) {
	var calls atomic.Int64
	server := embeddingServer(t, &calls)
	client := New(Config{BaseURL: server.URL, Model: "test-model"})
	embedder, err := NewEmbedder(client, "embed-model", 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := embedder.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0] == nil || results[1] == nil {
		t.Fatalf("unexpected results: %v", results)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 API calls (one per uncached batch), got %d", calls.Load())
	}
}

func TestEmbedBatchRejectsOversizedBatch(t *testing.T) {
	var calls atomic.Int64
	server := embeddingServer(t, &calls)
	client := New(Config{BaseURL: server.URL, Model: "test-model"})
	embedder, err := NewEmbedder(client, "embed-model", 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	texts := make([]string, 101)
	for i := range texts {
		texts[i] = "x"
	}
	if _, err := embedder.EmbedBatch(context.Background(), texts); err == nil {
		t.Fatal("expected batch size error")
	}
}
