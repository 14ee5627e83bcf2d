package imageindex

import (
	"context"
	"math"
	"strings"
	"testing"
)

// fakeEmbed maps text onto a tiny topic space so similarity is predictable
// without a real embedding model.
func fakeEmbed(_ context.Context, text string) ([]float32, error) {
	topics := []string{"cat", "dog", "beach"}
	vec := make([]float32, len(topics)+1)
	vec[len(topics)] = 0.1 // keep the vector nonzero for topic-free text
	lower := strings.ToLower(text)
	for i, topic := range topics {
		vec[i] = float32(strings.Count(lower, topic))
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{}, fakeEmbed)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func TestStoreSearchRanksBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "a", Content: "a cat sleeping on a couch", Metadata: map[string]string{"path": "/photos/cat.jpg"}},
		{ID: "b", Content: "a dog running on the beach", Metadata: map[string]string{"path": "/photos/dog.jpg"}},
	}
	if err := store.Add(ctx, docs); err != nil {
		t.Fatalf("add: %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("expected 2 documents, got %d", store.Count())
	}

	results, err := store.SearchByText(ctx, "cat", 5, 0, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Document.ID != "a" {
		t.Fatalf("expected the cat document first, got %s", results[0].Document.ID)
	}
}

func TestStoreSearchEmptyCollection(t *testing.T) {
	store := newTestStore(t)
	results, err := store.SearchByText(context.Background(), "anything", 5, 0, nil)
	if err != nil {
		t.Fatalf("search on empty store: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, []Document{{ID: "a", Content: "a cat"}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("expected empty store, got %d", store.Count())
	}
}

func TestStoreWhereFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []Document{
		{ID: "a", Content: "a cat indoors", Metadata: map[string]string{"scene": "living_room"}},
		{ID: "b", Content: "a cat on the beach", Metadata: map[string]string{"scene": "beach"}},
	}
	if err := store.Add(ctx, docs); err != nil {
		t.Fatalf("add: %v", err)
	}

	results, err := store.SearchByText(ctx, "cat", 5, 0, map[string]string{"scene": "beach"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Document.ID != "b" {
		t.Fatalf("expected only the beach document, got %+v", results)
	}
}
