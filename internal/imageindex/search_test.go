package imageindex

import (
	"context"
	"testing"
)

func seedSearchDocs(t *testing.T, store *Store) {
	t.Helper()
	docs := []Document{
		{
			ID:      "cat-home",
			Content: "a cat on the sofa\nScene: living_room",
			Metadata: map[string]string{
				"path": "/photos/cat-home.jpg", "people": "alice", "scene": "living_room", "mtime": "100",
			},
		},
		{
			ID:      "cat-beach",
			Content: "a cat walking on the beach sand",
			Metadata: map[string]string{
				"path": "/photos/cat-beach.jpg", "people": "bob,carol", "scene": "beach", "mtime": "200",
			},
		},
		{
			ID:      "dog-beach",
			Content: "a dog chasing waves on the beach",
			Metadata: map[string]string{
				"path": "/photos/dog-beach.jpg", "people": "", "scene": "beach", "mtime": "300",
			},
		},
	}
	if err := store.Add(context.Background(), docs); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSearchReturnsMatchesWithMetadata(t *testing.T) {
	store := newTestStore(t)
	seedSearchDocs(t, store)

	matches, err := store.Search(context.Background(), "cat", SearchOptions{TopK: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	top := matches[0]
	if top.Path == "" || top.Summary == "" {
		t.Fatalf("match should carry path and summary: %+v", top)
	}
	if top.Path != "/photos/cat-home.jpg" && top.Path != "/photos/cat-beach.jpg" {
		t.Fatalf("expected a cat photo on top, got %s", top.Path)
	}
}

func TestSearchSceneFilter(t *testing.T) {
	store := newTestStore(t)
	seedSearchDocs(t, store)

	matches, err := store.Search(context.Background(), "cat", SearchOptions{TopK: 5, Scene: "beach"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, m := range matches {
		if m.Scene != "beach" {
			t.Fatalf("scene filter leaked %s (%s)", m.Path, m.Scene)
		}
	}
	if len(matches) == 0 {
		t.Fatal("expected beach matches")
	}
}

func TestSearchPersonFilter(t *testing.T) {
	store := newTestStore(t)
	seedSearchDocs(t, store)

	matches, err := store.Search(context.Background(), "beach", SearchOptions{TopK: 5, Person: "Carol"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one match with carol, got %d", len(matches))
	}
	if matches[0].Path != "/photos/cat-beach.jpg" {
		t.Fatalf("unexpected match: %s", matches[0].Path)
	}
	if len(matches[0].People) != 2 {
		t.Fatalf("people metadata should be split: %+v", matches[0].People)
	}
}
