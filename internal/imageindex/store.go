package imageindex

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
)

// EmbedFunc produces an embedding for a text, chromem-go style.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Document is a stored image metadata document.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// SearchResult pairs a document with its similarity to the query.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	PersistPath string // empty for in-memory
	Collection  string
}

// Store manages image metadata embeddings and similarity search on top of
// a chromem-go collection.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewStore opens (or creates) the vector store.
func NewStore(config StoreConfig, embed EmbedFunc) (*Store, error) {
	if config.Collection == "" {
		config.Collection = "images"
	}

	var db *chromem.DB
	var err error
	if config.PersistPath != "" {
		persistFile := filepath.Join(config.PersistPath, "chromem.gob")
		db, err = chromem.NewPersistentDB(persistFile, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Store{db: db, collection: collection}, nil
}

// Add upserts documents. Embeddings are computed through the store's
// embedding function.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		err := s.collection.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// SearchByText performs similarity search. where optionally restricts
// matches to documents with exactly matching metadata values.
func (s *Store) SearchByText(ctx context.Context, query string, topK int, minSimilarity float32, where map[string]string) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.Query(ctx, query, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	var matches []SearchResult
	for _, r := range results {
		if r.Similarity < minSimilarity {
			continue
		}
		matches = append(matches, SearchResult{
			Document: Document{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// Delete removes documents by id.
func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return s.collection.Count()
}
