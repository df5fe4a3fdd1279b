package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ragcache/ragcache/internal/vectorstore"
)

// Indexer writes documents into the knowledge collection.
type Indexer struct {
	store      vectorstore.Store
	collection string
}

// NewIndexer returns an Indexer writing the named collection.
func NewIndexer(store vectorstore.Store, collection string) *Indexer {
	return &Indexer{store: store, collection: collection}
}

// Add stores documents with their embeddings. documents and vectors must be
// index-aligned; each document gets a fresh random ID.
func (ix *Indexer) Add(ctx context.Context, documents []string, vectors [][]float32) error {
	if len(documents) != len(vectors) {
		return fmt.Errorf("documents and vectors differ in length: %d vs %d",
			len(documents), len(vectors))
	}
	if len(documents) == 0 {
		return nil
	}

	points := make([]vectorstore.Point, 0, len(documents))
	for i, doc := range documents {
		points = append(points, vectorstore.Point{
			ID:      uuid.NewString(),
			Vector:  vectors[i],
			Payload: map[string]any{"document": doc},
		})
	}
	return ix.store.Upsert(ctx, ix.collection, points)
}
