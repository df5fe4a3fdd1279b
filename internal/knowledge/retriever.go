// Package knowledge provides retrieval over the document collection: a
// similarity search that turns a query embedding into grounding context for
// generation, and the indexer that populates the collection.
package knowledge

import (
	"context"
	"errors"

	"github.com/ragcache/ragcache/internal/vectorstore"
)

// ErrNoMatch indicates the knowledge collection returned no result for the
// query. Unlike a cache miss this is surfaced to the caller because it means
// an unpopulated or mis-scoped knowledge base.
var ErrNoMatch = errors.New("no matching document found")

// Retriever is the policy layer over the knowledge collection. The
// collection uses cosine distance, so the top result is the most similar
// document.
type Retriever struct {
	store      vectorstore.Store
	collection string
}

// NewRetriever returns a Retriever reading the named collection.
func NewRetriever(store vectorstore.Store, collection string) *Retriever {
	return &Retriever{store: store, collection: collection}
}

// Retrieve returns the document nearest to vector. An empty result is
// ErrNoMatch; store failures pass through as search errors.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32) (string, error) {
	results, err := r.store.Search(ctx, r.collection, vector, 1)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", ErrNoMatch
	}
	return vectorstore.PayloadString(results[0].Payload, "document"), nil
}
