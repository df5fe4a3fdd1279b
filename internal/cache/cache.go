// Package cache implements the semantic answer cache: a similarity lookup
// over previously answered prompts, keyed by embedding rather than by exact
// text. Two paraphrases whose embeddings land close together share a cached
// answer.
package cache

import (
	"context"

	"github.com/google/uuid"

	"github.com/ragcache/ragcache/internal/log"
	"github.com/ragcache/ragcache/internal/vectorstore"
)

// Cache is the policy layer over the cache collection. The collection uses
// Euclidean distance, so search scores are distances with lower meaning
// closer.
type Cache struct {
	store      vectorstore.Store
	collection string

	// maxDistance treats a nearest point further away than this as a miss.
	// Zero disables the check and any nearest point counts as a hit, which
	// can return an unrelated answer from a sparse cache.
	maxDistance float64

	logger log.Logger
}

// New returns a Cache reading and writing the named collection.
func New(store vectorstore.Store, collection string, maxDistance float64, logger log.Logger) *Cache {
	return &Cache{
		store:       store,
		collection:  collection,
		maxDistance: maxDistance,
		logger:      logger,
	}
}

// Lookup searches for the answer cached nearest to vector. A miss returns
// ok=false with no error; errors are returned for the caller to decide on,
// not absorbed here.
func (c *Cache) Lookup(ctx context.Context, vector []float32) (answer string, ok bool, err error) {
	results, err := c.store.Search(ctx, c.collection, vector, 1)
	if err != nil {
		return "", false, err
	}
	if len(results) == 0 {
		return "", false, nil
	}

	top := results[0]
	if c.maxDistance > 0 && top.Score > c.maxDistance {
		c.logger.Debug("nearest cached answer too distant",
			"distance", top.Score, "max_distance", c.maxDistance)
		return "", false, nil
	}
	return vectorstore.PayloadString(top.Payload, "answer"), true, nil
}

// Store appends a new cache point carrying the answer. Near-duplicate
// prompts each add their own point; the cache grows monotonically and
// lookup's top-1 ordering picks among them.
func (c *Cache) Store(ctx context.Context, vector []float32, answer string) error {
	point := vectorstore.Point{
		ID:      uuid.NewString(),
		Vector:  vector,
		Payload: map[string]any{"answer": answer},
	}
	return c.store.Upsert(ctx, c.collection, []vectorstore.Point{point})
}
