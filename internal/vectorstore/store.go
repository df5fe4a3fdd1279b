// Package vectorstore provides the capability boundary over the external
// vector database: collection lifecycle, point upsert, and nearest-neighbor
// search with payload retrieval.
//
// The package carries no retrieval policy. The cache and knowledge layers
// decide what a result means; backends here only move vectors and payloads.
// Three backends implement Store: a Qdrant REST client, a PostgreSQL/pgvector
// store, and an in-memory brute-force store for tests and local development.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Metric is the declared distance metric of a collection.
//
// The Score of a Result depends on the metric: cosine collections report
// similarity (higher is better), Euclidean collections report distance
// (lower is better). Both orderings are "best match first".
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclid"
)

// Point is one stored vector with its payload. Points are immutable once
// written; callers generate a fresh ID per insert.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Result is one search hit. Score follows the collection metric's
// convention, see Metric.
type Result struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Store is the narrow interface the policy layers build on.
type Store interface {
	// EnsureCollection declares a collection with the given dimensionality
	// and metric. Safe to call when the collection already exists with the
	// same parameters (create-or-noop).
	EnsureCollection(ctx context.Context, name string, dims int, metric Metric) error

	// Upsert writes points to a collection. Fails with *WriteError on
	// dimension mismatch or transport failure.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to k nearest points to vector, best match first.
	// An empty result slice is not an error; *SearchError signals
	// transport or auth failure only.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]Result, error)

	// Close releases backend resources.
	Close() error
}

// ErrDimensionMismatch marks upserts whose vector width differs from the
// collection's declared dimensionality. Wrapped inside *WriteError.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// WriteError reports a failed upsert.
type WriteError struct {
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("vector store write to %q: %v", e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SearchError reports a failed search. It is never produced for an empty
// result set.
type SearchError struct {
	Collection string
	Err        error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("vector store search in %q: %v", e.Collection, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// PayloadString extracts a string field from a point payload, tolerating
// the loose typing JSON round-trips produce.
func PayloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	val, ok := payload[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
