package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/ragcache/ragcache/internal/vectorstore"
)

func newTestStore(t *testing.T) *vectorstore.Memory {
	t.Helper()
	store := vectorstore.NewMemory()
	if err := store.EnsureCollection(context.Background(), "docs", 2, vectorstore.MetricCosine); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
	return store
}

func TestRetriever_ReturnsMostSimilarDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ix := NewIndexer(store, "docs")
	err := ix.Add(ctx,
		[]string{"Paris is the capital of France.", "Berlin is the capital of Germany."},
		[][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	r := NewRetriever(store, "docs")
	doc, err := r.Retrieve(ctx, []float32{0.9, 0.1})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if doc != "Paris is the capital of France." {
		t.Errorf("unexpected document %q", doc)
	}
}

func TestRetriever_EmptyCollectionIsNoMatch(t *testing.T) {
	r := NewRetriever(newTestStore(t), "docs")

	_, err := r.Retrieve(context.Background(), []float32{1, 0})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestRetriever_SearchErrorPassesThrough(t *testing.T) {
	// Collection never declared, so the store fails the search.
	r := NewRetriever(vectorstore.NewMemory(), "docs")

	_, err := r.Retrieve(context.Background(), []float32{1, 0})
	var searchErr *vectorstore.SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("expected *SearchError, got %v", err)
	}
	if errors.Is(err, ErrNoMatch) {
		t.Error("a store failure must not be reported as no-match")
	}
}

func TestIndexer_Add(t *testing.T) {
	store := newTestStore(t)
	ix := NewIndexer(store, "docs")
	ctx := context.Background()

	err := ix.Add(ctx, []string{"a", "b", "c"}, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got := store.PointCount("docs"); got != 3 {
		t.Errorf("expected 3 indexed documents, got %d", got)
	}
}

func TestIndexer_Add_LengthMismatch(t *testing.T) {
	ix := NewIndexer(newTestStore(t), "docs")

	err := ix.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}})
	if err == nil {
		t.Fatal("expected error for misaligned documents and vectors")
	}
}

func TestIndexer_Add_EmptyIsNoop(t *testing.T) {
	store := newTestStore(t)
	ix := NewIndexer(store, "docs")

	if err := ix.Add(context.Background(), nil, nil); err != nil {
		t.Fatalf("empty Add should be a no-op, got %v", err)
	}
	if got := store.PointCount("docs"); got != 0 {
		t.Errorf("expected no documents, got %d", got)
	}
}
