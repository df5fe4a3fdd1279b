package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ragcache/ragcache/internal/knowledge"
	"github.com/ragcache/ragcache/internal/log"
	"github.com/ragcache/ragcache/internal/vectorstore"
)

// fakeEmbedder produces fixed-dimensionality vectors and records every
// batch it sees. failAt makes the Nth EmbedBatch call fail.
type fakeEmbedder struct {
	batches [][]string
	failAt  int
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.failAt > 0 && len(f.batches) == f.failAt {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(len(texts[i])), 1}
	}
	return vecs, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

// newTestIngestor wires an Ingestor over an in-memory store. The cache dir
// is redirected so the ingest lock never collides across tests.
func newTestIngestor(t *testing.T, cfg Config) (*Ingestor, *vectorstore.Memory) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	store := vectorstore.NewMemory()
	if err := store.EnsureCollection(context.Background(), "knowledge", 2, vectorstore.MetricCosine); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	if cfg.Embedder == nil {
		cfg.Embedder = &fakeEmbedder{}
	}
	cfg.Indexer = knowledge.NewIndexer(store, "knowledge")
	cfg.Logger = log.NewNop()

	ing, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ing, store
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Indexer: &knowledge.Indexer{}}); err == nil {
		t.Error("expected error without embedder")
	}
	if _, err := New(Config{Embedder: &fakeEmbedder{}}); err == nil {
		t.Error("expected error without indexer")
	}
}

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.csv")
	writeFile(t, path, strings.Join([]string{
		`text,category`,
		`"France's capital is Paris, on the Seine",geography`,
		`The Go gopher was designed by Renee French,trivia`,
		`,empty-first-column`,
		`unquoted single column`,
		``,
	}, "\n"))

	docs, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	want := []string{
		"France's capital is Paris, on the Seine",
		"The Go gopher was designed by Renee French",
		"unquoted single column",
	}
	if len(docs) != len(want) {
		t.Fatalf("got %d documents, want %d: %v", len(docs), len(want), docs)
	}
	for i := range want {
		if docs[i] != want[i] {
			t.Errorf("docs[%d] = %q, want %q", i, docs[i], want[i])
		}
	}
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	writeFile(t, path, "text,category\n")

	docs, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d documents, want 0", len(docs))
	}
}

func TestExpandGlobs(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "a.csv"), "h\nx\n")
	writeFile(t, filepath.Join(dir, "sub", "b.csv"), "h\ny\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not csv")

	paths, err := ExpandGlobs([]string{filepath.Join(dir, "**", "*.csv")})
	if err != nil {
		t.Fatalf("ExpandGlobs: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2: %v", len(paths), paths)
	}
	if filepath.Base(paths[0]) != "a.csv" || filepath.Base(paths[1]) != "b.csv" {
		t.Errorf("unexpected paths: %v", paths)
	}
}

func TestExpandGlobs_NoMatchIsError(t *testing.T) {
	if _, err := ExpandGlobs([]string{filepath.Join(t.TempDir(), "*.csv")}); err == nil {
		t.Fatal("expected error for pattern matching nothing")
	}
}

func TestFiles(t *testing.T) {
	emb := &fakeEmbedder{}
	ing, store := newTestIngestor(t, Config{Embedder: emb})

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "docs.csv"),
		"text\nfirst document line\nsecond document line\nthird document line\n")

	n, err := ing.Files(context.Background(), []string{filepath.Join(dir, "*.csv")})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if n != 3 {
		t.Errorf("ingested %d, want 3", n)
	}
	if got := store.PointCount("knowledge"); got != 3 {
		t.Errorf("store holds %d points, want 3", got)
	}
	if len(emb.batches) != 1 {
		t.Errorf("embedder saw %d batches, want 1", len(emb.batches))
	}
}

func TestRun_Batching(t *testing.T) {
	emb := &fakeEmbedder{}
	ing, store := newTestIngestor(t, Config{Embedder: emb, BatchSize: 4})

	docs := make([]string, 10)
	for i := range docs {
		docs[i] = fmt.Sprintf("document number %d", i)
	}

	n, err := ing.run(context.Background(), docs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 10 {
		t.Errorf("ingested %d, want 10", n)
	}

	sizes := make([]int, len(emb.batches))
	for i, b := range emb.batches {
		sizes[i] = len(b)
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("batch sizes = %v, want [4 4 2]", sizes)
	}
	if got := store.PointCount("knowledge"); got != 10 {
		t.Errorf("store holds %d points, want 10", got)
	}
}

func TestRun_EmbedFailureStopsRun(t *testing.T) {
	emb := &fakeEmbedder{failAt: 2, err: errors.New("quota exceeded")}
	ing, store := newTestIngestor(t, Config{Embedder: emb, BatchSize: 4})

	docs := make([]string, 10)
	for i := range docs {
		docs[i] = fmt.Sprintf("document number %d", i)
	}

	n, err := ing.run(context.Background(), docs)
	if err == nil {
		t.Fatal("expected error from failing batch")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want quota exceeded cause", err)
	}

	// The first batch committed, nothing after the failure did.
	if n != 4 {
		t.Errorf("ingested %d, want 4", n)
	}
	if got := store.PointCount("knowledge"); got != 4 {
		t.Errorf("store holds %d points, want 4", got)
	}
}

func TestRun_Empty(t *testing.T) {
	ing, store := newTestIngestor(t, Config{})

	n, err := ing.run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 0 || store.PointCount("knowledge") != 0 {
		t.Errorf("empty run wrote data: n=%d points=%d", n, store.PointCount("knowledge"))
	}
}

func TestRun_RateLimitRespectsContext(t *testing.T) {
	// One-token bucket refilling at a negligible rate: the first batch
	// passes on the burst token, the second cannot complete in time.
	ing, _ := newTestIngestor(t, Config{BatchSize: 1, RateLimit: 0.0001})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	n, err := ing.run(ctx, []string{"first document text", "second document text"})
	if err == nil {
		t.Fatal("expected context error from rate limiter")
	}
	if n != 1 {
		t.Errorf("ingested %d, want 1", n)
	}
}

func TestLock_SecondRunRejected(t *testing.T) {
	ing, _ := newTestIngestor(t, Config{})

	release, err := ing.acquireLock()
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}
	defer release()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "docs.csv"), "text\nsome document content\n")

	_, err = ing.Files(context.Background(), []string{filepath.Join(dir, "*.csv")})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
}

func TestURL(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>Vector Databases</title></head>
<body>
<article>
<h1>Vector Databases</h1>
<p>A vector database stores high-dimensional embeddings and answers nearest-neighbor queries over them, which makes it the natural backing store for semantic search and retrieval-augmented generation systems.</p>
<p>Unlike a conventional index keyed on exact terms, similarity search ranks every stored point by its distance to the query vector, so results remain useful even when the query shares no words with the stored documents.</p>
</article>
</body>
</html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	}))
	defer srv.Close()

	emb := &fakeEmbedder{}
	ing, store := newTestIngestor(t, Config{Embedder: emb})

	n, err := ing.URL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if n < 2 {
		t.Errorf("ingested %d documents, want at least 2", n)
	}
	if got := store.PointCount("knowledge"); got != n {
		t.Errorf("store holds %d points, want %d", got, n)
	}
}

func TestParagraphs(t *testing.T) {
	text := "Too short.\n" +
		"This line is comfortably long enough to clear the minimum paragraph length filter applied during ingestion.\n" +
		"   Another   sufficiently   long line whose interior   whitespace should be collapsed to single spaces throughout.  \n"

	docs := paragraphs(text)
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2: %v", len(docs), docs)
	}
	if strings.Contains(docs[1], "  ") {
		t.Errorf("whitespace not collapsed: %q", docs[1])
	}
}
