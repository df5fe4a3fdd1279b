package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAI_EmbedBatch(t *testing.T) {
	var gotAuth string
	var gotReq embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		// Out of order on purpose; the index field decides placement.
		w.Write([]byte(`{"data":[
			{"embedding":[0.4,0.5],"index":1},
			{"embedding":[0.1,0.2],"index":0}
		]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{APIBase: srv.URL, APIKey: "sk-test", Model: "text-embedding-ada-002", Dimensions: 2})
	embeddings, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotReq.Model != "text-embedding-ada-002" {
		t.Errorf("unexpected model %q", gotReq.Model)
	}
	if len(gotReq.Input) != 2 || gotReq.Input[0] != "first" {
		t.Errorf("unexpected input %v", gotReq.Input)
	}
	if len(embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(embeddings))
	}
	if embeddings[0][0] != 0.1 || embeddings[1][0] != 0.4 {
		t.Errorf("embeddings not reordered by index: %v", embeddings)
	}
}

func TestOpenAI_EmbedBatch_CountMismatchFailsWhole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.1],"index":0}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{APIBase: srv.URL, APIKey: "sk-test", Model: "m", Dimensions: 1})
	_, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if !errors.Is(err, ErrNoEmbeddings) {
		t.Fatalf("expected ErrNoEmbeddings for partial batch, got %v", err)
	}
}

func TestOpenAI_EmbedBatch_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{APIBase: srv.URL, APIKey: "sk-test", Model: "m", Dimensions: 1})
	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	if !errors.Is(err, ErrNoEmbeddings) {
		t.Fatalf("expected ErrNoEmbeddings for an empty response, got %v", err)
	}
}

func TestOpenAI_EmbedBatch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{APIBase: srv.URL, APIKey: "sk-test", Model: "m", Dimensions: 1})
	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestOpenAI_EmbedBatch_EmptyInput(t *testing.T) {
	c := NewOpenAI(Config{APIBase: "http://unused", APIKey: "sk-test", Model: "m", Dimensions: 1})
	embeddings, err := c.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
	if embeddings != nil {
		t.Errorf("expected nil embeddings, got %v", embeddings)
	}
}

func TestOpenAI_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.7,0.8,0.9],"index":0}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(Config{APIBase: srv.URL + "/", APIKey: "sk-test", Model: "m", Dimensions: 3})
	vec, err := c.Embed(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.7 {
		t.Errorf("unexpected vector %v", vec)
	}
	if c.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3", c.Dimensions())
	}
}
